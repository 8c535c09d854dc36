package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.MetricsPort)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Auth.Enabled)
	assert.Equal(t, 12*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "incident-lifecycle", cfg.Notifications.Kafka.Topic)
	assert.Equal(t, DraftStoreMemory, cfg.Console.DraftStore)
	assert.Equal(t, 168*time.Hour, cfg.Console.Redis.TTL)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
log:
  level: debug
  format: text
notifications:
  kafka:
    enabled: true
    brokers: [kafka-1:9092, kafka-2:9092]
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.True(t, cfg.Notifications.Kafka.Enabled)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Notifications.Kafka.Brokers)
	// untouched keys keep their defaults
	assert.Equal(t, "9090", cfg.Server.MetricsPort)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("INCIDENT_DATABASE__URL", "postgres://u:p@db:5432/x")
	t.Setenv("INCIDENT_DATABASE__AUTO_MIGRATE", "false")
	t.Setenv("INCIDENT_AUTH__ENABLED", "true")
	t.Setenv("INCIDENT_AUTH__SECRET_KEY", "s3cret")
	t.Setenv("INCIDENT_CONSOLE__REDIS__TTL", "1h")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@db:5432/x", cfg.Database.URL)
	assert.False(t, cfg.Database.AutoMigrate)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "s3cret", cfg.Auth.SecretKey)
	assert.Equal(t, time.Hour, cfg.Console.Redis.TTL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"auth without secret", func(c *Config) { c.Auth.Enabled = true }, "auth.secret_key"},
		{"kafka without brokers", func(c *Config) { c.Notifications.Kafka.Enabled = true }, "notifications.kafka.brokers"},
		{"unknown draft store", func(c *Config) { c.Console.DraftStore = "disk" }, "console.draft_store"},
		{"redis without addr", func(c *Config) {
			c.Console.DraftStore = DraftStoreRedis
			c.Console.Redis.Addr = ""
		}, "console.redis.addr"},
		{"negative rate limit", func(c *Config) { c.Console.RateLimit = -1 }, "console.rate_limit"},
		{"missing database url", func(c *Config) { c.Database.URL = "" }, "database.url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "database.auto_migrate", envKey("INCIDENT_DATABASE__AUTO_MIGRATE"))
	assert.Equal(t, "console.redis.key_prefix", envKey("INCIDENT_CONSOLE__REDIS__KEY_PREFIX"))
}
