// Package config loads application configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables. Environment keys carry the INCIDENT_ prefix and use a
// double underscore between sections, e.g. INCIDENT_DATABASE__AUTO_MIGRATE.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "INCIDENT_"

// Draft store backends.
const (
	DraftStoreMemory = "memory"
	DraftStoreRedis  = "redis"
)

//go:embed defaults.yaml
var defaults []byte

// Config is the application configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Log           LogConfig           `koanf:"log"`
	CORS          CORSConfig          `koanf:"cors"`
	Auth          AuthConfig          `koanf:"auth"`
	Catalog       CatalogConfig       `koanf:"catalog"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Console       ConsoleConfig       `koanf:"console"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, text
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// AuthConfig holds bearer token settings. With auth disabled every request
// is anonymous.
type AuthConfig struct {
	Enabled   bool          `koanf:"enabled"`
	SecretKey string        `koanf:"secret_key"`
	Issuer    string        `koanf:"issuer"`
	TokenTTL  time.Duration `koanf:"token_ttl"`
}

// CatalogConfig points at an optional field catalog override file.
type CatalogConfig struct {
	Path string `koanf:"path"`
}

// NotificationsConfig holds lifecycle event publishing settings.
type NotificationsConfig struct {
	Enabled    bool             `koanf:"enabled"`
	BaseURL    string           `koanf:"base_url"`
	Mattermost MattermostConfig `koanf:"mattermost"`
	Kafka      KafkaConfig      `koanf:"kafka"`
}

// MattermostConfig holds the incoming webhook settings. An empty webhook URL
// disables the publisher.
type MattermostConfig struct {
	WebhookURL string `koanf:"webhook_url"`
	Username   string `koanf:"username"`
	IconURL    string `koanf:"icon_url"`
	Channel    string `koanf:"channel"`
	// MentionOnCritical prefixes messages about L5 Medium/High incidents
	// with @channel.
	MentionOnCritical bool          `koanf:"mention_on_critical"`
	Timeout           time.Duration `koanf:"timeout"`
}

// KafkaConfig holds the lifecycle topic producer settings.
type KafkaConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Brokers  []string      `koanf:"brokers"`
	Topic    string        `koanf:"topic"`
	ClientID string        `koanf:"client_id"`
	Linger   time.Duration `koanf:"linger"`
}

// ConsoleConfig holds incidentctl settings.
type ConsoleConfig struct {
	APIURL     string        `koanf:"api_url"`
	Token      string        `koanf:"token"`
	Timeout    time.Duration `koanf:"timeout"`
	RateLimit  float64       `koanf:"rate_limit"`
	Burst      int           `koanf:"burst"`
	DraftStore string        `koanf:"draft_store"`
	Redis      RedisConfig   `koanf:"redis"`
}

// RedisConfig holds the Redis draft store settings.
type RedisConfig struct {
	Addr      string        `koanf:"addr"`
	Password  string        `koanf:"password"`
	DB        int           `koanf:"db"`
	KeyPrefix string        `koanf:"key_prefix"`
	TTL       time.Duration `koanf:"ttl"`
}

// Load reads the configuration. path may be empty.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaults), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps INCIDENT_DATABASE__AUTO_MIGRATE to database.auto_migrate.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of json, text", c.Log.Format))
	}

	if c.Auth.Enabled && c.Auth.SecretKey == "" {
		errs = append(errs, errors.New("auth.secret_key is required when auth is enabled"))
	}

	if c.Notifications.Kafka.Enabled {
		if len(c.Notifications.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("notifications.kafka.brokers is required when kafka is enabled"))
		}
		if c.Notifications.Kafka.Topic == "" {
			errs = append(errs, errors.New("notifications.kafka.topic is required when kafka is enabled"))
		}
	}

	switch c.Console.DraftStore {
	case DraftStoreMemory:
	case DraftStoreRedis:
		if c.Console.Redis.Addr == "" {
			errs = append(errs, errors.New("console.redis.addr is required for the redis draft store"))
		}
	default:
		errs = append(errs, fmt.Errorf("console.draft_store %q is not one of memory, redis", c.Console.DraftStore))
	}
	if c.Console.RateLimit < 0 {
		errs = append(errs, errors.New("console.rate_limit must not be negative"))
	}

	return errors.Join(errs...)
}
