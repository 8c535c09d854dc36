package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalcBackoff(t *testing.T) {
	assert.Equal(t, time.Second, calcBackoff(1))
	assert.Equal(t, 2*time.Second, calcBackoff(2))
	assert.Equal(t, 8*time.Second, calcBackoff(4))
	assert.Equal(t, maxBackoff, calcBackoff(5))
	assert.Equal(t, maxBackoff, calcBackoff(40))
}

func TestPoolConfig(t *testing.T) {
	pc, err := poolConfig(Config{
		URL:             "postgres://u:p@localhost:5432/incidents?sslmode=disable",
		MaxOpenConns:    4,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Minute,
	})
	require.NoError(t, err)

	assert.Equal(t, int32(4), pc.MaxConns)
	assert.Equal(t, int32(4), pc.MinConns)
	assert.Equal(t, time.Minute, pc.MaxConnLifetime)
	assert.Equal(t, "UTC", pc.ConnConfig.RuntimeParams["timezone"])
	assert.Equal(t, ApplicationName, pc.ConnConfig.RuntimeParams["application_name"])
}

func TestPoolConfig_KeepsApplicationName(t *testing.T) {
	pc, err := poolConfig(Config{URL: "postgres://u:p@localhost:5432/incidents?application_name=worker"})
	require.NoError(t, err)
	assert.Equal(t, "worker", pc.ConnConfig.RuntimeParams["application_name"])
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), Config{URL: "postgres://localhost:notaport/incidents"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse database url")
}

func TestConnect_CancelledWhileRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Connect(ctx, Config{
		URL:             "postgres://u:p@127.0.0.1:1/incidents?sslmode=disable&connect_timeout=1",
		ConnectAttempts: 3,
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestSleep(t *testing.T) {
	assert.True(t, sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleep(ctx, time.Hour))
}
