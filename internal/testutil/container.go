package testutil

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/docker/go-connections/nat"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const startupTimeout = 30 * time.Second

// Service is a running backing container.
type Service struct {
	// Endpoint is a DSN for Postgres and host:port for Redis.
	Endpoint  string
	container testcontainers.Container
}

// Stop terminates the container.
func (s *Service) Stop(ctx context.Context) error {
	return s.container.Terminate(ctx)
}

// StartPostgres runs an empty incidents database.
func StartPostgres(ctx context.Context) (*Service, error) {
	c, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("incidents"),
		postgres.WithUsername("console"),
		postgres.WithPassword("console"),
		testcontainers.WithWaitStrategy(
			// Postgres restarts once after initdb.
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(startupTimeout),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres: %w", err)
	}

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	return &Service{Endpoint: dsn, container: c}, nil
}

// StartRedis runs a Redis instance for the draft cache.
func StartRedis(ctx context.Context) (*Service, error) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(startupTimeout),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("start redis: %w", err)
	}

	addr, err := hostPort(ctx, c, "6379/tcp")
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, err
	}
	return &Service{Endpoint: addr, container: c}, nil
}

func hostPort(ctx context.Context, c testcontainers.Container, port string) (string, error) {
	host, err := c.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("container host: %w", err)
	}
	mapped, err := c.MappedPort(ctx, nat.Port(port))
	if err != nil {
		return "", fmt.Errorf("container port %s: %w", port, err)
	}
	return net.JoinHostPort(host, mapped.Port()), nil
}
