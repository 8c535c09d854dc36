// Package app builds the incident API server from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/bissquit/incident-console/internal/catalog"
	"github.com/bissquit/incident-console/internal/config"
	"github.com/bissquit/incident-console/internal/identity"
	"github.com/bissquit/incident-console/internal/incidents"
	incidentspostgres "github.com/bissquit/incident-console/internal/incidents/postgres"
	"github.com/bissquit/incident-console/internal/notifications"
	"github.com/bissquit/incident-console/internal/notifications/kafka"
	"github.com/bissquit/incident-console/internal/pkg/httputil"
	"github.com/bissquit/incident-console/internal/pkg/metrics"
	"github.com/bissquit/incident-console/internal/pkg/postgres"
	"github.com/bissquit/incident-console/migrations"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// App wires configuration, storage, notifications and the two HTTP servers.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	kafka         *kafka.Publisher
	dispatcher    *notifications.Dispatcher
}

// New connects to Postgres, migrates the schema when configured and builds
// the API and metrics servers. Nothing listens until Run.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	app := &App{config: cfg, logger: logger, db: db}

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(migrations.FS, cfg.Database.URL); err != nil {
			app.closeResources()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	if err := registerCollector(metrics.NewDBCollector(db)); err != nil {
		app.closeResources()
		return nil, err
	}

	router, err := app.setupRouter()
	if err != nil {
		app.closeResources()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.server = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())
	app.metricsServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// registerCollector tolerates a second App in the same process.
func registerCollector(c prometheus.Collector) error {
	if err := prometheus.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return fmt.Errorf("register collector: %w", err)
		}
	}
	return nil
}

// Run serves the API and metrics listeners until either fails or both are
// shut down.
func (a *App) Run() error {
	var g errgroup.Group
	for _, srv := range []struct {
		name   string
		server *http.Server
	}{
		{"metrics", a.metricsServer},
		{"api", a.server},
	} {
		g.Go(func() error {
			a.logger.Info("starting server", "server", srv.name, "addr", srv.server.Addr)
			if err := srv.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s server: %w", srv.name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Shutdown drains both servers, then closes the publishers and the pool.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	var g errgroup.Group
	g.Go(func() error {
		if err := a.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		return nil
	})
	err := g.Wait()

	a.closeResources()
	return err
}

func (a *App) closeResources() {
	if a.kafka != nil {
		a.kafka.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Publishers returns the names of the configured lifecycle event publishers.
func (a *App) Publishers() []string {
	if a.dispatcher == nil {
		return nil
	}
	return a.dispatcher.Publishers()
}

func (a *App) setupRouter() (*chi.Mux, error) {
	r := chi.NewRouter()

	r.Use(httputil.MetricsMiddleware)
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	a.registerProbes(r)

	fieldCatalog, err := catalog.Load(a.config.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	var notifier incidents.StatusNotifier
	if a.config.Notifications.Enabled {
		n, err := a.setupNotifier()
		if err != nil {
			return nil, err
		}
		notifier = n
	}

	incidentsRepo := incidentspostgres.NewRepository(a.db)
	incidentsService := incidents.NewService(incidentsRepo, fieldCatalog, notifier)
	incidentsHandler := incidents.NewHandler(incidentsService)
	catalogHandler := catalog.NewHandler(fieldCatalog)

	var auth func(http.Handler) http.Handler
	if a.config.Auth.Enabled {
		validator, err := identity.NewJWTValidator(identity.Config{
			SecretKey: a.config.Auth.SecretKey,
			Issuer:    a.config.Auth.Issuer,
			TokenTTL:  a.config.Auth.TokenTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("create token validator: %w", err)
		}
		auth = httputil.AuthMiddleware(validator, true)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if auth != nil {
			r.Use(auth)
		}
		catalogHandler.RegisterRoutes(r)
		incidentsHandler.RegisterRoutes(r)
	})

	return r, nil
}

// initLogger builds the process logger. Unknown levels fall back to info;
// config.Validate rejects them before this point.
func initLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	_ = level.UnmarshalText([]byte(cfg.Level))

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
