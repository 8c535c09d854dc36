package app

import (
	"context"
	"net/http"
	"time"

	"github.com/bissquit/incident-console/api/openapi"
	"github.com/bissquit/incident-console/internal/pkg/ctxlog"
	"github.com/bissquit/incident-console/internal/pkg/httputil"
	"github.com/bissquit/incident-console/internal/version"
	"github.com/go-chi/chi/v5"
)

const readinessTimeout = 2 * time.Second

func (a *App) registerProbes(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.Text(w, http.StatusOK, "OK")
	})
	r.Get("/readyz", a.ready)
	r.Get("/version", func(w http.ResponseWriter, _ *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{
			"version":    version.Version,
			"commit":     version.GitCommit,
			"build_date": version.BuildDate,
		})
	})
	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(openapi.Spec)
	})
}

// ready reports whether the database answers. Publishers are best effort
// and do not affect readiness.
func (a *App) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Warn("not ready", "check", "database", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}
	httputil.Text(w, http.StatusOK, "OK")
}
