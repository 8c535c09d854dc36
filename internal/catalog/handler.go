package catalog

import (
	"bytes"
	"net/http"

	"github.com/bissquit/incident-console/internal/pkg/ctxlog"
	"github.com/bissquit/incident-console/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

// Handler serves the field catalog over HTTP.
type Handler struct {
	catalog *Catalog
}

// NewHandler creates a new catalog handler.
func NewHandler(c *Catalog) *Handler {
	return &Handler{catalog: c}
}

// RegisterRoutes registers the read-only catalog routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/catalog", func(r chi.Router) {
		r.Get("/", h.GetCatalog)
		r.Get("/export/", h.ExportCatalog)
		r.Get("/{field}/", h.GetField)
	})
}

// GetCatalog handles GET /catalog/ request.
func (h *Handler) GetCatalog(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, h.catalog.Snapshot())
}

// GetField handles GET /catalog/{field}/ request.
func (h *Handler) GetField(w http.ResponseWriter, r *http.Request) {
	field := Field(chi.URLParam(r, "field"))
	if !field.IsKnown() {
		httputil.Error(w, http.StatusNotFound, ErrUnknownField.Error())
		return
	}

	httputil.JSON(w, http.StatusOK, h.catalog.Options(field))
}

// ExportCatalog handles GET /catalog/export/ request.
func (h *Handler) ExportCatalog(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.catalog.Export(&buf); err != nil {
		ctxlog.FromContext(r.Context()).Error("export catalog", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/x-yaml")
	w.Header().Set("Content-Disposition", `attachment; filename="incident-catalog.yaml"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
