// Package incidents provides HTTP handlers and business logic for managing
// incidents through their lifecycle.
package incidents

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bissquit/incident-console/internal/domain"
	"github.com/bissquit/incident-console/internal/pkg/ctxlog"
	"github.com/bissquit/incident-console/internal/pkg/httputil"
	"github.com/bissquit/incident-console/internal/query"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Pagination constants.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is a paginated list response.
type Page struct {
	Count    int                `json:"count"`
	Next     *string            `json:"next"`
	Previous *string            `json:"previous"`
	Results  []*domain.Incident `json:"results"`
}

// Handler handles HTTP requests for the incidents module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new incidents handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: httputil.NewValidator(),
	}
}

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrIncidentNotFound, Status: http.StatusNotFound, Message: "Not found."},
	{Error: ErrPostmortemNotFound, Status: http.StatusNotFound, Message: "Not found."},
	{Error: ErrIncidentClosed, Status: http.StatusConflict, Message: ErrIncidentClosed.Error()},
	{Error: ErrPostmortemReadOnly, Status: http.StatusConflict, Message: ErrPostmortemReadOnly.Error()},
	{Error: ErrPostmortemNotAllowed, Status: http.StatusConflict, Message: ErrPostmortemNotAllowed.Error()},
	{Error: ErrInvalidTransition, Status: http.StatusConflict},
}

// RegisterRoutes registers all HTTP routes for the incidents module.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/incidents", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/statistics/", h.Statistics)
		r.Get("/critical/", h.Critical)

		r.Route("/{id}", func(r chi.Router) {
			r.Use(requireUUID)
			r.Get("/", h.Get)
			r.Patch("/", h.Patch)
			r.Get("/updates/", h.ListUpdates)
			r.Post("/updates/", h.CreateUpdate)
			r.Get("/postmortem/", h.GetPostmortem)
			r.Post("/postmortem/", h.SavePostmortem)
			r.Post("/documents/", h.CreateDocument)
			r.Get("/timeline/", h.Timeline)
		})
	})
}

// requireUUID answers 404 for ids that cannot exist and tags the request
// logger with the incident id.
func requireUUID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := uuid.Parse(id); err != nil {
			httputil.Error(w, http.StatusNotFound, "Not found.")
			return
		}
		next.ServeHTTP(w, r.WithContext(ctxlog.With(r.Context(), "incident_id", id)))
	})
}

// List handles GET /incidents/ request.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filters, err := query.Parse(r.URL.Query())
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	filters.Ordering = filters.OrderingOrDefault()

	page, pageSize := paging(filters)
	items, total, err := h.service.List(r.Context(), ListFilter{
		Filters: filters,
		Limit:   pageSize,
		Offset:  (page - 1) * pageSize,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, newPage(r.URL, items, total, page, pageSize))
}

// Critical handles GET /incidents/critical/ request.
func (h *Handler) Critical(w http.ResponseWriter, r *http.Request) {
	filters, err := query.Parse(r.URL.Query())
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	page, pageSize := paging(filters)
	items, total, err := h.service.Critical(r.Context(), pageSize, (page-1)*pageSize)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, newPage(r.URL, items, total, page, pageSize))
}

// Statistics handles GET /incidents/statistics/ request.
func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	filters, err := query.Parse(r.URL.Query())
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := h.service.Statistics(r.Context(), filters)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, stats)
}

// Create handles POST /incidents/ request.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	inc, err := h.service.Create(r.Context(), req.ToDomain(), httputil.GetActor(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusCreated, inc)
}

// Get handles GET /incidents/{id}/ request.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	inc, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, inc)
}

// Patch handles PATCH /incidents/{id}/ request.
func (h *Handler) Patch(w http.ResponseWriter, r *http.Request) {
	var req PatchIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	inc, err := h.service.Patch(r.Context(), chi.URLParam(r, "id"), req.ToInput(), httputil.GetActor(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, inc)
}

// ListUpdates handles GET /incidents/{id}/updates/ request.
func (h *Handler) ListUpdates(w http.ResponseWriter, r *http.Request) {
	updates, err := h.service.ListUpdates(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, updates)
}

// CreateUpdate handles POST /incidents/{id}/updates/ request.
func (h *Handler) CreateUpdate(w http.ResponseWriter, r *http.Request) {
	var req CreateUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	update, err := h.service.AddUpdate(r.Context(), chi.URLParam(r, "id"), req.ToInput(), httputil.GetActor(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusCreated, update)
}

// GetPostmortem handles GET /incidents/{id}/postmortem/ request.
func (h *Handler) GetPostmortem(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetPostmortem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, view)
}

// SavePostmortem handles POST /incidents/{id}/postmortem/ request.
func (h *Handler) SavePostmortem(w http.ResponseWriter, r *http.Request) {
	var pm domain.Postmortem
	if err := json.NewDecoder(r.Body).Decode(&pm); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	view, err := h.service.SavePostmortem(r.Context(), chi.URLParam(r, "id"), pm)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, view)
}

// CreateDocument handles POST /incidents/{id}/documents/ request.
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req DocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	doc, err := h.service.AddDocument(r.Context(), chi.URLParam(r, "id"), req.ToDomain())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusCreated, doc)
}

// Timeline handles GET /incidents/{id}/timeline/ request.
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.Timeline(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, t)
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if fields, ok := IsValidationError(err); ok {
		httputil.FieldErrors(w, fields)
		return
	}
	httputil.HandleError(r.Context(), w, err, errorMappings)
}

func paging(f query.Filters) (page, pageSize int) {
	page = f.Page
	if page < 1 {
		page = 1
	}
	pageSize = f.PageSize
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

func newPage(u *url.URL, items []*domain.Incident, total, page, pageSize int) Page {
	if items == nil {
		items = make([]*domain.Incident, 0)
	}
	p := Page{Count: total, Results: items}
	if page*pageSize < total {
		next := pageURL(u, page+1)
		p.Next = &next
	}
	if page > 1 {
		prev := pageURL(u, page-1)
		p.Previous = &prev
	}
	return p
}

// pageURL returns the request path with the page parameter replaced.
func pageURL(u *url.URL, page int) string {
	q := u.Query()
	if page <= 1 {
		q.Del(query.ParamPage)
	} else {
		q.Set(query.ParamPage, strconv.Itoa(page))
	}
	if len(q) == 0 {
		return u.Path
	}
	return u.Path + "?" + q.Encode()
}
