package incidents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bissquit/incident-console/internal/catalog"
	"github.com/bissquit/incident-console/internal/domain"
	"github.com/bissquit/incident-console/internal/pkg/ctxlog"
	"github.com/bissquit/incident-console/internal/pkg/metrics"
	"github.com/bissquit/incident-console/internal/query"
)

// OptionSource resolves catalog options for validation and defaults.
type OptionSource interface {
	Contains(field catalog.Field, value string) bool
	Unknown(field catalog.Field, values []string) []string
	Default(field catalog.Field) string
}

// StatusNotifier is told about every accepted status transition.
type StatusNotifier interface {
	NotifyStatusChanged(ctx context.Context, inc *domain.Incident, from domain.Status, actor string) error
}

// Service implements incident business logic.
type Service struct {
	repo     Repository
	options  OptionSource
	notifier StatusNotifier
	now      func() time.Time
}

// NewService creates a new incident service. notifier may be nil.
func NewService(repo Repository, options OptionSource, notifier StatusNotifier) *Service {
	return &Service{
		repo:     repo,
		options:  options,
		notifier: notifier,
		now:      time.Now,
	}
}

// PatchInput holds a partial incident update. Nil fields are left unchanged.
type PatchInput struct {
	Title       *string
	Description *string
	Level       *domain.Level
	Scope       *domain.Scope
	Status      *domain.Status

	SafetyCompliance *domain.Impact
	SecurityPrivacy  *domain.Impact
	DataQuality      *domain.Impact
	PSD2Impact       *domain.Impact

	L5Confirmation                 *bool
	MitigationPolicyAcknowledgment *bool

	StartedAt  *time.Time
	DetectedAt *time.Time
	TimeFormat *string

	DetectionSource           *string
	IncidentType              *string
	IncidentCommander         *string
	ReportingOrg              *string
	EstimatedTimeToMitigation *string
	FirstDetectedIn           *string
	AdditionalSubscribers     *string
	SafetyComplianceDocURL    *string
	SendEmailNotifications    *bool

	ImpactedLocations *[]string
	ImpactedParties   *[]string
	ImpactedAreas     *[]string
	ImpactedAssets    *[]string
}

// HasFieldChanges reports whether anything besides status is set.
func (p PatchInput) HasFieldChanges() bool {
	withoutStatus := p
	withoutStatus.Status = nil
	return withoutStatus != (PatchInput{})
}

// AddUpdateInput holds data for posting an incident update.
type AddUpdateInput struct {
	Content    string
	Author     string
	UpdateType domain.UpdateType
}

// PostmortemView is a stored postmortem draft with its completeness.
type PostmortemView struct {
	Postmortem   domain.Postmortem   `json:"postmortem"`
	Completeness domain.Completeness `json:"completeness"`
	Editable     bool                `json:"editable"`
}

// Timeline summarizes the timing of an incident. Durations are in seconds.
type Timeline struct {
	IncidentID       string        `json:"incident_id"`
	Status           domain.Status `json:"status"`
	StartedAt        time.Time     `json:"started_at"`
	DetectedAt       time.Time     `json:"detected_at"`
	ResolvedAt       *time.Time    `json:"resolved_at"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	TimeToDetection  *float64      `json:"time_to_detection"`
	TimeSinceStarted *float64      `json:"time_since_started"`
}

// Create validates a creation form and stores a new reported incident.
func (s *Service) Create(ctx context.Context, draft domain.IncidentDraft, createdBy string) (*domain.Incident, error) {
	s.applyDefaults(&draft)

	errs := domain.ValidateDraft(draft)
	errs.Merge(s.validateOptions(draft))
	if err := errs.Err(); err != nil {
		recordRejections(errs)
		return nil, err
	}

	inc := &domain.Incident{
		Title:                     strings.TrimSpace(draft.Title),
		Description:               strings.TrimSpace(draft.Description),
		Level:                     draft.Level,
		Scope:                     draft.Scope,
		Status:                    domain.StatusReported,
		Impacts:                   draft.Impacts,
		Confirmations:             draft.Confirmations,
		StartedAt:                 draft.StartedAt,
		DetectedAt:                draft.DetectedAt,
		TimeFormat:                draft.TimeFormat,
		DetectionSource:           draft.DetectionSource,
		IncidentType:              draft.IncidentType,
		IncidentCommander:         draft.IncidentCommander,
		ReportingOrg:              draft.ReportingOrg,
		EstimatedTimeToMitigation: draft.EstimatedTimeToMitigation,
		FirstDetectedIn:           draft.FirstDetectedIn,
		AdditionalSubscribers:     draft.AdditionalSubscribers,
		SafetyComplianceDocURL:    draft.SafetyComplianceDocURL,
		SendEmailNotifications:    draft.SendEmailNotifications,
		ImpactedLocations:         domain.NormalizeSet(draft.ImpactedLocations),
		ImpactedParties:           domain.NormalizeSet(draft.ImpactedParties),
		ImpactedAreas:             domain.NormalizeSet(draft.ImpactedAreas),
		ImpactedAssets:            domain.NormalizeSet(draft.ImpactedAssets),
		RelatedDocuments:          draft.RelatedDocuments,
		CreatedBy:                 createdBy,
	}
	if inc.RelatedDocuments == nil {
		inc.RelatedDocuments = make([]domain.Document, 0)
	}

	if err := s.repo.Create(ctx, inc); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}

	ctxlog.FromContext(ctx).Info("incident created",
		"incident_id", inc.ID,
		"level", inc.Level,
		"scope", inc.Scope,
	)

	return inc, nil
}

// Get retrieves an incident with its updates, documents and postmortem.
func (s *Service) Get(ctx context.Context, id string) (*domain.Incident, error) {
	inc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return inc, nil
}

// List retrieves a page of incidents and the total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*domain.Incident, int, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list incidents: %w", err)
	}
	return items, total, nil
}

// Critical lists L5 incidents with Medium or High scope, newest first.
func (s *Service) Critical(ctx context.Context, limit, offset int) ([]*domain.Incident, int, error) {
	filter := ListFilter{
		Filters: query.Filters{
			Level:    []string{string(domain.LevelL5)},
			Scope:    []string{string(domain.ScopeHigh), string(domain.ScopeMedium)},
			Ordering: query.DefaultOrdering,
		},
		Limit:  limit,
		Offset: offset,
	}
	return s.List(ctx, filter)
}

// Statistics aggregates incidents matching the filter.
func (s *Service) Statistics(ctx context.Context, filter query.Filters) (*Statistics, error) {
	stats, err := s.repo.Statistics(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("incident statistics: %w", err)
	}
	return stats, nil
}

// Timeline returns the timing summary of an incident.
func (s *Service) Timeline(ctx context.Context, id string) (*Timeline, error) {
	inc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	t := &Timeline{
		IncidentID: inc.ID,
		Status:     inc.Status,
		StartedAt:  inc.StartedAt,
		DetectedAt: inc.DetectedAt,
		ResolvedAt: inc.ResolvedAt,
		CreatedAt:  inc.CreatedAt,
		UpdatedAt:  inc.UpdatedAt,
	}
	if ttd, ok := inc.TimeToDetect(); ok {
		seconds := ttd.Seconds()
		t.TimeToDetection = &seconds
	}
	if !inc.StartedAt.IsZero() {
		seconds := s.now().Sub(inc.StartedAt).Seconds()
		t.TimeSinceStarted = &seconds
	}
	return t, nil
}

// Patch applies a partial update. A status change must be the direct
// successor of the current status, and closing requires a complete postmortem.
func (s *Service) Patch(ctx context.Context, id string, input PatchInput, actor string) (*domain.Incident, error) {
	var from domain.Status
	transitioned := false

	updated, err := s.repo.Update(ctx, id, func(inc *domain.Incident) error {
		from = inc.Status

		if inc.Status.IsTerminal() && (input.HasFieldChanges() || input.Status != nil) {
			return ErrIncidentClosed
		}

		if errs := s.applyFields(inc, input); len(errs) > 0 {
			recordRejections(errs)
			return errs
		}

		if input.Status == nil || *input.Status == inc.Status {
			return nil
		}

		to := *input.Status
		if !domain.CanTransition(inc.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, inc.Status, to)
		}
		if to == domain.StatusClosed {
			if c := inc.Postmortem.Validate(); !c.IsValid {
				metrics.GatingRejections.WithLabelValues(domain.FieldPostmortem).Inc()
				return fmt.Errorf("%w: %w", ErrPostmortemIncomplete, domain.FieldErrors{domain.FieldPostmortem: c.MissingFields})
			}
		}
		if to == domain.StatusResolved {
			now := s.now()
			inc.ResolvedAt = &now
		}

		inc.Status = to
		transitioned = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("patch incident: %w", err)
	}

	if transitioned {
		metrics.IncidentTransitions.WithLabelValues(string(from), string(updated.Status)).Inc()
		ctxlog.FromContext(ctx).Info("incident status changed",
			"incident_id", updated.ID,
			"from", from,
			"to", updated.Status,
		)
		s.notify(ctx, updated, from, actor)
	}

	return updated, nil
}

// AddUpdate appends an immutable update to an open incident.
func (s *Service) AddUpdate(ctx context.Context, incidentID string, input AddUpdateInput, actor string) (*domain.Update, error) {
	inc, err := s.repo.Get(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("get incident: %w", err)
	}
	if inc.Status.IsTerminal() {
		return nil, ErrIncidentClosed
	}

	if input.UpdateType == "" {
		input.UpdateType = domain.UpdateTypeUpdate
	}
	if input.Author == "" {
		input.Author = actor
	}

	errs := domain.FieldErrors{}
	if strings.TrimSpace(input.Content) == "" {
		errs.Add("content", "This field may not be blank.")
	}
	if input.Author == "" {
		errs.Add("author", "This field is required.")
	}
	if !input.UpdateType.IsValid() {
		errs.Add("update_type", fmt.Sprintf("%q is not a valid choice.", input.UpdateType))
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	update := &domain.Update{
		IncidentID: incidentID,
		Content:    input.Content,
		Author:     input.Author,
		UpdateType: input.UpdateType,
	}
	if err := s.repo.CreateUpdate(ctx, update); err != nil {
		return nil, fmt.Errorf("create update: %w", err)
	}

	return update, nil
}

// ListUpdates returns the updates of an incident, newest first.
func (s *Service) ListUpdates(ctx context.Context, incidentID string) ([]domain.Update, error) {
	if _, err := s.repo.Get(ctx, incidentID); err != nil {
		return nil, fmt.Errorf("get incident: %w", err)
	}

	updates, err := s.repo.ListUpdates(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list updates: %w", err)
	}
	return updates, nil
}

// AddDocument links a related document to an open incident.
func (s *Service) AddDocument(ctx context.Context, incidentID string, doc domain.Document) (*domain.Document, error) {
	inc, err := s.repo.Get(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("get incident: %w", err)
	}
	if inc.Status.IsTerminal() {
		return nil, ErrIncidentClosed
	}

	if err := s.repo.CreateDocument(ctx, incidentID, &doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	return &doc, nil
}

// GetPostmortem returns the stored postmortem draft.
func (s *Service) GetPostmortem(ctx context.Context, incidentID string) (*PostmortemView, error) {
	inc, err := s.Get(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if inc.Postmortem == nil {
		return nil, ErrPostmortemNotFound
	}
	return newPostmortemView(inc), nil
}

// SavePostmortem stores a postmortem draft. Incomplete drafts are accepted;
// completeness only gates closing the incident.
func (s *Service) SavePostmortem(ctx context.Context, incidentID string, pm domain.Postmortem) (*PostmortemView, error) {
	updated, err := s.repo.Update(ctx, incidentID, func(inc *domain.Incident) error {
		switch {
		case inc.Status == domain.StatusClosed:
			return ErrPostmortemReadOnly
		case !inc.Status.PostmortemEditable():
			return ErrPostmortemNotAllowed
		}
		inc.Postmortem = &pm
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("save postmortem: %w", err)
	}

	return newPostmortemView(updated), nil
}

func newPostmortemView(inc *domain.Incident) *PostmortemView {
	return &PostmortemView{
		Postmortem:   *inc.Postmortem,
		Completeness: inc.Postmortem.Validate(),
		Editable:     inc.Status.PostmortemEditable(),
	}
}

func (s *Service) notify(ctx context.Context, inc *domain.Incident, from domain.Status, actor string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyStatusChanged(ctx, inc, from, actor); err != nil {
		ctxlog.FromContext(ctx).Error("failed to notify status change",
			"incident_id", inc.ID,
			"error", err,
		)
	}
}

func (s *Service) applyDefaults(d *domain.IncidentDraft) {
	if d.TimeFormat == "" {
		d.TimeFormat = s.options.Default(catalog.FieldTimeFormats)
	}
	if d.DetectionSource == "" {
		d.DetectionSource = s.options.Default(catalog.FieldDetectionSources)
	}
	if d.IncidentType == "" {
		d.IncidentType = s.options.Default(catalog.FieldIncidentTypes)
	}
}

// applyFields merges the non-status fields of input into inc and validates
// the result. Catalog membership is checked only for the fields being set, so
// retiring a catalog option does not lock existing incidents.
func (s *Service) applyFields(inc *domain.Incident, input PatchInput) domain.FieldErrors {
	errs := domain.FieldErrors{}
	if !input.HasFieldChanges() {
		return errs
	}

	setString(&inc.Title, input.Title)
	setString(&inc.Description, input.Description)
	if input.Level != nil {
		inc.Level = *input.Level
	}
	if input.Scope != nil {
		inc.Scope = *input.Scope
	}
	setImpact(&inc.SafetyCompliance, input.SafetyCompliance)
	setImpact(&inc.SecurityPrivacy, input.SecurityPrivacy)
	setImpact(&inc.DataQuality, input.DataQuality)
	setImpact(&inc.PSD2Impact, input.PSD2Impact)
	setBool(&inc.L5Confirmation, input.L5Confirmation)
	setBool(&inc.MitigationPolicyAcknowledgment, input.MitigationPolicyAcknowledgment)
	if input.StartedAt != nil {
		inc.StartedAt = *input.StartedAt
	}
	if input.DetectedAt != nil {
		inc.DetectedAt = *input.DetectedAt
	}
	setString(&inc.TimeFormat, input.TimeFormat)
	setString(&inc.DetectionSource, input.DetectionSource)
	setString(&inc.IncidentType, input.IncidentType)
	setString(&inc.IncidentCommander, input.IncidentCommander)
	setString(&inc.ReportingOrg, input.ReportingOrg)
	setString(&inc.EstimatedTimeToMitigation, input.EstimatedTimeToMitigation)
	setString(&inc.FirstDetectedIn, input.FirstDetectedIn)
	setString(&inc.AdditionalSubscribers, input.AdditionalSubscribers)
	setString(&inc.SafetyComplianceDocURL, input.SafetyComplianceDocURL)
	setBool(&inc.SendEmailNotifications, input.SendEmailNotifications)
	setSet(&inc.ImpactedLocations, input.ImpactedLocations)
	setSet(&inc.ImpactedParties, input.ImpactedParties)
	setSet(&inc.ImpactedAreas, input.ImpactedAreas)
	setSet(&inc.ImpactedAssets, input.ImpactedAssets)

	if input.Level != nil || input.Scope != nil {
		domain.ApplyGating(&inc.Confirmations, inc.Level, inc.Scope)
	}

	errs.Merge(domain.ValidateDraft(inc.Draft()))

	partial := domain.IncidentDraft{}
	if input.TimeFormat != nil {
		partial.TimeFormat = inc.TimeFormat
	}
	if input.DetectionSource != nil {
		partial.DetectionSource = inc.DetectionSource
	}
	if input.IncidentType != nil {
		partial.IncidentType = inc.IncidentType
	}
	if input.ReportingOrg != nil {
		partial.ReportingOrg = inc.ReportingOrg
	}
	if input.FirstDetectedIn != nil {
		partial.FirstDetectedIn = inc.FirstDetectedIn
	}
	if input.EstimatedTimeToMitigation != nil {
		partial.EstimatedTimeToMitigation = inc.EstimatedTimeToMitigation
	}
	if input.ImpactedLocations != nil {
		partial.ImpactedLocations = inc.ImpactedLocations
	}
	if input.ImpactedParties != nil {
		partial.ImpactedParties = inc.ImpactedParties
	}
	if input.ImpactedAreas != nil {
		partial.ImpactedAreas = inc.ImpactedAreas
	}
	if input.ImpactedAssets != nil {
		partial.ImpactedAssets = inc.ImpactedAssets
	}
	partial.Impacts = inc.Impacts
	errs.Merge(s.validateOptions(partial))

	return errs
}

// validateOptions checks that every set field holds a catalog option.
func (s *Service) validateOptions(d domain.IncidentDraft) domain.FieldErrors {
	errs := domain.FieldErrors{}

	single := []struct {
		name  string
		field catalog.Field
		value string
	}{
		{"time_format", catalog.FieldTimeFormats, d.TimeFormat},
		{"detection_source", catalog.FieldDetectionSources, d.DetectionSource},
		{"incident_type", catalog.FieldIncidentTypes, d.IncidentType},
		{"reporting_org", catalog.FieldReportingOrgs, d.ReportingOrg},
		{"first_detected_in", catalog.FieldFirstDetectedIn, d.FirstDetectedIn},
		{"estimated_time_to_mitigation", catalog.FieldEstimatedTimeToMitigation, d.EstimatedTimeToMitigation},
	}
	for _, f := range single {
		if f.value != "" && !s.options.Contains(f.field, f.value) {
			errs.Add(f.name, fmt.Sprintf("%q is not a valid choice.", f.value))
		}
	}

	multi := []struct {
		name   string
		field  catalog.Field
		values []string
	}{
		{"impacted_locations", catalog.FieldImpactedLocations, d.ImpactedLocations},
		{"impacted_parties", catalog.FieldImpactedParties, d.ImpactedParties},
		{"impacted_areas", catalog.FieldImpactedAreas, d.ImpactedAreas},
		{"impacted_assets", catalog.FieldImpactedAssets, d.ImpactedAssets},
	}
	for _, f := range multi {
		for _, v := range s.options.Unknown(f.field, f.values) {
			errs.Add(f.name, fmt.Sprintf("%q is not a valid choice.", v))
		}
	}

	impacts := []struct {
		name  string
		value domain.Impact
	}{
		{"safety_compliance", d.SafetyCompliance},
		{"security_privacy", d.SecurityPrivacy},
		{"data_quality", d.DataQuality},
		{"psd2_impact", d.PSD2Impact},
	}
	for _, f := range impacts {
		if !f.value.IsValid() {
			errs.Add(f.name, fmt.Sprintf("%q is not a valid choice.", f.value))
		}
	}

	return errs
}

func recordRejections(errs domain.FieldErrors) {
	for _, field := range []string{domain.FieldL5Confirmation, domain.FieldMitigationPolicyAcknowledgment, domain.FieldDetectedAt} {
		if errs.Has(field) {
			metrics.GatingRejections.WithLabelValues(field).Inc()
		}
	}
}

// IsValidationError reports whether err carries field errors.
func IsValidationError(err error) (domain.FieldErrors, bool) {
	var fe domain.FieldErrors
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setImpact(dst *domain.Impact, v *domain.Impact) {
	if v != nil {
		*dst = *v
	}
}

func setSet(dst *[]string, v *[]string) {
	if v != nil {
		*dst = domain.NormalizeSet(*v)
	}
}
