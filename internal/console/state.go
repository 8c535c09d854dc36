package console

import (
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/incident-console/internal/domain"
	"github.com/bissquit/incident-console/internal/query"
)

// Reducer errors.
var (
	ErrUnknownField  = errors.New("unknown field")
	ErrInvalidValue  = errors.New("invalid value for field")
	ErrUnknownFilter = errors.New("unknown filter")
	ErrUnknownAction = errors.New("unknown action")
)

// State is the console form and list state.
type State struct {
	Draft    domain.IncidentDraft
	Errors   domain.FieldErrors
	Filters  query.Filters
	Incident *domain.Incident
}

// Action is a tagged state change.
type Action interface {
	action()
}

// FieldChanged sets one creation form field, named by its JSON key.
type FieldChanged struct {
	Field string
	Value any
}

// StatusAdvanced replaces the incident snapshot with the server's version
// after a successful transition.
type StatusAdvanced struct {
	Incident *domain.Incident
}

// FilterChanged replaces the selected values of one list filter.
type FilterChanged struct {
	Param  string
	Values []string
}

// SearchChanged sets the list free-text search.
type SearchChanged struct {
	Search string
}

// OrderingChanged sets the list ordering.
type OrderingChanged struct {
	Ordering string
}

// PageChanged moves the list to another page.
type PageChanged struct {
	Page int
}

// DraftLoaded replaces the creation form with a stored draft.
type DraftLoaded struct {
	Draft domain.IncidentDraft
}

func (FieldChanged) action()    {}
func (StatusAdvanced) action()  {}
func (FilterChanged) action()   {}
func (SearchChanged) action()   {}
func (OrderingChanged) action() {}
func (PageChanged) action()     {}
func (DraftLoaded) action()     {}

// Middleware post-processes the result of an action.
type Middleware func(prev, next State, a Action) State

// middlewares run in order after every successful action.
var middlewares = []Middleware{
	gatingMiddleware,
	clearErrorsMiddleware,
}

// Reduce applies a to s and returns the new state. s is not modified.
func Reduce(s State, a Action) (State, error) {
	next, err := reduce(s, a)
	if err != nil {
		return s, err
	}
	for _, mw := range middlewares {
		next = mw(s, next, a)
	}
	return next, nil
}

func reduce(s State, a Action) (State, error) {
	next := s
	next.Errors = copyErrors(s.Errors)

	switch a := a.(type) {
	case FieldChanged:
		setter, ok := fieldSetters[a.Field]
		if !ok {
			return s, fmt.Errorf("%w: %s", ErrUnknownField, a.Field)
		}
		if err := setter(&next.Draft, a.Value); err != nil {
			return s, fmt.Errorf("%w %s: %w", ErrInvalidValue, a.Field, err)
		}

	case StatusAdvanced:
		next.Incident = a.Incident

	case FilterChanged:
		values, ok := filterValues(&next.Filters, a.Param)
		if !ok {
			return s, fmt.Errorf("%w: %s", ErrUnknownFilter, a.Param)
		}
		*values = domain.NormalizeSet(a.Values)
		next.Filters.Page = 0

	case SearchChanged:
		next.Filters.Search = a.Search
		next.Filters.Page = 0

	case OrderingChanged:
		next.Filters.Ordering = a.Ordering
		next.Filters.Page = 0

	case PageChanged:
		next.Filters.Page = a.Page

	case DraftLoaded:
		next.Draft = a.Draft
		next.Errors = nil

	default:
		return s, fmt.Errorf("%w: %T", ErrUnknownAction, a)
	}

	return next, nil
}

// gatingMiddleware clears confirmations, and their errors, once the
// classification no longer requires them.
func gatingMiddleware(_, next State, a Action) State {
	switch a := a.(type) {
	case FieldChanged:
		if a.Field != domain.FieldLevel && a.Field != domain.FieldScope {
			return next
		}
	case DraftLoaded:
	default:
		return next
	}

	d := &next.Draft
	domain.ApplyGating(&d.Confirmations, d.Level, d.Scope)
	if !domain.NeedsL5Confirmation(d.Level, d.Scope) {
		next.Errors.Clear(domain.FieldL5Confirmation)
	}
	if !domain.NeedsMitigationPolicyAck(d.Level, d.Scope) {
		next.Errors.Clear(domain.FieldMitigationPolicyAcknowledgment)
	}
	return next
}

// clearErrorsMiddleware drops the inline error of a field once it is edited.
func clearErrorsMiddleware(_, next State, a Action) State {
	if fc, ok := a.(FieldChanged); ok {
		next.Errors.Clear(fc.Field)
	}
	return next
}

func copyErrors(errs domain.FieldErrors) domain.FieldErrors {
	if errs == nil {
		return nil
	}
	out := make(domain.FieldErrors, len(errs))
	for k, v := range errs {
		out[k] = append([]string(nil), v...)
	}
	return out
}

type fieldSetter func(d *domain.IncidentDraft, v any) error

var fieldSetters = map[string]fieldSetter{
	domain.FieldTitle:       stringSetter(func(d *domain.IncidentDraft) *string { return &d.Title }),
	domain.FieldDescription: stringSetter(func(d *domain.IncidentDraft) *string { return &d.Description }),
	domain.FieldLevel: func(d *domain.IncidentDraft, v any) error {
		s, err := asString(v)
		d.Level = domain.Level(s)
		return err
	},
	domain.FieldScope: func(d *domain.IncidentDraft, v any) error {
		s, err := asString(v)
		d.Scope = domain.Scope(s)
		return err
	},
	"safety_compliance": impactSetter(func(d *domain.IncidentDraft) *domain.Impact { return &d.SafetyCompliance }),
	"security_privacy":  impactSetter(func(d *domain.IncidentDraft) *domain.Impact { return &d.SecurityPrivacy }),
	"data_quality":      impactSetter(func(d *domain.IncidentDraft) *domain.Impact { return &d.DataQuality }),
	"psd2_impact":       impactSetter(func(d *domain.IncidentDraft) *domain.Impact { return &d.PSD2Impact }),

	domain.FieldL5Confirmation: boolSetter(func(d *domain.IncidentDraft) *bool { return &d.L5Confirmation }),
	domain.FieldMitigationPolicyAcknowledgment: boolSetter(func(d *domain.IncidentDraft) *bool {
		return &d.MitigationPolicyAcknowledgment
	}),
	"send_email_notifications": boolSetter(func(d *domain.IncidentDraft) *bool { return &d.SendEmailNotifications }),

	"started_at":           timeSetter(func(d *domain.IncidentDraft) *time.Time { return &d.StartedAt }),
	domain.FieldDetectedAt: timeSetter(func(d *domain.IncidentDraft) *time.Time { return &d.DetectedAt }),

	"time_format":                    stringSetter(func(d *domain.IncidentDraft) *string { return &d.TimeFormat }),
	"detection_source":               stringSetter(func(d *domain.IncidentDraft) *string { return &d.DetectionSource }),
	"incident_type":                  stringSetter(func(d *domain.IncidentDraft) *string { return &d.IncidentType }),
	"incident_commander":             stringSetter(func(d *domain.IncidentDraft) *string { return &d.IncidentCommander }),
	"reporting_org":                  stringSetter(func(d *domain.IncidentDraft) *string { return &d.ReportingOrg }),
	"estimated_time_to_mitigation":   stringSetter(func(d *domain.IncidentDraft) *string { return &d.EstimatedTimeToMitigation }),
	"first_detected_in":              stringSetter(func(d *domain.IncidentDraft) *string { return &d.FirstDetectedIn }),
	"additional_subscribers":         stringSetter(func(d *domain.IncidentDraft) *string { return &d.AdditionalSubscribers }),
	"safety_compliance_document_url": stringSetter(func(d *domain.IncidentDraft) *string { return &d.SafetyComplianceDocURL }),

	"impacted_locations": setSetter(func(d *domain.IncidentDraft) *[]string { return &d.ImpactedLocations }),
	"impacted_parties":   setSetter(func(d *domain.IncidentDraft) *[]string { return &d.ImpactedParties }),
	"impacted_areas":     setSetter(func(d *domain.IncidentDraft) *[]string { return &d.ImpactedAreas }),
	"impacted_assets":    setSetter(func(d *domain.IncidentDraft) *[]string { return &d.ImpactedAssets }),

	"related_documents": func(d *domain.IncidentDraft, v any) error {
		docs, ok := v.([]domain.Document)
		if !ok {
			return fmt.Errorf("want []Document, got %T", v)
		}
		d.RelatedDocuments = append([]domain.Document(nil), docs...)
		return nil
	},
}

func stringSetter(field func(*domain.IncidentDraft) *string) fieldSetter {
	return func(d *domain.IncidentDraft, v any) error {
		s, err := asString(v)
		if err != nil {
			return err
		}
		*field(d) = s
		return nil
	}
}

func impactSetter(field func(*domain.IncidentDraft) *domain.Impact) fieldSetter {
	return func(d *domain.IncidentDraft, v any) error {
		s, err := asString(v)
		if err != nil {
			return err
		}
		impact := domain.Impact(s)
		if !impact.IsValid() {
			return fmt.Errorf("%q is not an impact answer", s)
		}
		*field(d) = impact
		return nil
	}
}

func boolSetter(field func(*domain.IncidentDraft) *bool) fieldSetter {
	return func(d *domain.IncidentDraft, v any) error {
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("want bool, got %T", v)
		}
		*field(d) = b
		return nil
	}
}

func timeSetter(field func(*domain.IncidentDraft) *time.Time) fieldSetter {
	return func(d *domain.IncidentDraft, v any) error {
		switch t := v.(type) {
		case time.Time:
			*field(d) = t
		case string:
			parsed, err := time.Parse(time.RFC3339, t)
			if err != nil {
				return err
			}
			*field(d) = parsed
		default:
			return fmt.Errorf("want time, got %T", v)
		}
		return nil
	}
}

func setSetter(field func(*domain.IncidentDraft) *[]string) fieldSetter {
	return func(d *domain.IncidentDraft, v any) error {
		values, ok := v.([]string)
		if !ok {
			return fmt.Errorf("want []string, got %T", v)
		}
		*field(d) = domain.NormalizeSet(values)
		return nil
	}
}

func asString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("want string, got %T", v)
	}
	return s, nil
}

func filterValues(f *query.Filters, param string) (*[]string, bool) {
	switch param {
	case query.ParamImpactedLocations:
		return &f.ImpactedLocations, true
	case query.ParamImpactedParties:
		return &f.ImpactedParties, true
	case query.ParamStatus:
		return &f.Status, true
	case query.ParamIncidentType:
		return &f.IncidentType, true
	case query.ParamDetectionSource:
		return &f.DetectionSource, true
	case query.ParamReportingOrg:
		return &f.ReportingOrg, true
	case query.ParamIncidentCommander:
		return &f.IncidentCommander, true
	case query.ParamImpactedAssets:
		return &f.ImpactedAssets, true
	case query.ParamImpactedAreas:
		return &f.ImpactedAreas, true
	case query.ParamLevel:
		return &f.Level, true
	case query.ParamScope:
		return &f.Scope, true
	}
	return nil, false
}
