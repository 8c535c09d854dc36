package domain

import (
	"sort"
	"strings"
)

// NeedsL5Confirmation reports whether the L5 confirmation checkbox is required.
// Any scope qualifies once the level is L5.
func NeedsL5Confirmation(level Level, _ Scope) bool {
	return level == LevelL5
}

// NeedsMitigationPolicyAck reports whether the mitigation policy acknowledgment
// is required: L5 with Medium or High scope.
func NeedsMitigationPolicyAck(level Level, scope Scope) bool {
	return level == LevelL5 && (scope == ScopeMedium || scope == ScopeHigh)
}

// ApplyGating clears every confirmation that the classification no longer
// requires. It reports whether anything was cleared.
func ApplyGating(c *Confirmations, level Level, scope Scope) bool {
	changed := false
	if !NeedsL5Confirmation(level, scope) && c.L5Confirmation {
		c.L5Confirmation = false
		changed = true
	}
	if !NeedsMitigationPolicyAck(level, scope) && c.MitigationPolicyAcknowledgment {
		c.MitigationPolicyAcknowledgment = false
		changed = true
	}
	return changed
}

// Field names used in FieldErrors. They match the JSON names of the REST contract.
const (
	FieldTitle                          = "title"
	FieldDescription                    = "description"
	FieldLevel                          = "level"
	FieldScope                          = "scope"
	FieldStatus                         = "status"
	FieldDetectedAt                     = "detected_at"
	FieldL5Confirmation                 = "l5_confirmation"
	FieldMitigationPolicyAcknowledgment = "mitigation_policy_acknowledgment"
	FieldPostmortem                     = "postmortem"
)

// FieldErrors maps a field name to its validation messages.
type FieldErrors map[string][]string

// Add appends a message for field.
func (e FieldErrors) Add(field, message string) {
	e[field] = append(e[field], message)
}

// Merge copies every message of other into e.
func (e FieldErrors) Merge(other FieldErrors) {
	for field, msgs := range other {
		e[field] = append(e[field], msgs...)
	}
}

// Has reports whether field has at least one message.
func (e FieldErrors) Has(field string) bool {
	return len(e[field]) > 0
}

// Clear removes all messages for field.
func (e FieldErrors) Clear(field string) {
	delete(e, field)
}

// Error implements error.
func (e FieldErrors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+strings.Join(e[f], "; "))
	}
	return "validation error: " + strings.Join(parts, ", ")
}

// Err returns e as an error, or nil when it holds no messages.
func (e FieldErrors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// ValidateDraft checks a creation form before it is submitted.
func ValidateDraft(d IncidentDraft) FieldErrors {
	errs := FieldErrors{}

	if strings.TrimSpace(d.Title) == "" {
		errs.Add(FieldTitle, "Title is required")
	}
	if strings.TrimSpace(d.Description) == "" {
		errs.Add(FieldDescription, "Description is required")
	}
	errs.Merge(ValidateClassification(d.Level, d.Scope, d.Confirmations))

	if !d.StartedAt.IsZero() && !d.DetectedAt.IsZero() && d.DetectedAt.Before(d.StartedAt) {
		errs.Add(FieldDetectedAt, "Detected at time cannot be before started at time")
	}

	return errs
}

// ValidateClassification checks level, scope and the confirmations they require.
func ValidateClassification(level Level, scope Scope, c Confirmations) FieldErrors {
	errs := FieldErrors{}

	if level != "" && !level.IsValid() {
		errs.Add(FieldLevel, "Invalid level: "+string(level))
	}
	if scope != "" && !scope.IsValid() {
		errs.Add(FieldScope, "Invalid scope: "+string(scope))
	}
	if NeedsL5Confirmation(level, scope) && !c.L5Confirmation {
		errs.Add(FieldL5Confirmation, "Please confirm L5 incident")
	}
	if NeedsMitigationPolicyAck(level, scope) && !c.MitigationPolicyAcknowledgment {
		errs.Add(FieldMitigationPolicyAcknowledgment, "Please acknowledge mitigation policies")
	}

	return errs
}
