// Package domain holds the incident model and the lifecycle rules shared by the
// backend and the console.
package domain

import (
	"sort"
	"strings"
	"time"
)

// Level represents the severity classification of an incident.
type Level string

// Levels, L5 being the highest.
const (
	LevelL2 Level = "L2"
	LevelL3 Level = "L3"
	LevelL4 Level = "L4"
	LevelL5 Level = "L5"
)

// IsValid checks if the level is one of the known levels.
func (l Level) IsValid() bool {
	switch l {
	case LevelL2, LevelL3, LevelL4, LevelL5:
		return true
	}
	return false
}

// Scope represents the breadth of impact for a given level.
type Scope string

// Scopes.
const (
	ScopeLow    Scope = "Low"
	ScopeMedium Scope = "Medium"
	ScopeHigh   Scope = "High"
)

// IsValid checks if the scope is one of the known scopes.
func (s Scope) IsValid() bool {
	return s == ScopeLow || s == ScopeMedium || s == ScopeHigh
}

// Impact is the answer to one of the classification impact questions.
type Impact string

// Impact answers.
const (
	ImpactYes Impact = "Yes"
	ImpactNo  Impact = "No"
	ImpactTBD Impact = "To be determined"
)

// IsValid checks if the impact answer is known. Empty means "not answered".
func (i Impact) IsValid() bool {
	return i == "" || i == ImpactYes || i == ImpactNo || i == ImpactTBD
}

// UpdateType classifies an incident update.
type UpdateType string

// Update types.
const (
	UpdateTypeUpdate     UpdateType = "update"
	UpdateTypeMitigation UpdateType = "mitigation"
	UpdateTypeResolution UpdateType = "resolution"
	UpdateTypeNote       UpdateType = "note"
)

// IsValid checks if the update type is known.
func (t UpdateType) IsValid() bool {
	switch t {
	case UpdateTypeUpdate, UpdateTypeMitigation, UpdateTypeResolution, UpdateTypeNote:
		return true
	}
	return false
}

// Confirmations holds the operator acknowledgments required for L5 incidents.
type Confirmations struct {
	L5Confirmation                 bool `json:"l5_confirmation" yaml:"l5_confirmation"`
	MitigationPolicyAcknowledgment bool `json:"mitigation_policy_acknowledgment" yaml:"mitigation_policy_acknowledgment"`
}

// Impacts holds the four classification impact flags.
type Impacts struct {
	SafetyCompliance Impact `json:"safety_compliance" yaml:"safety_compliance"`
	SecurityPrivacy  Impact `json:"security_privacy" yaml:"security_privacy"`
	DataQuality      Impact `json:"data_quality" yaml:"data_quality"`
	PSD2Impact       Impact `json:"psd2_impact" yaml:"psd2_impact"`
}

// Document is a related document linked to an incident.
type Document struct {
	ID        string    `json:"id,omitempty" yaml:"-"`
	Title     string    `json:"title" yaml:"title"`
	URL       string    `json:"url" yaml:"url"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

// Update is an immutable note attached to an incident.
type Update struct {
	ID         string     `json:"id"`
	IncidentID string     `json:"incident_id"`
	Content    string     `json:"content"`
	Author     string     `json:"author"`
	UpdateType UpdateType `json:"update_type"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Incident is the central tracked entity.
type Incident struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Level       Level  `json:"level"`
	Scope       Scope  `json:"scope"`
	Status      Status `json:"status"`
	Impacts
	Confirmations

	StartedAt  time.Time `json:"started_at"`
	DetectedAt time.Time `json:"detected_at"`
	TimeFormat string    `json:"time_format"`

	DetectionSource           string `json:"detection_source"`
	IncidentType              string `json:"incident_type"`
	IncidentCommander         string `json:"incident_commander"`
	ReportingOrg              string `json:"reporting_org"`
	EstimatedTimeToMitigation string `json:"estimated_time_to_mitigation"`
	FirstDetectedIn           string `json:"first_detected_in"`
	AdditionalSubscribers     string `json:"additional_subscribers"`
	SafetyComplianceDocURL    string `json:"safety_compliance_document_url"`
	SendEmailNotifications    bool   `json:"send_email_notifications"`

	ImpactedLocations []string `json:"impacted_locations"`
	ImpactedParties   []string `json:"impacted_parties"`
	ImpactedAreas     []string `json:"impacted_areas"`
	ImpactedAssets    []string `json:"impacted_assets"`

	RelatedDocuments []Document  `json:"related_documents"`
	Updates          []Update    `json:"updates"`
	Postmortem       *Postmortem `json:"postmortem"`

	ResolvedAt *time.Time `json:"resolved_at"`
	CreatedBy  string     `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// IsL5High reports whether the incident is an L5 High incident.
func (i *Incident) IsL5High() bool {
	return i.Level == LevelL5 && i.Scope == ScopeHigh
}

// IsCritical reports whether the incident is L5 with Medium or High scope.
func (i *Incident) IsCritical() bool {
	return NeedsMitigationPolicyAck(i.Level, i.Scope)
}

// TimeToDetect returns detected_at - started_at. The second value is false when
// either timestamp is missing.
func (i *Incident) TimeToDetect() (time.Duration, bool) {
	if i.StartedAt.IsZero() || i.DetectedAt.IsZero() {
		return 0, false
	}
	return i.DetectedAt.Sub(i.StartedAt), true
}

// Draft returns the editable fields of the incident as a draft.
func (i *Incident) Draft() IncidentDraft {
	return IncidentDraft{
		Title:                     i.Title,
		Description:               i.Description,
		Level:                     i.Level,
		Scope:                     i.Scope,
		Impacts:                   i.Impacts,
		Confirmations:             i.Confirmations,
		StartedAt:                 i.StartedAt,
		DetectedAt:                i.DetectedAt,
		TimeFormat:                i.TimeFormat,
		DetectionSource:           i.DetectionSource,
		IncidentType:              i.IncidentType,
		IncidentCommander:         i.IncidentCommander,
		ReportingOrg:              i.ReportingOrg,
		EstimatedTimeToMitigation: i.EstimatedTimeToMitigation,
		FirstDetectedIn:           i.FirstDetectedIn,
		AdditionalSubscribers:     i.AdditionalSubscribers,
		SafetyComplianceDocURL:    i.SafetyComplianceDocURL,
		SendEmailNotifications:    i.SendEmailNotifications,
		ImpactedLocations:         i.ImpactedLocations,
		ImpactedParties:           i.ImpactedParties,
		ImpactedAreas:             i.ImpactedAreas,
		ImpactedAssets:            i.ImpactedAssets,
		RelatedDocuments:          i.RelatedDocuments,
	}
}

// IncidentDraft is the creation form: everything a user fills in before the
// server assigns an id and a status.
type IncidentDraft struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	Level       Level  `json:"level" yaml:"level"`
	Scope       Scope  `json:"scope" yaml:"scope"`

	Impacts       `yaml:",inline"`
	Confirmations `yaml:",inline"`

	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	DetectedAt time.Time `json:"detected_at" yaml:"detected_at"`
	TimeFormat string    `json:"time_format" yaml:"time_format"`

	DetectionSource           string `json:"detection_source" yaml:"detection_source"`
	IncidentType              string `json:"incident_type" yaml:"incident_type"`
	IncidentCommander         string `json:"incident_commander" yaml:"incident_commander"`
	ReportingOrg              string `json:"reporting_org" yaml:"reporting_org"`
	EstimatedTimeToMitigation string `json:"estimated_time_to_mitigation" yaml:"estimated_time_to_mitigation"`
	FirstDetectedIn           string `json:"first_detected_in" yaml:"first_detected_in"`
	AdditionalSubscribers     string `json:"additional_subscribers" yaml:"additional_subscribers"`
	SafetyComplianceDocURL    string `json:"safety_compliance_document_url" yaml:"safety_compliance_document_url"`
	SendEmailNotifications    bool   `json:"send_email_notifications" yaml:"send_email_notifications"`

	ImpactedLocations []string `json:"impacted_locations" yaml:"impacted_locations"`
	ImpactedParties   []string `json:"impacted_parties" yaml:"impacted_parties"`
	ImpactedAreas     []string `json:"impacted_areas" yaml:"impacted_areas"`
	ImpactedAssets    []string `json:"impacted_assets" yaml:"impacted_assets"`

	RelatedDocuments []Document `json:"related_documents" yaml:"related_documents"`
}

// NormalizeSet trims values, drops empties and duplicates, and sorts the result.
// Collections are sets, so a stable order keeps stored records and queries comparable.
func NormalizeSet(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
