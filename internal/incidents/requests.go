package incidents

import (
	"time"

	"github.com/bissquit/incident-console/internal/domain"
)

// DocumentRequest represents a related document in a request body.
type DocumentRequest struct {
	Title string `json:"title" validate:"required,max=255"`
	URL   string `json:"url" validate:"required,url"`
}

// ToDomain converts the request to a domain model.
func (r DocumentRequest) ToDomain() domain.Document {
	return domain.Document{Title: r.Title, URL: r.URL}
}

// CreateIncidentRequest represents the request body for creating an incident.
type CreateIncidentRequest struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description" validate:"required"`
	Level       string `json:"level" validate:"omitempty,oneof=L2 L3 L4 L5"`
	Scope       string `json:"scope" validate:"omitempty,oneof=Low Medium High"`

	SafetyCompliance string `json:"safety_compliance"`
	SecurityPrivacy  string `json:"security_privacy"`
	DataQuality      string `json:"data_quality"`
	PSD2Impact       string `json:"psd2_impact"`

	StartedAt  *time.Time `json:"started_at" validate:"required"`
	DetectedAt *time.Time `json:"detected_at" validate:"required"`
	TimeFormat string     `json:"time_format"`

	DetectionSource           string `json:"detection_source"`
	IncidentType              string `json:"incident_type"`
	IncidentCommander         string `json:"incident_commander" validate:"required,email"`
	ReportingOrg              string `json:"reporting_org" validate:"required,max=100"`
	EstimatedTimeToMitigation string `json:"estimated_time_to_mitigation" validate:"max=20"`
	FirstDetectedIn           string `json:"first_detected_in" validate:"max=50"`
	AdditionalSubscribers     string `json:"additional_subscribers"`
	SafetyComplianceDocURL    string `json:"safety_compliance_document_url" validate:"omitempty,url"`
	SendEmailNotifications    *bool  `json:"send_email_notifications"`

	L5Confirmation                 bool `json:"l5_confirmation"`
	MitigationPolicyAcknowledgment bool `json:"mitigation_policy_acknowledgment"`

	ImpactedLocations []string `json:"impacted_locations"`
	ImpactedParties   []string `json:"impacted_parties"`
	ImpactedAreas     []string `json:"impacted_areas"`
	ImpactedAssets    []string `json:"impacted_assets"`

	RelatedDocuments []DocumentRequest `json:"related_documents" validate:"dive"`
}

// ToDomain converts the request to a creation form.
func (r *CreateIncidentRequest) ToDomain() domain.IncidentDraft {
	sendEmail := true
	if r.SendEmailNotifications != nil {
		sendEmail = *r.SendEmailNotifications
	}

	docs := make([]domain.Document, 0, len(r.RelatedDocuments))
	for _, d := range r.RelatedDocuments {
		docs = append(docs, d.ToDomain())
	}

	draft := domain.IncidentDraft{
		Title:       r.Title,
		Description: r.Description,
		Level:       domain.Level(r.Level),
		Scope:       domain.Scope(r.Scope),
		Impacts: domain.Impacts{
			SafetyCompliance: domain.Impact(r.SafetyCompliance),
			SecurityPrivacy:  domain.Impact(r.SecurityPrivacy),
			DataQuality:      domain.Impact(r.DataQuality),
			PSD2Impact:       domain.Impact(r.PSD2Impact),
		},
		Confirmations: domain.Confirmations{
			L5Confirmation:                 r.L5Confirmation,
			MitigationPolicyAcknowledgment: r.MitigationPolicyAcknowledgment,
		},
		TimeFormat:                r.TimeFormat,
		DetectionSource:           r.DetectionSource,
		IncidentType:              r.IncidentType,
		IncidentCommander:         r.IncidentCommander,
		ReportingOrg:              r.ReportingOrg,
		EstimatedTimeToMitigation: r.EstimatedTimeToMitigation,
		FirstDetectedIn:           r.FirstDetectedIn,
		AdditionalSubscribers:     r.AdditionalSubscribers,
		SafetyComplianceDocURL:    r.SafetyComplianceDocURL,
		SendEmailNotifications:    sendEmail,
		ImpactedLocations:         r.ImpactedLocations,
		ImpactedParties:           r.ImpactedParties,
		ImpactedAreas:             r.ImpactedAreas,
		ImpactedAssets:            r.ImpactedAssets,
		RelatedDocuments:          docs,
	}
	if r.StartedAt != nil {
		draft.StartedAt = *r.StartedAt
	}
	if r.DetectedAt != nil {
		draft.DetectedAt = *r.DetectedAt
	}
	return draft
}

// PatchIncidentRequest represents the request body for a partial update.
type PatchIncidentRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=255"`
	Description *string `json:"description"`
	Level       *string `json:"level" validate:"omitempty,oneof=L2 L3 L4 L5"`
	Scope       *string `json:"scope" validate:"omitempty,oneof=Low Medium High"`
	Status      *string `json:"status" validate:"omitempty,oneof=reported mitigating resolved postmortem closed"`

	SafetyCompliance *string `json:"safety_compliance"`
	SecurityPrivacy  *string `json:"security_privacy"`
	DataQuality      *string `json:"data_quality"`
	PSD2Impact       *string `json:"psd2_impact"`

	L5Confirmation                 *bool `json:"l5_confirmation"`
	MitigationPolicyAcknowledgment *bool `json:"mitigation_policy_acknowledgment"`

	StartedAt  *time.Time `json:"started_at"`
	DetectedAt *time.Time `json:"detected_at"`
	TimeFormat *string    `json:"time_format"`

	DetectionSource           *string `json:"detection_source"`
	IncidentType              *string `json:"incident_type"`
	IncidentCommander         *string `json:"incident_commander" validate:"omitempty,email"`
	ReportingOrg              *string `json:"reporting_org" validate:"omitempty,max=100"`
	EstimatedTimeToMitigation *string `json:"estimated_time_to_mitigation" validate:"omitempty,max=20"`
	FirstDetectedIn           *string `json:"first_detected_in" validate:"omitempty,max=50"`
	AdditionalSubscribers     *string `json:"additional_subscribers"`
	SafetyComplianceDocURL    *string `json:"safety_compliance_document_url" validate:"omitempty,url"`
	SendEmailNotifications    *bool   `json:"send_email_notifications"`

	ImpactedLocations *[]string `json:"impacted_locations"`
	ImpactedParties   *[]string `json:"impacted_parties"`
	ImpactedAreas     *[]string `json:"impacted_areas"`
	ImpactedAssets    *[]string `json:"impacted_assets"`
}

// ToInput converts the request to a service patch.
func (r *PatchIncidentRequest) ToInput() PatchInput {
	in := PatchInput{
		Title:                          r.Title,
		Description:                    r.Description,
		L5Confirmation:                 r.L5Confirmation,
		MitigationPolicyAcknowledgment: r.MitigationPolicyAcknowledgment,
		StartedAt:                      r.StartedAt,
		DetectedAt:                     r.DetectedAt,
		TimeFormat:                     r.TimeFormat,
		DetectionSource:                r.DetectionSource,
		IncidentType:                   r.IncidentType,
		IncidentCommander:              r.IncidentCommander,
		ReportingOrg:                   r.ReportingOrg,
		EstimatedTimeToMitigation:      r.EstimatedTimeToMitigation,
		FirstDetectedIn:                r.FirstDetectedIn,
		AdditionalSubscribers:          r.AdditionalSubscribers,
		SafetyComplianceDocURL:         r.SafetyComplianceDocURL,
		SendEmailNotifications:         r.SendEmailNotifications,
		ImpactedLocations:              r.ImpactedLocations,
		ImpactedParties:                r.ImpactedParties,
		ImpactedAreas:                  r.ImpactedAreas,
		ImpactedAssets:                 r.ImpactedAssets,
	}
	if r.Level != nil {
		v := domain.Level(*r.Level)
		in.Level = &v
	}
	if r.Scope != nil {
		v := domain.Scope(*r.Scope)
		in.Scope = &v
	}
	if r.Status != nil {
		v := domain.Status(*r.Status)
		in.Status = &v
	}
	in.SafetyCompliance = impactPtr(r.SafetyCompliance)
	in.SecurityPrivacy = impactPtr(r.SecurityPrivacy)
	in.DataQuality = impactPtr(r.DataQuality)
	in.PSD2Impact = impactPtr(r.PSD2Impact)
	return in
}

func impactPtr(v *string) *domain.Impact {
	if v == nil {
		return nil
	}
	impact := domain.Impact(*v)
	return &impact
}

// CreateUpdateRequest represents the request body for posting an update.
type CreateUpdateRequest struct {
	Content    string `json:"content" validate:"required"`
	Author     string `json:"author" validate:"omitempty,email"`
	UpdateType string `json:"update_type" validate:"omitempty,oneof=update mitigation resolution note"`
}

// ToInput converts the request to a service input.
func (r *CreateUpdateRequest) ToInput() AddUpdateInput {
	return AddUpdateInput{
		Content:    r.Content,
		Author:     r.Author,
		UpdateType: domain.UpdateType(r.UpdateType),
	}
}
