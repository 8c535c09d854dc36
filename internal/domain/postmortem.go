package domain

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Postmortem is the retrospective record written after an incident is resolved.
// Timestamps are kept as entered so a partially filled draft round-trips unchanged.
type Postmortem struct {
	Author            string `json:"author" yaml:"author"`
	Contributors      string `json:"contributors" yaml:"contributors"`
	Organisation      string `json:"organisation" yaml:"organisation"`
	AccountableTeam   string `json:"accountable_team" yaml:"accountable_team"`
	Reviewers         string `json:"reviewers" yaml:"reviewers"`
	BarRaiser         string `json:"bar_raiser" yaml:"bar_raiser"`
	ExecutiveSummary  string `json:"executive_summary" yaml:"executive_summary"`
	DetailedSummary   string `json:"detailed_summary" yaml:"detailed_summary"`
	KeyLearnings      string `json:"key_learnings" yaml:"key_learnings"`
	MitigationNotes   string `json:"mitigation_notes" yaml:"mitigation_notes"`
	StartedAt         string `json:"started_at" yaml:"started_at"`
	DetectedAt        string `json:"detected_at" yaml:"detected_at"`
	MitigatedAt       string `json:"mitigated_at" yaml:"mitigated_at"`
	ResolvedAt        string `json:"resolved_at" yaml:"resolved_at"`
	BusinessImpact    string `json:"business_impact" yaml:"business_impact"`
	CustomerImpact    string `json:"customer_impact" yaml:"customer_impact"`
	StakeholderImpact string `json:"stakeholder_impact" yaml:"stakeholder_impact"`
}

// Completeness is the result of checking a postmortem for closure.
type Completeness struct {
	IsValid       bool     `json:"is_valid"`
	MissingFields []string `json:"missing_fields"`
}

type postmortemField struct {
	key   string
	value func(*Postmortem) string
}

// Declaration order is the order missing fields are reported in.
var postmortemFields = []postmortemField{
	{"author", func(p *Postmortem) string { return p.Author }},
	{"contributors", func(p *Postmortem) string { return p.Contributors }},
	{"organisation", func(p *Postmortem) string { return p.Organisation }},
	{"accountable_team", func(p *Postmortem) string { return p.AccountableTeam }},
	{"reviewers", func(p *Postmortem) string { return p.Reviewers }},
	{"bar_raiser", func(p *Postmortem) string { return p.BarRaiser }},
	{"executive_summary", func(p *Postmortem) string { return p.ExecutiveSummary }},
	{"detailed_summary", func(p *Postmortem) string { return p.DetailedSummary }},
	{"key_learnings", func(p *Postmortem) string { return p.KeyLearnings }},
	{"mitigation_notes", func(p *Postmortem) string { return p.MitigationNotes }},
	{"started_at", func(p *Postmortem) string { return p.StartedAt }},
	{"detected_at", func(p *Postmortem) string { return p.DetectedAt }},
	{"mitigated_at", func(p *Postmortem) string { return p.MitigatedAt }},
	{"resolved_at", func(p *Postmortem) string { return p.ResolvedAt }},
	{"business_impact", func(p *Postmortem) string { return p.BusinessImpact }},
	{"customer_impact", func(p *Postmortem) string { return p.CustomerImpact }},
	{"stakeholder_impact", func(p *Postmortem) string { return p.StakeholderImpact }},
}

var labelCaser = cases.Title(language.English)

// FieldLabel turns a field key such as "executive_summary" into "Executive Summary".
func FieldLabel(key string) string {
	return labelCaser.String(strings.ReplaceAll(key, "_", " "))
}

// PostmortemFieldKeys returns the required field keys in declaration order.
func PostmortemFieldKeys() []string {
	keys := make([]string, len(postmortemFields))
	for i, f := range postmortemFields {
		keys[i] = f.key
	}
	return keys
}

// Validate reports which required fields are empty after trimming.
// A nil postmortem is missing every field.
func (p *Postmortem) Validate() Completeness {
	var empty Postmortem
	if p == nil {
		p = &empty
	}

	missing := make([]string, 0)
	for _, f := range postmortemFields {
		if strings.TrimSpace(f.value(p)) == "" {
			missing = append(missing, FieldLabel(f.key))
		}
	}

	return Completeness{
		IsValid:       len(missing) == 0,
		MissingFields: missing,
	}
}

// PrefillPostmortem builds a fresh draft from the incident at the start of the
// postmortem stage.
func PrefillPostmortem(inc *Incident) Postmortem {
	var resolvedAt time.Time
	if inc.ResolvedAt != nil {
		resolvedAt = *inc.ResolvedAt
	}
	return Postmortem{
		Author:       inc.IncidentCommander,
		Organisation: inc.ReportingOrg,
		StartedAt:    formatInstant(inc.StartedAt),
		DetectedAt:   formatInstant(inc.DetectedAt),
		MitigatedAt:  formatInstant(inc.UpdatedAt),
		ResolvedAt:   formatInstant(resolvedAt),
	}
}

func formatInstant(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
