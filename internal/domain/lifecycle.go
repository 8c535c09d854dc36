package domain

// Status represents the lifecycle position of an incident.
type Status string

// Incident statuses in lifecycle order.
const (
	StatusReported   Status = "reported"
	StatusMitigating Status = "mitigating"
	StatusResolved   Status = "resolved"
	StatusPostmortem Status = "postmortem"
	StatusClosed     Status = "closed"
)

var lifecycle = []Status{
	StatusReported,
	StatusMitigating,
	StatusResolved,
	StatusPostmortem,
	StatusClosed,
}

// Statuses returns all statuses in lifecycle order.
func Statuses() []Status {
	out := make([]Status, len(lifecycle))
	copy(out, lifecycle)
	return out
}

// IsValid checks if the status is one of the lifecycle statuses.
func (s Status) IsValid() bool {
	return s.Stage() > 0
}

// Stage returns the 1-based position of the status in the lifecycle, or 0 for
// unknown statuses.
func (s Status) Stage() int {
	for i, st := range lifecycle {
		if st == s {
			return i + 1
		}
	}
	return 0
}

// Next returns the successor status. Closed is terminal.
func (s Status) Next() (Status, bool) {
	stage := s.Stage()
	if stage == 0 || stage == len(lifecycle) {
		return "", false
	}
	return lifecycle[stage], true
}

// IsTerminal reports whether no transition leaves the status.
func (s Status) IsTerminal() bool {
	return s == StatusClosed
}

// AdvanceLabel is the label of the action that moves the incident forward.
// Empty for closed.
func (s Status) AdvanceLabel() string {
	switch s {
	case StatusReported:
		return "Start Mitigating"
	case StatusMitigating:
		return "Mark Resolved"
	case StatusResolved:
		return "Start Postmortem"
	case StatusPostmortem:
		return "Complete Postmortem"
	}
	return ""
}

// CanTransition reports whether to is the direct successor of from.
func CanTransition(from, to Status) bool {
	next, ok := from.Next()
	return ok && next == to
}

// Section is a part of the incident detail view.
type Section string

// Detail view sections.
const (
	SectionSummary        Section = "summary"
	SectionClassification Section = "classification"
	SectionTimeline       Section = "timeline"
	SectionUpdates        Section = "updates"
	SectionAddUpdate      Section = "add_update"
	SectionDocuments      Section = "documents"
	SectionPostmortem     Section = "postmortem"
	SectionAdvance        Section = "advance"
	SectionDuplicate      Section = "mark_duplicate"
)

// Sections lists the detail view sections visible at the status, in display order.
func (s Status) Sections() []Section {
	out := []Section{SectionSummary, SectionClassification, SectionTimeline, SectionUpdates}
	if !s.IsTerminal() {
		out = append(out, SectionAddUpdate)
	}
	out = append(out, SectionDocuments)
	if s.Stage() >= StatusPostmortem.Stage() {
		out = append(out, SectionPostmortem)
	}
	if _, ok := s.Next(); ok {
		out = append(out, SectionAdvance)
	}
	if s == StatusReported {
		out = append(out, SectionDuplicate)
	}
	return out
}

// HasSection reports whether the section is visible at the status.
func (s Status) HasSection(section Section) bool {
	for _, sec := range s.Sections() {
		if sec == section {
			return true
		}
	}
	return false
}

// PostmortemEditable reports whether the postmortem draft may be changed.
func (s Status) PostmortemEditable() bool {
	return s == StatusPostmortem
}
