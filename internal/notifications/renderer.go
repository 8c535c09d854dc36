package notifications

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Renderer turns status changes into chat messages. Each event type has a
// template named after it without the "incident." prefix.
type Renderer struct {
	set *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	set, err := template.New("").Funcs(template.FuncMap{
		"title":          titleCase,
		"formatTime":     formatTime,
		"formatDuration": formatDuration,
		"levelEmoji":     levelEmoji,
		"since":          since,
	}).ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse notification templates: %w", err)
	}
	return &Renderer{set: set}, nil
}

// Render builds the subject and body for change.
func (r *Renderer) Render(change StatusChange) (Message, error) {
	name := strings.TrimPrefix(string(change.Type), "incident.") + ".tmpl"
	tmpl := r.set.Lookup(name)
	if tmpl == nil {
		return Message{}, fmt.Errorf("template not found for %q", change.Type)
	}

	var body strings.Builder
	if err := tmpl.Execute(&body, change); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", name, err)
	}
	return Message{Subject: subject(change), Body: strings.TrimSpace(body.String())}, nil
}

func subject(change StatusChange) string {
	kind := "Incident"
	if change.Incident.Critical {
		kind = "Critical incident"
	}
	return "[" + kind + " " + titleCase(change.To) + "] " + change.Incident.Title
}

var titleCaser = cases.Title(language.English)

func titleCase(s string) string {
	return titleCaser.String(s)
}

func formatTime(v any) string {
	var t time.Time
	switch x := v.(type) {
	case time.Time:
		t = x
	case *time.Time:
		if x != nil {
			t = *x
		}
	}
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("Jan 2, 2006 15:04 UTC")
}

// since is zero until the interval is closed.
func since(start time.Time, end *time.Time) time.Duration {
	if end == nil || start.IsZero() {
		return 0
	}
	return end.Sub(start)
}

// formatDuration prints seconds below a minute and whole minutes above.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d/time.Second))
	}
	h, m := int(d/time.Hour), int(d%time.Hour/time.Minute)
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh %dm", h, m)
	}
}

var levelMarks = map[string]string{
	"L5": "🔴",
	"L4": "🟠",
	"L3": "🟡",
	"L2": "🔵",
}

func levelEmoji(level string) string {
	if mark, ok := levelMarks[level]; ok {
		return mark
	}
	return "⚪"
}
