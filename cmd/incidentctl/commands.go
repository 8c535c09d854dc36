package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bissquit/incident-console/internal/console"
	"github.com/bissquit/incident-console/internal/domain"
	"github.com/bissquit/incident-console/internal/identity"
	"github.com/bissquit/incident-console/internal/query"
	"github.com/bissquit/incident-console/internal/version"
	"gopkg.in/yaml.v3"
)

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		*s = append(*s, part)
	}
	return nil
}

func newFlagSet(e *env, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

func oneArg(fs *flag.FlagSet, args []string, what string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", errUsage
	}
	if fs.NArg() != 1 {
		return "", fmt.Errorf("%s: expected exactly one %s", fs.Name(), what)
	}
	return fs.Arg(0), nil
}

func runList(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "list")
	search := fs.String("search", "", "free-text search")
	ordering := fs.String("ordering", "", "ordering field, prefix - for descending")
	page := fs.Int("page", 0, "page number")

	filters := map[string]*stringList{}
	for _, f := range []struct{ param, flag string }{
		{query.ParamStatus, "status"},
		{query.ParamLevel, "level"},
		{query.ParamScope, "scope"},
		{query.ParamImpactedLocations, "location"},
		{query.ParamImpactedParties, "party"},
		{query.ParamIncidentType, "type"},
		{query.ParamDetectionSource, "source"},
		{query.ParamReportingOrg, "org"},
		{query.ParamIncidentCommander, "commander"},
		{query.ParamImpactedAssets, "asset"},
		{query.ParamImpactedAreas, "area"},
	} {
		values := &stringList{}
		fs.Var(values, f.flag, "filter on "+f.param+" (repeatable)")
		filters[f.param] = values
	}
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	list := console.NewList(e.client, query.Filters{})
	actions := []console.Action{
		console.SearchChanged{Search: *search},
		console.OrderingChanged{Ordering: *ordering},
	}
	params := make([]string, 0, len(filters))
	for param := range filters {
		params = append(params, param)
	}
	sort.Strings(params)
	for _, param := range params {
		if values := *filters[param]; len(values) > 0 {
			actions = append(actions, console.FilterChanged{Param: param, Values: values})
		}
	}
	if *page > 0 {
		actions = append(actions, console.PageChanged{Page: *page})
	}
	for _, a := range actions {
		if err := list.Dispatch(a); err != nil {
			return err
		}
	}

	result, err := list.Refresh(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tLEVEL\tSCOPE\tSTARTED\tTITLE")
	for _, inc := range result.Results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			inc.ID, inc.Status, inc.Level, inc.Scope, formatTime(inc.StartedAt), inc.Title)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(e.stdout, "\n%d incident(s)", result.Count)
	if result.Next != nil {
		fmt.Fprintf(e.stdout, ", next page: %s", *result.Next)
	}
	fmt.Fprintln(e.stdout)
	return nil
}

func runShow(ctx context.Context, e *env, args []string) error {
	id, err := oneArg(newFlagSet(e, "show"), args, "incident id")
	if err != nil {
		return err
	}

	detail := console.NewDetail(e.client)
	inc, err := detail.Load(ctx, id)
	if err != nil {
		return err
	}

	printIncident(e.stdout, inc, detail.Sections())
	if label := detail.AdvanceLabel(); label != "" {
		fmt.Fprintf(e.stdout, "\nNext action: %s (incidentctl advance %s)\n", label, inc.ID)
	}
	return nil
}

func printIncident(w io.Writer, inc *domain.Incident, sections []domain.Section) {
	has := make(map[domain.Section]bool, len(sections))
	for _, s := range sections {
		has[s] = true
	}

	fmt.Fprintf(w, "%s  [%s]\n", inc.Title, inc.Status)
	fmt.Fprintf(w, "ID:          %s\n", inc.ID)
	if has[domain.SectionSummary] {
		fmt.Fprintf(w, "Commander:   %s\n", inc.IncidentCommander)
		fmt.Fprintf(w, "Org:         %s\n", inc.ReportingOrg)
		fmt.Fprintf(w, "Description: %s\n", inc.Description)
	}
	if has[domain.SectionClassification] {
		fmt.Fprintf(w, "Level/Scope: %s / %s", inc.Level, inc.Scope)
		if inc.IsCritical() {
			fmt.Fprint(w, "  CRITICAL")
		}
		fmt.Fprintln(w)
		if len(inc.ImpactedLocations) > 0 {
			fmt.Fprintf(w, "Locations:   %s\n", strings.Join(inc.ImpactedLocations, ", "))
		}
		if len(inc.ImpactedParties) > 0 {
			fmt.Fprintf(w, "Parties:     %s\n", strings.Join(inc.ImpactedParties, ", "))
		}
	}
	if has[domain.SectionTimeline] {
		fmt.Fprintf(w, "Started:     %s\n", formatTime(inc.StartedAt))
		fmt.Fprintf(w, "Detected:    %s", formatTime(inc.DetectedAt))
		if ttd, ok := inc.TimeToDetect(); ok {
			fmt.Fprintf(w, " (after %s)", ttd)
		}
		fmt.Fprintln(w)
		if inc.ResolvedAt != nil {
			fmt.Fprintf(w, "Resolved:    %s\n", formatTime(*inc.ResolvedAt))
		}
	}
	if has[domain.SectionDocuments] && len(inc.RelatedDocuments) > 0 {
		fmt.Fprintln(w, "\nDocuments:")
		for _, d := range inc.RelatedDocuments {
			fmt.Fprintf(w, "  - %s <%s>\n", d.Title, d.URL)
		}
	}
	if has[domain.SectionPostmortem] {
		c := inc.Postmortem.Validate()
		if c.IsValid {
			fmt.Fprintln(w, "\nPostmortem:  complete")
		} else {
			fmt.Fprintf(w, "\nPostmortem:  missing %s\n", strings.Join(c.MissingFields, ", "))
		}
	}
	if has[domain.SectionUpdates] && len(inc.Updates) > 0 {
		fmt.Fprintln(w, "\nUpdates:")
		for _, u := range inc.Updates {
			fmt.Fprintf(w, "  %s  %-10s %s: %s\n", formatTime(u.CreatedAt), u.UpdateType, u.Author, u.Content)
		}
	}
}

func runCreate(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "create")
	file := fs.String("f", "", "YAML creation form")
	resume := fs.Bool("resume", false, "submit the cached draft instead of a file")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	form := console.NewForm(e.client, e.drafts)
	switch {
	case *resume:
		if !form.Restore(ctx) {
			return errors.New("create: no cached draft")
		}
	case *file != "":
		var draft domain.IncidentDraft
		if err := readYAML(*file, &draft); err != nil {
			return err
		}
		if err := form.Dispatch(ctx, console.DraftLoaded{Draft: draft}); err != nil {
			return err
		}
	default:
		return errors.New("create: -f or -resume is required")
	}

	inc, err := form.Submit(ctx)
	if err != nil {
		if fields, ok := console.IsFieldErrors(err); ok {
			printFieldErrors(e.stderr, fields)
			return errors.New("create: the form has errors, the draft was kept")
		}
		return err
	}

	fmt.Fprintf(e.stdout, "created %s [%s]\n", inc.ID, inc.Status)
	return nil
}

func runAdvance(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "advance")
	file := fs.String("f", "", "YAML postmortem to use when completing the postmortem")
	id, err := oneArg(fs, args, "incident id")
	if err != nil {
		return err
	}

	detail := console.NewDetail(e.client)
	if _, err := detail.Load(ctx, id); err != nil {
		return err
	}
	if *file != "" {
		var pm domain.Postmortem
		if err := readYAML(*file, &pm); err != nil {
			return err
		}
		if err := detail.SetPostmortem(pm); err != nil {
			return err
		}
	}

	inc, err := detail.Advance(ctx)
	if err != nil {
		if fields, ok := console.IsFieldErrors(err); ok {
			printFieldErrors(e.stderr, fields)
		}
		return err
	}

	fmt.Fprintf(e.stdout, "%s is now %s\n", inc.ID, inc.Status)
	return nil
}

func runUpdate(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "update")
	content := fs.String("m", "", "update content")
	updateType := fs.String("type", string(domain.UpdateTypeUpdate), "update, mitigation, resolution or note")
	author := fs.String("author", "", "author email, defaults to the authenticated actor")
	id, err := oneArg(fs, args, "incident id")
	if err != nil {
		return err
	}

	detail := console.NewDetail(e.client)
	if _, err := detail.Load(ctx, id); err != nil {
		return err
	}

	update, err := detail.AddUpdate(ctx, console.UpdateRequest{
		Content:    *content,
		Author:     *author,
		UpdateType: domain.UpdateType(*updateType),
	})
	if err != nil {
		if fields, ok := console.IsFieldErrors(err); ok {
			printFieldErrors(e.stderr, fields)
		}
		return err
	}

	fmt.Fprintf(e.stdout, "posted update %s\n", update.ID)
	return nil
}

func runPostmortem(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "postmortem")
	file := fs.String("f", "", "YAML postmortem draft")
	id, err := oneArg(fs, args, "incident id")
	if err != nil {
		return err
	}
	if *file == "" {
		return errors.New("postmortem: -f is required")
	}

	var pm domain.Postmortem
	if err := readYAML(*file, &pm); err != nil {
		return err
	}

	detail := console.NewDetail(e.client)
	if _, err := detail.Load(ctx, id); err != nil {
		return err
	}
	if err := detail.SetPostmortem(pm); err != nil {
		return err
	}

	view, err := detail.SavePostmortem(ctx)
	if err != nil {
		return err
	}

	if view.Completeness.IsValid {
		fmt.Fprintln(e.stdout, "postmortem saved, complete")
		return nil
	}
	fmt.Fprintf(e.stdout, "postmortem saved, missing: %s\n", strings.Join(view.Completeness.MissingFields, ", "))
	return nil
}

func runCatalog(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "catalog")
	out := fs.String("o", "", "output file, stdout when empty")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 || fs.Arg(0) != "export" {
		return errors.New("catalog: only 'export' is supported")
	}

	if *out == "" {
		return e.client.ExportCatalog(ctx, e.stdout)
	}

	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("create %s: %w", *out, err)
	}
	if err := e.client.ExportCatalog(ctx, f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func runToken(_ context.Context, e *env, args []string) error {
	actor, err := oneArg(newFlagSet(e, "token"), args, "actor email")
	if err != nil {
		return err
	}

	validator, err := identity.NewJWTValidator(identity.Config{
		SecretKey: e.cfg.Auth.SecretKey,
		Issuer:    e.cfg.Auth.Issuer,
		TokenTTL:  e.cfg.Auth.TokenTTL,
	})
	if err != nil {
		return err
	}

	token, err := validator.IssueToken(actor)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, token)
	return nil
}

func runVersion(_ context.Context, e *env, _ []string) error {
	fmt.Fprintln(e.stdout, "incidentctl", version.String())
	return nil
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func printFieldErrors(w io.Writer, fields domain.FieldErrors) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, msg := range fields[name] {
			fmt.Fprintf(w, "  %s: %s\n", name, msg)
		}
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04 MST")
}
