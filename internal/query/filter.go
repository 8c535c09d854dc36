// Package query translates list filters to and from URL query parameters.
package query

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Query parameter names.
const (
	ParamSearch            = "search"
	ParamImpactedLocations = "impacted_locations"
	ParamImpactedParties   = "impacted_parties"
	ParamStatus            = "status"
	ParamIncidentType      = "incident_type"
	ParamDetectionSource   = "detection_source"
	ParamReportingOrg      = "reporting_org"
	ParamIncidentCommander = "incident_commander"
	ParamImpactedAssets    = "impacted_assets"
	ParamImpactedAreas     = "impacted_areas"
	ParamLevel             = "level"
	ParamScope             = "scope"
	ParamOrdering          = "ordering"
	ParamPage              = "page"
	ParamPageSize          = "page_size"
)

// DefaultOrdering lists newest incidents first.
const DefaultOrdering = "-created_at"

// ErrInvalidOrdering is returned for an ordering outside the allowed fields.
var ErrInvalidOrdering = errors.New("invalid ordering")

// ErrInvalidPage is returned for a page or page size that is not a positive integer.
var ErrInvalidPage = errors.New("invalid page")

var orderingFields = map[string]struct{}{
	"created_at":  {},
	"started_at":  {},
	"detected_at": {},
	"level":       {},
	"scope":       {},
}

// Filters is the list view filter state.
type Filters struct {
	Search            string
	ImpactedLocations []string
	ImpactedParties   []string
	Status            []string
	IncidentType      []string
	DetectionSource   []string
	ReportingOrg      []string
	IncidentCommander []string
	ImpactedAssets    []string
	ImpactedAreas     []string
	Level             []string
	Scope             []string
	Ordering          string
	Page              int
	PageSize          int
}

// multiValue describes how one multi-valued filter travels in the query string.
type multiValue struct {
	param       string
	commaJoined bool
	get         func(*Filters) *[]string
}

// impacted_locations and impacted_parties are split on commas by the backend,
// every other filter is sent as one key per value.
var multiValues = []multiValue{
	{ParamImpactedLocations, true, func(f *Filters) *[]string { return &f.ImpactedLocations }},
	{ParamImpactedParties, true, func(f *Filters) *[]string { return &f.ImpactedParties }},
	{ParamStatus, false, func(f *Filters) *[]string { return &f.Status }},
	{ParamIncidentType, false, func(f *Filters) *[]string { return &f.IncidentType }},
	{ParamDetectionSource, false, func(f *Filters) *[]string { return &f.DetectionSource }},
	{ParamReportingOrg, false, func(f *Filters) *[]string { return &f.ReportingOrg }},
	{ParamIncidentCommander, false, func(f *Filters) *[]string { return &f.IncidentCommander }},
	{ParamImpactedAssets, false, func(f *Filters) *[]string { return &f.ImpactedAssets }},
	{ParamImpactedAreas, false, func(f *Filters) *[]string { return &f.ImpactedAreas }},
	{ParamLevel, false, func(f *Filters) *[]string { return &f.Level }},
	{ParamScope, false, func(f *Filters) *[]string { return &f.Scope }},
}

// IsEmpty reports whether no filter, search or ordering is set.
func (f Filters) IsEmpty() bool {
	if strings.TrimSpace(f.Search) != "" || f.Ordering != "" {
		return false
	}
	for _, mv := range multiValues {
		if len(*mv.get(&f)) > 0 {
			return false
		}
	}
	return true
}

// Build converts filters to query parameters. The result does not depend on
// the order values were selected in.
func Build(f Filters) url.Values {
	v := url.Values{}

	if s := strings.TrimSpace(f.Search); s != "" {
		v.Set(ParamSearch, s)
	}

	for _, mv := range multiValues {
		values := normalize(*mv.get(&f))
		if len(values) == 0 {
			continue
		}
		if mv.commaJoined {
			v.Set(mv.param, strings.Join(values, ","))
			continue
		}
		v[mv.param] = values
	}

	if f.Ordering != "" {
		v.Set(ParamOrdering, f.Ordering)
	}
	if f.Page > 1 {
		v.Set(ParamPage, strconv.Itoa(f.Page))
	}
	if f.PageSize > 0 {
		v.Set(ParamPageSize, strconv.Itoa(f.PageSize))
	}

	return v
}

// Encode is Build followed by url.Values.Encode.
func Encode(f Filters) string {
	return Build(f).Encode()
}

// Parse reads filters from query parameters. Every multi-valued filter accepts
// both repeated keys and comma-separated values.
func Parse(v url.Values) (Filters, error) {
	f := Filters{
		Search: strings.TrimSpace(v.Get(ParamSearch)),
	}

	for _, mv := range multiValues {
		var values []string
		for _, raw := range v[mv.param] {
			values = append(values, strings.Split(raw, ",")...)
		}
		*mv.get(&f) = normalize(values)
	}

	if ordering := v.Get(ParamOrdering); ordering != "" {
		if _, ok := orderingFields[strings.TrimPrefix(ordering, "-")]; !ok {
			return Filters{}, fmt.Errorf("%w: %s", ErrInvalidOrdering, ordering)
		}
		f.Ordering = ordering
	}

	var err error
	if f.Page, err = positiveInt(v.Get(ParamPage)); err != nil {
		return Filters{}, err
	}
	if f.PageSize, err = positiveInt(v.Get(ParamPageSize)); err != nil {
		return Filters{}, err
	}

	return f, nil
}

// OrderingOrDefault returns the ordering, or DefaultOrdering when unset.
func (f Filters) OrderingOrDefault() string {
	if f.Ordering == "" {
		return DefaultOrdering
	}
	return f.Ordering
}

func positiveInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPage, raw)
	}
	return n, nil
}

func normalize(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
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
