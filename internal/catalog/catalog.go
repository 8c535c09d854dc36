// Package catalog provides the field catalog: the enumerations offered for
// incident fields and used to validate submitted values.
package catalog

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Field names a catalog enumeration.
type Field string

// Catalog fields.
const (
	FieldLevels                    Field = "levels"
	FieldScopes                    Field = "scopes"
	FieldStatuses                  Field = "statuses"
	FieldUpdateTypes               Field = "update_types"
	FieldImpactOptions             Field = "impact_options"
	FieldIncidentTypes             Field = "incident_types"
	FieldTimeFormats               Field = "time_formats"
	FieldDetectionSources          Field = "detection_sources"
	FieldReportingOrgs             Field = "reporting_orgs"
	FieldImpactedLocations         Field = "impacted_locations"
	FieldImpactedParties           Field = "impacted_parties"
	FieldImpactedAreas             Field = "impacted_areas"
	FieldImpactedAssets            Field = "impacted_assets"
	FieldFirstDetectedIn           Field = "first_detected_in"
	FieldEstimatedTimeToMitigation Field = "estimated_time_to_mitigation"
)

var allFields = []Field{
	FieldLevels,
	FieldScopes,
	FieldStatuses,
	FieldUpdateTypes,
	FieldImpactOptions,
	FieldIncidentTypes,
	FieldTimeFormats,
	FieldDetectionSources,
	FieldReportingOrgs,
	FieldImpactedLocations,
	FieldImpactedParties,
	FieldImpactedAreas,
	FieldImpactedAssets,
	FieldFirstDetectedIn,
	FieldEstimatedTimeToMitigation,
}

// Fixed fields mirror domain enumerations and cannot be edited.
var fixedFields = map[Field]struct{}{
	FieldLevels:        {},
	FieldScopes:        {},
	FieldStatuses:      {},
	FieldUpdateTypes:   {},
	FieldImpactOptions: {},
}

// Option is one selectable value of a field.
type Option struct {
	Value       string `koanf:"value" yaml:"value" json:"value"`
	Label       string `koanf:"label" yaml:"label" json:"label"`
	Description string `koanf:"description" yaml:"description,omitempty" json:"description,omitempty"`
}

// Catalog holds the options of every field. It is safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	options map[Field][]Option
}

// Load reads the embedded catalog and, when overridePath is set, merges the
// editable fields of that YAML file over it.
func Load(overridePath string) (*Catalog, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(defaultCatalog), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load default catalog: %w", err)
	}

	if overridePath != "" {
		override := koanf.New(".")
		if err := override.Load(file.Provider(overridePath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load catalog file %s: %w", overridePath, err)
		}
		for field := range fixedFields {
			if override.Exists(string(field)) {
				return nil, fmt.Errorf("catalog file %s: %w: %s", overridePath, ErrFixedField, field)
			}
		}
		if err := k.Merge(override); err != nil {
			return nil, fmt.Errorf("merge catalog file: %w", err)
		}
	}

	raw := make(map[string][]Option)
	if err := k.Unmarshal("", &raw); err != nil {
		return nil, fmt.Errorf("unmarshal catalog: %w", err)
	}

	options := make(map[Field][]Option, len(allFields))
	for _, field := range allFields {
		opts := raw[string(field)]
		if err := validateOptions(field, opts); err != nil {
			return nil, err
		}
		options[field] = opts
	}

	return &Catalog{options: options}, nil
}

// MustDefault returns the embedded catalog and panics if it is malformed.
func MustDefault() *Catalog {
	c, err := Load("")
	if err != nil {
		panic(err)
	}
	return c
}

// Fields returns all catalog fields in display order.
func Fields() []Field {
	out := make([]Field, len(allFields))
	copy(out, allFields)
	return out
}

// IsKnown reports whether field is a catalog field.
func (f Field) IsKnown() bool {
	for _, known := range allFields {
		if known == f {
			return true
		}
	}
	return false
}

// IsFixed reports whether field mirrors a domain enumeration.
func (f Field) IsFixed() bool {
	_, ok := fixedFields[f]
	return ok
}

// Options returns a copy of the options of field.
func (c *Catalog) Options(field Field) []Option {
	c.mu.RLock()
	defer c.mu.RUnlock()

	opts := c.options[field]
	out := make([]Option, len(opts))
	copy(out, opts)
	return out
}

// Values returns the option values of field.
func (c *Catalog) Values(field Field) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	opts := c.options[field]
	out := make([]string, len(opts))
	for i, o := range opts {
		out[i] = o.Value
	}
	return out
}

// Default returns the first option value of field, or "" when it has none.
func (c *Catalog) Default(field Field) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if opts := c.options[field]; len(opts) > 0 {
		return opts[0].Value
	}
	return ""
}

// Label returns the display label of value, falling back to the value itself.
func (c *Catalog) Label(field Field, value string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, o := range c.options[field] {
		if o.Value == value {
			return o.Label
		}
	}
	return value
}

// Contains reports whether value is an option of field.
func (c *Catalog) Contains(field Field, value string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return indexOf(c.options[field], value) >= 0
}

// Unknown returns the values that are not options of field.
func (c *Catalog) Unknown(field Field, values []string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []string
	for _, v := range values {
		if indexOf(c.options[field], v) < 0 {
			out = append(out, v)
		}
	}
	return out
}

// Snapshot returns a copy of the whole catalog.
func (c *Catalog) Snapshot() map[Field][]Option {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[Field][]Option, len(c.options))
	for field, opts := range c.options {
		cp := make([]Option, len(opts))
		copy(cp, opts)
		out[field] = cp
	}
	return out
}

func indexOf(opts []Option, value string) int {
	for i, o := range opts {
		if o.Value == value {
			return i
		}
	}
	return -1
}

func validateOptions(field Field, opts []Option) error {
	if len(opts) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyOptions, field)
	}
	seen := make(map[string]struct{}, len(opts))
	for _, o := range opts {
		if err := validateOption(o); err != nil {
			return fmt.Errorf("field %s: %w", field, err)
		}
		if _, ok := seen[o.Value]; ok {
			return fmt.Errorf("field %s: %w: %s", field, ErrDuplicateOption, o.Value)
		}
		seen[o.Value] = struct{}{}
	}
	return nil
}

// Commas separate values in list queries, so no option may contain one.
func validateOption(o Option) error {
	if strings.TrimSpace(o.Value) == "" || o.Value != strings.TrimSpace(o.Value) {
		return fmt.Errorf("%w: %q", ErrInvalidOption, o.Value)
	}
	if strings.Contains(o.Value, ",") {
		return fmt.Errorf("%w: %q contains a comma", ErrInvalidOption, o.Value)
	}
	return nil
}
