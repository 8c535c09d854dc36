package catalog

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

func editable(field Field) error {
	if !field.IsKnown() {
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	if field.IsFixed() {
		return fmt.Errorf("%w: %s", ErrFixedField, field)
	}
	return nil
}

// SetOptions replaces every option of an editable field.
func (c *Catalog) SetOptions(field Field, opts []Option) error {
	if err := editable(field); err != nil {
		return err
	}
	if err := validateOptions(field, opts); err != nil {
		return err
	}

	cp := make([]Option, len(opts))
	copy(cp, opts)

	c.mu.Lock()
	c.options[field] = cp
	c.mu.Unlock()
	return nil
}

// AddOption appends an option to an editable field.
func (c *Catalog) AddOption(field Field, opt Option) error {
	if err := editable(field); err != nil {
		return err
	}
	if err := validateOption(opt); err != nil {
		return err
	}
	if opt.Label == "" {
		opt.Label = opt.Value
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if indexOf(c.options[field], opt.Value) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateOption, opt.Value)
	}
	c.options[field] = append(c.options[field], opt)
	return nil
}

// RemoveOption deletes an option from an editable field. The last option of a
// field cannot be removed.
func (c *Catalog) RemoveOption(field Field, value string) error {
	if err := editable(field); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	opts := c.options[field]
	i := indexOf(opts, value)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrOptionNotFound, value)
	}
	if len(opts) == 1 {
		return fmt.Errorf("%w: %s", ErrEmptyOptions, field)
	}

	out := make([]Option, 0, len(opts)-1)
	out = append(out, opts[:i]...)
	out = append(out, opts[i+1:]...)
	c.options[field] = out
	return nil
}

// Export writes the catalog as YAML.
func (c *Catalog) Export(w io.Writer) error {
	snapshot := c.Snapshot()

	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, field := range allFields {
		value := &yaml.Node{}
		if err := value.Encode(snapshot[field]); err != nil {
			return fmt.Errorf("encode %s: %w", field, err)
		}
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: string(field)},
			value,
		)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	return enc.Close()
}

// Import replaces editable fields with the ones present in a YAML document.
// Fixed fields may appear only with their current options. Nothing changes
// unless the whole document is valid.
func (c *Catalog) Import(r io.Reader) error {
	var doc map[Field][]Option
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return fmt.Errorf("decode catalog: %w", err)
	}

	current := c.Snapshot()
	for field, opts := range doc {
		if !field.IsKnown() {
			return fmt.Errorf("%w: %s", ErrUnknownField, field)
		}
		if err := validateOptions(field, opts); err != nil {
			return err
		}
		if field.IsFixed() && !sameValues(current[field], opts) {
			return fmt.Errorf("%w: %s", ErrFixedField, field)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for field, opts := range doc {
		if field.IsFixed() {
			continue
		}
		c.options[field] = opts
	}
	return nil
}

func sameValues(a, b []Option) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Value != b[i].Value {
			return false
		}
	}
	return true
}
