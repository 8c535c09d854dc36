package catalog

import "errors"

// Catalog errors.
var (
	ErrUnknownField    = errors.New("unknown catalog field")
	ErrFixedField      = errors.New("catalog field cannot be edited")
	ErrEmptyOptions    = errors.New("catalog field has no options")
	ErrInvalidOption   = errors.New("invalid option value")
	ErrDuplicateOption = errors.New("duplicate option value")
	ErrOptionNotFound  = errors.New("option not found")
)
