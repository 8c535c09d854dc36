package identity

import "errors"

// Token errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingEmail = errors.New("token has no email claim")
	ErrEmptySecret  = errors.New("jwt secret is empty")
	ErrInvalidActor = errors.New("actor must be an email address")
)
