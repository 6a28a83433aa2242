package auth

import "errors"

var (
	// ErrInvalidToken wraps every rejected bearer token.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrUnknownRole is returned for a role other than viewer, operator or admin.
	ErrUnknownRole = errors.New("auth: unknown role")
)
