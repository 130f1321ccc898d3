package auth

import "errors"

// Sentinels double as the plain-text bodies of 401 and 403 responses.
var (
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrForbidden    = errors.New("auth: forbidden")
	ErrInvalidToken = errors.New("auth: invalid token")
)
