package auth

import "errors"

var (
	// ErrUnauthorized indicates a missing or invalid token.
	ErrUnauthorized = errors.New("auth: unauthorized")
	// ErrForbidden indicates the role is insufficient.
	ErrForbidden = errors.New("auth: forbidden")
	// ErrInvalidToken indicates a token that failed validation.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrClientMismatch indicates the token is scoped to a different client.
	ErrClientMismatch = errors.New("auth: client mismatch")
	// ErrNotFound indicates the client has no registered meters.
	ErrNotFound = errors.New("auth: client not found")
)
