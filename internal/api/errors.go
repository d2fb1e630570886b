package api

import "errors"

// Sentinel domain errors. Services return these (wrapped with context) and
// handlers map them to HTTP status codes in one place.
var (
	ErrBadRequest      = errors.New("invalid input")
	ErrUnauthenticated = errors.New("authentication required or invalid credentials")
	ErrForbidden       = errors.New("action forbidden")
	ErrNotFound        = errors.New("requested item not found")
	ErrConflict        = errors.New("item already exists or conflict")
)
