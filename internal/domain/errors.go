package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrProviderFailure     = errors.New("provider failure")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrCapacityExceeded    = errors.New("storage capacity exceeded")
)
