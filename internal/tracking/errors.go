package tracking

import "errors"

// Error kinds surfaced by the hub. Concrete errors wrap one of these and
// callers classify them with errors.Is.
var (
	ErrValidation   = errors.New("validation error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrDelivery     = errors.New("delivery failure")
)
