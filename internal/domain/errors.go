package domain

import "errors"

// Sentinel errors shared by the services and mapped to HTTP status codes by
// the api package. Wrap with fmt.Errorf("%w: ...", ErrX) and test with
// errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrStateConflict     = errors.New("state conflict")
	ErrNotFound          = errors.New("not found")
	ErrOracleUnavailable = errors.New("fraud oracle unavailable")
)
