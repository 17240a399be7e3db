package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into domain errors:
//   - ErrNotFound: entity does not exist in the store
//   - ErrConflict: a uniqueness constraint was violated
//   - ErrExpired: token has expired
//   - ErrUnavailable: backing service temporarily unavailable
//   - ErrInvalidState: the call cannot proceed with the given arguments
//
// For validation errors use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrUnavailable  = errors.New("unavailable")
	ErrInvalidState = errors.New("invalid state")
)
