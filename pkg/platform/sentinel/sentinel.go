package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and broker adapters return
// these (optionally wrapped) so the reconciliation layer can classify outcomes
// with errors.Is instead of string matching.
//
// - ErrNotFound: entity does not exist in the store
// - ErrConflict: unique or foreign-key constraint violated; retrying cannot help
// - ErrInvalidState: entity or session in the wrong state for the operation
// - ErrUnavailable: storage or broker temporarily unreachable; safe to retry
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
