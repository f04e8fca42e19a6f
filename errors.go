package agentmem

import "github.com/kylebrodeur/agentmem/internal/errs"

// Sentinel error values, re-exported from internal/errs so callers can
// errors.Is(err, agentmem.ErrValidation) without importing an internal
// package.
var (
	// ErrValidation: empty required text, turn<1, confidence outside
	// [0,1], empty learned_from, or similar caller-supplied invalid
	// input.
	ErrValidation = errs.ErrValidation
	// ErrDuplicateID: an add operation targeted an id already present.
	ErrDuplicateID = errs.ErrDuplicateID
	// ErrModelLoad: the embedding model could not be initialized.
	ErrModelLoad = errs.ErrModelLoad
	// ErrDimensionMismatch: a persisted index's vector width doesn't
	// match the configured embedding dimension.
	ErrDimensionMismatch = errs.ErrDimensionMismatch
	// ErrIO: a filesystem read or write failed.
	ErrIO = errs.ErrIO
)