package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Repositories return these
// (optionally wrapped) so the unit of work can translate them into domain errors.
//
// These represent factual states about stored documents, not validation failures:
// - ErrNotFound: no document matched the id or predicate
// - ErrAmbiguous: a single-result lookup matched more than one document
// - ErrConflict: a document with the same id already exists
// - ErrUnavailable: the backing store is temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrAmbiguous   = errors.New("ambiguous match")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
