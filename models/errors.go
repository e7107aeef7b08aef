package models

import "fmt"

// UpstreamError reports a non-success response from an external collaborator
// (the Sefaria text service or the translation provider). Callers must not
// retry automatically; retry policy belongs to them.
type UpstreamError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s upstream error (status %d): %s", e.Service, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s upstream error (status %d)", e.Service, e.StatusCode)
}

// PersistenceError wraps a storage write failure. The dispatcher logs and
// swallows it; the translation is still returned to the caller.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
