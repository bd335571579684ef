package crawler

import (
	"errors"
	"fmt"
)

// ErrWaitTimeout is returned by Session.WaitVisible when the selector never
// appeared within the allotted time.
var ErrWaitTimeout = errors.New("wait for selector timed out")

// FetchKind classifies fetch failures.
type FetchKind string

// Fetch failure kinds.
const (
	// FetchNetwork covers DNS failures, connection resets and timeouts.
	FetchNetwork FetchKind = "network"
	// FetchHTTPStatus covers 4xx/5xx responses.
	FetchHTTPStatus FetchKind = "http_status"
)

// FetchError is a typed failure from a Fetcher or Browser.
type FetchError struct {
	URL        string
	Kind       FetchKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchHTTPStatus {
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Transient reports whether retrying the fetch could plausibly succeed:
// network failures and 5xx-class statuses.
func (e *FetchError) Transient() bool {
	if e.Kind == FetchNetwork {
		return true
	}
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// ExtractKind classifies extraction failures.
type ExtractKind string

// Extraction failure kinds.
const (
	MissingRequiredField ExtractKind = "missing_required_field"
	RevealTimeout        ExtractKind = "reveal_timeout"
)

// ExtractError is a typed failure from the listing extractor.
type ExtractError struct {
	URL   string
	Kind  ExtractKind
	Field string
	Err   error
}

func (e *ExtractError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("extract %s: %s (%s)", e.URL, e.Kind, e.Field)
	}
	return fmt.Sprintf("extract %s: %s", e.URL, e.Kind)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// PersistenceKind classifies persistence failures.
type PersistenceKind string

// Persistence failure kinds.
const (
	ConstraintViolation PersistenceKind = "constraint_violation"
	ConnectionLost      PersistenceKind = "connection_lost"
)

// PersistenceError is a typed failure from the persistence gateway.
// ConnectionLost is fatal for the running job.
type PersistenceError struct {
	Kind PersistenceKind
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Kind, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ExportError is a per-format export failure. It never rolls back a format
// that already succeeded.
type ExportError struct {
	Format string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s: %v", e.Format, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}
