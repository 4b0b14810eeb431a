package ledger

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotConfigured matches any *ConfigError.
	ErrNotConfigured = errors.New("ledger not configured")

	// ErrConflict matches a *WriteError rejected for a stale version token.
	ErrConflict = errors.New("ledger version conflict")
)

// ConfigError reports a missing credential or repository coordinate.
// It is fatal for every ledger operation and is never retried.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("ledger not configured: missing %s", e.Field)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrNotConfigured
}

// FetchError reports a failed ledger read: an unexpected status, a transport
// failure, or a timeout. Status is 0 when no response was received.
type FetchError struct {
	Path   string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("ledger fetch %s: status %d: %v", e.Path, e.Status, e.Err)
	}
	return fmt.Sprintf("ledger fetch %s: %v", e.Path, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// WriteError reports a rejected ledger write. Status is 0 when no response
// was received.
type WriteError struct {
	Path   string
	Status int
	Err    error
}

func (e *WriteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("ledger write %s: status %d: %v", e.Path, e.Status, e.Err)
	}
	return fmt.Sprintf("ledger write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Conflict reports whether the host rejected the write because the version
// token was stale (409) or missing for an existing file (422).
func (e *WriteError) Conflict() bool {
	return e.Status == http.StatusConflict || e.Status == http.StatusUnprocessableEntity
}

func (e *WriteError) Is(target error) bool {
	return target == ErrConflict && e.Conflict()
}

// ParseError reports a malformed ledger line. Scans skip such lines.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ledger line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
