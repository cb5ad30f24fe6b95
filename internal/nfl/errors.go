package nfl

import (
	"errors"
	"fmt"
)

// Sentinel causes wrapped by the typed errors below
var (
	ErrMissingCredentials = errors.New("credentials missing")
	ErrEmptyDataset       = errors.New("dataset is empty")
)

// RetrievalError signals that a public dataset fetch failed. Callers fall
// back to an upload or surface the message; the process never dies on it.
type RetrievalError struct {
	Source string // "schedule" or "play_by_play"
	URL    string
	Err    error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("failed to retrieve %s dataset from %s: %v", e.Source, e.URL, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// FormatError signals an unparseable upload or one missing required columns.
// It blocks that upload only, never the surrounding pipeline.
type FormatError struct {
	Filename string
	Column   string // set when a required column is missing
	Err      error
}

func (e *FormatError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("upload %s is missing required column %q", e.Filename, e.Column)
	}
	return fmt.Sprintf("upload %s could not be parsed: %v", e.Filename, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Reasons attached to ProviderError for status reporting
const (
	ProviderReasonAuth          = "auth_failed"
	ProviderReasonRateLimit     = "rate_limited"
	ProviderReasonBadResponse   = "malformed_response"
	ProviderReasonNoCredentials = "missing_credentials"
	ProviderReasonUnavailable   = "unavailable"
)

// ProviderError signals a failed or misconfigured adapter call. Policy is
// graceful degradation: the enrichment layer records the provider as skipped
// and builds the table without its columns.
type ProviderError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Reason, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError wraps a cause with the provider and reason tags
func NewProviderError(provider, reason string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Reason: reason, Err: err}
}

// IsRetrieval reports whether err is (or wraps) a RetrievalError
func IsRetrieval(err error) bool {
	var e *RetrievalError
	return errors.As(err, &e)
}

// IsFormat reports whether err is (or wraps) a FormatError
func IsFormat(err error) bool {
	var e *FormatError
	return errors.As(err, &e)
}

// IsProvider reports whether err is (or wraps) a ProviderError
func IsProvider(err error) bool {
	var e *ProviderError
	return errors.As(err, &e)
}
