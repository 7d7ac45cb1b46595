// Package rerr defines the error taxonomy shared across the research
// pipeline so callers can branch on failure kind (retry vs. not) instead of
// string-matching error messages.
package rerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the categories the orchestrator and
// its collaborators need to distinguish.
type Kind int

const (
	// InvalidInput means the caller-supplied query or parameter failed
	// validation.
	InvalidInput Kind = iota
	// TransientNetwork means a timeout or connection failure that is safe
	// to retry with backoff.
	TransientNetwork
	// ProtocolError means a non-2xx status or malformed response from a
	// remote peer; logged, not fatal.
	ProtocolError
	// ContentRejected means robots disallowed the fetch, or the MIME type
	// or size guard rejected the body.
	ContentRejected
	// LLMFailure means the language model call failed after retries;
	// callers fall back to deterministic synthesis.
	LLMFailure
	// CacheCorruption means a single cache entry was unreadable and was
	// removed; the operation proceeds as a cache miss.
	CacheCorruption
	// Cancelled means the caller's context was cancelled or its deadline
	// elapsed.
	Cancelled
	// FatalInternal means an unexpected, unrecoverable condition; the run
	// terminates failed.
	FatalInternal
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "invalid_input"
	case TransientNetwork:
		return "transient_network"
	case ProtocolError:
		return "protocol_error"
	case ContentRejected:
		return "content_rejected"
	case LLMFailure:
		return "llm_failure"
	case CacheCorruption:
		return "cache_corruption"
	case Cancelled:
		return "cancelled"
	case FatalInternal:
		return "fatal_internal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a Kind so callers can use errors.As
// to recover the classification and errors.Is/Unwrap to reach the cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind. If err is nil, New returns nil.
func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// Newf builds a new Error from a format string, analogous to fmt.Errorf.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
