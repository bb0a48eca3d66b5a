// Package ddcerr defines the error kinds the DDC/CI core distinguishes
// (spec.md §7) and the ordered per-attempt cause chain used by the retry
// controller to report why every attempt in a retry loop failed.
package ddcerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is one of the error kinds the core distinguishes.
type Kind int

const (
	// MalformedData is any structural or checksum failure in a received packet.
	MalformedData Kind = iota
	// NullResponse is the canonical 4-byte sentinel, which may mean "unsupported".
	NullResponse
	// AllZero means a read succeeded but every byte in the fill region was zero.
	AllZero
	// Unsupported means a valid response reported result_code == 0x01.
	Unsupported
	// Locked means the display's bus is held by another thread and wait was not requested.
	Locked
	// AlreadyOpen means the calling thread already holds this display open.
	AlreadyOpen
	// Edid means the opened bus has no EDID; the core refuses such a handle.
	Edid
	// Io wraps a pass-through OS error from the transport.
	Io
	// RetriesExhausted means max_tries attempts were made without success and
	// without a more specific terminal classification applying.
	RetriesExhausted
	// AllResponsesNull means the retry loop ended on a NullResponse attempt
	// while Null Response was being retried (null_max > 0).
	AllResponsesNull
	// AllTriesZero means the retry loop ended on an AllZero attempt, either
	// because every attempt up to max_tries was all-zero or because
	// all_zero_ok stopped the loop at the first all-zero read.
	AllTriesZero
	// InvalidOperation means the caller used a closed or otherwise invalid handle.
	InvalidOperation
)

func (k Kind) String() string {
	switch k {
	case MalformedData:
		return "malformed-data"
	case NullResponse:
		return "null-response"
	case AllZero:
		return "all-zero"
	case Unsupported:
		return "unsupported"
	case Locked:
		return "locked"
	case AlreadyOpen:
		return "already-open"
	case Edid:
		return "edid"
	case Io:
		return "io"
	case RetriesExhausted:
		return "retries-exhausted"
	case AllResponsesNull:
		return "all-responses-null"
	case AllTriesZero:
		return "all-tries-zero"
	case InvalidOperation:
		return "invalid-operation"
	default:
		return "unknown"
	}
}

// Error carries a status Kind, a source string identifying the component
// that raised it, an optional wrapped cause, and an optional ordered
// sequence of per-attempt causes (populated by the retry controller when a
// retry loop exhausts without success).
type Error struct {
	Kind    Kind
	Source  string
	Err     error
	Attempts []error
}

func New(kind Kind, source string) *Error {
	return &Error{Kind: kind, Source: source}
}

func Wrap(kind Kind, source string, err error) *Error {
	return &Error{Kind: kind, Source: source, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Source, e.Kind)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if len(e.Attempts) > 0 {
		fmt.Fprintf(&b, " (%d attempts)", len(e.Attempts))
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error with the same Kind, so that callers
// can write errors.Is(err, ddcerr.New(ddcerr.NullResponse, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// WithAttempts returns a copy of e carrying the ordered per-attempt causes.
// Attempts are recorded in attempt order; index 0 is the first attempt.
func (e *Error) WithAttempts(attempts []error) *Error {
	cp := *e
	cp.Attempts = attempts
	return &cp
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
