package ngdp

import (
	"errors"
	"fmt"
)

// Kind classifies an Error into one of the taxonomy's buckets. Callers
// branch on Kind (via errors.Is against the sentinel of that Kind, or by
// type-asserting *Error and inspecting Kind directly) rather than on
// string matching.
type Kind int

const (
	// Unknown is the zero Kind; Errors should never be constructed with it.
	Unknown Kind = iota
	// NetworkError covers transport failures: dial, timeout, non-2xx status.
	NetworkError
	// IntegrityError covers content that failed an MD5 or size check.
	IntegrityError
	// EncryptedChunk covers a BLTE chunk using the encrypted ('E') mode,
	// which this client does not implement.
	EncryptedChunk
	// NotFound covers catalog rows, objects, or archive entries absent
	// where a caller expected them.
	NotFound
	// Malformed covers structurally invalid input: bad headers, truncated
	// tables, unparsable rows.
	Malformed
	// Conflict covers two sources disagreeing about the same key, e.g. an
	// install row clobbered by an earlier one with different content.
	Conflict
)

// String names the Kind for log output and error messages.
func (k Kind) String() string {
	switch k {
	case NetworkError:
		return "network"
	case IntegrityError:
		return "integrity"
	case EncryptedChunk:
		return "encrypted-chunk"
	case NotFound:
		return "not-found"
	case Malformed:
		return "malformed"
	case Conflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by every package in the
// module. Op names the failing operation (e.g. "objectstore.Open"); Err,
// when present, is the wrapped cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ngdp.ErrNotFound) (and the other sentinels below)
// match any *Error of the corresponding Kind, regardless of Op or wrapped
// cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels, one per Kind, for use with errors.Is. They carry no Op or Err
// of their own; construct a real *Error with New for anything returned
// from production code.
var (
	ErrNetwork        = &Error{Kind: NetworkError}
	ErrIntegrity      = &Error{Kind: IntegrityError}
	ErrEncryptedChunk = &Error{Kind: EncryptedChunk}
	ErrNotFound       = &Error{Kind: NotFound}
	ErrMalformed      = &Error{Kind: Malformed}
	ErrConflict       = &Error{Kind: Conflict}
)

// New constructs an *Error, wrapping err if non-nil.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf is New with a formatted message in place of a wrapped error.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// IsKind reports whether err is (or wraps) an *Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
