package variant

import (
	"errors"
	"fmt"
)

// ErrTruncatedSequence is the sentinel a ReferenceReader wraps when a
// region fetch fails specifically because the requested interval runs
// past the end of the contig's stored sequence (a truncated reference
// record), as opposed to an unknown contig or a corrupt fetch. Only this
// precondition is eligible for skip-and-warn under SkipTruncSeqs; every
// other ReferenceError is fatal regardless of that option.
var ErrTruncatedSequence = errors.New("reference sequence truncated before requested end")

// IsTruncatedSequence reports whether err is (or wraps) ErrTruncatedSequence.
func IsTruncatedSequence(err error) bool {
	return errors.Is(err, ErrTruncatedSequence)
}

// Kind classifies the fatal-vs-recoverable errors the core pipeline can
// produce. See the Design Notes in SPEC_FULL.md: the source mixed
// exceptions and status returns, and is re-architected here as a single
// closed error enum instead of control flow that can cross goroutine
// boundaries.
type Kind int

const (
	// Other is a catch-all for errors that don't fit a more specific Kind.
	Other Kind = iota
	// InvalidInput covers malformed region strings, malformed BED lines,
	// and unknown contigs. Always fatal before work starts.
	InvalidInput
	// ReferenceError covers a failed reference-sequence fetch.
	ReferenceError
	// IOError covers VCF header/record write or flush failures.
	IOError
	// AssemblyError is recorded on a window result; it never escapes a
	// worker goroutine as a propagated error.
	AssemblyError
	// InternalInvariant marks a programmer error, e.g. a duplicate insert
	// for the same window index. Unreachable in a correct pipeline.
	InternalInvariant
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "InvalidInput"
	case ReferenceError:
		return "ReferenceError"
	case IOError:
		return "IOError"
	case AssemblyError:
		return "AssemblyError"
	case InternalInvariant:
		return "InternalInvariant"
	default:
		return "Other"
	}
}

// Error is a typed error carrying a Kind alongside the wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Msg == "" {
			return fmt.Sprintf("%s: %v", e.Kind, e.Err)
		}
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap allows errors.Is/errors.As to see through Error to its cause.
func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind wrapping an existing error.
func Wrap(kind Kind, err error, msg string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf reports the Kind of err if it is (or wraps) an *Error, else Other.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return Other
}
