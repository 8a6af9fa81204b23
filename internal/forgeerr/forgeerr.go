// Package forgeerr implements the error taxonomy of manifest,
// resolution, source, fingerprint/IO, compile, and internal-invariant
// errors, each recoverable by kind via xerrors.As the way a numeric
// error code lets callers recover the cause of a failure. A corrupt or
// missing stamp is recovered locally by the fingerprint package (it
// reads as dirty) and never reaches here; source errors are not retried
// and are surfaced as KindSource. This package is for the errors that
// must be surfaced to the caller.
package forgeerr

import (
	"fmt"

	goerrors "github.com/go-errors/errors"
	"golang.org/x/xerrors"
)

// Kind classifies a surfaced error.
type Kind int

const (
	KindManifest Kind = iota
	KindResolution
	KindSource
	KindFingerprint
	KindCompile
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindManifest:
		return "manifest"
	case KindResolution:
		return "resolution"
	case KindSource:
		return "source"
	case KindFingerprint:
		return "fingerprint"
	case KindCompile:
		return "compile"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// TaggedError carries a Kind and a causal chain so calling code can
// recover the taxonomy with xerrors.As.
type TaggedError struct {
	Kind    Kind
	Message string
	Cause   error
	frame   xerrors.Frame
}

// New builds a TaggedError with no underlying cause, capturing the
// caller's frame for FormatError's stack-style rendering.
func New(kind Kind, message string) error {
	return TaggedError{Kind: kind, Message: message, frame: xerrors.Caller(1)}
}

// Wrap tags err with kind, preserving it as the causal chain. A nil err
// returns nil so callers can wrap the result of any fallible call
// unconditionally.
func Wrap(kind Kind, message string, err error) error {
	if err == nil {
		return nil
	}
	return TaggedError{Kind: kind, Message: message, Cause: err, frame: xerrors.Caller(1)}
}

func (e TaggedError) Unwrap() error { return e.Cause }

func (e TaggedError) FormatError(p xerrors.Printer) error {
	p.Printf("%s: %s", e.Kind, e.Message)
	e.frame.Format(p)
	return e.Cause
}

func (e TaggedError) Format(f fmt.State, c rune) {
	xerrors.FormatError(e, f, c)
}

func (e TaggedError) Error() string {
	return fmt.Sprint(e)
}

// Is reports whether err (or anything in its causal chain) is a
// TaggedError of the given kind.
func Is(err error, kind Kind) bool {
	var tagged TaggedError
	for xerrors.As(err, &tagged) {
		if tagged.Kind == kind {
			return true
		}
		err = tagged.Cause
	}
	return false
}

// WrapStack wraps err for the sake of a stack trace at the top level.
// go-errors does not return nil for a nil-error wrap, so callers rely
// on this short-circuit instead.
func WrapStack(err error) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, 0)
}

// Render formats the final error as a header line plus an indented
// causal chain.
func Render(err error) string {
	if err == nil {
		return ""
	}
	out := err.Error()
	var tagged TaggedError
	if xerrors.As(err, &tagged) && tagged.Cause != nil {
		out = fmt.Sprintf("%s: %s\n  caused by: %s", tagged.Kind, tagged.Message, Render(tagged.Cause))
	}
	return out
}
