package stylshot

import (
	"errors"
	"fmt"
)

// Kind classifies a capture failure.
type Kind int

const (
	KindNavigation Kind = iota + 1 // URL failed to load
	KindArgument                   // missing or malformed request fields
	KindStylesheet                 // CSS file missing or unreadable
	KindInjection                  // stylesheet could not be added to the page
	KindRender                     // screenshot or output write failed
	KindEngine                     // browser could not be launched or reached
)

func (k Kind) String() string {
	switch k {
	case KindNavigation:
		return "navigation"
	case KindArgument:
		return "argument"
	case KindStylesheet:
		return "stylesheet"
	case KindInjection:
		return "injection"
	case KindRender:
		return "render"
	case KindEngine:
		return "engine"
	}
	return "unknown"
}

// ExitCode returns the process exit status used for the kind.
func (k Kind) ExitCode() int {
	if k < KindNavigation || k > KindEngine {
		return 1
	}
	return int(k)
}

// Error is returned by Screener.Capture for every failure.
type Error struct {
	Kind Kind
	Op   string // what was being done, e.g. "navigate https://example.com/"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the Kind carried by err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// ExitCode maps err to a process exit status. Nil maps to 0 and errors
// without a Kind map to 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if k := KindOf(err); k != 0 {
		return k.ExitCode()
	}
	return 1
}

func newError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}
