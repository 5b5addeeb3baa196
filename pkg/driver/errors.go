package driver

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies driver failures.
type Kind int

const (
	KindUnknown Kind = iota

	// KindContextDestroyed means the page's document was replaced or its
	// target went away, usually because of a navigation. It is a probable
	// success signal for the action that triggered it.
	KindContextDestroyed

	// KindConnectionLost means the browser connection itself is gone.
	KindConnectionLost

	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindContextDestroyed:
		return "context_destroyed"
	case KindConnectionLost:
		return "connection_lost"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ParseKind maps a classification table key to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "context_destroyed":
		return KindContextDestroyed, nil
	case "connection_lost":
		return KindConnectionLost, nil
	case "timeout":
		return KindTimeout, nil
	case "unknown":
		return KindUnknown, nil
	}
	return KindUnknown, fmt.Errorf("unknown error kind %q", s)
}

// Error is a classified driver failure.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap classifies err with c and wraps it with the failing operation's name.
// Errors that already carry a non-unknown kind keep it.
func Wrap(op string, err error, c *Classifier) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) && de.Kind != KindUnknown {
		return &Error{Op: op, Kind: de.Kind, Err: err}
	}
	return &Error{Op: op, Kind: c.Classify(err), Err: err}
}

// WrapKind wraps err with an explicit kind.
func WrapKind(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf returns the kind carried by err. Errors not produced by a driver
// adapter are classified with the default table.
func KindOf(err error) Kind {
	return KindOfWith(err, DefaultClassifier())
}

// KindOfWith is KindOf with an explicit classifier for unwrapped errors.
func KindOfWith(err error, c *Classifier) Kind {
	if err == nil {
		return KindUnknown
	}
	var de *Error
	if errors.As(err, &de) && de.Kind != KindUnknown {
		return de.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return c.Classify(err)
}

// IsContextDestroyed reports whether err means the page context was invalidated.
func IsContextDestroyed(err error) bool {
	return KindOf(err) == KindContextDestroyed
}
