package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindUnknownProvider    ErrorKind = "unknown_provider"
	KindAuth               ErrorKind = "auth_error"
	KindServiceUnavailable ErrorKind = "service_unavailable"
	KindInvalidAudio       ErrorKind = "invalid_audio"
	KindUnsupportedFormat  ErrorKind = "unsupported_format"
)

// Kind sentinels, matched with errors.Is against a *DispatchError.
var (
	ErrUnknownProvider    = &kindError{KindUnknownProvider}
	ErrAuth               = &kindError{KindAuth}
	ErrServiceUnavailable = &kindError{KindServiceUnavailable}
	ErrInvalidAudio       = &kindError{KindInvalidAudio}
	ErrUnsupportedFormat  = &kindError{KindUnsupportedFormat}
)

// ErrNoInput means transcription produced no text. It ends the turn
// without touching the history and is not reported as a failure.
var ErrNoInput = errors.New("no input detected")

type kindError struct {
	kind ErrorKind
}

func (e *kindError) Error() string { return string(e.kind) }

// DispatchError is returned by every dispatcher call that fails.
type DispatchError struct {
	Kind       ErrorKind
	Capability Capability
	Provider   string
	Err        error
}

func (e *DispatchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s [%s]: %s", e.Capability, e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s [%s]: %s: %v", e.Capability, e.Provider, e.Kind, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

func (e *DispatchError) Is(target error) bool {
	k, ok := target.(*kindError)
	return ok && k.kind == e.Kind
}

// NewError builds a DispatchError. Capability and provider may be left
// empty by vendor adapters; the dispatcher fills them in.
func NewError(kind ErrorKind, err error) *DispatchError {
	return &DispatchError{Kind: kind, Err: err}
}

// KindOf reports the kind of a dispatch failure. Errors that carry no kind
// are treated as the service being unavailable.
func KindOf(err error) ErrorKind {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindServiceUnavailable
}

// Describe renders a failure for display.
func Describe(err error) string {
	if errors.Is(err, ErrNoInput) {
		return "No speech detected. Please try again."
	}
	var de *DispatchError
	if !errors.As(err, &de) {
		return fmt.Sprintf("An error occurred: %v", err)
	}
	switch de.Kind {
	case KindUnknownProvider:
		return fmt.Sprintf("The %s provider %q is not supported.", de.Capability, de.Provider)
	case KindAuth:
		return fmt.Sprintf("The %s API key was rejected. Check it under API Keys.", de.Provider)
	case KindInvalidAudio:
		return "The recorded audio could not be processed. Please try again."
	case KindUnsupportedFormat:
		return fmt.Sprintf("%s produced audio in a format that cannot be played.", de.Provider)
	default:
		return fmt.Sprintf("%s is not reachable right now: %v", de.Provider, de.Err)
	}
}
