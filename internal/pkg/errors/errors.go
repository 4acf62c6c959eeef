package errors

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is a generic sentinel for auth failures.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrPolicy is returned when a request is well-formed but not allowed.
	ErrPolicy = errors.New("policy violation")
	// ErrUnavailable marks a transient backend failure.
	ErrUnavailable = errors.New("unavailable")
	// ErrTerminal is returned when a write targets an operation that already finished.
	ErrTerminal = errors.New("operation already terminal")
)

// ValidationError is a malformed request. It is never retried.
type ValidationError struct {
	Kind string
	Msg  string
}

func (e *ValidationError) Error() string { return e.Msg }
func (e *ValidationError) Unwrap() error { return ErrInvalidArgument }

func Validation(kind, format string, args ...any) error {
	return &ValidationError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// PolicyError is a well-formed request the node refuses to serve. It is never retried.
type PolicyError struct {
	Kind string
	Msg  string
}

func (e *PolicyError) Error() string { return e.Msg }
func (e *PolicyError) Unwrap() error { return ErrPolicy }

func Policy(kind, format string, args ...any) error {
	return &PolicyError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindError attaches an operation error kind to an arbitrary error.
type KindError struct {
	Kind string
	Err  error
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return e.Kind
	}
	return e.Err.Error()
}

func (e *KindError) Unwrap() error { return e.Err }

func WithKind(kind string, err error) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: kind, Err: err}
}

// KindOf returns the outermost attached kind, or def.
func KindOf(err error, def string) string {
	var ke *KindError
	if errors.As(err, &ke) && ke.Kind != "" {
		return ke.Kind
	}
	var ve *ValidationError
	if errors.As(err, &ve) && ve.Kind != "" {
		return ve.Kind
	}
	var pe *PolicyError
	if errors.As(err, &pe) && pe.Kind != "" {
		return pe.Kind
	}
	return def
}

// IsRetryable reports whether a failed attempt may succeed if repeated.
// Validation, policy and not-found failures are permanent; everything else is treated as I/O.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrPolicy),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrTerminal),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

func Is(err, target error) bool     { return errors.Is(err, target) }
func As(err error, target any) bool { return errors.As(err, target) }
func New(text string) error         { return errors.New(text) }
func Join(errs ...error) error      { return errors.Join(errs...) }
