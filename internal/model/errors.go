package model

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// Error kinds surfaced by the fetch-and-join pipeline. Match with errors.Is.
var (
	ErrInvalidIdentifier   = eris.New("invalid identifier")
	ErrUpstreamUnavailable = eris.New("statistics service unavailable")
	ErrGeometryUnavailable = eris.New("boundary service unavailable")
	ErrUnsupportedLevel    = eris.New("unsupported geography level")
	ErrPreconditionNotMet  = eris.New("precondition not met")
)

var kinds = []error{
	ErrInvalidIdentifier,
	ErrUpstreamUnavailable,
	ErrGeometryUnavailable,
	ErrUnsupportedLevel,
	ErrPreconditionNotMet,
}

// KindError tags a failure with one of the error kinds while keeping the
// underlying cause reachable through errors.Is and errors.As.
type KindError struct {
	Kind  error
	Msg   string
	Cause error
}

func (e *KindError) Error() string {
	msg := e.Kind.Error()
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause.
func (e *KindError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// NewError builds a KindError with a formatted message and no cause.
func NewError(kind error, format string, args ...any) error {
	return &KindError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapError tags cause with kind. A nil cause yields nil.
func WrapError(kind, cause error, format string, args ...any) error {
	if cause == nil {
		return nil
	}
	return &KindError{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the error kind carried by err, or nil.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// UserMessage renders err as the single line shown in the error banner.
func UserMessage(err error) string {
	var ke *KindError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUpstreamUnavailable):
		return "Housing statistics could not be loaded. Please try again."
	case errors.Is(err, ErrGeometryUnavailable):
		return "Map boundaries could not be loaded for this selection. Please try again."
	case errors.As(err, &ke) && ke.Msg != "":
		return ke.Msg
	default:
		return err.Error()
	}
}
