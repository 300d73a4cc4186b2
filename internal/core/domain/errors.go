package domain

import (
	"errors"
	"fmt"
)

var (
	ErrImageNotFound    = errors.New("image not found")
	ErrAnalysisNotFound = errors.New("analysis not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTemporary        = errors.New("temporary failure")

	// Engine failure kinds.
	ErrNoImageLoaded         = errors.New("no image loaded")
	ErrInvalidDimensionality = errors.New("invalid dimensionality")
	ErrIndexOutOfRange       = errors.New("index out of range")
	ErrUnsupportedMethod     = errors.New("unsupported method")
	ErrAnalysisFailure       = errors.New("analysis failure")
	ErrLoadFailure           = errors.New("load failure")
)

// kinds lists every error kind. Public kinds describe a problem with the
// caller's input, so their messages may be shown to callers.
var kinds = []struct {
	err    error
	name   string
	public bool
}{
	{ErrImageNotFound, "image_not_found", true},
	{ErrAnalysisNotFound, "analysis_not_found", true},
	{ErrNoImageLoaded, "no_image_loaded", true},
	{ErrInvalidDimensionality, "invalid_dimensionality", true},
	{ErrIndexOutOfRange, "index_out_of_range", true},
	{ErrUnsupportedMethod, "unsupported_method", true},
	{ErrInvalidInput, "invalid_input", true},
	{ErrLoadFailure, "load_failure", true},
	{ErrAnalysisFailure, "analysis_failure", false},
	{ErrTemporary, "temporary", false},
}

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

// NewError builds a typed error without an underlying cause.
func NewError(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// KindOf names the first known kind carried by err, or "internal".
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}

// PublicMessage returns err's message when its kind is public. Other failures
// are reduced to the kind's own text, or "internal error" when untyped.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			if k.public {
				return err.Error()
			}
			return k.err.Error()
		}
	}
	return "internal error"
}
