package httpadapter

import (
	"errors"
	"net/http"

	"github.com/kirillkom/hdimage/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case domain.IsKind(err, domain.ErrImageNotFound),
		domain.IsKind(err, domain.ErrAnalysisNotFound),
		domain.IsKind(err, domain.ErrNoImageLoaded):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrInvalidInput),
		domain.IsKind(err, domain.ErrIndexOutOfRange),
		domain.IsKind(err, domain.ErrUnsupportedMethod):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrInvalidDimensionality),
		domain.IsKind(err, domain.ErrLoadFailure):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage hides server-side causes from callers.
func clientMessage(status int, err error) string {
	switch {
	case status == http.StatusServiceUnavailable:
		return "service temporarily unavailable"
	case status >= http.StatusInternalServerError:
		return "internal error"
	case status == http.StatusRequestEntityTooLarge:
		return "upload exceeds the size limit"
	default:
		return err.Error()
	}
}
