package httpadapter

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/hdimage/internal/core/domain"
)

// queryIndex reads a non-negative integer query parameter.
func queryIndex(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewError(domain.ErrInvalidInput, "%s must be an integer, got %q", name, raw)
	}
	if n < 0 {
		return 0, domain.NewError(domain.ErrInvalidInput, "%s must be non-negative, got %d", name, n)
	}
	return n, nil
}

func sliceIndexFromQuery(r *http.Request) (domain.SliceIndex, error) {
	var (
		idx domain.SliceIndex
		err error
	)
	if idx.Time, err = queryIndex(r, "time", 0); err != nil {
		return idx, err
	}
	if idx.Z, err = queryIndex(r, "z", 0); err != nil {
		return idx, err
	}
	if idx.Channel, err = queryIndex(r, "channel", 0); err != nil {
		return idx, err
	}
	return idx, nil
}

// queryFormat returns the lower-cased format parameter, or the first allowed
// value when it is absent.
func queryFormat(r *http.Request, allowed ...string) (string, error) {
	raw := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if raw == "" {
		return allowed[0], nil
	}
	for _, a := range allowed {
		if raw == a {
			return raw, nil
		}
	}
	return "", domain.NewError(domain.ErrInvalidInput, "format must be one of %s, got %q", strings.Join(allowed, ", "), raw)
}
