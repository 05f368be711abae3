// Package pagination parses pageSize/pageToken query parameters and pages in-memory lists.
package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize defines the fallback number of items returned when the client omits pageSize.
	DefaultPageSize = 50
	// DefaultMaxPageSize caps the supported pageSize to prevent unbounded responses.
	DefaultMaxPageSize = 100
)

// Params bundles the paging values extracted from a request. A zero PageSize means every
// remaining item.
type Params struct {
	PageSize  int
	PageToken string
	Offset    int
}

// Options control how Parse behaves for a given handler.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
	// AllowUnbounded returns every item when the client omits both pageSize and pageToken.
	AllowUnbounded bool
}

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid pageSize")
	ErrInvalidPageToken = errors.New("pagination: invalid pageToken")
)

// FromRequest parses the supported query parameters from the supplied request.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	return Parse(r.URL.Query(), opts)
}

// Parse consumes the provided query values and returns the normalised Params.
func Parse(values url.Values, opts Options) (Params, error) {
	if values == nil {
		values = url.Values{}
	}

	rawSize := strings.TrimSpace(values.Get("pageSize"))
	rawToken := strings.TrimSpace(values.Get("pageToken"))
	if opts.AllowUnbounded && rawSize == "" && rawToken == "" {
		return Params{}, nil
	}

	pageSize, err := parsePageSize(rawSize, opts)
	if err != nil {
		return Params{}, err
	}
	params := Params{PageSize: pageSize}

	if rawToken != "" {
		offset, err := DecodeToken(rawToken)
		if err != nil {
			return Params{}, err
		}
		params.PageToken = rawToken
		params.Offset = offset
	}
	return params, nil
}

// Slice returns the page of items selected by params and the token for the following page, which
// is empty on the last page.
func Slice[T any](items []T, params Params) ([]T, string) {
	start := params.Offset
	if start < 0 {
		start = 0
	}
	if start >= len(items) {
		return []T{}, ""
	}
	end := len(items)
	if params.PageSize > 0 && start+params.PageSize < end {
		end = start + params.PageSize
	}
	page := append([]T(nil), items[start:end]...)
	if end == len(items) {
		return page, ""
	}
	return page, EncodeToken(end)
}

func parsePageSize(raw string, opts Options) (int, error) {
	maxPageSize := opts.MaxPageSize
	if maxPageSize <= 0 {
		maxPageSize = DefaultMaxPageSize
	}

	defaultPageSize := opts.DefaultPageSize
	if defaultPageSize <= 0 {
		defaultPageSize = DefaultPageSize
	}
	if defaultPageSize > maxPageSize {
		defaultPageSize = maxPageSize
	}

	if raw == "" {
		return defaultPageSize, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: must be an integer", ErrInvalidPageSize)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidPageSize)
	}
	if value > maxPageSize {
		value = maxPageSize
	}
	return value, nil
}
