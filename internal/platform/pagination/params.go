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
	// DefaultPageSize is used when the client omits pageSize.
	DefaultPageSize = 20
	// DefaultMaxPageSize caps pageSize to keep list queries bounded.
	DefaultMaxPageSize = 100

	maxFilterValues      = 10
	maxFilterValueLength = 128
	filterEquals         = "=="
)

// Filter is an equality predicate "field==a,b" matching any of Values.
type Filter struct {
	Field  string
	Values []string
}

// Params bundles the paging and filter values read from a list request.
type Params struct {
	PageSize  int
	PageToken string
	Cursor    Cursor
	Filters   []Filter
}

// Values returns every value filtered on field, in request order.
func (p Params) Values(field string) []string {
	var out []string
	for _, f := range p.Filters {
		if f.Field == field {
			out = append(out, f.Values...)
		}
	}
	return out
}

// Options bound what a list endpoint accepts.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
	FilterFields    []string
}

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid pageSize")
	ErrInvalidFilter    = errors.New("pagination: invalid filter")
	ErrInvalidPageToken = errors.New("pagination: invalid pageToken")
)

// FromRequest parses pageSize, pageToken and filter from the query string.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	return Parse(r.URL.Query(), opts)
}

// Parse reads list parameters from values.
func Parse(values url.Values, opts Options) (Params, error) {
	if values == nil {
		values = url.Values{}
	}

	pageSize, err := parsePageSize(values.Get("pageSize"), opts)
	if err != nil {
		return Params{}, err
	}
	params := Params{PageSize: pageSize}

	if token := strings.TrimSpace(values.Get("pageToken")); token != "" {
		cursor, err := DecodeToken(token)
		if err != nil {
			return Params{}, err
		}
		params.PageToken = token
		params.Cursor = cursor
	}

	filters, err := parseFilters(values["filter"], opts.FilterFields)
	if err != nil {
		return Params{}, err
	}
	params.Filters = filters
	return params, nil
}

func parsePageSize(raw string, opts Options) (int, error) {
	maxSize := opts.MaxPageSize
	if maxSize <= 0 {
		maxSize = DefaultMaxPageSize
	}
	size := opts.DefaultPageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	size = min(size, maxSize)

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return size, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: must be an integer", ErrInvalidPageSize)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidPageSize)
	}
	return min(value, maxSize), nil
}

func parseFilters(raw []string, allowed []string) ([]Filter, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if len(allowed) == 0 {
		return nil, fmt.Errorf("%w: filtering not supported", ErrInvalidFilter)
	}

	var filters []Filter
	for _, expr := range raw {
		expr = strings.TrimSpace(expr)
		if expr == "" {
			continue
		}
		field, rest, ok := strings.Cut(expr, filterEquals)
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, fmt.Errorf("%w: expected field==value, got %q", ErrInvalidFilter, expr)
		}
		if !contains(allowed, field) {
			return nil, fmt.Errorf("%w: field %q is not allowed", ErrInvalidFilter, field)
		}
		values, err := splitValues(field, rest)
		if err != nil {
			return nil, err
		}
		filters = append(filters, Filter{Field: field, Values: values})
	}
	return filters, nil
}

func splitValues(field, raw string) ([]string, error) {
	var values []string
	for _, part := range strings.Split(raw, ",") {
		value := strings.Trim(strings.TrimSpace(part), "\"'")
		if value == "" {
			continue
		}
		if len(value) > maxFilterValueLength {
			return nil, fmt.Errorf("%w: value for %q is too long", ErrInvalidFilter, field)
		}
		values = append(values, value)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: empty value for field %q", ErrInvalidFilter, field)
	}
	if len(values) > maxFilterValues {
		return nil, fmt.Errorf("%w: at most %d values for field %q", ErrInvalidFilter, maxFilterValues, field)
	}
	return values, nil
}

func contains(list []string, value string) bool {
	for _, candidate := range list {
		if candidate == value {
			return true
		}
	}
	return false
}
