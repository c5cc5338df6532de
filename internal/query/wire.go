package query

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Encode renders sort and filter as the JSON strings used in request
// parameters. Empty lists encode as "".
func (q Query) Encode() (sortJSON, filterJSON string, err error) {
	if len(q.Sort) > 0 {
		b, err := json.Marshal(q.Sort)
		if err != nil {
			return "", "", fmt.Errorf("encoding sort: %w", err)
		}
		sortJSON = string(b)
	}
	if len(q.Filter) > 0 {
		b, err := json.Marshal(q.Filter)
		if err != nil {
			return "", "", fmt.Errorf("encoding filter: %w", err)
		}
		filterJSON = string(b)
	}
	return sortJSON, filterJSON, nil
}

// Values returns the sort and filter parameters, omitting empty ones.
func (q Query) Values() (url.Values, error) {
	sortJSON, filterJSON, err := q.Encode()
	if err != nil {
		return nil, err
	}
	v := url.Values{}
	if sortJSON != "" {
		v.Set("sort", sortJSON)
	}
	if filterJSON != "" {
		v.Set("filter", filterJSON)
	}
	return v, nil
}

// QueryString renders the query-mode parameters: limit, skip, sort, filter.
func (q Query) QueryString() (string, error) {
	v, err := q.Values()
	if err != nil {
		return "", err
	}
	// limit and skip lead, as the wire format documents them
	parts := []string{
		"limit=" + strconv.Itoa(q.Limit),
		"skip=" + strconv.Itoa(q.Skip),
	}
	if s := v.Get("sort"); s != "" {
		parts = append(parts, "sort="+url.QueryEscape(s))
	}
	if f := v.Get("filter"); f != "" {
		parts = append(parts, "filter="+url.QueryEscape(f))
	}
	return strings.Join(parts, "&"), nil
}

// Parse reads limit, skip, sort and filter from request parameters.
// A "filter" that is not a JSON array is taken as a bare search value.
func Parse(v url.Values) (Query, error) {
	var q Query
	var err error
	if s := v.Get("limit"); s != "" {
		if q.Limit, err = ParseCount("limit", s); err != nil {
			return q, err
		}
	}
	if s := v.Get("skip"); s != "" {
		if q.Skip, err = ParseCount("skip", s); err != nil {
			return q, err
		}
	}
	if s := v.Get("sort"); s != "" {
		if err := json.Unmarshal([]byte(s), &q.Sort); err != nil {
			return q, fmt.Errorf("invalid sort %q: %w", s, err)
		}
	}
	if s := v.Get("filter"); s != "" {
		if strings.HasPrefix(strings.TrimSpace(s), "[") {
			if err := json.Unmarshal([]byte(s), &q.Filter); err != nil {
				return q, fmt.Errorf("invalid filter %q: %w", s, err)
			}
		} else {
			q.Filter = Value(s)
		}
	}
	return q, nil
}

// ParseCount parses a non-negative integer parameter.
func ParseCount(name, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return n, nil
}
