// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing request data: list paths and
// query strings, table rows posted by the editable table, and id lists.

package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"tracker/internal/core"
	"tracker/internal/sanitize"
)

var errNoIDs = errors.New("no row ids given")

// maxBodyBytes bounds form and JSON bodies.
const maxBodyBytes = 1 << 20

// ListParams selects the entries shown by a list page.
type ListParams struct {
	Category string
	// Window is nil for all time.
	Window *core.Period
	Page   int
	Amount core.AmountFilter
	// AmountText is the filter as typed, echoed back into the form.
	AmountText string
}

// ParseListParams reads the optional path segments of /entries/ and the
// page and amount query parameters. A single segment is a window when it
// parses as one ("2weeks"), otherwise a category. With two segments the
// second must be a window.
func ParseListParams(first, second string, query url.Values) (ListParams, error) {
	p := ListParams{
		Page:       ParsePage(query),
		AmountText: strings.TrimSpace(query.Get("amount")),
	}
	p.Amount = core.ParseAmountFilter(p.AmountText)

	switch {
	case first != "" && second != "":
		w, err := core.ParsePeriod(second)
		if err != nil {
			return p, err
		}
		p.Category = first
		p.Window = &w
	case first != "":
		if w, err := core.ParsePeriod(first); err == nil {
			p.Window = &w
		} else {
			p.Category = first
		}
	}
	return p, nil
}

// Path rebuilds the list URL for p without query parameters.
func (p ListParams) Path() string {
	path := "/entries/"
	if p.Category != "" {
		path += url.PathEscape(p.Category) + "/"
	}
	if p.Window != nil {
		path += p.Window.String() + "/"
	}
	return path
}

// PageURL is the list URL for page n keeping the amount filter.
func (p ListParams) PageURL(n int) string {
	q := url.Values{}
	if n > 1 {
		q.Set("page", strconv.Itoa(n))
	}
	if p.AmountText != "" {
		q.Set("amount", p.AmountText)
	}
	if len(q) == 0 {
		return p.Path()
	}
	return p.Path() + "?" + q.Encode()
}

// ParsePage returns the 1-based page number; missing or invalid values
// give page 1.
func ParsePage(query url.Values) int {
	n, err := strconv.Atoi(strings.TrimSpace(query.Get("page")))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// ParseIDs collects row ids from repeated or comma separated "ids" values.
func ParseIDs(values []string) ([]int64, error) {
	var ids []int64
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := core.ParseID(part)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, errNoIDs
	}
	return ids, nil
}

// RequestBodyParser reads a body once and serves values from it as JSON or
// form data, whichever the htmx request sent.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for r.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{contentType: r.Header.Get("Content-Type")}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	return p
}

// Parse decodes a JSON object body, or a form body otherwise.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true
	if p.err != nil {
		return p.err
	}
	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}
	if p.body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}
	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns the trimmed value for key.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return strings.TrimSpace(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return strings.TrimSpace(p.formData.Get(key))
	}
	return ""
}

// Values returns every value for key. JSON arrays are flattened.
func (p *RequestBodyParser) Values(key string) []string {
	if p.jsonData != nil {
		switch v := p.jsonData[key].(type) {
		case nil:
			return nil
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				out = append(out, stringValue(item))
			}
			return out
		default:
			return []string{stringValue(v)}
		}
	}
	if p.formData != nil {
		return p.formData[key]
	}
	return nil
}

// IsJSON reports whether the body was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// Row reads a sanitized table row from the id, amount, date, category,
// tags and comment fields.
func (p *RequestBodyParser) Row() core.TableRow {
	return sanitize.Row(core.TableRow{
		ID:       p.Get("id"),
		Amount:   p.Get("amount"),
		Date:     p.Get("date"),
		Category: p.Get("category"),
		Tags:     p.Get("tags"),
		Comment:  p.Get("comment"),
	})
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, stringValue(item))
		}
		return strings.Join(parts, ",")
	default:
		return ""
	}
}

// ParseFormOrFail parses the request form and returns an error response on
// failure, nil on success.
func ParseFormOrFail(w http.ResponseWriter, r *http.Request) *HTMXResponseBuilder {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return BadRequestError("Invalid request format")
	}
	return nil
}
