// Package updates parses, validates and applies the table change sets
// posted by the browser or the server-held table session.
package updates

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"tracker/internal/core"
	"tracker/internal/ledger"
)

// FieldName is the form field carrying the JSON change set.
const FieldName = "updates"

var (
	ErrMissingUpdates = errors.New("no 'updates' key")
	ErrTooManyUpdates = errors.New("too many update elements provided")
	ErrBadJSON        = errors.New("failed to parse updates")
	ErrInvalidEdit    = errors.New("failed to validate entry edit")
	ErrInvalidID      = errors.New("failed to convert entry id")
	ErrNotFound       = errors.New("failed to find matching entry")
)

// Request is a decoded but unvalidated change set. Deletion ids are kept as
// text so that both numbers and numeric strings are accepted.
type Request struct {
	Deletions []string
	Edits     []core.TableRow
}

// Empty reports whether the request carries nothing to do.
func (r Request) Empty() bool {
	return len(r.Deletions) == 0 && len(r.Edits) == 0
}

// FromPayload turns a ledger payload into a request.
func FromPayload(p ledger.Payload) Request {
	r := Request{Edits: p.Edits}
	for _, id := range p.Deletions {
		r.Deletions = append(r.Deletions, fmt.Sprintf("%d", id))
	}
	return r
}

type rawRequest struct {
	Deletions []json.RawMessage `json:"deletions"`
	Edits     []core.TableRow   `json:"edits"`
}

// Parse extracts the change set from form values. A present but empty
// field is a valid request with nothing to do.
func Parse(form url.Values) (Request, error) {
	values, ok := form[FieldName]
	if !ok {
		return Request{}, ErrMissingUpdates
	}
	switch {
	case len(values) == 0:
		return Request{}, nil
	case len(values) > 1:
		return Request{}, ErrTooManyUpdates
	}
	return Decode(values[0])
}

// Decode parses one JSON change set.
func Decode(text string) (Request, error) {
	var raw rawRequest
	dec := json.NewDecoder(strings.NewReader(text))
	if err := dec.Decode(&raw); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrBadJSON, err)
	}
	req := Request{Edits: raw.Edits}
	for _, m := range raw.Deletions {
		m = bytes.TrimSpace(m)
		var s string
		if err := json.Unmarshal(m, &s); err != nil {
			s = string(m)
		}
		req.Deletions = append(req.Deletions, s)
	}
	return req, nil
}

// Validated is a change set ready to apply.
type Validated struct {
	Edits     []core.Entry
	Deletions []int64
}

// Empty reports whether there is nothing to apply.
func (v Validated) Empty() bool {
	return len(v.Edits) == 0 && len(v.Deletions) == 0
}

// ExistenceChecker reports which of the given entry ids exist.
type ExistenceChecker interface {
	EntriesExist(ctx context.Context, ids []int64) (map[int64]bool, error)
}

// Validate converts every edit and deletion id. Edits must name an existing
// entry. Any failure rejects the whole request.
func Validate(ctx context.Context, req Request, checker ExistenceChecker, loc *time.Location) (Validated, error) {
	var v Validated
	for i, row := range req.Edits {
		e, err := core.ParseRow(row, loc)
		if err != nil {
			return Validated{}, fmt.Errorf("%w: edit %d: %v", ErrInvalidEdit, i, err)
		}
		if e.ID == 0 {
			return Validated{}, fmt.Errorf("%w: edit %d has no id", ErrInvalidEdit, i)
		}
		v.Edits = append(v.Edits, e)
	}
	for _, raw := range req.Deletions {
		id, err := core.ParseID(raw)
		if err != nil {
			return Validated{}, fmt.Errorf("%w: %q", ErrInvalidID, raw)
		}
		v.Deletions = append(v.Deletions, id)
	}
	if v.Empty() {
		return v, nil
	}

	ids := make([]int64, 0, len(v.Edits)+len(v.Deletions))
	for _, e := range v.Edits {
		ids = append(ids, e.ID)
	}
	ids = append(ids, v.Deletions...)
	found, err := checker.EntriesExist(ctx, ids)
	if err != nil {
		return Validated{}, fmt.Errorf("check entries: %w", err)
	}
	for _, id := range ids {
		if !found[id] {
			return Validated{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
	}
	return v, nil
}

// Applier stores a validated change set atomically, edits before deletions.
type Applier interface {
	ApplyUpdates(ctx context.Context, edits []core.Entry, deletions []int64) error
}

// Apply stores v. An empty change set is a no-op.
func Apply(ctx context.Context, v Validated, a Applier) error {
	if v.Empty() {
		return nil
	}
	if err := a.ApplyUpdates(ctx, v.Edits, v.Deletions); err != nil {
		return fmt.Errorf("apply updates: %w", err)
	}
	return nil
}

// IsClientError reports whether err was caused by the submitted data rather
// than the server.
func IsClientError(err error) bool {
	for _, target := range []error{
		ErrMissingUpdates, ErrTooManyUpdates, ErrBadJSON,
		ErrInvalidEdit, ErrInvalidID, ErrNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
