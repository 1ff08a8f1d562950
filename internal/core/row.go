package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO day layout used by forms and payloads.
const DateLayout = "2006-01-02"

// TableRow is the table-facing shape of an entry. Every field arrives as
// text from a form cell, a JSON payload or a spreadsheet.
type TableRow struct {
	ID       string `json:"id"`
	Amount   string `json:"amount"`
	Date     string `json:"date"`
	Category string `json:"category"`
	Tags     string `json:"tags"`
	Comment  string `json:"comment"`
}

// UnmarshalJSON accepts numbers or strings for id and amount and either a
// list or a comma-separated string for tags.
func (r *TableRow) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       json.RawMessage `json:"id"`
		Amount   json.RawMessage `json:"amount"`
		Date     string          `json:"date"`
		Category string          `json:"category"`
		Tags     json.RawMessage `json:"tags"`
		Comment  string          `json:"comment"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.ID = rawScalar(raw.ID)
	r.Amount = rawScalar(raw.Amount)
	r.Date = raw.Date
	r.Category = raw.Category
	r.Comment = raw.Comment
	r.Tags = ""
	if len(raw.Tags) > 0 {
		var list []string
		if err := json.Unmarshal(raw.Tags, &list); err == nil {
			r.Tags = strings.Join(list, ",")
		} else {
			r.Tags = rawScalar(raw.Tags)
		}
	}
	return nil
}

func rawScalar(m json.RawMessage) string {
	if len(m) == 0 || string(m) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(m, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(m))
}

// RowFromEntry renders an entry back into its table shape. The amount is
// encoded exactly so the row parses back to the same entry.
func RowFromEntry(e Entry) TableRow {
	id := ""
	if e.ID != 0 {
		id = fmt.Sprintf("%d", e.ID)
	}
	return TableRow{
		ID:       id,
		Amount:   EncodeAmount(e.Amount),
		Date:     e.Date.Format(DateLayout),
		Category: e.Category,
		Tags:     strings.Join(e.Tags, ","),
		Comment:  e.Comment,
	}
}

// ParseRow converts a table row into an Entry. An empty id is allowed for
// rows that do not exist yet; a non-numeric id or amount fails the row.
func ParseRow(row TableRow, loc *time.Location) (Entry, error) {
	if loc == nil {
		loc = time.Local
	}
	var e Entry
	if strings.TrimSpace(row.ID) != "" {
		id, err := ParseID(row.ID)
		if err != nil {
			return Entry{}, fmt.Errorf("row id %q: %w", row.ID, err)
		}
		e.ID = id
	}
	amount, err := ParseAmount(row.Amount)
	if err != nil {
		return Entry{}, fmt.Errorf("row amount %q: %w", row.Amount, err)
	}
	e.Amount = amount

	date, err := ParseDay(row.Date, loc)
	if err != nil {
		return Entry{}, fmt.Errorf("row date %q: %w", row.Date, err)
	}
	e.Date = date
	e.Category = strings.TrimSpace(row.Category)
	e.Tags = SplitTags(row.Tags)
	e.Comment = strings.TrimSpace(row.Comment)

	if err := e.Validate(); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// ParseDay accepts an ISO day or an RFC 3339 timestamp and returns local
// midnight of that civil day in loc.
func ParseDay(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(DateLayout, s, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
}

// SplitTags splits a comma-separated tag list, trimming whitespace and
// dropping empty and duplicate names. Order of first appearance is kept.
func SplitTags(s string) []string {
	var tags []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		tag := strings.TrimSpace(part)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}

// RowError describes a row excluded during conversion.
type RowError struct {
	Index int
	Err   error
}

// Error reports the row index and the cause.
func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Index, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// ConvertRows converts every row it can. Malformed rows are excluded from
// the result and reported individually, so one bad row never hides the rest.
func ConvertRows(rows []TableRow, loc *time.Location) ([]Entry, []RowError) {
	entries := make([]Entry, 0, len(rows))
	var rejected []RowError
	for i, row := range rows {
		e, err := ParseRow(row, loc)
		if err != nil {
			rejected = append(rejected, RowError{Index: i, Err: err})
			continue
		}
		entries = append(entries, e)
	}
	return entries, rejected
}

// IsMalformed reports whether err came from an unparseable numeric field.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrInvalidAmount) || errors.Is(err, ErrInvalidID)
}
