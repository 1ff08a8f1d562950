package core

import (
	"errors"
	"math"
	"slices"
	"strings"
	"time"
)

type (
	// Entry is one recorded resource-allocation event.
	Entry struct {
		ID       int64
		Date     time.Time
		Amount   float64
		Category string
		Tags     []string
		Comment  string
	}

	// Record is the chart-facing projection of an Entry.
	Record struct {
		TimestampMS int64    `json:"timestamp_ms"`
		Amount      float64  `json:"amount"`
		Category    string   `json:"category"`
		Tags        []string `json:"tags,omitempty"`
		Comment     string   `json:"comment,omitempty"`
	}

	// CategoryAmount represents an amount aggregated by category name.
	CategoryAmount struct {
		Name   string  `json:"name"`
		Amount float64 `json:"amount"`
	}
)

var (
	ErrInvalidDate    = errors.New("invalid date")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidID      = errors.New("invalid id")
	ErrEmptyCategory  = errors.New("empty category")
	ErrCommentTooLong = errors.New("comment too long (max 2000 characters)")
	ErrTagTooLong     = errors.New("tag too long (max 50 characters)")
)

const (
	maxCommentLen = 2000
	maxTagLen     = 50
)

// Validate checks the amount, the category and the date.
func (e Entry) Validate() error {
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	if math.IsNaN(e.Amount) || math.IsInf(e.Amount, 0) || e.Amount < 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if len(e.Category) > maxTagLen {
		return ErrTagTooLong
	}
	for _, t := range e.Tags {
		if len(t) > maxTagLen {
			return ErrTagTooLong
		}
	}
	if len(e.Comment) > maxCommentLen {
		return ErrCommentTooLong
	}
	return nil
}

// Equal reports whether two entries carry the same user-visible values.
// Tags compare as sets.
func (e Entry) Equal(o Entry) bool {
	if e.ID != o.ID || !e.Date.Equal(o.Date) || e.Amount != o.Amount ||
		e.Category != o.Category || e.Comment != o.Comment {
		return false
	}
	a, b := normalizeTags(e.Tags), normalizeTags(o.Tags)
	return slices.Equal(a, b)
}

// Clone returns a copy that shares no slices with e.
func (e Entry) Clone() Entry {
	e.Tags = slices.Clone(e.Tags)
	return e
}

// Record projects the entry into its chart-facing shape.
func (e Entry) Record() Record {
	return Record{
		TimestampMS: e.Date.UnixMilli(),
		Amount:      e.Amount,
		Category:    e.Category,
		Tags:        slices.Clone(e.Tags),
		Comment:     e.Comment,
	}
}

// Time returns the record timestamp as a time in loc.
func (r Record) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(r.TimestampMS).In(loc)
}

// RecordsFromEntries transforms entries for easy JSON serialization.
func RecordsFromEntries(entries []Entry) []Record {
	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		records = append(records, e.Record())
	}
	return records
}

func normalizeTags(tags []string) []string {
	out := slices.Clone(tags)
	slices.Sort(out)
	return slices.Compact(out)
}
