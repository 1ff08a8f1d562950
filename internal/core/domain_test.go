package core

import (
	"math"
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestEntryValidate(t *testing.T) {
	good := Entry{Date: day(2025, 1, 1), Amount: 10, Category: "Food"}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	zero := good
	zero.Amount = 0
	if err := zero.Validate(); err != nil {
		t.Fatalf("zero amount should be valid, got %v", err)
	}

	bads := []Entry{
		{Amount: 1, Category: "c"},
		{Date: day(2025, 1, 1), Amount: -1, Category: "c"},
		{Date: day(2025, 1, 1), Amount: math.NaN(), Category: "c"},
		{Date: day(2025, 1, 1), Amount: math.Inf(1), Category: "c"},
		{Date: day(2025, 1, 1), Amount: 1, Category: "  "},
	}
	for i, e := range bads {
		if err := e.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestEntryEqualComparesTagsAsSets(t *testing.T) {
	a := Entry{ID: 1, Date: day(2025, 1, 1), Amount: 2, Category: "x", Tags: []string{"b", "a"}}
	b := a.Clone()
	b.Tags = []string{"a", "b", "a"}
	if !a.Equal(b) {
		t.Fatalf("expected entries to be equal")
	}
	b.Comment = "changed"
	if a.Equal(b) {
		t.Fatalf("expected comment change to break equality")
	}
}

func TestRecordsFromEntries(t *testing.T) {
	when := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	records := RecordsFromEntries([]Entry{{Date: when, Amount: 4.5, Category: "Fun"}})
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].TimestampMS != when.UnixMilli() {
		t.Fatalf("timestamp = %d, want %d", records[0].TimestampMS, when.UnixMilli())
	}
	if got := records[0].Time(time.UTC); !got.Equal(when) {
		t.Fatalf("Time() = %v, want %v", got, when)
	}
}
