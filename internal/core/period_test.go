package core

import (
	"testing"
	"time"
)

func TestSubtractPeriod(t *testing.T) {
	end := time.Date(2000, 3, 31, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		amount int
		unit   string
		want   time.Time
	}{
		{1, "months", time.Date(2000, 3, 1, 12, 0, 0, 0, time.UTC)},
		{3, "months", time.Date(1999, 12, 31, 12, 0, 0, 0, time.UTC)},
		{15, "months", time.Date(1998, 12, 31, 12, 0, 0, 0, time.UTC)},
		{1, "years", time.Date(1999, 3, 31, 12, 0, 0, 0, time.UTC)},
		{2, "weeks", time.Date(2000, 3, 17, 12, 0, 0, 0, time.UTC)},
		{1, "days", time.Date(2000, 3, 30, 12, 0, 0, 0, time.UTC)},
		{6, "hours", time.Date(2000, 3, 31, 6, 0, 0, 0, time.UTC)},
		{0, "seconds", end},
	}
	for _, tt := range tests {
		got, err := SubtractPeriod(end, tt.amount, tt.unit)
		if err != nil {
			t.Fatalf("%d %s: error %v", tt.amount, tt.unit, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("%d %s = %v, want %v", tt.amount, tt.unit, got, tt.want)
		}
	}
}

func TestSubtractPeriodLeapDay(t *testing.T) {
	end := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	got, err := SubtractPeriod(end, 1, "years")
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSubtractPeriodErrors(t *testing.T) {
	if _, err := SubtractPeriod(time.Now(), -1, "days"); err == nil {
		t.Fatalf("expected error for negative amount")
	}
	if _, err := SubtractPeriod(time.Now(), 1, "fortnights"); err == nil {
		t.Fatalf("expected error for unknown unit")
	}
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("2weeks")
	if err != nil || p.Amount != 2 || p.Unit != "weeks" {
		t.Fatalf("ParsePeriod(2weeks) = %+v, %v", p, err)
	}
	if p.String() != "2weeks" {
		t.Fatalf("String() = %q", p.String())
	}
	for _, in := range []string{"", "weeks", "2", "2Weeks", "3fortnights", "-1days"} {
		if _, err := ParsePeriod(in); err == nil {
			t.Errorf("ParsePeriod(%q) expected error", in)
		}
	}
}
