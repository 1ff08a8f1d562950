package core

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"
	"time"
)

func TestParseRow(t *testing.T) {
	row := TableRow{ID: "7", Amount: "12,5", Date: "2000-03-21", Category: " stuff ", Tags: "red, green,,red ", Comment: " hi "}
	e, err := ParseRow(row, time.UTC)
	if err != nil {
		t.Fatalf("ParseRow() error = %v", err)
	}
	if e.ID != 7 || e.Amount != 12.5 || e.Category != "stuff" || e.Comment != "hi" {
		t.Fatalf("unexpected entry %+v", e)
	}
	if !slices.Equal(e.Tags, []string{"red", "green"}) {
		t.Fatalf("tags = %v", e.Tags)
	}
	if !e.Date.Equal(day(2000, 3, 21)) {
		t.Fatalf("date = %v", e.Date)
	}
}

func TestParseRowMalformed(t *testing.T) {
	tests := []struct {
		name string
		row  TableRow
		want error
	}{
		{"non-numeric amount", TableRow{Amount: "ten", Date: "2000-01-01", Category: "a"}, ErrInvalidAmount},
		{"non-numeric id", TableRow{ID: "x1", Amount: "1", Date: "2000-01-01", Category: "a"}, ErrInvalidID},
		{"bad date", TableRow{Amount: "1", Date: "01/02/2000", Category: "a"}, ErrInvalidDate},
		{"no category", TableRow{Amount: "1", Date: "2000-01-01"}, ErrEmptyCategory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRow(tt.row, time.UTC)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestConvertRowsExcludesBadRows(t *testing.T) {
	rows := []TableRow{
		{Amount: "1", Date: "2000-01-01", Category: "a"},
		{Amount: "oops", Date: "2000-01-02", Category: "a"},
		{Amount: "3", Date: "2000-01-03", Category: "b"},
	}
	entries, rejected := ConvertRows(rows, time.UTC)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if len(rejected) != 1 || rejected[0].Index != 1 || !IsMalformed(rejected[0]) {
		t.Fatalf("unexpected rejected rows %v", rejected)
	}
}

func TestTableRowUnmarshalJSON(t *testing.T) {
	var row TableRow
	body := `{"id": 2, "amount": 5, "date": "2000-03-21", "category": "stuff", "tags": ["red", "green"], "comment": "c"}`
	if err := json.Unmarshal([]byte(body), &row); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if row.ID != "2" || row.Amount != "5" || row.Tags != "red,green" {
		t.Fatalf("unexpected row %+v", row)
	}

	if err := json.Unmarshal([]byte(`{"id": "3", "amount": "1.5", "tags": "a,b"}`), &row); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if row.ID != "3" || row.Amount != "1.5" || row.Tags != "a,b" {
		t.Fatalf("unexpected row %+v", row)
	}
}

func TestRowFromEntryRoundTrip(t *testing.T) {
	e := Entry{ID: 9, Date: day(2024, 2, 29), Amount: 1.5, Category: "x", Tags: []string{"a", "b"}}
	got, err := ParseRow(RowFromEntry(e), time.UTC)
	if err != nil {
		t.Fatalf("ParseRow() error = %v", err)
	}
	if !got.Equal(e) {
		t.Fatalf("got %+v, want %+v", got, e)
	}
}
