package charts

import (
	"fmt"
	"sort"
	"time"

	"tracker/internal/core"
)

// FromNested flattens a category -> ISO date -> amount mapping into records
// stamped at local midnight. Output is ordered by category, then date.
func FromNested(nested map[string]map[string]float64, loc *time.Location) ([]core.Record, error) {
	if loc == nil {
		loc = time.Local
	}
	cats := make([]string, 0, len(nested))
	for c := range nested {
		cats = append(cats, c)
	}
	sort.Strings(cats)

	var records []core.Record
	for _, cat := range cats {
		dates := make([]string, 0, len(nested[cat]))
		for d := range nested[cat] {
			dates = append(dates, d)
		}
		sort.Strings(dates)
		for _, d := range dates {
			day, err := time.ParseInLocation(core.DateLayout, d, loc)
			if err != nil {
				return nil, fmt.Errorf("category %q date %q: %w", cat, d, core.ErrInvalidDate)
			}
			records = append(records, core.Record{
				TimestampMS: day.UnixMilli(),
				Amount:      nested[cat][d],
				Category:    cat,
			})
		}
	}
	return records, nil
}
