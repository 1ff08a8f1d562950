package charts

import (
	"errors"
	"fmt"
	"time"

	"tracker/internal/core"
)

// ErrInvalidSpan rejects a negative heat map span.
var ErrInvalidSpan = errors.New("heatmap span must be a positive number of weeks")

// DefaultSpanWeeks is used when no span is configured.
const DefaultSpanWeeks = 14

// CalendarRange is an inclusive span of civil days. End falls on the
// configured week-end day and the span is a whole number of weeks.
type CalendarRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Days returns the number of days covered, both ends included.
func (r CalendarRange) Days() int {
	n := 0
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		n++
	}
	return n
}

// Contains reports whether the civil day of t lies in the range.
func (r CalendarRange) Contains(t time.Time) bool {
	d := civilOf(t.In(r.End.Location())).midnight(r.End.Location())
	return !d.Before(r.Start) && !d.After(r.End)
}

// NewCalendarRange anchors a range of spanWeeks weeks on anchor: the end is
// the first weekEnd day on or after anchor, the start is one day after the
// week boundary spanWeeks weeks earlier.
func NewCalendarRange(anchor time.Time, spanWeeks int, weekEnd time.Weekday, loc *time.Location) (CalendarRange, error) {
	if spanWeeks <= 0 {
		return CalendarRange{}, fmt.Errorf("%w: %d", ErrInvalidSpan, spanWeeks)
	}
	day := civilOf(anchor.In(loc)).midnight(loc)
	ahead := (int(weekEnd) - int(day.Weekday()) + 7) % 7
	end := day.AddDate(0, 0, ahead)
	start := end.AddDate(0, 0, -7*spanWeeks+1)
	return CalendarRange{Start: start, End: end}, nil
}

// HeatmapDay is one cell of the calendar heat map.
type HeatmapDay struct {
	Date       time.Time             `json:"date"`
	Total      float64               `json:"total"`
	Categories []core.CategoryAmount `json:"categories"`
	// Labeled is set when the total reaches the label threshold.
	Labeled bool `json:"labeled"`
}

// Heatmap is the calendar range and one cell per day in it.
type Heatmap struct {
	Range CalendarRange `json:"range"`
	Days  []HeatmapDay  `json:"days"`
}

// HeatmapOptions configure BuildHeatmap. Zero values select the defaults.
type HeatmapOptions struct {
	SpanWeeks int
	// LabelThreshold is optional; nil disables cell labels.
	LabelThreshold *float64
	// WeekEnd defaults to Saturday when nil.
	WeekEnd  *time.Weekday
	Location *time.Location
	// Now anchors the range when there are no records; defaults to time.Now.
	Now func() time.Time
}

func (o HeatmapOptions) withDefaults() HeatmapOptions {
	if o.SpanWeeks == 0 {
		o.SpanWeeks = DefaultSpanWeeks
	}
	if o.WeekEnd == nil {
		sat := time.Saturday
		o.WeekEnd = &sat
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// BuildHeatmap totals records per civil day and keeps only the days inside
// the calendar range anchored on the latest record. Days outside the range
// are dropped, not zero filled.
func BuildHeatmap(records []core.Record, opts HeatmapOptions) (Heatmap, error) {
	opts = opts.withDefaults()
	loc := opts.Location

	type dayAcc struct {
		total float64
		cats  *OrderedMap[string, float64]
	}
	days := NewOrderedMap[civilDay, *dayAcc]()
	var latest time.Time
	for _, r := range records {
		t := r.Time(loc)
		if latest.IsZero() || t.After(latest) {
			latest = t
		}
		key := civilOf(t)
		acc, ok := days.Get(key)
		if !ok {
			acc = &dayAcc{cats: NewOrderedMap[string, float64]()}
			days.Set(key, acc)
		}
		acc.total += r.Amount
		prev, _ := acc.cats.Get(r.Category)
		acc.cats.Set(r.Category, prev+r.Amount)
	}

	anchor := latest
	if len(records) == 0 {
		anchor = opts.Now()
	}
	rng, err := NewCalendarRange(anchor, opts.SpanWeeks, *opts.WeekEnd, loc)
	if err != nil {
		return Heatmap{}, err
	}

	out := Heatmap{Range: rng, Days: []HeatmapDay{}}
	keys := days.SortedKeys(func(a, b civilDay) bool {
		return a.midnight(time.UTC).Before(b.midnight(time.UTC))
	})
	for _, k := range keys {
		date := k.midnight(loc)
		if date.Before(rng.Start) || date.After(rng.End) {
			continue
		}
		acc, _ := days.Get(k)
		cell := HeatmapDay{Date: date, Total: acc.total}
		for _, name := range acc.cats.SortedKeys(func(a, b string) bool { return a < b }) {
			v, _ := acc.cats.Get(name)
			cell.Categories = append(cell.Categories, core.CategoryAmount{Name: name, Amount: v})
		}
		if opts.LabelThreshold != nil && acc.total >= *opts.LabelThreshold {
			cell.Labeled = true
		}
		out.Days = append(out.Days, cell)
	}
	return out, nil
}

// Grid lays the range out as rows of seven days, each row ending on the
// week-end day. Days without records appear as zero cells.
func (h Heatmap) Grid() [][]HeatmapDay {
	if h.Range.Start.IsZero() {
		return nil
	}
	byDay := make(map[civilDay]HeatmapDay, len(h.Days))
	for _, d := range h.Days {
		byDay[civilOf(d.Date)] = d
	}
	var weeks [][]HeatmapDay
	var week []HeatmapDay
	for d := h.Range.Start; !d.After(h.Range.End); d = d.AddDate(0, 0, 1) {
		cell, ok := byDay[civilOf(d)]
		if !ok {
			cell = HeatmapDay{Date: d}
		}
		week = append(week, cell)
		if len(week) == 7 {
			weeks = append(weeks, week)
			week = nil
		}
	}
	return weeks
}

// Max returns the largest day total.
func (h Heatmap) Max() float64 {
	m := 0.0
	for _, d := range h.Days {
		if d.Total > m {
			m = d.Total
		}
	}
	return m
}

// Level buckets a day total into a shading level from 0 (empty) to 4
// (at or near max).
func Level(total, max float64) int {
	if total <= 0 || max <= 0 {
		return 0
	}
	level := int(total / max * 4)
	if level < 1 {
		level = 1
	}
	if level > 4 {
		level = 4
	}
	return level
}
