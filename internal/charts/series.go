package charts

import (
	"time"

	"tracker/internal/core"
)

// DefaultWindow is the moving average window in days.
const DefaultWindow = 14

// Point is a (timestamp, value) pair. Timestamps are milliseconds since epoch.
type Point struct {
	TimestampMS int64   `json:"x"`
	Value       float64 `json:"y"`
}

// Series holds the time-series view of a record set.
type Series struct {
	PerCategory   map[string][]Point `json:"per_category"`
	Categories    []string           `json:"categories"`
	DailyTotal    []Point            `json:"daily_total"`
	MovingAverage []Point            `json:"moving_average"`
}

// SeriesOptions configure BuildSeries.
type SeriesOptions struct {
	// Window is the number of trailing days averaged; DefaultWindow if <= 0.
	Window   int
	Location *time.Location
}

func (o SeriesOptions) withDefaults() SeriesOptions {
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return o
}

// BuildSeries produces the per-category daily series, the all-category daily
// totals and the trailing moving average over those totals.
func BuildSeries(records []core.Record, opts SeriesOptions) Series {
	opts = opts.withDefaults()
	out := Series{
		PerCategory:   make(map[string][]Point),
		Categories:    []string{},
		DailyTotal:    []Point{},
		MovingAverage: []Point{},
	}

	byCat := ByCategory(records)
	out.Categories = byCat.SortedKeys(func(a, b string) bool { return a < b })
	for _, cat := range out.Categories {
		g, _ := byCat.Get(cat)
		out.PerCategory[cat] = dailyTotals(g)
	}

	out.DailyTotal = dailyTotals(records)
	out.MovingAverage = movingAverage(out.DailyTotal, opts.Window, opts.Location)
	return out
}

// dailyTotals sums amounts per exact timestamp, ascending by timestamp.
// An explicit zero amount still produces a point.
func dailyTotals(records []core.Record) []Point {
	byTS := ByTimestamp(records)
	keys := byTS.SortedKeys(func(a, b int64) bool { return a < b })
	points := make([]Point, 0, len(keys))
	for _, ts := range keys {
		g, _ := byTS.Get(ts)
		points = append(points, Point{TimestampMS: ts, Value: sumAmounts(g)})
	}
	return points
}

type civilDay struct {
	year  int
	month time.Month
	day   int
}

func civilOf(t time.Time) civilDay {
	y, m, d := t.Date()
	return civilDay{y, m, d}
}

func (c civilDay) midnight(loc *time.Location) time.Time {
	return time.Date(c.year, c.month, c.day, 0, 0, 0, 0, loc)
}

// movingAverage walks every calendar day from the first to the last total,
// inclusive, stepping with calendar arithmetic so DST changes do not skip or
// repeat days. Days without totals contribute zero. The divisor is always
// the full window, also while fewer than window days have been seen.
func movingAverage(totals []Point, window int, loc *time.Location) []Point {
	if len(totals) == 0 {
		return []Point{}
	}
	perDay := make(map[civilDay]float64, len(totals))
	for _, p := range totals {
		perDay[civilOf(time.UnixMilli(p.TimestampMS).In(loc))] += p.Value
	}
	first := civilOf(time.UnixMilli(totals[0].TimestampMS).In(loc)).midnight(loc)
	last := civilOf(time.UnixMilli(totals[len(totals)-1].TimestampMS).In(loc)).midnight(loc)

	// Summed afresh each day: a window of zero days averages to exactly 0.
	ring := make([]float64, window)
	var points []Point
	for i, d := 0, first; !d.After(last); i, d = i+1, d.AddDate(0, 0, 1) {
		ring[i%window] = perDay[civilOf(d)]
		var sum float64
		for _, v := range ring {
			sum += v
		}
		points = append(points, Point{TimestampMS: d.UnixMilli(), Value: sum / float64(window)})
	}
	return points
}
