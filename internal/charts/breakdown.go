package charts

import "tracker/internal/core"

// BuildBreakdown sums amounts per category over all timestamps, ordered by
// category name (byte-wise, case-sensitive). Zero totals are kept.
func BuildBreakdown(records []core.Record) []core.CategoryAmount {
	byCat := ByCategory(records)
	names := byCat.SortedKeys(func(a, b string) bool { return a < b })
	out := make([]core.CategoryAmount, 0, len(names))
	for _, name := range names {
		g, _ := byCat.Get(name)
		out = append(out, core.CategoryAmount{Name: name, Amount: sumAmounts(g)})
	}
	return out
}
