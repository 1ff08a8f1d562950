// Package charts turns flat entry records into chart-ready views: per
// category daily series with a trailing moving average, category totals and
// calendar heat-map cells. Every builder is a pure function.
package charts

import (
	"tracker/internal/core"
)

// Group is the ordered sequence of records sharing one key. The key field
// of each member is cleared, since the group key already carries it.
type Group = []core.Record

// AggregateBy groups records by the key returned from keyOf. strip clears
// the key field from the copy stored in the group. Input records are never
// modified; every record lands in exactly one group.
func AggregateBy[K comparable](records []core.Record, keyOf func(core.Record) K, strip func(*core.Record)) *OrderedMap[K, Group] {
	groups := NewOrderedMap[K, Group]()
	for _, r := range records {
		k := keyOf(r)
		member := r
		if strip != nil {
			strip(&member)
		}
		g, _ := groups.Get(k)
		groups.Set(k, append(g, member))
	}
	return groups
}

// ByTimestamp groups records on exact millisecond timestamp equality.
func ByTimestamp(records []core.Record) *OrderedMap[int64, Group] {
	return AggregateBy(records,
		func(r core.Record) int64 { return r.TimestampMS },
		func(r *core.Record) { r.TimestampMS = 0 })
}

// ByCategory groups records on exact, case-sensitive category equality.
func ByCategory(records []core.Record) *OrderedMap[string, Group] {
	return AggregateBy(records,
		func(r core.Record) string { return r.Category },
		func(r *core.Record) { r.Category = "" })
}

func sumAmounts(g Group) float64 {
	var total float64
	for _, r := range g {
		total += r.Amount
	}
	return total
}
