package core

import "strings"

// AmountFilter matches entry amounts against a comparison typed in the
// table header, e.g. ">= 10", "<5" or "12.5".
type AmountFilter struct {
	Op    string
	Value float64
	all   bool
}

// MatchAll is the fallback filter used for empty or unparseable input.
var MatchAll = AmountFilter{all: true}

// ParseAmountFilter never fails: input it cannot understand yields MatchAll
// so a half-typed filter does not hide the table.
func ParseAmountFilter(s string) AmountFilter {
	s = strings.TrimSpace(s)
	if s == "" {
		return MatchAll
	}
	op := "="
	for _, candidate := range []string{">=", "<=", "!=", ">", "<", "="} {
		if strings.HasPrefix(s, candidate) {
			op = candidate
			s = strings.TrimSpace(s[len(candidate):])
			break
		}
	}
	v, err := ParseAmount(s)
	if err != nil {
		return MatchAll
	}
	return AmountFilter{Op: op, Value: v}
}

// IsMatchAll reports whether the filter accepts every amount.
func (f AmountFilter) IsMatchAll() bool { return f.all }

// Match reports whether amount passes the filter.
func (f AmountFilter) Match(amount float64) bool {
	if f.all {
		return true
	}
	switch f.Op {
	case ">=":
		return amount >= f.Value
	case "<=":
		return amount <= f.Value
	case "!=":
		return amount != f.Value
	case ">":
		return amount > f.Value
	case "<":
		return amount < f.Value
	default:
		return amount == f.Value
	}
}

// FilterEntries keeps the entries whose amount matches f.
func FilterEntries(entries []Entry, f AmountFilter) []Entry {
	if f.all {
		return entries
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if f.Match(e.Amount) {
			out = append(out, e)
		}
	}
	return out
}
