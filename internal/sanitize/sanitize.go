// Package sanitize cleans free text typed into forms and imported files
// before it is stored.
package sanitize

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"tracker/internal/core"
)

var (
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// Text trims s, drops control characters other than tab and newlines and
// strips all markup. Entities produced by the policy are decoded again so
// "a & b" is stored as typed.
func Text(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(getPolicy().Sanitize(s)))
}

// Row sanitizes the free text columns of a table row.
func Row(row core.TableRow) core.TableRow {
	row.Category = Text(row.Category)
	row.Tags = Text(row.Tags)
	row.Comment = Text(row.Comment)
	return row
}
