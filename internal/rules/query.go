package rules

import (
	"fmt"
	"strings"
	"unicode"
)

// BuildQuery renders a rule as a Gmail search expression. Senders with
// whitespace are quoted, with embedded quotes backslash-escaped. A rule
// with no sender yields the empty string; callers record it as skipped.
func BuildQuery(r Rule) string {
	sender := strings.TrimSpace(r.Sender)
	if sender == "" {
		return ""
	}
	if strings.ContainsFunc(sender, unicode.IsSpace) {
		sender = `"` + strings.ReplaceAll(sender, `"`, `\"`) + `"`
	}
	q := "from:" + sender
	if r.OlderThanDays > 0 {
		q += fmt.Sprintf(" older_than:%dd", r.OlderThanDays)
	}
	return q
}
