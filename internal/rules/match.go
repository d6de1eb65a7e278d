package rules

import (
	"net/mail"
	"strings"
	"time"

	"github.com/joshsymonds/mailsweep/internal/gmail"
)

// Matches re-checks a server-returned message against its rule. Gmail's
// search is coarser than our rule semantics, so every candidate is
// confirmed client-side before it enters the planner.
//
// The sender fragment must appear case-insensitively in the From header.
// When the rule has an age threshold, the Date header must parse as RFC
// 2822 and be strictly older than now minus the threshold in whole local
// days; an unparseable date never matches.
func Matches(r Rule, msg gmail.Message, now time.Time) bool {
	sender := strings.ToLower(strings.TrimSpace(r.Sender))
	if sender == "" {
		return false
	}
	if !strings.Contains(strings.ToLower(msg.From), sender) {
		return false
	}
	if r.OlderThanDays > 0 {
		sent, err := mail.ParseDate(msg.Date)
		if err != nil {
			return false
		}
		cutoff := now.AddDate(0, 0, -r.OlderThanDays)
		if !sent.Before(cutoff) {
			return false
		}
	}
	return true
}
