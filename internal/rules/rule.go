// Package rules holds the declarative automation rules: their durable
// store, the Gmail query each rule compiles to, and the client-side check
// that a returned message really satisfies its rule.
package rules

import (
	"fmt"
	"strings"

	"github.com/joshsymonds/mailsweep/internal/errs"
)

// Action is the closed set of things a rule may do. The planner switches
// exhaustively on it; adding a variant is a compile-time change.
type Action string

const (
	AlwaysDelete Action = "always-delete"
	NeverDelete  Action = "never-delete"
	AutoArchive  Action = "auto-archive"
	AutoMarkRead Action = "auto-mark-read"
)

// ParseAction validates a user-supplied action name.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case AlwaysDelete, NeverDelete, AutoArchive, AutoMarkRead:
		return Action(s), nil
	default:
		return "", errs.InvalidArgumentf("unknown action %q", s)
	}
}

// knownAction reports whether a stored action value is executable. Unknown
// values come from newer versions of the rules file and are skipped on read.
func knownAction(a Action) bool {
	switch a {
	case AlwaysDelete, NeverDelete, AutoArchive, AutoMarkRead:
		return true
	}
	return false
}

// Rule is one persistent automation rule. Rules are never mutated in place;
// a change is a remove followed by an add.
type Rule struct {
	ID            string `json:"id"`
	Action        Action `json:"action"`
	Sender        string `json:"sender"`
	OlderThanDays int    `json:"olderThanDays,omitempty"`
	CreatedAt     string `json:"createdAt"`
}

// dedupeKey is the identity triple used to detect equivalent rules on add.
func (r Rule) dedupeKey() string {
	return fmt.Sprintf("%s|%s|%d", r.Action, strings.ToLower(strings.TrimSpace(r.Sender)), r.OlderThanDays)
}

// Equivalent reports whether two rules carry the same action, case-folded
// sender, and age threshold.
func (r Rule) Equivalent(other Rule) bool {
	return r.dedupeKey() == other.dedupeKey()
}
