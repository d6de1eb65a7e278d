// Package plan merges per-rule candidate sets into one prioritized action
// plan. Precedence is a fixed lattice: protection dominates delete, delete
// dominates archive, archive dominates mark-read. Protection is absorbing:
// a message matched by any never-delete rule receives no claim at all,
// including mark-read.
package plan

import (
	"github.com/joshsymonds/mailsweep/internal/gmail"
	"github.com/joshsymonds/mailsweep/internal/rules"
)

// Input is one rule with its confirmed matches, in rule-list order.
type Input struct {
	Rule       rules.Rule
	Candidates []gmail.Candidate
	Skipped    bool // the rule produced no query and contributed nothing
}

// RuleSummary is the per-rule accounting carried into results.
type RuleSummary struct {
	RuleID    string       `json:"ruleId"`
	Action    rules.Action `json:"action"`
	Sender    string       `json:"sender"`
	Matches   int          `json:"matches"`
	Applied   int          `json:"applied"`
	Protected int          `json:"protected"`
	Skipped   bool         `json:"skipped,omitempty"`
}

// Plan is the planner output. Delete, Archive, and MarkRead are pairwise
// disjoint on identity keys and disjoint from Protected.
type Plan struct {
	Delete    []gmail.Candidate
	Archive   []gmail.Candidate
	MarkRead  []gmail.Candidate
	Protected map[gmail.Key]struct{}
	Rules     []RuleSummary
	Skipped   []string // ids of rules whose query was empty
}

// Empty reports whether the plan claims no messages.
func (p Plan) Empty() bool {
	return len(p.Delete) == 0 && len(p.Archive) == 0 && len(p.MarkRead) == 0
}

// Total returns the number of claimed messages across categories.
func (p Plan) Total() int {
	return len(p.Delete) + len(p.Archive) + len(p.MarkRead)
}

// Build runs the four planner passes over the inputs. Within a pass rule
// order is preserved, and within a rule the server's message order is
// preserved. When two rules of the same action claim the same key, the
// first rule in list order wins and later duplicates are dropped silently.
func Build(inputs []Input, markers gmail.Markers) Plan {
	p := Plan{Protected: map[gmail.Key]struct{}{}}
	summaries := make([]RuleSummary, len(inputs))
	deduped := make([][]gmail.Candidate, len(inputs))

	for i, in := range inputs {
		summaries[i] = RuleSummary{
			RuleID:  in.Rule.ID,
			Action:  in.Rule.Action,
			Sender:  in.Rule.Sender,
			Skipped: in.Skipped,
		}
		if in.Skipped {
			p.Skipped = append(p.Skipped, in.Rule.ID)
			continue
		}
		deduped[i] = dedupe(in.Candidates)
		summaries[i].Matches = len(deduped[i])
	}

	// Pass 1: protection. A key inserted here is ineligible for every
	// other claim.
	for i, in := range inputs {
		if in.Rule.Action != rules.NeverDelete {
			continue
		}
		for _, c := range deduped[i] {
			key := c.Key()
			if _, seen := p.Protected[key]; seen {
				continue
			}
			p.Protected[key] = struct{}{}
			summaries[i].Protected++
		}
	}

	claimed := map[gmail.Key]struct{}{}
	claim := func(i int, c gmail.Candidate) bool {
		key := c.Key()
		if _, isProtected := p.Protected[key]; isProtected {
			return false
		}
		if _, taken := claimed[key]; taken {
			return false
		}
		claimed[key] = struct{}{}
		summaries[i].Applied++
		return true
	}

	// Pass 2: delete.
	for i, in := range inputs {
		if in.Rule.Action != rules.AlwaysDelete {
			continue
		}
		for _, c := range deduped[i] {
			if claim(i, c) {
				p.Delete = append(p.Delete, c)
			}
		}
	}

	// Pass 3: archive.
	for i, in := range inputs {
		if in.Rule.Action != rules.AutoArchive {
			continue
		}
		for _, c := range deduped[i] {
			if claim(i, c) {
				p.Archive = append(p.Archive, c)
			}
		}
	}

	// Pass 4: mark-read, skipping messages that are already read so the
	// pipeline never enqueues a no-op mutation.
	for i, in := range inputs {
		if in.Rule.Action != rules.AutoMarkRead {
			continue
		}
		for _, c := range deduped[i] {
			if !c.Message.HasLabel(markers.Unread) {
				continue
			}
			if claim(i, c) {
				p.MarkRead = append(p.MarkRead, c)
			}
		}
	}

	p.Rules = summaries
	return p
}

func dedupe(candidates []gmail.Candidate) []gmail.Candidate {
	seen := make(map[gmail.Key]struct{}, len(candidates))
	out := make([]gmail.Candidate, 0, len(candidates))
	for _, c := range candidates {
		key := c.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}
