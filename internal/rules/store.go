package rules

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/joshsymonds/mailsweep/internal/errs"
	"github.com/joshsymonds/mailsweep/internal/storage"
)

const storeVersion = 1

// Store persists rules in a versioned JSON envelope. Reads never fail: a
// missing or corrupt file degrades to an empty store. Writes replace the
// file atomically.
type Store struct {
	path  string
	clock func() time.Time
	randN func(n int) int
}

// NewStore returns a store backed by the given file.
func NewStore(path string) *Store {
	return &Store{path: path, clock: time.Now, randN: rand.IntN}
}

// Path returns the backing file, for diagnostics.
func (s *Store) Path() string { return s.path }

// entry is one stored rule. Rules with actions this version cannot execute
// are kept as raw JSON so a round-trip does not destroy them.
type entry struct {
	rule  Rule
	raw   json.RawMessage
	known bool
}

type state struct {
	version int
	entries []entry
	extra   map[string]json.RawMessage
}

func (s *Store) load() state {
	var top map[string]json.RawMessage
	if !storage.LoadJSON(s.path, &top) {
		return state{version: storeVersion}
	}
	st := state{version: storeVersion, extra: map[string]json.RawMessage{}}
	for key, raw := range top {
		switch key {
		case "version":
			var v int
			if json.Unmarshal(raw, &v) == nil && v > 0 {
				st.version = v
			}
		case "rules":
			var rawRules []json.RawMessage
			if json.Unmarshal(raw, &rawRules) != nil {
				continue
			}
			for _, rr := range rawRules {
				var r Rule
				if json.Unmarshal(rr, &r) == nil && knownAction(r.Action) {
					st.entries = append(st.entries, entry{rule: r, known: true})
					continue
				}
				st.entries = append(st.entries, entry{raw: rr})
			}
		default:
			// forward compatibility: unknown top-level fields survive a
			// round-trip untouched
			st.extra[key] = raw
		}
	}
	return st
}

func (s *Store) save(st state) error {
	rawRules := make([]json.RawMessage, 0, len(st.entries))
	for _, e := range st.entries {
		if e.known {
			data, err := json.Marshal(e.rule)
			if err != nil {
				return fmt.Errorf("encode rule %s: %w", e.rule.ID, err)
			}
			rawRules = append(rawRules, data)
			continue
		}
		rawRules = append(rawRules, e.raw)
	}
	top := make(map[string]any, len(st.extra)+2)
	for key, raw := range st.extra {
		top[key] = raw
	}
	top["version"] = st.version
	top["rules"] = rawRules
	return storage.SaveJSON(s.path, top)
}

// List returns the executable rules in file order.
func (s *Store) List() []Rule {
	st := s.load()
	out := make([]Rule, 0, len(st.entries))
	for _, e := range st.entries {
		if e.known {
			out = append(out, e.rule)
		}
	}
	return out
}

// Add validates and persists a rule. When an equivalent rule already exists
// the existing rule is returned and created is false; nothing is written.
// olderThanDays values below one are normalized to absent.
func (s *Store) Add(action Action, sender string, olderThanDays int) (Rule, bool, error) {
	if !knownAction(action) {
		return Rule{}, false, errs.InvalidArgumentf("unknown action %q", string(action))
	}
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return Rule{}, false, errs.InvalidArgumentf("sender must not be empty")
	}
	if olderThanDays < 0 {
		olderThanDays = 0
	}

	st := s.load()
	candidate := Rule{Action: action, Sender: sender, OlderThanDays: olderThanDays}
	existing := map[string]struct{}{}
	for _, e := range st.entries {
		if !e.known {
			continue
		}
		if e.rule.Equivalent(candidate) {
			return e.rule, false, nil
		}
		existing[e.rule.ID] = struct{}{}
	}

	candidate.ID = s.newID(existing)
	candidate.CreatedAt = s.clock().UTC().Format(time.RFC3339)
	st.entries = append(st.entries, entry{rule: candidate, known: true})
	if err := s.save(st); err != nil {
		return Rule{}, false, err
	}
	return candidate, true, nil
}

// Remove deletes a rule by id and returns it, or nil when no rule has that
// id.
func (s *Store) Remove(id string) (*Rule, error) {
	st := s.load()
	for i, e := range st.entries {
		if !e.known || e.rule.ID != id {
			continue
		}
		removed := e.rule
		st.entries = append(st.entries[:i], st.entries[i+1:]...)
		if err := s.save(st); err != nil {
			return nil, err
		}
		return &removed, nil
	}
	return nil, nil
}

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func (s *Store) newID(taken map[string]struct{}) string {
	for {
		suffix := make([]byte, 6)
		for i := range suffix {
			suffix[i] = idAlphabet[s.randN(len(idAlphabet))]
		}
		id := fmt.Sprintf("rule_%d_%s", s.clock().UnixMilli(), suffix)
		if _, dup := taken[id]; !dup {
			return id
		}
	}
}
