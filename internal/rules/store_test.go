package rules

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/joshsymonds/mailsweep/internal/errs"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "rules.json"))
	s.clock = func() time.Time { return time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC) }
	return s
}

func TestAddAndList(t *testing.T) {
	s := testStore(t)
	rule, created, err := s.Add(AlwaysDelete, "spam.example.com", 30)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !created {
		t.Fatal("expected created=true for a new rule")
	}
	if rule.CreatedAt == "" {
		t.Fatal("expected createdAt to be set")
	}

	list := s.List()
	if len(list) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(list))
	}
	if list[0].ID != rule.ID || list[0].OlderThanDays != 30 {
		t.Fatalf("unexpected stored rule: %+v", list[0])
	}
}

func TestAddIDFormat(t *testing.T) {
	s := testStore(t)
	rule, _, err := s.Add(AutoArchive, "news.example.com", 0)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	pattern := regexp.MustCompile(`^rule_\d+_[a-z0-9]{6}$`)
	if !pattern.MatchString(rule.ID) {
		t.Fatalf("rule id %q does not match rule_<ms>_<rand6>", rule.ID)
	}
}

func TestAddDeduplicates(t *testing.T) {
	s := testStore(t)
	first, _, err := s.Add(AlwaysDelete, "Spam.Example.COM", 30)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	second, created, err := s.Add(AlwaysDelete, "spam.example.com", 30)
	if err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if created {
		t.Fatal("expected created=false for an equivalent rule")
	}
	if second.ID != first.ID {
		t.Fatalf("expected existing rule back, got %s want %s", second.ID, first.ID)
	}
	if got := len(s.List()); got != 1 {
		t.Fatalf("expected 1 rule after duplicate add, got %d", got)
	}
}

func TestAddDifferentThresholdIsNewRule(t *testing.T) {
	s := testStore(t)
	if _, _, err := s.Add(AlwaysDelete, "ex.com", 30); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, created, err := s.Add(AlwaysDelete, "ex.com", 60); err != nil || !created {
		t.Fatalf("expected a distinct rule for a different threshold: created=%v err=%v", created, err)
	}
}

func TestAddValidation(t *testing.T) {
	s := testStore(t)
	if _, _, err := s.Add("explode", "x.com", 0); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("unknown action: got %v", err)
	}
	if _, _, err := s.Add(AlwaysDelete, "  ", 0); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("empty sender: got %v", err)
	}
}

func TestAddNormalizesNonPositiveThreshold(t *testing.T) {
	s := testStore(t)
	rule, _, err := s.Add(AlwaysDelete, "ex.com", -5)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if rule.OlderThanDays != 0 {
		t.Fatalf("expected threshold normalized to 0, got %d", rule.OlderThanDays)
	}
	// zero and negative collapse to the same triple
	if _, created, err := s.Add(AlwaysDelete, "ex.com", 0); err != nil || created {
		t.Fatalf("expected duplicate of normalized rule: created=%v err=%v", created, err)
	}
}

func TestRemove(t *testing.T) {
	s := testStore(t)
	rule, _, err := s.Add(NeverDelete, "boss.com", 0)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	removed, err := s.Remove(rule.ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed == nil || removed.ID != rule.ID {
		t.Fatalf("unexpected removed rule: %+v", removed)
	}
	if got := len(s.List()); got != 0 {
		t.Fatalf("expected empty store, got %d rules", got)
	}

	missing, err := s.Remove(rule.ID)
	if err != nil {
		t.Fatalf("remove missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing id, got %+v", missing)
	}
}

func TestRemoveThenReAddIsIdempotent(t *testing.T) {
	s := testStore(t)
	rule, _, err := s.Add(AutoMarkRead, "github.com", 0)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := s.Remove(rule.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, created, err := s.Add(AutoMarkRead, "github.com", 0); err != nil || !created {
		t.Fatalf("re-add after remove: created=%v err=%v", created, err)
	}
	if got := len(s.List()); got != 1 {
		t.Fatalf("expected 1 rule, got %d", got)
	}
}

func TestListMissingFileIsEmpty(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "absent.json"))
	if got := len(s.List()); got != 0 {
		t.Fatalf("expected empty list for missing file, got %d", got)
	}
}

func TestListCorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}
	s := NewStore(path)
	if got := len(s.List()); got != 0 {
		t.Fatalf("expected empty list for corrupt file, got %d", got)
	}
	// a corrupt store must still accept new rules
	if _, created, err := s.Add(AlwaysDelete, "ex.com", 0); err != nil || !created {
		t.Fatalf("add over corrupt file: created=%v err=%v", created, err)
	}
}

func TestUnknownActionDroppedButPreserved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	seed := `{
  "version": 1,
  "rules": [
    {"id": "rule_1_aaaaaa", "action": "always-delete", "sender": "ex.com", "createdAt": "2024-01-01T00:00:00Z"},
    {"id": "rule_2_bbbbbb", "action": "quarantine", "sender": "new.com", "createdAt": "2024-01-01T00:00:00Z"}
  ]
}`
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	s := NewStore(path)

	list := s.List()
	if len(list) != 1 || list[0].ID != "rule_1_aaaaaa" {
		t.Fatalf("expected only the executable rule, got %+v", list)
	}

	// a write must not destroy the rule we cannot execute
	if _, _, err := s.Add(AutoArchive, "other.com", 0); err != nil {
		t.Fatalf("add: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	var envelope struct {
		Version int               `json:"version"`
		Rules   []json.RawMessage `json:"rules"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("decode rewritten file: %v", err)
	}
	if envelope.Version != 1 {
		t.Fatalf("version changed to %d", envelope.Version)
	}
	if len(envelope.Rules) != 3 {
		t.Fatalf("expected 3 stored rules (1 known + 1 unknown + 1 added), got %d", len(envelope.Rules))
	}
}

func TestUnknownTopLevelFieldsSurviveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	seed := `{"version": 1, "rules": [], "futureSetting": {"enabled": true}}`
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	s := NewStore(path)
	if _, _, err := s.Add(AlwaysDelete, "ex.com", 0); err != nil {
		t.Fatalf("add: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := top["futureSetting"]; !ok {
		t.Fatal("unknown top-level field was dropped on rewrite")
	}
}
