package pipeline

import (
	"time"

	"github.com/joshsymonds/mailsweep/internal/gmail"
	"github.com/joshsymonds/mailsweep/internal/storage"
)

// LogEntry is one row of the deletion or archive audit log. The logs are
// JSON arrays that grow append-only; undo removes rows whose inverse
// mutation succeeded.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Account   string `json:"account"`
	ID        string `json:"id"`
	ThreadID  string `json:"threadId"`
	From      string `json:"from"`
	Subject   string `json:"subject"`
	Snippet   string `json:"snippet"`
}

func logEntries(candidates []gmail.Candidate, now time.Time) []LogEntry {
	ts := now.UTC().Format(time.RFC3339)
	entries := make([]LogEntry, len(candidates))
	for i, c := range candidates {
		entries[i] = LogEntry{
			Timestamp: ts,
			Account:   c.Account,
			ID:        string(c.Message.ID),
			ThreadID:  c.Message.ThreadID,
			From:      c.Message.From,
			Subject:   c.Message.Subject,
			Snippet:   c.Message.Snippet,
		}
	}
	return entries
}

func readActionLog(path string) []LogEntry {
	var existing []LogEntry
	if !storage.LoadJSON(path, &existing) {
		return nil
	}
	return existing
}

func appendActionLog(path string, entries []LogEntry) error {
	return storage.SaveJSON(path, append(readActionLog(path), entries...))
}

// pruneActionLog drops every row whose (account, id) pair was reversed.
func pruneActionLog(path string, reversed map[gmail.Key]struct{}) error {
	existing := readActionLog(path)
	kept := make([]LogEntry, 0, len(existing))
	for _, e := range existing {
		key := gmail.Key{Account: e.Account, ID: gmail.MessageID(e.ID)}
		if _, gone := reversed[key]; gone {
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) == len(existing) {
		return nil
	}
	return storage.SaveJSON(path, kept)
}
