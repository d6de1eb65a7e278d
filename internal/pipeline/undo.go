package pipeline

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/joshsymonds/mailsweep/internal/errs"
	"github.com/joshsymonds/mailsweep/internal/gmail"
	"github.com/joshsymonds/mailsweep/internal/storage"
)

// Reversible undo actions. Mark-read has no undo record; its inverse is a
// manual mark-unread.
const (
	ActionDelete  = "delete"
	ActionArchive = "archive"
)

// UndoItem is the pre-mutation snapshot of one successfully-mutated
// message, sufficient to reverse it without another server query.
type UndoItem struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
	Account  string `json:"account"`
	From     string `json:"from"`
	Subject  string `json:"subject"`
}

func (i UndoItem) key() gmail.Key {
	return gmail.Key{Account: i.Account, ID: gmail.MessageID(i.ID)}
}

// UndoEntry covers one successful mutation batch. It shrinks item-by-item
// as reversals succeed and is removed once empty.
type UndoEntry struct {
	ID        string     `json:"id"`
	Action    string     `json:"action"`
	CreatedAt string     `json:"createdAt"`
	Count     int        `json:"count"`
	Items     []UndoItem `json:"items"`
}

func readUndoLog(path string) []UndoEntry {
	var entries []UndoEntry
	if !storage.LoadJSON(path, &entries) {
		return nil
	}
	return entries
}

func appendUndoEntry(path string, entry UndoEntry) error {
	return storage.SaveJSON(path, append(readUndoLog(path), entry))
}

// ListUndo returns undo entries newest first. Timestamps have second
// granularity, so entries from a single apply can collide; reversing before
// the stable sort makes the later-appended entry win the tie.
func (s *Service) ListUndo() []UndoEntry {
	entries := readUndoLog(s.Paths.UndoLog)
	slices.Reverse(entries)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt > entries[j].CreatedAt
	})
	return entries
}

// UndoLast reverses the most recent undo entry: un-trash for delete,
// re-add the inbox label for archive. Successfully-reversed ids are pruned
// from the matching action log, and the entry is rewritten with only the
// unreversed items, or removed when none remain.
func (s *Service) UndoLast(ctx context.Context) (Result, error) {
	entries := s.ListUndo()
	if len(entries) == 0 {
		return Result{}, errs.InvalidArgumentf("nothing to undo")
	}
	entry := entries[0]

	var inverse mutateFunc
	var logPath string
	switch entry.Action {
	case ActionDelete:
		inverse = s.Client.Untrash
		logPath = s.Paths.DeletionLog
	case ActionArchive:
		inverse = s.Client.Unarchive
		logPath = s.Paths.ArchiveLog
	default:
		return Result{}, errs.InvalidArgumentf("undo entry %s has unknown action %q", entry.ID, entry.Action)
	}

	batches := partitionUndoItems(entry.Items)
	outcomes := make([]AccountOutcome, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())
	for i, batch := range batches {
		g.Go(func() error {
			if err := s.wait(gctx); err != nil {
				return err
			}
			results, err := inverse(gctx, batch.account, batch.ids)
			if err != nil {
				// keep outcomes reported before the failure; ids already
				// reversed remotely must still be pruned from the logs
				results = append(results, failAll(batch.ids[len(results):], err)...)
			}
			outcomes[i] = AccountOutcome{Account: batch.account, Results: results}
			return nil
		})
	}
	groupErr := g.Wait()

	reversed := map[gmail.Key]struct{}{}
	outcome := CategoryOutcome{Action: "undo-" + entry.Action, Planned: len(entry.Items), UndoID: entry.ID}
	for _, ao := range outcomes {
		if ao.Account == "" {
			continue
		}
		outcome.Accounts = append(outcome.Accounts, ao)
		for _, r := range ao.Results {
			if r.Success {
				reversed[gmail.Key{Account: ao.Account, ID: r.ID}] = struct{}{}
				outcome.Succeeded++
			} else {
				outcome.Failed++
			}
		}
	}

	var errAcc *multierror.Error
	if groupErr != nil {
		errAcc = multierror.Append(errAcc, fmt.Errorf("undo %s: %w", entry.ID, groupErr))
	}

	res := Result{
		Planned:    len(entry.Items),
		Succeeded:  outcome.Succeeded,
		Failed:     outcome.Failed,
		Categories: []CategoryOutcome{outcome},
	}

	if len(reversed) > 0 {
		if err := pruneActionLog(logPath, reversed); err != nil {
			errAcc = multierror.Append(errAcc, fmt.Errorf("prune %s log: %w", entry.Action, err))
		}
		if err := s.shrinkUndoEntry(entry.ID, reversed); err != nil {
			errAcc = multierror.Append(errAcc, err)
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"undo entry %s could not be rewritten; a repeated undo may re-issue reversals", entry.ID))
		}
	}

	s.Logger.InfoContext(ctx, "undo finished",
		"entry", entry.ID,
		"action", entry.Action,
		"reversed", outcome.Succeeded,
		"failed", outcome.Failed,
	)
	return res, errAcc.ErrorOrNil()
}

// shrinkUndoEntry drops reversed items from the entry, removing the entry
// entirely when nothing remains. The whole log is rewritten atomically.
func (s *Service) shrinkUndoEntry(entryID string, reversed map[gmail.Key]struct{}) error {
	entries := readUndoLog(s.Paths.UndoLog)
	out := make([]UndoEntry, 0, len(entries))
	for _, e := range entries {
		if e.ID != entryID {
			out = append(out, e)
			continue
		}
		remaining := make([]UndoItem, 0, len(e.Items))
		for _, item := range e.Items {
			if _, gone := reversed[item.key()]; gone {
				continue
			}
			remaining = append(remaining, item)
		}
		if len(remaining) == 0 {
			continue
		}
		e.Items = remaining
		e.Count = len(remaining)
		out = append(out, e)
	}
	return storage.SaveJSON(s.Paths.UndoLog, out)
}

type undoBatch struct {
	account string
	ids     []gmail.MessageID
}

func partitionUndoItems(items []UndoItem) []undoBatch {
	index := map[string]int{}
	var batches []undoBatch
	for _, item := range items {
		i, ok := index[item.Account]
		if !ok {
			i = len(batches)
			index[item.Account] = i
			batches = append(batches, undoBatch{account: item.Account})
		}
		batches[i].ids = append(batches[i].ids, gmail.MessageID(item.ID))
	}
	return batches
}
