// Package pipeline executes an action plan against the mail service and
// maintains the durable records needed to reverse it: the deletion and
// archive audit logs and the undo log. Logs are written before mutation so
// a crash mid-run still leaves a record of what was attempted.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/joshsymonds/mailsweep/internal/errs"
	"github.com/joshsymonds/mailsweep/internal/gmail"
	"github.com/joshsymonds/mailsweep/internal/plan"
	"github.com/joshsymonds/mailsweep/internal/rate"
	"github.com/joshsymonds/mailsweep/internal/rules"
)

const defaultWorkers = 4

// Paths locates the durable state files inside the config directory.
type Paths struct {
	DeletionLog string
	ArchiveLog  string
	UndoLog     string
}

// Service drives collection, execution, and undo. All collaborators are
// injected so tests can run against a fake client and a temp directory.
type Service struct {
	Client  gmail.Client
	Limiter rate.Limiter
	Logger  *slog.Logger
	Clock   func() time.Time
	NewID   func() string
	Paths   Paths
	Workers int
}

// NewService constructs a Service with sane defaults.
func NewService(client gmail.Client, limiter rate.Limiter, logger *slog.Logger, paths Paths) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if limiter == nil {
		limiter = rate.None{}
	}
	return &Service{
		Client:  client,
		Limiter: limiter,
		Logger:  logger,
		Clock:   time.Now,
		NewID:   uuid.NewString,
		Paths:   paths,
		Workers: defaultWorkers,
	}
}

func (s *Service) workers() int {
	if s.Workers <= 0 {
		return defaultWorkers
	}
	return s.Workers
}

func (s *Service) wait(ctx context.Context) error {
	if err := s.Limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrCancelled, err)
	}
	return nil
}

// Collect issues each rule's query against each account and confirms the
// returned messages client-side. Rules whose query is empty are recorded
// as skipped and contribute no matches.
func (s *Service) Collect(ctx context.Context, ruleList []rules.Rule, accounts []string, limit int64) ([]plan.Input, error) {
	now := s.Clock()
	inputs := make([]plan.Input, 0, len(ruleList))
	for _, r := range ruleList {
		query := rules.BuildQuery(r)
		if query == "" {
			s.Logger.InfoContext(ctx, "skipping rule with empty query", "rule", r.ID)
			inputs = append(inputs, plan.Input{Rule: r, Skipped: true})
			continue
		}
		var candidates []gmail.Candidate
		for _, account := range accounts {
			if err := s.wait(ctx); err != nil {
				return nil, err
			}
			msgs, err := s.Client.Search(ctx, account, query, limit)
			if err != nil {
				return nil, fmt.Errorf("search %s for rule %s: %w: %w", account, r.ID, errs.ErrRemote, err)
			}
			for _, m := range msgs {
				if rules.Matches(r, m, now) {
					candidates = append(candidates, gmail.Candidate{Account: account, Message: m})
				}
			}
		}
		inputs = append(inputs, plan.Input{Rule: r, Candidates: candidates})
	}
	return inputs, nil
}

// AccountOutcome carries the per-id results one account reported.
type AccountOutcome struct {
	Account string           `json:"account"`
	Results []gmail.OpResult `json:"results"`
}

// CategoryOutcome is the accounting for one mutation category.
type CategoryOutcome struct {
	Action    string           `json:"action"`
	Planned   int              `json:"planned"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Accounts  []AccountOutcome `json:"accounts,omitempty"`
	UndoID    string           `json:"undoId,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Result is the structured outcome shared by apply and undo.
type Result struct {
	DryRun       bool               `json:"dryRun,omitempty"`
	Planned      int                `json:"planned"`
	Succeeded    int                `json:"succeeded"`
	Failed       int                `json:"failed"`
	Rules        []plan.RuleSummary `json:"rules,omitempty"`
	SkippedRules []string           `json:"skippedRules,omitempty"`
	Categories   []CategoryOutcome  `json:"categories,omitempty"`
	Warnings     []string           `json:"warnings,omitempty"`
	Error        string             `json:"error,omitempty"`
}

type mutateFunc func(ctx context.Context, account string, ids []gmail.MessageID) ([]gmail.OpResult, error)

type category struct {
	name       string
	candidates []gmail.Candidate
	logPath    string
	mutate     mutateFunc
	undoAction string // empty when the category is not reversible
}

// Apply executes the plan. In dry-run mode it returns the summary without
// touching the network or the disk. Otherwise each non-empty category is
// pre-logged, partitioned by account, mutated at bounded fan-out, and
// covered by an undo entry listing only the successful items.
//
// A log write failure aborts only its own category. An undo write failure
// after successful mutation is surfaced as a warning, never unwound.
func (s *Service) Apply(ctx context.Context, p plan.Plan, dryRun bool) (Result, error) {
	res := Result{
		DryRun:       dryRun,
		Planned:      p.Total(),
		Rules:        p.Rules,
		SkippedRules: p.Skipped,
	}
	if dryRun {
		return res, nil
	}

	categories := []category{
		{name: "delete", candidates: p.Delete, logPath: s.Paths.DeletionLog, mutate: s.Client.Trash, undoAction: ActionDelete},
		{name: "archive", candidates: p.Archive, logPath: s.Paths.ArchiveLog, mutate: s.Client.Archive, undoAction: ActionArchive},
		{name: "markRead", candidates: p.MarkRead, mutate: s.Client.MarkRead},
	}

	var errAcc *multierror.Error
	for _, cat := range categories {
		if len(cat.candidates) == 0 {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			errAcc = multierror.Append(errAcc, fmt.Errorf("%s: %w: %w", cat.name, errs.ErrCancelled, ctxErr))
			break
		}
		outcome, warnings, err := s.runCategory(ctx, cat)
		res.Categories = append(res.Categories, outcome)
		res.Succeeded += outcome.Succeeded
		res.Failed += outcome.Failed
		res.Warnings = append(res.Warnings, warnings...)
		if err != nil {
			errAcc = multierror.Append(errAcc, err)
		}
	}
	return res, errAcc.ErrorOrNil()
}

func (s *Service) runCategory(ctx context.Context, cat category) (CategoryOutcome, []string, error) {
	outcome := CategoryOutcome{Action: cat.name, Planned: len(cat.candidates)}

	if cat.logPath != "" {
		if err := appendActionLog(cat.logPath, logEntries(cat.candidates, s.Clock())); err != nil {
			// the mutation must not run without its audit record
			outcome.Error = err.Error()
			return outcome, nil, fmt.Errorf("%s pre-log: %w", cat.name, err)
		}
	}

	batches := partitionByAccount(cat.candidates)
	outcomes := make([]AccountOutcome, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())
	for i, batch := range batches {
		g.Go(func() error {
			if err := s.wait(gctx); err != nil {
				return err
			}
			ids := messageIDs(batch.candidates)
			results, err := cat.mutate(gctx, batch.account, ids)
			if err != nil {
				// the call may have mutated a prefix of the batch before
				// failing; keep those outcomes and fail only the ids that
				// never got one, so every remote success still reaches the
				// undo entry
				results = append(results, failAll(ids[len(results):], err)...)
			}
			outcomes[i] = AccountOutcome{Account: batch.account, Results: results}
			return nil
		})
	}
	groupErr := g.Wait()

	succeededKeys := map[gmail.Key]struct{}{}
	for _, ao := range outcomes {
		if ao.Account == "" {
			continue // worker never ran
		}
		outcome.Accounts = append(outcome.Accounts, ao)
		for _, r := range ao.Results {
			if r.Success {
				succeededKeys[gmail.Key{Account: ao.Account, ID: r.ID}] = struct{}{}
				outcome.Succeeded++
			} else {
				outcome.Failed++
			}
		}
	}

	var warnings []string
	if cat.undoAction != "" && len(succeededKeys) > 0 {
		entry := UndoEntry{
			ID:        s.NewID(),
			Action:    cat.undoAction,
			CreatedAt: s.Clock().UTC().Format(time.RFC3339),
			Items:     undoItems(cat.candidates, succeededKeys),
		}
		entry.Count = len(entry.Items)
		if err := appendUndoEntry(s.Paths.UndoLog, entry); err != nil {
			warnings = append(warnings, fmt.Sprintf(
				"%s: %d message(s) were modified but no undo record could be written (%v); reconcile via the mail service directly",
				cat.name, len(succeededKeys), err))
		} else {
			outcome.UndoID = entry.ID
		}
	}

	var catErr error
	if groupErr != nil {
		catErr = fmt.Errorf("%s mutation: %w", cat.name, groupErr)
		if len(succeededKeys) > 0 && outcome.UndoID == "" && len(warnings) == 0 {
			warnings = append(warnings, fmt.Sprintf(
				"%s: interrupted after %d successful mutation(s)", cat.name, len(succeededKeys)))
		}
	}
	s.Logger.InfoContext(ctx, "category applied",
		"category", cat.name,
		"planned", outcome.Planned,
		"succeeded", outcome.Succeeded,
		"failed", outcome.Failed,
	)
	return outcome, warnings, catErr
}

type accountBatch struct {
	account    string
	candidates []gmail.Candidate
}

// partitionByAccount groups candidates by mailbox, preserving both the
// order accounts first appear and the message order within each account.
func partitionByAccount(candidates []gmail.Candidate) []accountBatch {
	index := map[string]int{}
	var batches []accountBatch
	for _, c := range candidates {
		i, ok := index[c.Account]
		if !ok {
			i = len(batches)
			index[c.Account] = i
			batches = append(batches, accountBatch{account: c.Account})
		}
		batches[i].candidates = append(batches[i].candidates, c)
	}
	return batches
}

func messageIDs(candidates []gmail.Candidate) []gmail.MessageID {
	ids := make([]gmail.MessageID, len(candidates))
	for i, c := range candidates {
		ids[i] = c.Message.ID
	}
	return ids
}

func failAll(ids []gmail.MessageID, err error) []gmail.OpResult {
	results := make([]gmail.OpResult, len(ids))
	for i, id := range ids {
		results[i] = gmail.OpResult{ID: id, Error: err.Error()}
	}
	return results
}

func undoItems(candidates []gmail.Candidate, succeeded map[gmail.Key]struct{}) []UndoItem {
	items := make([]UndoItem, 0, len(succeeded))
	for _, c := range candidates {
		if _, ok := succeeded[c.Key()]; !ok {
			continue
		}
		items = append(items, UndoItem{
			ID:       string(c.Message.ID),
			ThreadID: c.Message.ThreadID,
			Account:  c.Account,
			From:     c.Message.From,
			Subject:  c.Message.Subject,
		})
	}
	return items
}
