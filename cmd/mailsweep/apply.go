package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/mailsweep/internal/config"
	"github.com/joshsymonds/mailsweep/internal/errs"
	"github.com/joshsymonds/mailsweep/internal/pipeline"
	"github.com/joshsymonds/mailsweep/internal/plan"
	"github.com/joshsymonds/mailsweep/internal/rate"
	"github.com/joshsymonds/mailsweep/internal/rules"
	"github.com/joshsymonds/mailsweep/internal/runtime"
)

func newApplyCmd() *cobra.Command {
	var (
		account string
		limit   int
		dryRun  bool
		confirm bool
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Run every rule and apply the merged action plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			rendered, err := runApply(cmd, account, limit, dryRun, confirm, jsonOut)
			if err != nil && jsonOut && !rendered {
				_ = printJSON(os.Stdout, map[string]string{"error": err.Error()})
			}
			return err
		},
	}
	cmd.Flags().StringVar(&account, "account", "all", "account name, or all")
	cmd.Flags().IntVar(&limit, "limit", 50, "per rule per account server-side result cap")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "plan only; no mutation, no log writes")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "skip the interactive prompt")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "machine-readable output")
	return cmd
}

// runApply reports whether output was already rendered, so the --json
// wrapper in RunE never emits a second document after a result.
func runApply(cmd *cobra.Command, account string, limit int, dryRun, confirm, jsonOut bool) (bool, error) {
	ctx := cmd.Context()
	if limit <= 0 {
		return false, errs.InvalidArgumentf("--limit must be positive, got %d", limit)
	}
	cfg, err := config.Load()
	if err != nil {
		return false, err
	}
	accounts, err := resolveAccounts(cfg, account)
	if err != nil {
		return false, err
	}

	store := rules.NewStore(cfg.RulesPath())
	ruleList := store.List()
	if len(ruleList) == 0 {
		return false, errs.InvalidArgumentf("no rules defined; add one with mailsweep rules add")
	}

	client, err := runtime.NewGmailClient(ctx, cfg, accounts)
	if err != nil {
		return false, err
	}
	bucket := rate.NewTokenBucket(cfg.RequestsPerSecond)
	defer bucket.Stop()

	svc := pipeline.NewService(client, bucket, runtime.DefaultLogger(), pipeline.Paths{
		DeletionLog: cfg.DeletionLogPath(),
		ArchiveLog:  cfg.ArchiveLogPath(),
		UndoLog:     cfg.UndoLogPath(),
	})

	inputs, err := svc.Collect(ctx, ruleList, accounts, int64(limit))
	if err != nil {
		return false, err
	}
	p := plan.Build(inputs, cfg.Markers())

	if !dryRun && !p.Empty() && !confirm {
		summary := fmt.Sprintf("delete %d, archive %d, mark %d read across %s",
			len(p.Delete), len(p.Archive), len(p.MarkRead), strings.Join(accounts, ", "))
		if !confirmPrompt(summary + "?") {
			fmt.Println("aborted")
			return true, nil
		}
	}

	res, applyErr := svc.Apply(ctx, p, dryRun)
	if applyErr != nil {
		res.Error = applyErr.Error()
	}
	if renderErr := renderResult(os.Stdout, res, p, jsonOut); renderErr != nil {
		return true, renderErr
	}
	return true, applyErr
}

func resolveAccounts(cfg config.Config, account string) ([]string, error) {
	if account == "" || account == "all" {
		return cfg.Accounts, nil
	}
	if !slices.Contains(cfg.Accounts, account) {
		return nil, errs.InvalidArgumentf("unknown account %q; configured accounts: %s",
			account, strings.Join(cfg.Accounts, ", "))
	}
	return []string{account}, nil
}

// renderResult writes the outcome as a single document: either one JSON
// object (with any pipeline error folded in) or the human summary.
func renderResult(w io.Writer, res pipeline.Result, p plan.Plan, jsonOut bool) error {
	if jsonOut {
		return printJSON(w, res)
	}
	if res.DryRun {
		fmt.Fprintf(w, "dry run: would delete %d, archive %d, mark %d read\n",
			len(p.Delete), len(p.Archive), len(p.MarkRead))
	} else {
		fmt.Fprintf(w, "applied %d of %d planned action(s), %d failed\n",
			res.Succeeded, res.Planned, res.Failed)
	}
	for _, rs := range res.Rules {
		if rs.Skipped {
			fmt.Fprintf(w, "  rule %s (%s): skipped, no sender\n", rs.RuleID, rs.Action)
			continue
		}
		fmt.Fprintf(w, "  rule %s (%s %q): %d matched, %d applied, %d protected\n",
			rs.RuleID, rs.Action, rs.Sender, rs.Matches, rs.Applied, rs.Protected)
	}
	for _, cat := range res.Categories {
		for _, acct := range cat.Accounts {
			for _, op := range acct.Results {
				if !op.Success {
					fmt.Fprintf(w, "  %s %s/%s failed: %s\n", cat.Action, acct.Account, op.ID, op.Error)
				}
			}
		}
		if cat.UndoID != "" {
			fmt.Fprintf(w, "  undo available: mailsweep undo (entry %s)\n", cat.UndoID)
		}
	}
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
	if res.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", res.Error)
	}
	return nil
}
