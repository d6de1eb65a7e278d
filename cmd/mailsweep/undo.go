package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/mailsweep/internal/config"
	"github.com/joshsymonds/mailsweep/internal/errs"
	"github.com/joshsymonds/mailsweep/internal/pipeline"
	"github.com/joshsymonds/mailsweep/internal/rate"
	"github.com/joshsymonds/mailsweep/internal/runtime"
)

func newUndoCmd() *cobra.Command {
	var (
		list    bool
		confirm bool
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "undo",
		Short: "Reverse the most recent delete or archive batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			rendered, err := runUndo(cmd, list, confirm, jsonOut)
			if err != nil && jsonOut && !rendered {
				_ = printJSON(os.Stdout, map[string]string{"error": err.Error()})
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list recent undo entries instead of undoing")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "skip the interactive prompt")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "machine-readable output")
	return cmd
}

// runUndo reports whether output was already rendered, mirroring runApply.
func runUndo(cmd *cobra.Command, list, confirm, jsonOut bool) (bool, error) {
	ctx := cmd.Context()
	cfg, err := config.Load()
	if err != nil {
		return false, err
	}
	paths := pipeline.Paths{
		DeletionLog: cfg.DeletionLogPath(),
		ArchiveLog:  cfg.ArchiveLogPath(),
		UndoLog:     cfg.UndoLogPath(),
	}

	if list {
		svc := pipeline.NewService(nil, nil, runtime.DefaultLogger(), paths)
		entries := svc.ListUndo()
		if jsonOut {
			return true, printJSON(os.Stdout, entries)
		}
		if len(entries) == 0 {
			fmt.Println("nothing to undo")
			return true, nil
		}
		for _, e := range entries {
			fmt.Printf("%s  %s  %-7s %d message(s)\n", e.CreatedAt, e.ID, e.Action, e.Count)
		}
		return true, nil
	}

	reader := pipeline.NewService(nil, nil, runtime.DefaultLogger(), paths)
	entries := reader.ListUndo()
	if len(entries) == 0 {
		return false, errs.InvalidArgumentf("nothing to undo")
	}
	latest := entries[0]
	if !confirm {
		prompt := fmt.Sprintf("reverse %s of %d message(s) from %s?", latest.Action, latest.Count, latest.CreatedAt)
		if !confirmPrompt(prompt) {
			fmt.Println("aborted")
			return true, nil
		}
	}

	accounts := map[string]struct{}{}
	for _, item := range latest.Items {
		accounts[item.Account] = struct{}{}
	}
	names := make([]string, 0, len(accounts))
	for name := range accounts {
		names = append(names, name)
	}
	client, err := runtime.NewGmailClient(ctx, cfg, names)
	if err != nil {
		return false, err
	}
	bucket := rate.NewTokenBucket(cfg.RequestsPerSecond)
	defer bucket.Stop()

	svc := pipeline.NewService(client, bucket, runtime.DefaultLogger(), paths)
	res, undoErr := svc.UndoLast(ctx)
	if undoErr != nil {
		res.Error = undoErr.Error()
	}
	if renderErr := renderUndoResult(os.Stdout, res, jsonOut); renderErr != nil {
		return true, renderErr
	}
	return true, undoErr
}

// renderUndoResult writes a single document, JSON or human.
func renderUndoResult(w io.Writer, res pipeline.Result, jsonOut bool) error {
	if jsonOut {
		return printJSON(w, res)
	}
	fmt.Fprintf(w, "reversed %d of %d message(s), %d failed\n", res.Succeeded, res.Planned, res.Failed)
	for _, cat := range res.Categories {
		for _, acct := range cat.Accounts {
			for _, op := range acct.Results {
				if !op.Success {
					fmt.Fprintf(w, "  %s/%s failed: %s\n", acct.Account, op.ID, op.Error)
				}
			}
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
