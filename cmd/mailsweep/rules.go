package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/mailsweep/internal/config"
	"github.com/joshsymonds/mailsweep/internal/errs"
	"github.com/joshsymonds/mailsweep/internal/rules"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage automation rules",
	}
	cmd.AddCommand(newRulesListCmd(), newRulesAddCmd(), newRulesRemoveCmd(), newRulesPathCmd())
	return cmd
}

func openStore() (*rules.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return rules.NewStore(cfg.RulesPath()), nil
}

func newRulesListCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			list := store.List()
			if jsonOut {
				return printJSON(os.Stdout, list)
			}
			if len(list) == 0 {
				fmt.Println("no rules defined")
				return nil
			}
			for _, r := range list {
				age := ""
				if r.OlderThanDays > 0 {
					age = fmt.Sprintf(" older than %dd", r.OlderThanDays)
				}
				fmt.Printf("%s  %-14s from %q%s\n", r.ID, r.Action, r.Sender, age)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "machine-readable output")
	return cmd
}

func newRulesAddCmd() *cobra.Command {
	var (
		action    string
		sender    string
		olderThan int
		jsonOut   bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := rules.ParseAction(action)
			if err != nil {
				return err
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			rule, created, err := store.Add(parsed, sender, olderThan)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(os.Stdout, map[string]any{"rule": rule, "created": created})
			}
			if created {
				fmt.Printf("added rule %s\n", rule.ID)
			} else {
				fmt.Printf("equivalent rule already exists: %s\n", rule.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&action, "action", "", "one of always-delete, never-delete, auto-archive, auto-mark-read")
	cmd.Flags().StringVar(&sender, "sender", "", "sender or sender-domain fragment to match")
	cmd.Flags().IntVar(&olderThan, "older-than", 0, "only match messages older than this many days")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "machine-readable output")
	_ = cmd.MarkFlagRequired("action")
	_ = cmd.MarkFlagRequired("sender")
	return cmd
}

func newRulesRemoveCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "remove <rule-id>",
		Short: "Remove a rule by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			removed, err := store.Remove(args[0])
			if err != nil {
				return err
			}
			if removed == nil {
				return errs.InvalidArgumentf("no rule with id %q", args[0])
			}
			if jsonOut {
				return printJSON(os.Stdout, map[string]any{"removed": removed})
			}
			fmt.Printf("removed rule %s\n", removed.ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "machine-readable output")
	return cmd
}

func newRulesPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the rule store location",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			fmt.Println(store.Path())
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
