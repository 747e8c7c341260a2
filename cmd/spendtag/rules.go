package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spendtag/internal/cli"
	"github.com/Veraticus/spendtag/internal/common"
	"github.com/Veraticus/spendtag/internal/model"
	"github.com/Veraticus/spendtag/internal/rules"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and extend the classification rule table",
	}
	cmd.AddCommand(rulesShowCmd(), rulesUpdateCmd())
	return cmd
}

func rulesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current rule table as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := initServices(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			return writeJSON(cmd.OutOrStdout(), svc.rules.Get())
		},
	}
}

func rulesUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <file.json>",
		Short: "Merge new patterns into the rule table",
		Long: `Merge a partial rule table into the stored one. New buckets are appended
after the existing ones and new patterns after a bucket's existing patterns;
nothing is removed. The table version is bumped on every update, and a
checkpoint of the database is taken first.

The file has the same shape as 'spendtag rules show':
  {"classification_patterns": [{"name": "SUBSCRIPTION", "patterns": ["patreon"]}]}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read rules file: %w", err)
			}
			var partial model.PatternTable
			if err := json.Unmarshal(data, &partial); err != nil {
				return common.NewUserError("rules file is not a valid rule table", err)
			}
			if err := rules.Validate(partial); err != nil {
				return err
			}

			svc, err := initServices(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			noCheckpoint, _ := cmd.Flags().GetBool("no-checkpoint")
			if !noCheckpoint {
				manager, err := svc.storage.Checkpoints()
				if err != nil {
					return err
				}
				if _, err := manager.AutoCheckpoint(cmd.Context(), "rules-update"); err != nil {
					return fmt.Errorf("failed to checkpoint before rule update: %w", err)
				}
			}

			table, err := svc.rules.Update(cmd.Context(), partial)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Rule table updated to version %d (%d classification, %d category buckets)",
				table.Version, len(table.ClassificationPatterns), len(table.CategoryPatterns))))
			return nil
		},
	}

	cmd.Flags().Bool("no-checkpoint", false, "Skip the automatic checkpoint taken before the update")
	return cmd
}
