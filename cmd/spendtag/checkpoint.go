package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spendtag/internal/cli"
	"github.com/Veraticus/spendtag/internal/storage"
)

func checkpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage database checkpoints",
		Long: `Create, list, restore, and delete database checkpoints.

Checkpoints save the whole database (every tenant's transactions, tags, views
and the rule table) so a bad import or rule change can be rolled back.
'spendtag rules update' takes one automatically.`,
		Example: `  spendtag checkpoint create --tag pre-2024-import
  spendtag checkpoint list
  spendtag checkpoint restore pre-2024-import`,
	}

	cmd.AddCommand(createCheckpointCmd(), listCheckpointsCmd(), restoreCheckpointCmd(), deleteCheckpointCmd())
	return cmd
}

func createCheckpointCmd() *cobra.Command {
	var tag, description string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			manager, err := store.Checkpoints()
			if err != nil {
				return err
			}
			info, err := manager.Create(ctx, tag, description)
			if err != nil {
				return fmt.Errorf("failed to create checkpoint: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created checkpoint %s (%d transactions, %d tags, %s)",
				info.ID, info.RowCounts["transactions"], info.RowCounts["tags"], formatBytes(info.FileSize))))
			return nil
		},
	}

	cmd.Flags().StringVarP(&tag, "tag", "t", "", "checkpoint id (default: timestamp)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "checkpoint description")
	return cmd
}

func listCheckpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List checkpoints, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			manager, err := store.Checkpoints()
			if err != nil {
				return err
			}
			checkpoints, err := manager.List(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(checkpoints) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No checkpoints found"))
				return nil
			}
			rows := make([][]string, 0, len(checkpoints))
			for _, c := range checkpoints {
				id := c.ID
				if c.IsAuto {
					id += " (auto)"
				}
				rows = append(rows, []string{
					id,
					c.CreatedAt.Local().Format("2006-01-02 15:04"),
					fmt.Sprint(c.RowCounts["transactions"]),
					fmt.Sprint(c.RowCounts["tags"]),
					fmt.Sprintf("v%d", c.RuleVersion),
					formatBytes(c.FileSize),
					c.Description,
				})
			}
			fmt.Fprintln(out, cli.RenderTable([]string{"ID", "CREATED", "TRANSACTIONS", "TAGS", "RULES", "SIZE", "DESCRIPTION"}, rows))
			return nil
		},
	}
}

func restoreCheckpointCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <checkpoint-id>",
		Short: "Replace the database with a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := storage.RestoreCheckpoint(cmd.Context(), appConfig.Database.Path, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Restored checkpoint "+args[0]))
			return nil
		},
	}
}

func deleteCheckpointCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <checkpoint-id>",
		Short: "Delete a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			manager, err := store.Checkpoints()
			if err != nil {
				return err
			}
			if err := manager.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Deleted checkpoint "+args[0]))
			return nil
		},
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
