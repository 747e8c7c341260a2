package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spendtag/internal/cli"
	"github.com/Veraticus/spendtag/internal/common"
	"github.com/Veraticus/spendtag/internal/engine"
	"github.com/Veraticus/spendtag/internal/model"
)

func autotagCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autotag [transaction-ids...]",
		Short: "Classify and tag transactions in bulk",
		Long: `Classify many transactions concurrently and record their classification
and category tags. Without ids every transaction of the tenant is processed.
A failing transaction does not stop the others; failures are listed at the end.`,
		RunE: runAutotag,
	}

	cmd.Flags().Bool("force", false, "Overwrite existing tags, including manual ones")
	cmd.Flags().Bool("no-tags", false, "Classify without writing tags")
	cmd.Flags().Bool("json", false, "Print results as JSON")

	return cmd
}

func runAutotag(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	noTags, _ := cmd.Flags().GetBool("no-tags")
	asJSON, _ := cmd.Flags().GetBool("json")
	ctx := cmd.Context()

	scope, err := currentScope()
	if err != nil {
		return err
	}
	svc, err := initServices(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	var ids []string
	if len(args) > 0 {
		ids = args
	}
	opts := engine.TagOptions{CreateTags: !noTags, ForceReclassify: force}

	if asJSON {
		result, err := svc.tagger.ClassifyBatch(ctx, scope, ids, engine.BatchOptions{TagOptions: opts})
		if result != nil {
			if werr := writeJSON(cmd.OutOrStdout(), result); werr != nil {
				return werr
			}
		}
		return err
	}
	return runBatch(cmd, svc, scope, ids, opts)
}

// runBatch auto-tags ids (nil for all) behind a progress bar and prints a summary.
func runBatch(cmd *cobra.Command, svc *services, scope model.Scope, ids []string, opts engine.TagOptions) error {
	out := cmd.OutOrStdout()

	var progress *cli.Progress
	result, err := svc.tagger.ClassifyBatch(cmd.Context(), scope, ids, engine.BatchOptions{
		TagOptions: opts,
		Progress: func(done, total int) {
			if progress == nil {
				progress = cli.NewProgress(cmd.ErrOrStderr(), total, "Tagging transactions...")
			}
			progress.Update(done, total)
		},
	})
	if progress != nil && !progress.Done() {
		// Interrupted runs leave the bar mid-line.
		fmt.Fprintln(cmd.ErrOrStderr())
	}
	if err != nil && !errors.Is(err, common.ErrBatchFailed) {
		return err
	}

	counts := make(map[model.Classification]int)
	var failures [][]string
	for _, item := range result.Results {
		if item.Err != nil {
			failures = append(failures, []string{item.TransactionID, item.ErrorCode, item.Error})
			continue
		}
		counts[item.Result.Classification]++
	}

	summary := fmt.Sprintf("Succeeded: %d\nFailed:    %d\nDuration:  %s",
		result.Succeeded, result.Failed, result.Duration.Round(time.Millisecond))
	if len(counts) > 0 {
		rows := make([][]string, 0, len(counts))
		for _, c := range sortedKeys(counts) {
			rows = append(rows, []string{string(c), fmt.Sprint(counts[c])})
		}
		summary += "\n\n" + cli.RenderTable([]string{"CLASSIFICATION", "COUNT"}, rows)
	}
	fmt.Fprintln(out, cli.RenderBox(cli.ChartIcon+" Auto-tagging Complete", summary))

	if len(failures) > 0 {
		fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%d transactions failed:", len(failures))))
		fmt.Fprintln(out, cli.RenderTable([]string{"ID", "CODE", "ERROR"}, failures))
	}
	return err
}
