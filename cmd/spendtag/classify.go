package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spendtag/internal/cli"
	"github.com/Veraticus/spendtag/internal/engine"
)

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify [transaction-id]",
		Short: "Classify one transaction",
		Long: `Classify a transaction with the current rule table and record the
classification and category tags. Manually assigned tags are kept unless
--force is given.

With --dry-run nothing is written; instead the current tags are compared with
what the rules would assign now. Without an id, --dry-run covers every
transaction of the tenant, which is how a rule change is checked against
history before it is applied.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runClassify,
	}

	cmd.Flags().Bool("dry-run", false, "Compare current tags with the rules without writing")
	cmd.Flags().Bool("no-tags", false, "Classify without writing tags")
	cmd.Flags().Bool("force", false, "Overwrite existing tags, including manual ones")
	cmd.Flags().Bool("changed-only", false, "With --dry-run, only list transactions whose tags would change")
	cmd.Flags().Bool("json", false, "Print results as JSON")

	return cmd
}

func runClassify(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	noTags, _ := cmd.Flags().GetBool("no-tags")
	force, _ := cmd.Flags().GetBool("force")
	changedOnly, _ := cmd.Flags().GetBool("changed-only")
	asJSON, _ := cmd.Flags().GetBool("json")
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if !dryRun && len(args) == 0 {
		return fmt.Errorf("a transaction id is required unless --dry-run is set")
	}

	scope, err := currentScope()
	if err != nil {
		return err
	}
	svc, err := initServices(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	if dryRun {
		var ids []string
		if len(args) == 1 {
			ids = args
		}
		results, err := svc.tagger.DryRun(ctx, scope, ids)
		if err != nil {
			return err
		}
		changed := 0
		rows := make([][]string, 0, len(results))
		filtered := make([]engine.DryRunResult, 0, len(results))
		for _, r := range results {
			if r.Changed {
				changed++
			}
			if changedOnly && !r.Changed {
				continue
			}
			filtered = append(filtered, r)
			rows = append(rows, []string{
				r.TransactionID,
				r.Description,
				orDash(r.CurrentClassification) + " → " + string(r.ProposedClassification),
				orDash(r.CurrentCategory) + " → " + string(r.ProposedCategory),
			})
		}
		if asJSON {
			return writeJSON(out, filtered)
		}
		fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("Dry run against rule table v%d", svc.rules.Snapshot().Version())))
		fmt.Fprintln(out, cli.RenderTable([]string{"ID", "DESCRIPTION", "CLASSIFICATION", "CATEGORY"}, rows))
		fmt.Fprintln(out)
		fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("%d of %d transactions would change", changed, len(results))))
		return nil
	}

	result, err := svc.tagger.ClassifyTransaction(ctx, scope, args[0], engine.TagOptions{
		CreateTags:      !noTags,
		ForceReclassify: force,
	})
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(out, result)
	}

	fmt.Fprintln(out, cli.RenderTable(
		[]string{"ID", "CLASSIFICATION", "CATEGORY", "AUTO"},
		[][]string{{result.TransactionID, string(result.Classification), string(result.Category), fmt.Sprint(result.AutoGenerated)}},
	))
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
