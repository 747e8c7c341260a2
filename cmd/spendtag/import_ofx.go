package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Veraticus/spendtag/internal/cli"
	"github.com/Veraticus/spendtag/internal/engine"
	"github.com/Veraticus/spendtag/internal/model"
	"github.com/Veraticus/spendtag/internal/ofx"
)

func importOFXCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-ofx [files...]",
		Short: "Import transactions from OFX/QFX files",
		Long: `Import ledger transactions from OFX or QFX files exported from your bank.
Transactions are owned by the selected tenant. Re-importing a file is safe:
transactions already in the ledger are left untouched.

Examples:
  # Import single file
  spendtag import-ofx --tenant-id alice ~/Downloads/checking_jan_2024.qfx

  # Import every statement in a directory and tag them
  spendtag import-ofx --tenant-id alice --autotag ~/Downloads/*.qfx`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImportOFX,
	}

	cmd.Flags().BoolP("dry-run", "d", false, "Preview import without saving")
	cmd.Flags().Bool("autotag", false, "Auto-tag the imported transactions")

	return cmd
}

// expandFiles resolves glob patterns, keeping literal paths that exist.
func expandFiles(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(pattern); err == nil {
				files = append(files, pattern)
			} else {
				slog.Warn("No files found matching pattern", "pattern", pattern)
			}
			continue
		}
		files = append(files, matches...)
	}
	return files, nil
}

func runImportOFX(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	autotag, _ := cmd.Flags().GetBool("autotag")
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	scope, err := currentScope()
	if err != nil {
		return err
	}

	files, err := expandFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found to import")
	}

	parser := ofx.NewParser(slog.Default())
	var transactions []model.Transaction
	seen := make(map[string]bool)
	perFile := make(map[string]int)

	for _, path := range files {
		parsed, err := parseOFXFile(cmd, parser, scope, path)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to parse OFX file", "file", path, "error", err)
			continue
		}

		added := 0
		for _, txn := range parsed {
			if !seen[txn.ID] {
				seen[txn.ID] = true
				transactions = append(transactions, txn)
				added++
			}
		}
		perFile[filepath.Base(path)] = added
	}

	if len(transactions) == 0 {
		fmt.Fprintln(out, cli.FormatWarning("No transactions found in any file"))
		return nil
	}

	fmt.Fprintln(out, cli.RenderBox("Import Summary", summarizeImport(perFile, transactions)))

	if dryRun {
		fmt.Fprintln(out, cli.FormatInfo("Dry run complete, no data saved"))
		return nil
	}

	svc, err := initServices(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	if err := svc.storage.SaveTransactions(ctx, transactions); err != nil {
		return fmt.Errorf("failed to save transactions: %w", err)
	}
	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Saved %d transactions for %s", len(transactions), scope)))

	if !autotag {
		return nil
	}
	ids := make([]string, len(transactions))
	for i, txn := range transactions {
		ids[i] = txn.ID
	}
	return runBatch(cmd, svc, scope, ids, engine.TagOptions{CreateTags: true})
}

func parseOFXFile(cmd *cobra.Command, parser *ofx.Parser, scope model.Scope, path string) ([]model.Transaction, error) {
	f, err := os.Open(path) //nolint:gosec // user-supplied import path
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return parser.ParseFile(cmd.Context(), scope, f)
}

func summarizeImport(perFile map[string]int, transactions []model.Transaction) string {
	names := make([]string, 0, len(perFile))
	for name := range perFile {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name, fmt.Sprint(perFile[name])})
	}

	oldest, newest := transactions[0].Date, transactions[0].Date
	var debits, credits decimal.Decimal
	for _, txn := range transactions {
		if txn.Date.Before(oldest) {
			oldest = txn.Date
		}
		if txn.Date.After(newest) {
			newest = txn.Date
		}
		switch txn.Direction {
		case model.DirectionDebit:
			debits = debits.Add(txn.Amount)
		case model.DirectionCredit:
			credits = credits.Add(txn.Amount)
		}
	}

	return cli.RenderTable([]string{"FILE", "TRANSACTIONS"}, rows) +
		fmt.Sprintf("\n\nDate range: %s to %s", oldest.Format("2006-01-02"), newest.Format("2006-01-02")) +
		fmt.Sprintf("\nDebits:     %s", debits.StringFixed(2)) +
		fmt.Sprintf("\nCredits:    %s", credits.StringFixed(2))
}
