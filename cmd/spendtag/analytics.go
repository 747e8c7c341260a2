package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Veraticus/spendtag/internal/analytics"
	"github.com/Veraticus/spendtag/internal/cli"
	"github.com/Veraticus/spendtag/internal/model"
)

func analyticsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "analytics",
		Aliases: []string{"stats"},
		Short:   "Spending analytics over tagged transactions",
	}

	cmd.PersistentFlags().Bool("json", false, "Print results as JSON")
	cmd.AddCommand(
		analyticsMetricsCmd(),
		analyticsDistributionCmd(),
		analyticsAnomaliesCmd(),
		analyticsMonthlyCmd(),
		analyticsPatternsCmd(),
	)
	return cmd
}

// analyticsRun opens the services for one analytics command and hands the
// result of fn to render, or to the JSON encoder with --json.
func analyticsRun[T any](cmd *cobra.Command, fn func(*services, model.Scope) (T, error), render func(io.Writer, T)) error {
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

	result, err := fn(svc, scope)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	render(cmd.OutOrStdout(), result)
	return nil
}

func analyticsMetricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Count, total and average amount of resources matching tag filters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rtName, _ := cmd.Flags().GetString("resource-type")
			filters, _ := cmd.Flags().GetStringToString("filter")
			rt, err := parseResourceType(rtName)
			if err != nil {
				return err
			}
			return analyticsRun(cmd,
				func(svc *services, scope model.Scope) (model.Metrics, error) {
					return svc.analytics.ComputeMetrics(cmd.Context(), scope, rt, filters)
				},
				func(w io.Writer, m model.Metrics) {
					body := fmt.Sprintf("Count:   %d\nTotal:   %s\nAverage: %s",
						m.TotalCount, m.TotalAmount.StringFixed(2), m.AverageAmount.StringFixed(2))
					fmt.Fprintln(w, cli.RenderBox(cli.ChartIcon+" Metrics", body))
				})
		},
	}

	cmd.Flags().String("resource-type", string(model.ResourceTransaction), "resource type")
	cmd.Flags().StringToString("filter", nil, "tag filters as key=value (repeatable)")
	return cmd
}

func analyticsDistributionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "distribution",
		Short: "Share of resources per classification or category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rtName, _ := cmd.Flags().GetString("resource-type")
			axisName, _ := cmd.Flags().GetString("axis")
			rt, err := parseResourceType(rtName)
			if err != nil {
				return err
			}
			axis, err := analytics.ParseAxis(axisName)
			if err != nil {
				return err
			}
			return analyticsRun(cmd,
				func(svc *services, scope model.Scope) (*analytics.Distribution, error) {
					return svc.analytics.Distribution(cmd.Context(), scope, rt, axis)
				},
				func(w io.Writer, d *analytics.Distribution) {
					rows := make([][]string, 0, len(d.Buckets))
					for _, b := range d.Buckets {
						rows = append(rows, []string{
							b.Value,
							strconv.Itoa(b.Count),
							strconv.FormatFloat(b.Percentage, 'f', 2, 64) + "%",
							b.TotalAmount.StringFixed(2),
						})
					}
					fmt.Fprintln(w, cli.FormatTitle(fmt.Sprintf("Distribution by %s", d.Axis)))
					fmt.Fprintln(w, cli.RenderTable([]string{strings.ToUpper(string(d.Axis)), "COUNT", "SHARE", "AMOUNT"}, rows))
					fmt.Fprintf(w, "\n%d resources, %s total\n", d.TotalCount, d.TotalAmount.StringFixed(2))
				})
		},
	}

	cmd.Flags().String("resource-type", string(model.ResourceTransaction), "resource type")
	cmd.Flags().String("axis", string(analytics.AxisClassification), "classification or category")
	return cmd
}

func analyticsAnomaliesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "anomalies",
		Short: "Transactions far from the mean of their classification and category",
		Long: `Group recent transactions by classification and category and flag those
whose amount deviates from the group mean by more than a multiple of the
group's standard deviation. Higher sensitivity flags more transactions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sensitivityName, _ := cmd.Flags().GetString("sensitivity")
			days, _ := cmd.Flags().GetInt("days")
			sensitivity, err := analytics.ParseSensitivity(sensitivityName)
			if err != nil {
				return err
			}
			return analyticsRun(cmd,
				func(svc *services, scope model.Scope) (*analytics.AnomalyReport, error) {
					return svc.analytics.Anomalies(cmd.Context(), scope, sensitivity, days)
				},
				renderAnomalies)
		},
	}

	cmd.Flags().String("sensitivity", string(analytics.SensitivityMedium), "low, medium or high")
	cmd.Flags().Int("days", 90, "look-back window in days")
	return cmd
}

func renderAnomalies(w io.Writer, r *analytics.AnomalyReport) {
	fmt.Fprintln(w, cli.FormatTitle(fmt.Sprintf("Anomalies, %s sensitivity (%.1fσ), last %d days",
		r.Sensitivity, r.Multiplier, r.PeriodDays)))
	if len(r.Anomalies) == 0 {
		fmt.Fprintln(w, cli.FormatSuccess(fmt.Sprintf("Nothing unusual in %d transactions", r.Transactions)))
		return
	}
	rows := make([][]string, 0, len(r.Anomalies))
	for _, a := range r.Anomalies {
		rows = append(rows, []string{
			a.Date.Format("2006-01-02"),
			a.Description,
			a.Amount.StringFixed(2),
			a.GroupMean.StringFixed(2),
			strconv.FormatFloat(a.DeviationScore, 'f', 2, 64),
			string(a.Classification) + "/" + string(a.Category),
		})
	}
	fmt.Fprintln(w, cli.RenderTable([]string{"DATE", "DESCRIPTION", "AMOUNT", "GROUP MEAN", "SCORE", "GROUP"}, rows))
	fmt.Fprintf(w, "\n%d of %d transactions flagged across %d groups\n", len(r.Anomalies), r.Transactions, r.GroupsAnalyzed)
}

func analyticsMonthlyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monthly",
		Short: "Spending per calendar month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			months, _ := cmd.Flags().GetInt("months")
			return analyticsRun(cmd,
				func(svc *services, scope model.Scope) (*analytics.MonthlyBreakdown, error) {
					return svc.analytics.MonthlyBreakdown(cmd.Context(), scope, months)
				},
				func(w io.Writer, m *analytics.MonthlyBreakdown) {
					rows := make([][]string, 0, len(m.Periods))
					for _, p := range m.Periods {
						top, amount := largest(p.ByCategory)
						rows = append(rows, []string{
							p.Start.Format("2006-01"),
							strconv.Itoa(p.Count),
							p.TotalAmount.StringFixed(2),
							top,
							amount,
						})
					}
					fmt.Fprintln(w, cli.FormatTitle(fmt.Sprintf("Last %d months", m.MonthsAnalyzed)))
					fmt.Fprintln(w, cli.RenderTable([]string{"MONTH", "COUNT", "TOTAL", "TOP CATEGORY", "AMOUNT"}, rows))
				})
		},
	}

	cmd.Flags().Int("months", 6, "number of calendar months, including the current one")
	return cmd
}

func analyticsPatternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "How often each classification and category occurs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			typeName, _ := cmd.Flags().GetString("type")
			patternType, err := analytics.ParsePatternType(typeName)
			if err != nil {
				return err
			}
			return analyticsRun(cmd,
				func(svc *services, scope model.Scope) (*analytics.PatternReport, error) {
					return svc.analytics.Patterns(cmd.Context(), scope, patternType)
				},
				renderPatterns)
		},
	}

	cmd.Flags().String("type", string(analytics.PatternAll), "classification, category or all")
	return cmd
}

func renderPatterns(w io.Writer, r *analytics.PatternReport) {
	counts := func(title string, m map[string]int) {
		if len(m) == 0 {
			return
		}
		rows := make([][]string, 0, len(m))
		for _, k := range sortedKeys(m) {
			rows = append(rows, []string{k, strconv.Itoa(m[k])})
		}
		fmt.Fprintln(w, cli.RenderTable([]string{title, "COUNT"}, rows))
		fmt.Fprintln(w)
	}
	counts("CLASSIFICATION", r.Classifications)
	counts("CATEGORY", r.Categories)

	if len(r.Joint) > 0 {
		var rows [][]string
		for _, class := range sortedKeys(r.Joint) {
			for _, cat := range sortedKeys(r.Joint[class]) {
				rows = append(rows, []string{class, cat, strconv.Itoa(r.Joint[class][cat])})
			}
		}
		fmt.Fprintln(w, cli.RenderTable([]string{"CLASSIFICATION", "CATEGORY", "COUNT"}, rows))
	}
}

// largest returns the biggest entry of an amount breakdown.
func largest(m map[string]decimal.Decimal) (string, string) {
	var (
		name string
		best decimal.Decimal
	)
	for _, k := range sortedKeys(m) {
		if name == "" || m[k].GreaterThan(best) {
			name, best = k, m[k]
		}
	}
	if name == "" {
		return "-", "-"
	}
	return name, best.StringFixed(2)
}
