package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spendtag/internal/analytics"
	"github.com/Veraticus/spendtag/internal/cli"
	"github.com/Veraticus/spendtag/internal/common"
	"github.com/Veraticus/spendtag/internal/model"
)

func viewsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "views",
		Short: "Saved, cached analytics queries",
	}

	cmd.PersistentFlags().Bool("json", false, "Print results as JSON")
	cmd.AddCommand(viewsCreateCmd(), viewsGetCmd(), viewsListCmd(), viewsRefreshCmd())
	return cmd
}

func viewsCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "create <name>",
		Short:   "Save a tag query and compute it",
		Example: `  spendtag views create Subscriptions --filter classification=SUBSCRIPTION --ttl 24h --auto-refresh`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, _ := cmd.Flags().GetStringToString("filter")
			rtNames, _ := cmd.Flags().GetStringSlice("resource-type")
			description, _ := cmd.Flags().GetString("description")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			autoRefresh, _ := cmd.Flags().GetBool("auto-refresh")

			spec := analytics.ViewSpec{
				Name:            args[0],
				Description:     description,
				TagFilters:      filters,
				CacheTTLSeconds: int(ttl / time.Second),
				AutoRefresh:     autoRefresh,
			}
			for _, name := range rtNames {
				rt, err := parseResourceType(name)
				if err != nil {
					return err
				}
				spec.ResourceTypes = append(spec.ResourceTypes, rt)
			}

			return withViews(cmd, func(svc *services, scope model.Scope) (*model.AnalyticsView, error) {
				return svc.views.Create(cmd.Context(), scope, spec)
			})
		},
	}

	cmd.Flags().StringToString("filter", nil, "tag filters as key=value (repeatable, required)")
	cmd.Flags().StringSlice("resource-type", nil, "resource types to include (default: transaction)")
	cmd.Flags().String("description", "", "description")
	cmd.Flags().Duration("ttl", 0, "cache lifetime (default: views.default_cache_ttl)")
	cmd.Flags().Bool("auto-refresh", false, "recompute on read once the cache is stale")
	return cmd
}

func viewsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <view-id>",
		Short: "Show a view's cached metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withViews(cmd, func(svc *services, scope model.Scope) (*model.AnalyticsView, error) {
				return svc.views.Get(cmd.Context(), scope, args[0])
			})
		},
	}
}

func viewsRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <view-id>",
		Short: "Recompute a view now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withViews(cmd, func(svc *services, scope model.Scope) (*model.AnalyticsView, error) {
				return svc.views.Refresh(cmd.Context(), scope, args[0])
			})
		},
	}
}

func viewsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the tenant's views",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			scope, err := currentScope()
			if err != nil {
				return err
			}
			svc, err := initServices(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			views, err := svc.views.List(ctx, scope)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, views)
			}
			if len(views) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No views yet; create one with 'spendtag views create'"))
				return nil
			}

			now := time.Now()
			rows := make([][]string, 0, len(views))
			for _, view := range views {
				rows = append(rows, []string{
					view.ID,
					view.Name,
					cli.StatusBadge(string(view.Status)),
					cli.Freshness(view.IsStale(now)),
					formatComputed(view.LastComputed),
				})
			}
			fmt.Fprintln(out, cli.RenderTable([]string{"ID", "NAME", "STATUS", "CACHE", "COMPUTED"}, rows))
			return nil
		},
	}
}

// withViews runs fn and prints the resulting view. A view whose computation
// failed is still printed before the error is returned.
func withViews(cmd *cobra.Command, fn func(*services, model.Scope) (*model.AnalyticsView, error)) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	scope, err := currentScope()
	if err != nil {
		return err
	}
	svc, err := initServices(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	view, err := fn(svc, scope)
	if err != nil && (view == nil || !errors.Is(err, common.ErrComputationFailed)) {
		return err
	}
	if asJSON {
		if werr := writeJSON(out, view); werr != nil {
			return werr
		}
		return err
	}
	renderView(out, view)
	return err
}

func renderView(w io.Writer, view *model.AnalyticsView) {
	body := fmt.Sprintf("ID:       %s\nFilters:  %v\nStatus:   %s\nComputed: %s\nTTL:      %s",
		view.ID, view.TagFilters, view.Status, formatComputed(view.LastComputed),
		time.Duration(view.CacheTTLSeconds)*time.Second)
	if view.Error != "" {
		body += "\nError:    " + view.Error
	}

	if m := view.CachedMetrics; m != nil {
		rows := make([][]string, 0, len(m.ByResourceType)+1)
		for _, rt := range sortedKeys(m.ByResourceType) {
			rm := m.ByResourceType[rt]
			rows = append(rows, []string{string(rt), fmt.Sprint(rm.TotalCount), rm.TotalAmount.StringFixed(2), rm.AverageAmount.StringFixed(2)})
		}
		rows = append(rows, []string{"total", fmt.Sprint(m.TotalCount), m.TotalAmount.StringFixed(2), m.AverageAmount.StringFixed(2)})
		body += "\n\n" + cli.RenderTable([]string{"RESOURCE", "COUNT", "TOTAL", "AVERAGE"}, rows)
	}

	fmt.Fprintln(w, cli.RenderBox(cli.ChartIcon+" "+view.Name, body))
}

func formatComputed(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04")
}
