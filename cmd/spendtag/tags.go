package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spendtag/internal/cli"
	"github.com/Veraticus/spendtag/internal/model"
)

func tagsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Apply, remove and query tags",
	}

	cmd.PersistentFlags().String("resource-type", string(model.ResourceTransaction), "resource type (transaction, account, budget, fee)")
	cmd.PersistentFlags().Bool("json", false, "Print results as JSON")

	cmd.AddCommand(tagsApplyCmd(), tagsRemoveCmd(), tagsRestoreCmd(), tagsListCmd(), tagsQueryCmd())
	return cmd
}

func tagsApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <resource-id> <key> <value>",
		Short: "Tag a resource",
		Long: `Attach a key/value tag to a resource. Single-valued keys such as
classification and category are updated in place; other keys accumulate.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			rtName, _ := cmd.Flags().GetString("resource-type")
			tagType, _ := cmd.Flags().GetString("type")
			label, _ := cmd.Flags().GetString("label")
			description, _ := cmd.Flags().GetString("description")
			color, _ := cmd.Flags().GetString("color")
			ctx := cmd.Context()

			scope, err := currentScope()
			if err != nil {
				return err
			}
			rt, err := parseResourceType(rtName)
			if err != nil {
				return err
			}
			svc, err := initServices(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			tag, err := svc.tags.ApplyTag(ctx, scope, model.ResourceRef{Type: rt, ID: args[0]}, args[1], args[2], model.TagAttributes{
				Type:        model.TagType(tagType),
				Label:       label,
				Description: description,
				Color:       color,
			})
			if err != nil {
				return err
			}
			return printTags(cmd, []model.Tag{*tag})
		},
	}

	cmd.Flags().String("type", string(model.TagTypeUser), "tag type (user, organization, role, category)")
	cmd.Flags().String("label", "", "display label")
	cmd.Flags().String("description", "", "description")
	cmd.Flags().String("color", "", "display color, e.g. #4ECDC4")
	return cmd
}

func tagsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <tag-id>",
		Short: "Deactivate a tag",
		Long:  "Deactivate a tag. The tag is kept for history and can be restored.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			if err := svc.tags.RemoveTag(ctx, scope, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Removed tag "+args[0]))
			return nil
		},
	}
}

func tagsRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <tag-id>",
		Short: "Reactivate a removed tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			tag, err := svc.tags.RestoreTag(ctx, scope, args[0])
			if err != nil {
				return err
			}
			return printTags(cmd, []model.Tag{*tag})
		},
	}
}

func tagsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <resource-id>",
		Short: "List the active tags of a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rtName, _ := cmd.Flags().GetString("resource-type")
			ctx := cmd.Context()

			scope, err := currentScope()
			if err != nil {
				return err
			}
			rt, err := parseResourceType(rtName)
			if err != nil {
				return err
			}
			svc, err := initServices(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			tags, err := svc.tags.GetResourceTags(ctx, scope, model.ResourceRef{Type: rt, ID: args[0]})
			if err != nil {
				return err
			}
			return printTags(cmd, tags)
		},
	}
}

func tagsQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Find resources carrying every given tag",
		Example: `  spendtag tags query --filter classification=SUBSCRIPTION
  spendtag tags query --filter category=FOOD_DINING,priority=high`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rtName, _ := cmd.Flags().GetString("resource-type")
			filters, _ := cmd.Flags().GetStringToString("filter")
			asJSON, _ := cmd.Flags().GetBool("json")
			ctx := cmd.Context()

			scope, err := currentScope()
			if err != nil {
				return err
			}
			rt, err := parseResourceType(rtName)
			if err != nil {
				return err
			}
			svc, err := initServices(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			ids, err := svc.tags.QueryResources(ctx, scope, rt, filters)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, ids)
			}
			for _, id := range ids {
				fmt.Fprintln(out, id)
			}
			return nil
		},
	}

	cmd.Flags().StringToString("filter", nil, "tag filters as key=value (repeatable)")
	return cmd
}

func printTags(cmd *cobra.Command, tags []model.Tag) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		return writeJSON(cmd.OutOrStdout(), tags)
	}
	return renderTags(cmd.OutOrStdout(), tags)
}

func renderTags(w io.Writer, tags []model.Tag) error {
	if len(tags) == 0 {
		_, err := fmt.Fprintln(w, cli.FormatInfo("No active tags"))
		return err
	}
	rows := make([][]string, 0, len(tags))
	for _, t := range tags {
		source := "manual"
		if t.AutoGenerated() {
			source = "auto"
		}
		rows = append(rows, []string{t.ID, t.Resource.String(), t.Key, t.Value, string(t.Type), source})
	}
	_, err := fmt.Fprintln(w, cli.RenderTable([]string{"ID", "RESOURCE", "KEY", "VALUE", "TYPE", "SOURCE"}, rows))
	return err
}
