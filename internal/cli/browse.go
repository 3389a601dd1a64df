package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newLsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ls HREF [NAME...]",
		Short: "List the children of a node",
		Long: `List the children of the node reached by following NAME... from the document
at HREF. Nested nodes show their kind; asset entries show their loading strategy.`,
		Example: `  stacat ls ./catalog.json
  stacat ls s3://bucket/catalog.json landsat-8-l1 LC08_L1TP_152038_20200611`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			n, err := a.node(ctx, args[0], args[1:])
			if err != nil {
				return err
			}
			children, err := n.Children(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, c := range children {
				if c.Node != nil {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name, c.Node.Kind(), c.Node.Href())
					continue
				}
				fmt.Fprintf(tw, "%s\tentry(%s)\t%s\n", c.Name, c.Entry.Strategy(), c.Entry.MediaType())
			}
			return tw.Flush()
		},
	}
}

func newDescribeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "describe HREF [NAME...]",
		Short: "Describe a node or an entry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.walk(ctx, args[0], args[1:])
			if err != nil {
				return err
			}
			if c.Entry != nil {
				d := c.Entry.Describe()
				if diags := c.Entry.Diagnostics(); len(diags) > 0 {
					msgs := make([]string, len(diags))
					for i, dg := range diags {
						msgs[i] = string(dg.Kind) + ": " + dg.Message
					}
					d["diagnostics"] = msgs
				}
				return a.print(cmd.OutOrStdout(), d)
			}
			d, err := describeNode(ctx, c.Node)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), d)
		},
	}
}

func newSerializeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serialize HREF [NAME...]",
		Short: "Render a node and its direct children as YAML",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			n, err := a.node(ctx, args[0], args[1:])
			if err != nil {
				return err
			}
			out, err := n.Serialize(ctx)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
