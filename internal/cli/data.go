package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pithecene-io/stacat/stacat"
)

func newReadCmd(a *app) *cobra.Command {
	var (
		collectionAsset string
		partition       int
	)
	cmd := &cobra.Command{
		Use:   "read HREF NAME...",
		Short: "Load an entry and print the shape of its data",
		Long: `Load the entry reached by following NAME... from the document at HREF and
print its schema. With --collection-asset, NAME... leads to a collection node
and the named collection-level asset is read instead.`,
		Example: `  stacat read ./catalog.json landsat-8-l1 LC08_L1TP_152038_20200611 B4
  stacat read ./catalog.json landsat-8-l1 --collection-asset footprint`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var (
				e   *stacat.Entry
				err error
			)
			if collectionAsset != "" {
				var n *stacat.Node
				if n, err = a.node(ctx, args[0], args[1:]); err != nil {
					return err
				}
				e, err = n.CollectionAsset(collectionAsset)
			} else {
				e, err = a.entry(ctx, args[0], args[1:])
			}
			if err != nil {
				return err
			}
			src, err := e.Open(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = src.Close() }()

			if partition >= 0 {
				d, err := src.ReadPartition(ctx, partition)
				if err != nil {
					return err
				}
				return a.print(cmd.OutOrStdout(), describeData(d))
			}
			sch, err := src.Schema(ctx)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), describeSchema(sch))
		},
	}
	cmd.Flags().StringVar(&collectionAsset, "collection-asset", "", "Read this collection-level asset of the node")
	cmd.Flags().IntVar(&partition, "partition", -1, "Read only this member file of a stacked entry")
	return cmd
}

// stackFlags are the flags shared by stack and stack-items.
type stackFlags struct {
	pattern   string
	concatDim string
	coords    []string
	read      bool
}

func (f *stackFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.pattern, "path-pattern", "", "Pattern extracting coordinates from member hrefs, e.g. s3://b/scene_{band}.TIF")
	fs.StringVar(&f.concatDim, "concat-dim", stacat.DefaultConcatDim, "Dimension the bands are concatenated along")
	fs.StringSliceVar(&f.coords, "override-coords", nil, "Explicit labels for the concat dimension, one per band")
	fs.BoolVar(&f.read, "read", false, "Load the stacked data and print its schema")
}

func (f *stackFlags) options(regrid bool) []stacat.StackOption {
	opts := []stacat.StackOption{stacat.WithConcatDim(f.concatDim)}
	if f.pattern != "" {
		opts = append(opts, stacat.WithPathPattern(f.pattern))
	}
	if len(f.coords) > 0 {
		opts = append(opts, stacat.WithOverrideCoords(f.coords...))
	}
	if regrid {
		opts = append(opts, stacat.WithRegrid())
	}
	return opts
}

// printStack prints the combined entry and, when asked, the schema of its
// materialized data.
func (a *app) printStack(cmd *cobra.Command, e *stacat.Entry, read bool) error {
	out := e.Describe()
	if read {
		sch, err := schemaOf(cmd.Context(), e)
		if err != nil {
			return err
		}
		out["data"] = describeSchema(sch)
	}
	return a.print(cmd.OutOrStdout(), out)
}

func schemaOf(ctx context.Context, e *stacat.Entry) (*stacat.Schema, error) {
	src, err := e.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = src.Close() }()
	return src.Schema(ctx)
}

func newStackCmd(a *app) *cobra.Command {
	var (
		bands []string
		sf    stackFlags
	)
	cmd := &cobra.Command{
		Use:   "stack HREF NAME... --bands B1,B2",
		Short: "Stack bands of an item into one array entry",
		Long: `Combine bands of the item reached by following NAME... from HREF into one
entry. Bands are asset keys or eo:bands common names and keep the requested
order along the concat dimension.`,
		Example: `  stacat stack ./catalog.json landsat-8-l1 LC08_L1TP_152038_20200611 --bands red,nir --read`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			n, err := a.node(ctx, args[0], args[1:])
			if err != nil {
				return err
			}
			e, err := n.StackBands(ctx, bands, sf.options(a.opts.Regrid)...)
			if err != nil {
				return err
			}
			return a.printStack(cmd, e, sf.read)
		},
	}
	cmd.Flags().StringSliceVar(&bands, "bands", nil, "Asset keys or common names to stack")
	_ = cmd.MarkFlagRequired("bands")
	sf.bind(cmd.Flags())
	return cmd
}

func newStackItemsCmd(a *app) *cobra.Command {
	var (
		items   []string
		assets  []string
		itemDim string
		sf      stackFlags
	)
	cmd := &cobra.Command{
		Use:   "stack-items HREF NAME... --items ID,ID --assets B1,B2",
		Short: "Stack the same bands of several items along a time dimension",
		Example: `  stacat stack-items ./catalog.json landsat-8-l1 \
      --items LC08_L1TP_152038_20200611,LC08_L1TP_152038_20200627 --assets red --read`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			n, err := a.node(ctx, args[0], args[1:])
			if err != nil {
				return err
			}
			opts := append(sf.options(a.opts.Regrid), stacat.WithItemDim(itemDim))
			e, err := n.StackItems(ctx, items, assets, opts...)
			if err != nil {
				return err
			}
			return a.printStack(cmd, e, sf.read)
		},
	}
	cmd.Flags().StringSliceVar(&items, "items", nil, "Item ids, in stacking order")
	cmd.Flags().StringSliceVar(&assets, "assets", nil, "Asset keys or common names to stack per item")
	cmd.Flags().StringVar(&itemDim, "item-dim", stacat.DefaultItemDim, "Dimension the items are stacked along")
	_ = cmd.MarkFlagRequired("items")
	_ = cmd.MarkFlagRequired("assets")
	sf.bind(cmd.Flags())
	return cmd
}

func newFeaturesCmd(a *app) *cobra.Command {
	var crs, out string
	cmd := &cobra.Command{
		Use:   "features HREF [NAME...]",
		Short: "Tabulate the items of an item collection",
		Long: `Build a table with one row per item of an item collection: id, properties
and geometry. With --out the table is written to a .parquet, .jsonl or .gpkg
file, optionally compressed with a trailing .gz or .zst.`,
		Example: `  stacat features ./items.json
  stacat features ./items.json --out footprints.gpkg`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			n, err := a.node(ctx, args[0], args[1:])
			if err != nil {
				return err
			}
			t, err := n.Features(ctx, crs)
			if err != nil {
				return err
			}
			if out == "" {
				return a.print(cmd.OutOrStdout(), map[string]any{
					"columns":  t.Columns,
					"rows":     t.Len(),
					"geometry": t.Geometry,
					"crs":      t.CRS,
				})
			}
			r, err := a.routes(ctx)
			if err != nil {
				return err
			}
			if err := stacat.ExportTable(ctx, r, out, t); err != nil {
				return err
			}
			a.log.Info("exported features", "href", out, "rows", t.Len())
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s\n", t.Len(), out)
			return err
		},
	}
	cmd.Flags().StringVar(&crs, "crs", "", "CRS label for the geometries (default "+stacat.DefaultCRS+")")
	cmd.Flags().StringVarP(&out, "out", "O", "", "Write the table to this href instead of printing a summary")
	return cmd
}

// describeData summarizes loaded data without its values.
func describeData(d *stacat.Data) map[string]any {
	switch {
	case d.Array != nil:
		return map[string]any{"container": string(stacat.ContainerArray), "dims": d.Array.Dims, "shape": d.Array.Shape}
	case d.Table != nil:
		return map[string]any{"container": string(stacat.ContainerTable), "columns": d.Table.Columns, "rows": d.Table.Len()}
	}
	return map[string]any{"container": string(stacat.ContainerText), "rows": len(d.Text)}
}
