// Package cli implements the stacat command tree.
package cli

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pithecene-io/stacat/internal/config"
	"github.com/pithecene-io/stacat/internal/logging"
)

// NewRootCmd builds the stacat command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	a := &app{opts: config.NewOptions()}
	cmd := &cobra.Command{
		Use:   "stacat",
		Short: "Browse STAC catalogs as trees of loadable data sources",
		Long: `stacat opens a STAC catalog, collection, item or item collection and exposes
it as a lazily expanded tree. Children are fetched on demand; assets become
data-source entries that can be described, read, or stacked into arrays.

Hrefs may be local paths, file://, http(s):// or s3:// URLs. Documents ending
in .gz or .zst are decompressed transparently.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			if err := a.opts.Load(cmd.Flags()); err != nil {
				return err
			}
			log, err := logging.New(a.opts.LogLevel)
			if err != nil {
				return err
			}
			a.log = log
			return nil
		},
	}
	a.opts.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(newLsCmd(a))
	cmd.AddCommand(newDescribeCmd(a))
	cmd.AddCommand(newSerializeCmd(a))
	cmd.AddCommand(newReadCmd(a))
	cmd.AddCommand(newStackCmd(a))
	cmd.AddCommand(newStackItemsCmd(a))
	cmd.AddCommand(newFeaturesCmd(a))

	return cmd
}
