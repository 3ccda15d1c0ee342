package cmd

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newRoutesCmd creates the 'routes' subcommand, which prints where each
// configured route will be written without starting anything.
func newRoutesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "List configured routes and their output files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			routes, err := cfg.RouteList()
			if err != nil {
				return err
			}
			root, err := filepath.Abs(cfg.Output.Dir)
			if err != nil {
				return fmt.Errorf("resolve output directory: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SEQ\tROUTE\tDEPTH\tOUTPUT")
			for i, r := range routes {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", i, r.Path(), r.Depth(), r.OutputPath(root))
			}
			return tw.Flush()
		},
	}
}
