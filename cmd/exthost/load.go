package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/reglet-dev/exthost/application/loader"
	"github.com/spf13/cobra"
)

func newLoadCmd(g *globals) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "load <extensions dir>",
		Short: "Load every extension under a directory into one host",
		Long: `Load reads each extension directory under the given root, validates its
manifest, and instantiates it. With --wait the host keeps running, serving
metrics and reloading grants as configured, until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			l, err := loader.NewLoader()
			if err != nil {
				return err
			}
			exts, err := l.LoadAll(ctx, args[0])
			if err != nil {
				return err
			}

			rt, err := newHostRuntime(ctx, g.cfg, g.logger)
			if err != nil {
				return err
			}
			loaded, loadErr := rt.loadExtensions(ctx, exts)
			defer rt.close(ctx, loaded...)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tVERSION\tINTERFACE\tOPERATIONS")
			for _, ext := range loaded {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					ext.ID(), ext.Manifest().Version, ext.Version(), strings.Join(ext.Operations(), ","))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if loadErr != nil {
				return loadErr
			}

			if wait {
				return rt.serve(ctx)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Keep the host running until interrupted")
	return cmd
}
