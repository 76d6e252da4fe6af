package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func targetsCmd(opts *rootOptions) *cobra.Command {
	var discoveryURL string
	cmd := &cobra.Command{
		Use:   "targets",
		Short: "List the debuggable targets of a remote-debugging host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, opts)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			if discoveryURL != "" {
				a.cfg.Discovery.URL = discoveryURL
			}
			targets, err := a.discovery().Targets(ctx)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tTITLE\tURL\tDEBUGGER")
			for _, t := range targets {
				ws := t.WebSocketDebuggerURL
				if ws == "" {
					ws = "(attached)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Type, t.Title, t.URL, ws)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&discoveryURL, "discovery-url", "", "override discovery.url")
	return cmd
}
