package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func trafficCmd(opts *rootOptions) *cobra.Command {
	var del bool
	cmd := &cobra.Command{
		Use:   "traffic [session-id]",
		Short: "List archived sessions, or the traffic archived for one session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, opts)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			archive, err := a.openArchive()
			if err != nil {
				return fmt.Errorf("open archive: %w", err)
			}
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				if del {
					return fmt.Errorf("--delete needs a session id")
				}
				sessions, err := archive.Sessions(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SESSION\tENTRIES\tARCHIVED")
				for _, s := range sessions {
					fmt.Fprintf(tw, "%s\t%d\t%s\n", s.ID, s.Entries, s.ArchivedAt.Local().Format(time.DateTime))
				}
				return tw.Flush()
			}

			if del {
				if err := archive.DeleteSession(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out, "deleted %s\n", args[0])
				return nil
			}
			entries, err := archive.ListTraffic(ctx, args[0])
			if err != nil {
				return err
			}
			return printTraffic(out, entries)
		},
	}
	cmd.Flags().BoolVar(&del, "delete", false, "delete the archived traffic of the given session")
	return cmd
}
