package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"restreamer/internal/platform/config"

	"github.com/spf13/cobra"
)

func newScheduleCmd(opts *rootOptions) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Print the configured windows and whether they are active",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.Read(opts.configFile)
			if err != nil {
				return err
			}
			sched, err := settings.Schedule()
			if err != nil {
				return err
			}

			now := time.Now()
			if at != "" {
				if now, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("--at: %w", err)
				}
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WINDOW\tFROM\tUNTIL\tACTIVE")
			for _, win := range sched.Windows() {
				start, end := win.Interval(now)
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					win, start.Format(time.RFC3339), end.Format(time.RFC3339), yesNo(win.IsActive(now)))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\nat %s: streaming %s\n",
				now.In(sched.Windows()[0].Location()).Format(time.RFC3339), yesNo(sched.IsAnyActive(now)))
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluate at this RFC 3339 time instead of now")
	return cmd
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
