package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"taskcal/internal/sweep"
)

func newSweepCmd(a *app) *cobra.Command {
	var calendarID string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Prune empty buckets and expired hidden instances now",
		Long: `sweep runs the maintenance sweep unconditionally, for one calendar or
for every calendar when --calendar is not given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				r   sweep.Report
				err error
			)
			if calendarID != "" {
				r, err = a.sweeper.Run(calendarID)
			} else {
				r, err = a.sweeper.RunAll()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "calendars: %d, buckets removed: %d, hidden instances removed: %d\n",
				r.Calendars, r.BucketsRemoved, r.HiddenRemoved)
			return err
		},
	}
	cmd.Flags().StringVar(&calendarID, "calendar", "", "Only sweep this calendar")
	return cmd
}
