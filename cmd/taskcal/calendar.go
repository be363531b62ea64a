package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCalendarCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Manage calendars",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "create <id>",
			Short: "Create an empty calendar",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.store.CreateCalendar(args[0])
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List calendars",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ids, err := a.store.Calendars()
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			},
		},
	)
	return cmd
}
