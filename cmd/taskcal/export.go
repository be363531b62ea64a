package main

import (
	"io"

	"github.com/spf13/cobra"

	"taskcal/internal/ics"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		output string
		months int
	)
	cmd := &cobra.Command{
		Use:   "export <calendar>",
		Short: "Write a calendar as iCalendar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.store.LoadCalendar(args[0])
			if err != nil {
				return err
			}
			if months <= 0 {
				months = a.cfg.MonthsToExport
			}
			out, err := ics.Export(data, a.store.Calendar(), months)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := a.fs.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return ics.Write(w, out)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	cmd.Flags().IntVar(&months, "months", 0, "Months of one-off tasks to include (default from config)")
	return cmd
}
