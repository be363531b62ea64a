package main

import (
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	appLog "taskcal/internal/log"
	"taskcal/internal/web"
)

func newServeCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				a.cfg.Listen = listen
			}

			// Root context with cancellation on SIGINT/SIGTERM.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if a.cfg.SweepCron != "" {
				c, err := startSweepCron(a)
				if err != nil {
					return err
				}
				defer func() { <-c.Stop().Done() }()
			}

			srv := web.NewServer(a.cfg, a.store, a.sweeper, a.metrics)
			if err := srv.Run(ctx); err != nil {
				return err
			}
			appLog.Info("taskcal exiting")
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

// startSweepCron runs a global sweep on cfg.SweepCron in addition to the
// chance-based sweeps after saves.
func startSweepCron(a *app) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(a.cfg.SweepCron, func() {
		r, err := a.sweeper.RunAll()
		if err != nil {
			appLog.Error("scheduled sweep failed", err)
		}
		appLog.Info("scheduled sweep finished",
			"calendars", r.Calendars,
			"buckets_removed", r.BucketsRemoved,
			"hidden_removed", r.HiddenRemoved,
		)
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	appLog.Info("sweep schedule enabled", "cron", a.cfg.SweepCron)
	return c, nil
}
