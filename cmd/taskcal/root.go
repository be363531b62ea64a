package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"taskcal/internal/config"
	"taskcal/internal/gregorian"
	appLog "taskcal/internal/log"
	"taskcal/internal/metrics"
	"taskcal/internal/store"
	"taskcal/internal/sweep"
)

// app is the engine wired from the effective configuration.
type app struct {
	cfg     *config.Config
	fs      afero.Fs
	store   *store.Store
	sweeper *sweep.Sweeper
	metrics *metrics.Metrics
}

func newApp(cfg *config.Config, fsys afero.Fs) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	cal := gregorian.New(gregorian.Options{
		FirstWeekday: gregorian.FirstWeekday(cfg.WeekStart),
		MinYear:      cfg.MinYear,
		MaxYear:      cfg.MaxYear,
		Location:     loc,
	})
	st := store.New(fsys, cfg.DataDir, cal)
	m := metrics.New()
	sw := sweep.New(st, sweep.Config{
		Chance:     cfg.GCOnSaveChance,
		DaysToKeep: cfg.DaysPastToKeepHiddenTasks,
		Scope:      sweep.Scope(cfg.SweepScope),
	}, sweep.WithMetrics(m))
	return &app{cfg: cfg, fs: fsys, store: st, sweeper: sw, metrics: m}, nil
}

type rootFlags struct {
	configPath string
	dataDir    string
	logLevel   string
}

// newRootCmd builds the command tree. Calendar data and export files live
// on fsys; the config file is always read from the OS filesystem.
func newRootCmd(fsys afero.Fs) *cobra.Command {
	var (
		flags rootFlags
		a     app
	)

	root := &cobra.Command{
		Use:   "taskcal",
		Short: "File-backed calendar and task tracker",
		Long: `taskcal keeps one-off and repeating tasks per calendar in monthly JSON
files and serves them over a small JSON API.

Settings come from a YAML file (created with defaults on first run) and
TASKCAL_* environment variables, which take precedence.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWithEnv(flags.configPath)
			if err != nil {
				return fmt.Errorf("load config %s: %w", flags.configPath, err)
			}
			if flags.dataDir != "" {
				cfg.DataDir = flags.dataDir
			}
			if flags.logLevel != "" {
				cfg.LogLevel = flags.logLevel
			}
			appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))

			built, err := newApp(cfg, fsys)
			if err != nil {
				return err
			}
			a = *built

			appLog.Debug("effective config",
				"config_path", flags.configPath,
				"data_dir", cfg.DataDir,
				"timezone", cfg.Timezone,
				"week_start", cfg.WeekStart,
				"years", fmt.Sprintf("%d-%d", cfg.MinYear, cfg.MaxYear),
				"gc_on_save_chance", cfg.GCOnSaveChance,
				"sweep_scope", cfg.SweepScope,
				"sweep_cron", cfg.SweepCron,
				"ical_export", cfg.FeatureICalExport,
			)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "taskcal.yaml", "Path to config file")
	pf.StringVar(&flags.dataDir, "data-dir", "", "Data folder (overrides config if set)")
	pf.StringVar(&flags.logLevel, "log-level", "", "debug, info or error (overrides config if set)")

	root.AddCommand(
		newServeCmd(&a),
		newSweepCmd(&a),
		newExportCmd(&a),
		newCalendarCmd(&a),
	)
	return root
}
