package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. TASKCAL_DATA_DIR.
const EnvPrefix = "TASKCAL_"

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen" env:"LISTEN"`

	// DataDir holds one directory per calendar.
	DataDir string `yaml:"data_dir" json:"data_dir" env:"DATA_DIR"`

	// Timezone is the IANA zone used to decide what "today" is, or "Local".
	Timezone string `yaml:"timezone" json:"timezone" env:"TIMEZONE"`

	// LogLevel is one of debug, info, error.
	LogLevel string `yaml:"log_level" json:"log_level" env:"LOG_LEVEL"`

	// MinYear and MaxYear bound every date the API accepts.
	MinYear int `yaml:"min_year" json:"min_year" env:"MIN_YEAR"`
	MaxYear int `yaml:"max_year" json:"max_year" env:"MAX_YEAR"`

	// WeekStart controls which weekday is treated as the first day of the week
	// in calendar views. Supported values:
	//   - "monday" (default)
	//   - "sunday"
	WeekStart string `yaml:"week_start" json:"week_start" env:"WEEK_START"`

	// DaysPastToKeepHiddenTasks is how long hidden series instances survive
	// the sweep once their date has passed.
	DaysPastToKeepHiddenTasks int `yaml:"days_past_to_keep_hidden_tasks" json:"days_past_to_keep_hidden_tasks" env:"DAYS_PAST_TO_KEEP_HIDDEN_TASKS"`

	// GCOnSaveChance is the percentage (0-100) of saves followed by a sweep.
	GCOnSaveChance int `yaml:"gc_on_save_chance" json:"gc_on_save_chance" env:"GC_ON_SAVE_CHANCE"`

	// SweepScope is "calendar" (only the saved calendar) or "global".
	SweepScope string `yaml:"sweep_scope" json:"sweep_scope" env:"SWEEP_SCOPE"`

	// SweepCron, when set, is a standard 5-field cron schedule for a global
	// sweep run by the server.
	SweepCron string `yaml:"sweep_cron" json:"sweep_cron" env:"SWEEP_CRON"`

	// HidePastTasks is the default for views that do not pass hide_past.
	HidePastTasks bool `yaml:"hide_past_tasks" json:"hide_past_tasks" env:"HIDE_PAST_TASKS"`

	// AutoDecorateTaskDetailsHyperlink turns URLs in task details into links.
	AutoDecorateTaskDetailsHyperlink bool `yaml:"auto_decorate_task_details_hyperlink" json:"auto_decorate_task_details_hyperlink" env:"AUTO_DECORATE_TASK_DETAILS_HYPERLINK"`

	// FeatureICalExport enables the export.ics endpoint.
	FeatureICalExport bool `yaml:"feature_ical_export" json:"feature_ical_export" env:"FEATURE_ICAL_EXPORT"`

	// MonthsToExport is how many months of one-off tasks the export holds.
	MonthsToExport int `yaml:"months_to_export" json:"months_to_export" env:"MONTHS_TO_EXPORT"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty" env:"-"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:                           "127.0.0.1:5000",
		DataDir:                          "data",
		Timezone:                         "Local",
		LogLevel:                         "info",
		MinYear:                          2017,
		MaxYear:                          2200,
		WeekStart:                        "monday",
		DaysPastToKeepHiddenTasks:        62,
		GCOnSaveChance:                   30,
		SweepScope:                       "calendar",
		SweepCron:                        "",
		HidePastTasks:                    false,
		AutoDecorateTaskDetailsHyperlink: true,
		FeatureICalExport:                false,
		MonthsToExport:                   6,
		BasicAuth:                        nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	switch c.LogLevel = strings.ToLower(c.LogLevel); c.LogLevel {
	case "debug", "info", "error":
	default:
		c.LogLevel = d.LogLevel
	}
	if c.MinYear <= 0 {
		c.MinYear = d.MinYear
	}
	if c.MaxYear < c.MinYear {
		c.MaxYear = max(d.MaxYear, c.MinYear)
	}

	// Unknown week starts fall back to monday.
	switch c.WeekStart = strings.ToLower(c.WeekStart); c.WeekStart {
	case "monday", "sunday":
	default:
		c.WeekStart = "monday"
	}

	if c.DaysPastToKeepHiddenTasks < 0 {
		c.DaysPastToKeepHiddenTasks = d.DaysPastToKeepHiddenTasks
	}
	c.GCOnSaveChance = max(0, min(100, c.GCOnSaveChance))

	switch c.SweepScope {
	case "calendar", "global":
	default:
		c.SweepScope = d.SweepScope
	}
	c.SweepCron = strings.TrimSpace(c.SweepCron)
	if c.MonthsToExport < 1 {
		c.MonthsToExport = d.MonthsToExport
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
}

// Validate reports settings Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.SweepCron != "" {
		if _, err := cron.ParseStandard(c.SweepCron); err != nil {
			return fmt.Errorf("sweep_cron %q: %w", c.SweepCron, err)
		}
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML over the defaults, so absent keys keep their default
//   - normalize
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return cfg, nil
}

// ApplyEnv overlays TASKCAL_* variables on cfg. A nil environ reads the
// process environment.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix, Environment: environ}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	cfg.Normalize()
	return nil
}

// LoadWithEnv is Load followed by ApplyEnv on the process environment and
// Validate. The file on disk never receives environment values.
func LoadWithEnv(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg, nil); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".taskcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
