// Package sweep prunes stale data from the task store: buckets without
// any task and hidden instances that lie further in the past than the
// retention window.
//
// Sweeping is housekeeping only. A failed or skipped sweep delays cleanup
// but never changes what a calendar shows.
package sweep

import (
	"errors"
	"math/rand/v2"
	"slices"

	appLog "taskcal/internal/log"
	"taskcal/internal/metrics"
	"taskcal/internal/model"
	"taskcal/internal/store"
)

// Scope selects what a save-triggered sweep covers.
type Scope string

const (
	ScopeCalendar Scope = "calendar"
	ScopeGlobal   Scope = "global"
)

// Config holds the sweep settings.
type Config struct {
	// Chance is the percentage (0..100) of saves that trigger a sweep.
	Chance int
	// DaysToKeep is the retention for past hidden instances, counted
	// with 31-day months.
	DaysToKeep int
	Scope      Scope
}

// Report counts what a sweep removed.
type Report struct {
	Calendars      int
	BucketsRemoved int
	HiddenRemoved  int
}

func (r *Report) add(o Report) {
	r.Calendars += o.Calendars
	r.BucketsRemoved += o.BucketsRemoved
	r.HiddenRemoved += o.HiddenRemoved
}

type Sweeper struct {
	store   *store.Store
	cfg     Config
	draw    func() int
	metrics *metrics.Metrics
}

type Option func(*Sweeper)

// WithDraw replaces the uniform [0,100) source used by AfterSave.
func WithDraw(f func() int) Option {
	return func(s *Sweeper) { s.draw = f }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

func New(st *store.Store, cfg Config, opts ...Option) *Sweeper {
	cfg.Chance = max(min(cfg.Chance, 100), 0)
	if cfg.Scope == "" {
		cfg.Scope = ScopeCalendar
	}
	s := &Sweeper{
		store: st,
		cfg:   cfg,
		draw:  func() int { return rand.IntN(100) },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ShouldRun reports whether a draw from [0,100) triggers a sweep.
func (s *Sweeper) ShouldRun(draw int) bool {
	return draw < s.cfg.Chance
}

// MaybeRun sweeps when draw is below the configured chance. The calendar
// id is ignored for the global scope.
func (s *Sweeper) MaybeRun(calendarID string, draw int) (bool, Report, error) {
	if !s.ShouldRun(draw) {
		return false, Report{}, nil
	}
	if s.cfg.Scope == ScopeGlobal {
		r, err := s.RunAll()
		return true, r, err
	}
	r, err := s.Run(calendarID)
	return true, r, err
}

// AfterSave is meant to be called after every successful write. Errors are
// logged and swallowed.
func (s *Sweeper) AfterSave(calendarID string) {
	ran, r, err := s.MaybeRun(calendarID, s.draw())
	if err != nil {
		appLog.Error("sweep after save failed", err, "calendar", calendarID)
		return
	}
	if ran {
		appLog.Info("sweep after save",
			"calendar", calendarID,
			"scope", s.cfg.Scope,
			"buckets_removed", r.BucketsRemoved,
			"hidden_removed", r.HiddenRemoved,
		)
	}
}

// RunAll sweeps every calendar. A failing calendar does not stop the
// others; all errors are returned joined.
func (s *Sweeper) RunAll() (Report, error) {
	ids, err := s.store.Calendars()
	if err != nil {
		return Report{}, err
	}
	var (
		total Report
		errs  []error
	)
	for _, id := range ids {
		r, err := s.run(id)
		total.add(r)
		if err != nil {
			errs = append(errs, err)
		}
	}
	err = errors.Join(errs...)
	s.metrics.Sweep(total.BucketsRemoved, total.HiddenRemoved, err != nil)
	return total, err
}

// Run sweeps one calendar.
func (s *Sweeper) Run(calendarID string) (Report, error) {
	r, err := s.run(calendarID)
	s.metrics.Sweep(r.BucketsRemoved, r.HiddenRemoved, err != nil)
	return r, err
}

func (s *Sweeper) run(calendarID string) (Report, error) {
	report := Report{Calendars: 1}
	months, err := s.store.Buckets(calendarID)
	if err != nil {
		return report, err
	}

	today := s.store.Calendar().CurrentDate()
	cutoff := today.ApproxDays() - s.cfg.DaysToKeep

	var errs []error
	for _, ym := range months {
		b, err := s.store.ReadBucket(calendarID, ym.Year, ym.Month)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if b.Empty() {
			if err := s.store.RemoveBucket(calendarID, ym.Year, ym.Month); err != nil {
				errs = append(errs, err)
				continue
			}
			report.BucketsRemoved++
			appLog.Debug("sweep removed empty bucket", "calendar", calendarID, "year", ym.Year, "month", ym.Month)
			continue
		}

		removed := pruneHidden(b, today, cutoff)
		if removed == 0 {
			continue
		}
		if err := s.store.WriteBucket(calendarID, b); err != nil {
			errs = append(errs, err)
			continue
		}
		report.HiddenRemoved += removed
	}
	return report, errors.Join(errs...)
}

// pruneHidden drops hidden instances of missing series and those dated
// before today and before cutoff (on the 31-day-month scale). It returns
// how many dates were removed.
func pruneHidden(b *store.Bucket, today model.Date, cutoff int) int {
	removed := 0
	for id, dates := range b.Hidden {
		hasSeries := slices.ContainsFunc(b.Repetition, func(t model.Task) bool { return t.ID == id })
		if !hasSeries {
			removed += len(dates)
			delete(b.Hidden, id)
			continue
		}
		kept := slices.DeleteFunc(dates, func(d model.Date) bool {
			return d.Before(today) && d.ApproxDays() < cutoff
		})
		removed += len(dates) - len(kept)
		if len(kept) == 0 {
			delete(b.Hidden, id)
		} else {
			b.Hidden[id] = kept
		}
	}
	return removed
}
