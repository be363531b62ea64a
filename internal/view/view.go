// Package view resolves a requested date and view mode into the window of
// dates to display and the tasks visible on each of them.
package view

import (
	"errors"
	"fmt"
	"time"

	"taskcal/internal/gregorian"
	"taskcal/internal/model"
	"taskcal/internal/store"
)

// ErrUnknownView is returned for a view mode other than daily, weekly or
// monthly.
var ErrUnknownView = errors.New("unknown view")

// Day is one window date with its tasks, one-off tasks first.
type Day struct {
	Date    model.Date   `json:"date"`
	InMonth bool         `json:"in_month"`
	Tasks   []model.Task `json:"tasks"`
}

// Result is everything a client needs to draw one view.
type Result struct {
	View           Type       `json:"view"`
	Calendar       string     `json:"calendar"`
	Requested      model.Date `json:"requested"`
	Today          model.Date `json:"today"`
	DefaultDay     model.Date `json:"default_day"`
	MonthName      string     `json:"month_name"`
	WeekdayHeaders []string   `json:"weekday_headers"`
	Previous       Link       `json:"previous"`
	Next           Link       `json:"next"`
	Days           []Day      `json:"days"`

	Window []model.Date `json:"-"`
	Tasks  store.Tasks  `json:"-"`
}

// Selector renders views over a task store.
type Selector struct {
	store    *store.Store
	cal      *gregorian.Calendar
	decorate func(string) string
}

type Option func(*Selector)

// WithDetailsMarkup rewrites the details of every rendered task with f.
func WithDetailsMarkup(f func(string) string) Option {
	return func(s *Selector) { s.decorate = f }
}

func New(st *store.Store, opts ...Option) *Selector {
	s := &Selector{store: st, cal: st.Calendar()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Requested builds the requested date from optional query values. Missing
// values default to today; year and month are clamped into range, the day
// is taken as given and checked later by Render. Without an explicit day the
// current day of month is used, capped at the month length.
func (s *Selector) Requested(year, month, day *int) model.Date {
	today := s.cal.CurrentDate()
	y, m := today.Year, int(today.Month)
	if year != nil {
		y = *year
	}
	if month != nil {
		m = *month
	}
	y, m = s.cal.ClampYearMonth(y, m)

	d := min(today.Day, model.DaysIn(y, time.Month(m)))
	if day != nil {
		d = *day
	}
	return model.Date{Year: y, Month: time.Month(m), Day: d}
}

// Render computes the window for viewType around requested, loads the
// calendar and merges one-off tasks with series occurrences. With hidePast
// set, tasks on dates before today are dropped.
func (s *Selector) Render(viewType Type, calendarID string, requested model.Date, hidePast bool) (*Result, error) {
	strat, ok := strategies[viewType]
	if !ok {
		return nil, fmt.Errorf("view %q: %w", viewType, ErrUnknownView)
	}
	if err := s.cal.Validate(requested.Year, int(requested.Month), requested.Day); err != nil {
		return nil, err
	}

	window, err := strat.window(s.cal, requested)
	if err != nil {
		return nil, err
	}
	data, err := s.store.LoadCalendar(calendarID)
	if err != nil {
		return nil, err
	}

	tasks := store.TasksFromCalendar(window, data)
	tasks, err = store.AddRepetitiveTasksFromCalendar(window, data, tasks)
	if err != nil {
		return nil, err
	}
	today := s.cal.CurrentDate()
	if hidePast {
		store.HidePastTasks(window, today, tasks)
	}
	if s.decorate != nil {
		for _, list := range tasks {
			for i := range list {
				list[i].Details = s.decorate(list[i].Details)
			}
		}
	}

	prev, err := strat.previous(s.cal, requested)
	if err != nil {
		return nil, err
	}
	next, err := strat.next(s.cal, requested)
	if err != nil {
		return nil, err
	}

	days := make([]Day, 0, len(window))
	for _, d := range window {
		list := tasks[d]
		if list == nil {
			list = []model.Task{}
		}
		days = append(days, Day{Date: d, InMonth: d.Year == requested.Year && d.Month == requested.Month, Tasks: list})
	}

	return &Result{
		View:           viewType,
		Calendar:       calendarID,
		Requested:      requested,
		Today:          today,
		DefaultDay:     strat.defaultDay(window, requested, today),
		MonthName:      requested.Month.String(),
		WeekdayHeaders: s.cal.WeekdayHeaders(),
		Previous:       prev,
		Next:           next,
		Days:           days,
		Window:         window,
		Tasks:          tasks,
	}, nil
}
