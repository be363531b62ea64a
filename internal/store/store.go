// Package store persists tasks as one JSON bucket per calendar and month
// and answers the queries the calendar views need.
//
// Every write is a whole-bucket read-modify-write without locking: two
// writers racing on the same (calendar, year, month) can lose an update.
package store

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/afero"

	"taskcal/internal/gregorian"
	appLog "taskcal/internal/log"
	"taskcal/internal/model"
	"taskcal/internal/recurrence"
)

// Store is the file-backed task store.
type Store struct {
	fs   afero.Fs
	root string
	cal  *gregorian.Calendar
	now  model.Clock
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the clock used for id allocation.
func WithClock(c model.Clock) Option {
	return func(s *Store) { s.now = c }
}

// New returns a Store rooted at root on fsys. Pass afero.NewOsFs() in
// production and afero.NewMemMapFs() in tests.
func New(fsys afero.Fs, root string, cal *gregorian.Calendar, opts ...Option) *Store {
	s := &Store{
		fs:   fsys,
		root: root,
		cal:  cal,
		now:  time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Calendar returns the date engine the store validates against.
func (s *Store) Calendar() *gregorian.Calendar { return s.cal }

// CreateCalendar creates an empty calendar. Creating an existing one is a
// no-op.
func (s *Store) CreateCalendar(calendarID string) error {
	dir, err := s.calendarDir(calendarID)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	appLog.Info("calendar created", "calendar", calendarID)
	return nil
}

// CalendarData is every bucket of one calendar, as loaded for rendering.
type CalendarData struct {
	ID      string
	Buckets map[gregorian.YearMonth]*Bucket
	// order keeps bucket iteration deterministic.
	order []gregorian.YearMonth
}

func (d *CalendarData) bucket(date model.Date) *Bucket {
	return d.Buckets[gregorian.YearMonth{Year: date.Year, Month: int(date.Month)}]
}

// Series returns every repeating task of the calendar, ordered by anchor
// month and then by storage order.
func (d *CalendarData) Series() []model.Task {
	out := make([]model.Task, 0)
	for _, ym := range d.order {
		out = append(out, d.Buckets[ym].Repetition...)
	}
	return out
}

// Hidden returns the hidden dates of a series.
func (d *CalendarData) Hidden(taskID int64) map[model.Date]bool {
	for _, ym := range d.order {
		b := d.Buckets[ym]
		for _, t := range b.Repetition {
			if t.ID == taskID {
				return b.HiddenSet(taskID)
			}
		}
	}
	return nil
}

// LoadCalendar reads every bucket of a calendar. An unknown calendar is
// ErrNotFound.
func (s *Store) LoadCalendar(calendarID string) (*CalendarData, error) {
	months, err := s.Buckets(calendarID)
	if err != nil {
		return nil, err
	}
	data := &CalendarData{
		ID:      calendarID,
		Buckets: make(map[gregorian.YearMonth]*Bucket, len(months)),
		order:   months,
	}
	for _, ym := range months {
		b, err := s.ReadBucket(calendarID, ym.Year, ym.Month)
		if err != nil {
			return nil, err
		}
		data.Buckets[ym] = b
	}
	return data, nil
}

// CreateTask stores a new task and returns its id.
//
// A one-off task needs a date and lands in that day of its month bucket.
// A repeating task is anchored at date, or at today when date is nil, and
// is stored in the anchor month's bucket only.
func (s *Store) CreateTask(calendarID string, date *model.Date, fields model.Fields, rep *model.Repetition) (int64, error) {
	if rep != nil {
		return s.createSeries(calendarID, date, fields, *rep)
	}
	if date == nil {
		return 0, fmt.Errorf("one-off task without a date: %w", model.ErrInvalidDate)
	}
	if err := s.cal.Validate(date.Year, int(date.Month), date.Day); err != nil {
		return 0, err
	}

	b, err := s.readOrNewBucket(calendarID, date.Year, int(date.Month))
	if err != nil {
		return 0, err
	}
	task := model.Task{ID: s.nextID(b.ids()), Fields: fields}
	b.Normal[date.Day] = append(b.Normal[date.Day], task)
	if err := s.WriteBucket(calendarID, b); err != nil {
		return 0, err
	}
	appLog.Info("task created", "calendar", calendarID, "date", date.String(), "id", task.ID)
	return task.ID, nil
}

func (s *Store) createSeries(calendarID string, date *model.Date, fields model.Fields, rep model.Repetition) (int64, error) {
	anchor := s.cal.CurrentDate()
	if date != nil {
		anchor = *date
	}
	if err := s.cal.Validate(anchor.Year, int(anchor.Month), anchor.Day); err != nil {
		return 0, err
	}
	rep.Anchor = anchor
	if err := rep.Validate(); err != nil {
		return 0, err
	}

	data, err := s.LoadCalendar(calendarID)
	if err != nil {
		return 0, err
	}
	b, err := s.readOrNewBucket(calendarID, anchor.Year, int(anchor.Month))
	if err != nil {
		return 0, err
	}

	used := b.ids()
	for _, t := range data.Series() {
		used = append(used, t.ID)
	}
	task := model.Task{ID: s.nextID(used), Fields: fields, Repetition: &rep}
	b.Repetition = append(b.Repetition, task)
	if err := s.WriteBucket(calendarID, b); err != nil {
		return 0, err
	}
	appLog.Info("repeating task created", "calendar", calendarID, "anchor", anchor.String(), "id", task.ID, "type", rep.Type)
	return task.ID, nil
}

// CreateTaskRange creates the same one-off task on every day from..to
// inclusive and returns the ids in date order.
func (s *Store) CreateTaskRange(calendarID string, from, to model.Date, fields model.Fields) ([]int64, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("range %s..%s: %w", from, to, model.ErrInvalidDate)
	}
	ids := make([]int64, 0, to.DaysSince(from)+1)
	for d := from; !d.After(to); d = d.AddDays(1) {
		day := d
		id, err := s.CreateTask(calendarID, &day, fields, nil)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// nextID derives an id from the clock and bumps it past every used id.
func (s *Store) nextID(used []int64) int64 {
	id := s.now().UnixMilli()
	for _, u := range used {
		if u >= id {
			id = u + 1
		}
	}
	return id
}

// TaskFromCalendar returns a one-off task.
func (s *Store) TaskFromCalendar(calendarID string, year, month, day int, taskID int64) (model.Task, error) {
	b, err := s.ReadBucket(calendarID, year, month)
	if err != nil {
		return model.Task{}, err
	}
	for _, t := range b.Normal[day] {
		if t.ID == taskID {
			return t, nil
		}
	}
	return model.Task{}, fmt.Errorf("task %d on %04d-%02d-%02d: %w", taskID, year, month, day, model.ErrNotFound)
}

// RepetitiveTaskFromCalendar returns a series from its anchor month bucket.
func (s *Store) RepetitiveTaskFromCalendar(calendarID string, year, month int, taskID int64) (model.Task, error) {
	b, err := s.ReadBucket(calendarID, year, month)
	if err != nil {
		return model.Task{}, err
	}
	for _, t := range b.Repetition {
		if t.ID == taskID {
			return t, nil
		}
	}
	return model.Task{}, fmt.Errorf("repeating task %d in %04d-%02d: %w", taskID, year, month, model.ErrNotFound)
}

// DeleteTask removes a one-off task from its day, or a series (together
// with its hidden instances) from its anchor bucket. A series may be
// addressed by any of its occurrence dates. Deleting something that is
// already gone is a no-op.
func (s *Store) DeleteTask(calendarID string, year, month, day int, taskID int64) error {
	if err := s.cal.Validate(year, month, day); err != nil {
		return err
	}
	if _, err := s.ensureCalendar(calendarID); err != nil {
		return err
	}
	b, err := s.ReadBucket(calendarID, year, month)
	if err != nil && !isNotFound(err) {
		return err
	}

	if b != nil {
		if i := indexOf(b.Normal[day], taskID); i >= 0 {
			b.Normal[day] = slices.Delete(b.Normal[day], i, i+1)
			if len(b.Normal[day]) == 0 {
				delete(b.Normal, day)
			}
			if err := s.WriteBucket(calendarID, b); err != nil {
				return err
			}
			appLog.Info("task deleted", "calendar", calendarID, "year", year, "month", month, "day", day, "id", taskID)
			return nil
		}
	}

	if b == nil || indexOf(b.Repetition, taskID) < 0 {
		if b, err = s.seriesBucket(calendarID, taskID); err != nil {
			if isNotFound(err) {
				appLog.Debug("delete of unknown task ignored", "calendar", calendarID, "year", year, "month", month, "day", day, "id", taskID)
				return nil
			}
			return err
		}
	}
	i := indexOf(b.Repetition, taskID)
	b.Repetition = slices.Delete(b.Repetition, i, i+1)
	if n := len(b.Hidden[taskID]); n > 0 {
		appLog.Info("hidden instances discarded with series", "calendar", calendarID, "id", taskID, "count", n)
	}
	delete(b.Hidden, taskID)

	if err := s.WriteBucket(calendarID, b); err != nil {
		return err
	}
	appLog.Info("series deleted", "calendar", calendarID, "year", b.Year, "month", b.Month, "id", taskID)
	return nil
}

// seriesBucket finds the anchor bucket holding series taskID.
func (s *Store) seriesBucket(calendarID string, taskID int64) (*Bucket, error) {
	data, err := s.LoadCalendar(calendarID)
	if err != nil {
		return nil, err
	}
	for _, ym := range data.order {
		if b := data.Buckets[ym]; indexOf(b.Repetition, taskID) >= 0 {
			return b, nil
		}
	}
	return nil, fmt.Errorf("repeating task %d: %w", taskID, model.ErrNotFound)
}

// UpdateTask replaces a task: the new version is created first and the old
// one deleted afterwards, so the task may change date, kind and id.
// Hidden instances of a replaced series are not carried over.
func (s *Store) UpdateTask(calendarID string, year, month, day int, taskID int64, date *model.Date, fields model.Fields, rep *model.Repetition) (int64, error) {
	if err := s.cal.Validate(year, month, day); err != nil {
		return 0, err
	}
	newID, err := s.CreateTask(calendarID, date, fields, rep)
	if err != nil {
		return 0, err
	}
	if err := s.DeleteTask(calendarID, year, month, day, taskID); err != nil {
		return newID, err
	}
	return newID, nil
}

// UpdateTaskDay moves a one-off task to another day of the same month.
func (s *Store) UpdateTaskDay(calendarID string, year, month, day int, taskID int64, newDay int) error {
	if err := s.cal.Validate(year, month, day); err != nil {
		return err
	}
	if err := s.cal.Validate(year, month, newDay); err != nil {
		return err
	}
	b, err := s.ReadBucket(calendarID, year, month)
	if err != nil {
		return err
	}
	i := indexOf(b.Normal[day], taskID)
	if i < 0 {
		return fmt.Errorf("task %d on %04d-%02d-%02d: %w", taskID, year, month, day, model.ErrNotFound)
	}
	if newDay == day {
		return nil
	}

	task := b.Normal[day][i]
	b.Normal[day] = slices.Delete(b.Normal[day], i, i+1)
	if len(b.Normal[day]) == 0 {
		delete(b.Normal, day)
	}
	b.Normal[newDay] = append(b.Normal[newDay], task)

	if err := s.WriteBucket(calendarID, b); err != nil {
		return err
	}
	appLog.Info("task moved", "calendar", calendarID, "id", taskID, "from_day", day, "to_day", newDay)
	return nil
}

// HideRepetitionTaskInstance suppresses the occurrence of series taskID on
// year-month-day. The series itself is untouched.
func (s *Store) HideRepetitionTaskInstance(calendarID string, year, month, day int, taskID int64) error {
	if err := s.cal.Validate(year, month, day); err != nil {
		return err
	}
	b, err := s.seriesBucket(calendarID, taskID)
	if err != nil {
		return err
	}
	date := model.NewDate(year, month, day)
	if slices.Contains(b.Hidden[taskID], date) {
		return nil
	}
	b.Hidden[taskID] = append(b.Hidden[taskID], date)
	if err := s.WriteBucket(calendarID, b); err != nil {
		return err
	}
	appLog.Info("repeating task instance hidden", "calendar", calendarID, "id", taskID, "date", date.String())
	return nil
}

// Tasks maps each view date to the tasks shown on it.
type Tasks map[model.Date][]model.Task

// TasksFromCalendar collects the one-off tasks of every window date.
func TasksFromCalendar(window []model.Date, data *CalendarData) Tasks {
	tasks := make(Tasks, len(window))
	for _, d := range window {
		b := data.bucket(d)
		if b == nil || len(b.Normal[d.Day]) == 0 {
			continue
		}
		tasks[d] = append([]model.Task(nil), b.Normal[d.Day]...)
	}
	return tasks
}

// AddRepetitiveTasksFromCalendar appends the occurrences of every series
// to tasks, after the one-off tasks of the same day.
func AddRepetitiveTasksFromCalendar(window []model.Date, data *CalendarData, tasks Tasks) (Tasks, error) {
	if tasks == nil {
		tasks = make(Tasks, len(window))
	}
	for _, ym := range data.order {
		b := data.Buckets[ym]
		for _, series := range b.Repetition {
			occ, err := recurrence.Expand(series, window, b.HiddenSet(series.ID))
			if err != nil {
				return nil, fmt.Errorf("calendar %s: %w", data.ID, err)
			}
			for _, o := range occ {
				tasks[o.Date] = append(tasks[o.Date], o.Task)
			}
		}
	}
	return tasks, nil
}

// HidePastTasks drops, in place, the tasks of every window date strictly
// before today. Today and later dates are always kept.
func HidePastTasks(window []model.Date, today model.Date, tasks Tasks) {
	cutoff := today.ApproxDays()
	for _, d := range window {
		if d.ApproxDays() < cutoff {
			delete(tasks, d)
		}
	}
}

func indexOf(tasks []model.Task, id int64) int {
	return slices.IndexFunc(tasks, func(t model.Task) bool { return t.ID == id })
}

func isNotFound(err error) bool {
	return errors.Is(err, model.ErrNotFound)
}
