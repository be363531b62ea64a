// Package gregorian holds the calendar arithmetic used by views and the
// task store: display grids, week windows, month navigation and "today".
package gregorian

import (
	"fmt"
	"strings"
	"time"

	"taskcal/internal/model"
)

// Calendar does date arithmetic for one configuration. It holds no
// mutable state and is safe for concurrent use.
type Calendar struct {
	firstWeekday time.Weekday
	minYear      int
	maxYear      int
	loc          *time.Location
	now          model.Clock
}

// Options configure a Calendar.
type Options struct {
	// FirstWeekday is time.Monday or time.Sunday.
	FirstWeekday time.Weekday
	MinYear      int
	MaxYear      int
	// Location is used to resolve "today". Nil means time.Local.
	Location *time.Location
	// Now overrides the wall clock.
	Now model.Clock
}

func New(opts Options) *Calendar {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Calendar{
		firstWeekday: opts.FirstWeekday,
		minYear:      opts.MinYear,
		maxYear:      opts.MaxYear,
		loc:          opts.Location,
		now:          opts.Now,
	}
}

// FirstWeekday maps a week_start setting ("monday" / "sunday") to a weekday.
// Anything unrecognised is treated as Monday, like config.Normalize does.
func FirstWeekday(weekStart string) time.Weekday {
	if strings.EqualFold(strings.TrimSpace(weekStart), "sunday") {
		return time.Sunday
	}
	return time.Monday
}

func (c *Calendar) FirstWeekday() time.Weekday { return c.firstWeekday }
func (c *Calendar) MinYear() int               { return c.minYear }
func (c *Calendar) MaxYear() int               { return c.maxYear }
func (c *Calendar) Location() *time.Location   { return c.loc }

// Now is the current instant in the configured location.
func (c *Calendar) Now() time.Time { return c.now().In(c.loc) }

// WeekdayHeaders returns short day names in display order.
func (c *Calendar) WeekdayHeaders() []string {
	out := make([]string, 7)
	for i := range out {
		wd := time.Weekday((int(c.firstWeekday) + i) % 7)
		out[i] = strings.ToUpper(wd.String()[:3])
	}
	return out
}

// CurrentDate is today in the configured location.
func (c *Calendar) CurrentDate() model.Date {
	return model.DateOf(c.now().In(c.loc))
}

// Validate checks bounds and that the day exists in the month.
func (c *Calendar) Validate(year, month, day int) error {
	if err := c.validateYearMonth(year, month); err != nil {
		return err
	}
	if day < 1 || day > model.DaysIn(year, time.Month(month)) {
		return fmt.Errorf("day %d of %04d-%02d: %w", day, year, month, model.ErrInvalidDate)
	}
	return nil
}

func (c *Calendar) validateYearMonth(year, month int) error {
	if year < c.minYear || year > c.maxYear {
		return fmt.Errorf("year %d outside [%d, %d]: %w", year, c.minYear, c.maxYear, model.ErrInvalidDate)
	}
	if month < 1 || month > 12 {
		return fmt.Errorf("month %d: %w", month, model.ErrInvalidDate)
	}
	return nil
}

// ClampYearMonth pulls query-supplied values into the accepted range.
func (c *Calendar) ClampYearMonth(year, month int) (int, int) {
	year = max(min(year, c.maxYear), c.minYear)
	month = max(min(month, 12), 1)
	return year, month
}

// MonthDays returns the display grid for a month: every day of the month
// plus the lead-in days back to the first weekday and the lead-out days up
// to the end of the last week. The length is always a multiple of 7.
func (c *Calendar) MonthDays(year, month int) ([]model.Date, error) {
	if err := c.validateYearMonth(year, month); err != nil {
		return nil, err
	}
	first := model.NewDate(year, month, 1)
	start := first.AddDays(-c.offset(first.Weekday()))

	last := model.NewDate(year, month, model.DaysIn(year, time.Month(month)))
	end := last.AddDays(6 - c.offset(last.Weekday()))

	days := make([]model.Date, 0, end.DaysSince(start)+1)
	for d := start; !d.After(end); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days, nil
}

// MonthDaysWithWeekday returns the month as weeks of day numbers, with 0
// for grid cells that belong to the neighbouring months.
func (c *Calendar) MonthDaysWithWeekday(year, month int) ([][]int, error) {
	days, err := c.MonthDays(year, month)
	if err != nil {
		return nil, err
	}
	weeks := make([][]int, 0, len(days)/7)
	for i := 0; i < len(days); i += 7 {
		week := make([]int, 7)
		for j, d := range days[i : i+7] {
			if int(d.Month) == month {
				week[j] = d.Day
			}
		}
		weeks = append(weeks, week)
	}
	return weeks, nil
}

// WeekDays returns the 7 days of the week containing year-month-day,
// starting at the configured first weekday.
func (c *Calendar) WeekDays(year, month, day int) ([]model.Date, error) {
	if err := c.Validate(year, month, day); err != nil {
		return nil, err
	}
	d := model.NewDate(year, month, day)
	start := d.AddDays(-c.offset(d.Weekday()))
	days := make([]model.Date, 7)
	for i := range days {
		days[i] = start.AddDays(i)
	}
	return days, nil
}

// PreviousMonthAndYear returns (month, year) of the month before.
func (c *Calendar) PreviousMonthAndYear(year, month int) (int, int, error) {
	if month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("month %d: %w", month, model.ErrInvalidDate)
	}
	if month == 1 {
		return 12, year - 1, nil
	}
	return month - 1, year, nil
}

// NextMonthAndYear returns (month, year) of the month after.
func (c *Calendar) NextMonthAndYear(year, month int) (int, int, error) {
	if month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("month %d: %w", month, model.ErrInvalidDate)
	}
	if month == 12 {
		return 1, year + 1, nil
	}
	return month + 1, year, nil
}

// YearMonth is a (year, month) pair.
type YearMonth struct {
	Year  int
	Month int
}

// NextMonths lists the n months following year-month (excluded).
func (c *Calendar) NextMonths(year, month, n int) []YearMonth {
	out := make([]YearMonth, 0, n)
	for range n {
		month++
		if month > 12 {
			month = 1
			year++
		}
		out = append(out, YearMonth{Year: year, Month: month})
	}
	return out
}

// offset is how many days wd lies after the first weekday.
func (c *Calendar) offset(wd time.Weekday) int {
	return (int(wd) - int(c.firstWeekday) + 7) % 7
}
