package view

import (
	"fmt"
	"strings"

	"taskcal/internal/gregorian"
	"taskcal/internal/model"
)

// Type is a view mode.
type Type string

const (
	Daily   Type = "daily"
	Weekly  Type = "weekly"
	Monthly Type = "monthly"
)

// ParseType maps a query value to a view mode. Empty means monthly.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return Monthly, nil
	case Daily, Weekly, Monthly:
		return t, nil
	default:
		return "", fmt.Errorf("view %q: %w", s, ErrUnknownView)
	}
}

// Link points at the requested date of a neighbouring view.
type Link struct {
	Year  int `json:"y"`
	Month int `json:"m"`
	Day   int `json:"d,omitempty"`
}

// Query renders the link as query parameters. Month links carry no day.
func (l Link) Query() string {
	if l.Day == 0 {
		return fmt.Sprintf("?y=%d&m=%d", l.Year, l.Month)
	}
	return fmt.Sprintf("?y=%d&m=%d&d=%d", l.Year, l.Month, l.Day)
}

func dayLink(d model.Date) Link {
	return Link{Year: d.Year, Month: int(d.Month), Day: d.Day}
}

type strategy interface {
	window(cal *gregorian.Calendar, requested model.Date) ([]model.Date, error)
	previous(cal *gregorian.Calendar, requested model.Date) (Link, error)
	next(cal *gregorian.Calendar, requested model.Date) (Link, error)
	defaultDay(window []model.Date, requested, today model.Date) model.Date
}

var strategies = map[Type]strategy{
	Daily:   daily{},
	Weekly:  weekly{},
	Monthly: monthly{},
}

type daily struct{}

func (daily) window(cal *gregorian.Calendar, r model.Date) ([]model.Date, error) {
	if err := cal.Validate(r.Year, int(r.Month), r.Day); err != nil {
		return nil, err
	}
	return []model.Date{r}, nil
}

func (daily) previous(_ *gregorian.Calendar, r model.Date) (Link, error) {
	return dayLink(r.AddDays(-1)), nil
}

func (daily) next(_ *gregorian.Calendar, r model.Date) (Link, error) {
	return dayLink(r.AddDays(1)), nil
}

func (daily) defaultDay(_ []model.Date, r, _ model.Date) model.Date { return r }

type weekly struct{}

func (weekly) window(cal *gregorian.Calendar, r model.Date) ([]model.Date, error) {
	return cal.WeekDays(r.Year, int(r.Month), r.Day)
}

func (weekly) previous(_ *gregorian.Calendar, r model.Date) (Link, error) {
	return dayLink(r.AddDays(-7)), nil
}

func (weekly) next(_ *gregorian.Calendar, r model.Date) (Link, error) {
	return dayLink(r.AddDays(7)), nil
}

func (weekly) defaultDay(window []model.Date, _, today model.Date) model.Date {
	if contains(window, today) {
		return today
	}
	return window[0]
}

type monthly struct{}

func (monthly) window(cal *gregorian.Calendar, r model.Date) ([]model.Date, error) {
	return cal.MonthDays(r.Year, int(r.Month))
}

func (monthly) previous(cal *gregorian.Calendar, r model.Date) (Link, error) {
	m, y, err := cal.PreviousMonthAndYear(r.Year, int(r.Month))
	return Link{Year: y, Month: m}, err
}

func (monthly) next(cal *gregorian.Calendar, r model.Date) (Link, error) {
	m, y, err := cal.NextMonthAndYear(r.Year, int(r.Month))
	return Link{Year: y, Month: m}, err
}

// The grid starts with lead-in days of the previous month, so the fallback
// is the first of the requested month rather than window[0].
func (monthly) defaultDay(_ []model.Date, r, today model.Date) model.Date {
	if today.Year == r.Year && today.Month == r.Month {
		return today
	}
	return model.NewDate(r.Year, int(r.Month), 1)
}

func contains(window []model.Date, d model.Date) bool {
	for _, w := range window {
		if w == d {
			return true
		}
	}
	return false
}
