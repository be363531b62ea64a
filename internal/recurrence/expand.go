package recurrence

import (
	"errors"
	"fmt"

	"taskcal/internal/model"
)

// Expand returns the occurrences of a repeating task on the given window
// dates, in window order. Dates present in hidden are skipped.
//
// Every date is tested against the rule in constant time, so the cost is
// linear in the window and independent of how far the anchor lies in the
// past.
func Expand(task model.Task, window []model.Date, hidden map[model.Date]bool) ([]model.Occurrence, error) {
	if task.Repetition == nil {
		return nil, errors.New("expand: task does not repeat")
	}
	rep := *task.Repetition
	if err := rep.Validate(); err != nil {
		return nil, fmt.Errorf("expand task %d: %w", task.ID, err)
	}

	out := make([]model.Occurrence, 0)
	for _, d := range window {
		if hidden[d] {
			continue
		}
		if occurs(rep, d) {
			out = append(out, model.Occurrence{Date: d, Task: task})
		}
	}
	return out, nil
}

// Occurs reports whether rep produces an occurrence on d.
func Occurs(rep model.Repetition, d model.Date) (bool, error) {
	if err := rep.Validate(); err != nil {
		return false, err
	}
	return occurs(rep, d), nil
}

// occurs assumes rep has been validated.
func occurs(rep model.Repetition, d model.Date) bool {
	anchor := rep.Anchor
	if d.Before(anchor) {
		return false
	}

	switch rep.Type {
	case model.RepeatDaily:
		return true

	case model.RepeatWeekly:
		return d.Weekday() == model.WeekdayOf(rep.Value)

	case model.RepeatMonthly:
		if rep.Subtype == model.SubtypeWeekDay {
			// First such weekday of the month always falls in days 1..7.
			return d.Day <= 7 && d.Weekday() == model.WeekdayOf(rep.Value)
		}
		return d.Day == rep.Value

	case model.RepeatInterval:
		switch rep.Subtype {
		case model.UnitDay:
			return d.DaysSince(anchor)%rep.Value == 0
		case model.UnitWeek:
			return d.DaysSince(anchor)%(7*rep.Value) == 0
		case model.UnitMonth:
			months := (d.Year-anchor.Year)*12 + int(d.Month) - int(anchor.Month)
			return d.Day == anchor.Day && months%rep.Value == 0
		case model.UnitYear:
			return d.Month == anchor.Month && d.Day == anchor.Day && (d.Year-anchor.Year)%rep.Value == 0
		}
	}
	return false
}
