package model

import (
	"fmt"
	"time"
)

// RepetitionType is the top-level rule kind offered to users.
type RepetitionType string

const (
	RepeatDaily    RepetitionType = "d"
	RepeatWeekly   RepetitionType = "w"
	RepeatMonthly  RepetitionType = "m"
	RepeatInterval RepetitionType = "i"
)

// RepetitionSubtype refines a rule. Monthly rules use SubtypeWeekDay or
// SubtypeMonthDay; interval rules use one of the Unit* values.
type RepetitionSubtype string

const (
	SubtypeNone     RepetitionSubtype = ""
	SubtypeWeekDay  RepetitionSubtype = "w"
	SubtypeMonthDay RepetitionSubtype = "m"

	UnitDay   RepetitionSubtype = "d"
	UnitWeek  RepetitionSubtype = "w"
	UnitMonth RepetitionSubtype = "m"
	UnitYear  RepetitionSubtype = "y"
)

// Repetition is the recurrence rule of a series, anchored at the day the
// series was created for.
//
//	type d          every day (value ignored)
//	type w          weekly on weekday value (0=Monday .. 6=Sunday)
//	type m, sub w   first weekday value of every month
//	type m, sub m   day value (1..31) of every month
//	type i, sub d/w/m/y   every value (>=1) days/weeks/months/years
type Repetition struct {
	Type    RepetitionType    `json:"type"`
	Subtype RepetitionSubtype `json:"subtype,omitempty"`
	Value   int               `json:"value"`
	Anchor  Date              `json:"anchor"`
}

// Validate rejects rules the expander does not understand.
func (r Repetition) Validate() error {
	switch r.Type {
	case RepeatDaily:
		return nil
	case RepeatWeekly:
		if r.Value < 0 || r.Value > 6 {
			return fmt.Errorf("weekly rule value %d: %w", r.Value, ErrMalformedRule)
		}
		return nil
	case RepeatMonthly:
		switch r.Subtype {
		case SubtypeWeekDay:
			if r.Value < 0 || r.Value > 6 {
				return fmt.Errorf("monthly week-day rule value %d: %w", r.Value, ErrMalformedRule)
			}
			return nil
		case SubtypeMonthDay:
			if r.Value < 1 || r.Value > 31 {
				return fmt.Errorf("monthly month-day rule value %d: %w", r.Value, ErrMalformedRule)
			}
			return nil
		}
	case RepeatInterval:
		switch r.Subtype {
		case UnitDay, UnitWeek, UnitMonth, UnitYear:
			if r.Value < 1 {
				return fmt.Errorf("interval rule value %d: %w", r.Value, ErrMalformedRule)
			}
			return nil
		}
	default:
		return fmt.Errorf("repetition type %q: %w", r.Type, ErrMalformedRule)
	}
	return fmt.Errorf("repetition type %q subtype %q: %w", r.Type, r.Subtype, ErrMalformedRule)
}

// WeekdayOf maps a rule weekday value (0=Monday) to time.Weekday.
func WeekdayOf(value int) time.Weekday {
	return time.Weekday((value + 1) % 7)
}

// WeekdayValue is the inverse of WeekdayOf.
func WeekdayValue(w time.Weekday) int {
	return (int(w) + 6) % 7
}
