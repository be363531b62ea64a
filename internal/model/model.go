package model

import "time"

// Fields are the user-editable attributes shared by one-off and repeating
// tasks.
type Fields struct {
	Title    string `json:"title"`
	IsAllDay bool   `json:"is_all_day"`
	// StartTime / EndTime are wall-clock "HH:MM" strings as entered.
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	// Details is stored as entered, with newlines already turned into <br>.
	Details  string `json:"details"`
	Color    string `json:"color"`
	TravelTo string `json:"travel_to,omitempty"`
}

// Task is either a one-off task, owned by the day bucket it is stored in,
// or a repeating series when Repetition is non-nil.
type Task struct {
	ID int64 `json:"id"`
	Fields
	Repetition *Repetition `json:"repetition,omitempty"`
}

// Repeats reports whether t is a repeating series.
func (t Task) Repeats() bool {
	return t.Repetition != nil
}

// Occurrence is a single concrete day on which a task shows up, after
// recurrence expansion.
type Occurrence struct {
	Date Date
	Task Task
}

// HiddenInstance suppresses one occurrence of a series.
type HiddenInstance struct {
	TaskID int64
	Date   Date
}

// Clock returns the current wall-clock time. Engine components take one so
// tests can pin "today".
type Clock func() time.Time
