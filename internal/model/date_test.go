package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-6-5")
	require.NoError(t, err)
	assert.Equal(t, NewDate(2024, 6, 5), d)
	assert.Equal(t, "2024-06-05", d.String())

	for _, bad := range []string{"", "2024-06", "2024-13-01", "2023-02-29", "x-1-1"} {
		_, err := ParseDate(bad)
		assert.ErrorIs(t, err, ErrInvalidDate, bad)
	}
}

func TestDateArithmetic(t *testing.T) {
	d := NewDate(2024, 2, 28)
	assert.Equal(t, NewDate(2024, 2, 29), d.AddDays(1))
	assert.Equal(t, NewDate(2024, 3, 1), d.AddDays(2))
	assert.Equal(t, 366, NewDate(2025, 1, 1).DaysSince(NewDate(2024, 1, 1)))
	assert.True(t, d.Before(NewDate(2024, 3, 1)))
	assert.True(t, NewDate(2025, 1, 1).After(d))
	assert.Equal(t, time.Wednesday, d.Weekday())
}

func TestApproxDaysUsesThirtyOneDayMonths(t *testing.T) {
	assert.Equal(t, 31, NewDate(2024, 3, 1).ApproxDays()-NewDate(2024, 2, 1).ApproxDays())
	assert.Equal(t, 372, NewDate(2025, 1, 1).ApproxDays()-NewDate(2024, 1, 1).ApproxDays())
}

func TestDateJSON(t *testing.T) {
	b, err := json.Marshal(map[string]Date{"anchor": NewDate(2024, 1, 9)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"anchor":"2024-01-09"}`, string(b))

	var out struct {
		Anchor Date `json:"anchor"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"anchor":"2024-01-09"}`), &out))
	assert.Equal(t, NewDate(2024, 1, 9), out.Anchor)
}

func TestRepetitionValidate(t *testing.T) {
	valid := []Repetition{
		{Type: RepeatDaily},
		{Type: RepeatWeekly, Value: 6},
		{Type: RepeatMonthly, Subtype: SubtypeWeekDay, Value: 0},
		{Type: RepeatMonthly, Subtype: SubtypeMonthDay, Value: 31},
		{Type: RepeatInterval, Subtype: UnitYear, Value: 1},
	}
	for _, r := range valid {
		assert.NoError(t, r.Validate(), "%+v", r)
	}

	invalid := []Repetition{
		{Type: "x"},
		{Type: RepeatWeekly, Value: 7},
		{Type: RepeatMonthly, Subtype: "q", Value: 1},
		{Type: RepeatMonthly, Subtype: SubtypeMonthDay, Value: 0},
		{Type: RepeatInterval, Subtype: UnitDay, Value: 0},
		{Type: RepeatInterval, Subtype: "", Value: 2},
	}
	for _, r := range invalid {
		assert.ErrorIs(t, r.Validate(), ErrMalformedRule, "%+v", r)
	}
}

func TestWeekdayValueRoundTrip(t *testing.T) {
	assert.Equal(t, time.Monday, WeekdayOf(0))
	assert.Equal(t, time.Sunday, WeekdayOf(6))
	for v := 0; v < 7; v++ {
		assert.Equal(t, v, WeekdayValue(WeekdayOf(v)))
	}
}
