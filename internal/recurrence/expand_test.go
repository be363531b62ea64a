package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"

	"taskcal/internal/model"
)

func window(from model.Date, n int) []model.Date {
	out := make([]model.Date, n)
	for i := range out {
		out[i] = from.AddDays(i)
	}
	return out
}

func series(rep model.Repetition) model.Task {
	return model.Task{ID: 7, Fields: model.Fields{Title: "standup"}, Repetition: &rep}
}

func dates(occ []model.Occurrence) []model.Date {
	out := make([]model.Date, len(occ))
	for i, o := range occ {
		out[i] = o.Date
	}
	return out
}

func TestExpandDailyWithHiddenInstance(t *testing.T) {
	anchor := model.NewDate(2024, 1, 1)
	task := series(model.Repetition{Type: model.RepeatDaily, Value: 1, Anchor: anchor})
	w := window(anchor, 10)

	occ, err := Expand(task, w, nil)
	require.NoError(t, err)
	assert.Equal(t, w, dates(occ))

	hidden := map[model.Date]bool{model.NewDate(2024, 1, 4): true}
	occ, err = Expand(task, w, hidden)
	require.NoError(t, err)
	assert.Len(t, occ, 9)
	assert.NotContains(t, dates(occ), model.NewDate(2024, 1, 4))
	for _, o := range occ {
		assert.Equal(t, task.ID, o.Task.ID)
	}
}

func TestExpandNothingBeforeAnchor(t *testing.T) {
	anchor := model.NewDate(2024, 3, 10)
	task := series(model.Repetition{Type: model.RepeatDaily, Anchor: anchor})
	occ, err := Expand(task, window(model.NewDate(2024, 3, 1), 14), nil)
	require.NoError(t, err)
	require.NotEmpty(t, occ)
	assert.Equal(t, anchor, occ[0].Date)
	assert.Len(t, occ, 5)
}

func TestExpandRules(t *testing.T) {
	tests := []struct {
		name string
		rep  model.Repetition
		from model.Date
		days int
		want []model.Date
	}{
		{
			name: "weekly on wednesday",
			rep:  model.Repetition{Type: model.RepeatWeekly, Value: 2, Anchor: model.NewDate(2024, 1, 1)},
			from: model.NewDate(2024, 1, 1), days: 21,
			want: []model.Date{model.NewDate(2024, 1, 3), model.NewDate(2024, 1, 10), model.NewDate(2024, 1, 17)},
		},
		{
			name: "first friday of the month",
			rep:  model.Repetition{Type: model.RepeatMonthly, Subtype: model.SubtypeWeekDay, Value: 4, Anchor: model.NewDate(2024, 1, 1)},
			from: model.NewDate(2024, 1, 1), days: 91,
			want: []model.Date{model.NewDate(2024, 1, 5), model.NewDate(2024, 2, 2), model.NewDate(2024, 3, 1)},
		},
		{
			name: "31st skips short months",
			rep:  model.Repetition{Type: model.RepeatMonthly, Subtype: model.SubtypeMonthDay, Value: 31, Anchor: model.NewDate(2024, 1, 1)},
			from: model.NewDate(2024, 1, 1), days: 121,
			want: []model.Date{model.NewDate(2024, 1, 31), model.NewDate(2024, 3, 31)},
		},
		{
			name: "every third day",
			rep:  model.Repetition{Type: model.RepeatInterval, Subtype: model.UnitDay, Value: 3, Anchor: model.NewDate(2024, 2, 27)},
			from: model.NewDate(2024, 2, 25), days: 10,
			want: []model.Date{model.NewDate(2024, 2, 27), model.NewDate(2024, 3, 1), model.NewDate(2024, 3, 4)},
		},
		{
			name: "every other week",
			rep:  model.Repetition{Type: model.RepeatInterval, Subtype: model.UnitWeek, Value: 2, Anchor: model.NewDate(2024, 1, 2)},
			from: model.NewDate(2024, 1, 1), days: 35,
			want: []model.Date{model.NewDate(2024, 1, 2), model.NewDate(2024, 1, 16), model.NewDate(2024, 1, 30)},
		},
		{
			name: "yearly on leap day",
			rep:  model.Repetition{Type: model.RepeatInterval, Subtype: model.UnitYear, Value: 1, Anchor: model.NewDate(2024, 2, 29)},
			from: model.NewDate(2025, 2, 27), days: 5,
			want: []model.Date{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			occ, err := Expand(series(tt.rep), window(tt.from, tt.days), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, dates(occ))
		})
	}
}

func TestExpandAnchorFarInThePast(t *testing.T) {
	rep := model.Repetition{Type: model.RepeatInterval, Subtype: model.UnitDay, Value: 5, Anchor: model.NewDate(2017, 1, 1)}
	occ, err := Expand(series(rep), window(model.NewDate(2199, 12, 1), 31), nil)
	require.NoError(t, err)
	for _, o := range occ {
		assert.Zero(t, o.Date.DaysSince(rep.Anchor)%5)
	}
	assert.NotEmpty(t, occ)
}

func TestExpandRejectsMalformedRule(t *testing.T) {
	_, err := Expand(series(model.Repetition{Type: "z", Anchor: model.NewDate(2024, 1, 1)}), window(model.NewDate(2024, 1, 1), 3), nil)
	assert.ErrorIs(t, err, model.ErrMalformedRule)

	_, err = Occurs(model.Repetition{Type: model.RepeatMonthly, Subtype: "x", Value: 1}, model.NewDate(2024, 1, 1))
	assert.ErrorIs(t, err, model.ErrMalformedRule)

	_, err = Expand(model.Task{ID: 1}, nil, nil)
	assert.Error(t, err)
}

// Interval rules must agree with an RFC 5545 expansion of the same rule.
func TestIntervalRulesMatchRRule(t *testing.T) {
	anchor := model.NewDate(2024, 1, 31)
	freqs := map[model.RepetitionSubtype]rrule.Frequency{
		model.UnitDay:   rrule.DAILY,
		model.UnitWeek:  rrule.WEEKLY,
		model.UnitMonth: rrule.MONTHLY,
		model.UnitYear:  rrule.YEARLY,
	}
	from := model.NewDate(2024, 1, 1)
	w := window(from, 3*366)

	for unit, freq := range freqs {
		for _, n := range []int{1, 2, 5} {
			rep := model.Repetition{Type: model.RepeatInterval, Subtype: unit, Value: n, Anchor: anchor}
			occ, err := Expand(series(rep), w, nil)
			require.NoError(t, err)

			r, err := rrule.NewRRule(rrule.ROption{Freq: freq, Interval: n, Dtstart: anchor.Time()})
			require.NoError(t, err)
			last := w[len(w)-1].Time().Add(time.Hour)
			var want []model.Date
			for _, tm := range r.Between(from.Time(), last, true) {
				want = append(want, model.DateOf(tm))
			}
			assert.Equal(t, want, dates(occ), "unit %s every %d", unit, n)
		}
	}
}
