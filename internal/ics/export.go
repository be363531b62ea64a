// Package ics exports a calendar as an iCalendar feed.
package ics

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"taskcal/internal/gregorian"
	appLog "taskcal/internal/log"
	"taskcal/internal/model"
	"taskcal/internal/recurrence"
	"taskcal/internal/store"
)

const (
	productID = "-//taskcal//Task Export//EN"
	clockTime = "15:04"
)

// ruleWeekdays is indexed by the rule weekday value (0=Monday).
var ruleWeekdays = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}

// Export builds a VCALENDAR with one VEVENT per one-off task in the current
// month and the months-1 following ones, and one VEVENT per series carrying
// an RRULE and an EXDATE for every hidden instance. Series are exported
// whole. Task times are read in the calendar's location.
func Export(data *store.CalendarData, cal *gregorian.Calendar, months int) (*ical.Calendar, error) {
	months = max(months, 1)
	today := cal.CurrentDate()
	start := gregorian.YearMonth{Year: today.Year, Month: int(today.Month)}
	opts := exportOptions{loc: cal.Location(), now: cal.Now()}

	out := ical.NewCalendar()
	out.SetMethod(ical.MethodPublish)
	out.SetProductId(productID)
	out.SetXWRCalName(data.ID)

	oneOffs := 0
	for _, ym := range append([]gregorian.YearMonth{start}, cal.NextMonths(start.Year, start.Month, months-1)...) {
		b, ok := data.Buckets[ym]
		if !ok {
			continue
		}
		for _, day := range slices.Sorted(maps.Keys(b.Normal)) {
			date := model.NewDate(ym.Year, ym.Month, day)
			for _, t := range b.Normal[day] {
				ev := out.AddEvent(fmt.Sprintf("%s-%s-%d@taskcal", data.ID, date, t.ID))
				fillEvent(ev, t.Fields, date, opts)
				oneOffs++
			}
		}
	}

	series := data.Series()
	for _, t := range series {
		if err := addSeries(out, data, t, opts); err != nil {
			return nil, err
		}
	}

	appLog.Debug("ics export built", "calendar", data.ID, "one_off", oneOffs, "series", len(series))
	return out, nil
}

type exportOptions struct {
	loc *time.Location
	now time.Time
}

// Write serializes an export to w.
func Write(w io.Writer, cal *ical.Calendar) error {
	return cal.SerializeTo(w)
}

func addSeries(cal *ical.Calendar, data *store.CalendarData, t model.Task, opts exportOptions) error {
	rep := *t.Repetition
	rule, err := RuleOption(rep)
	if err != nil {
		return fmt.Errorf("export task %d: %w", t.ID, err)
	}
	start, err := firstOccurrence(rep)
	if err != nil {
		return fmt.Errorf("export task %d: %w", t.ID, err)
	}

	ev := cal.AddEvent(fmt.Sprintf("%s-series-%d@taskcal", data.ID, t.ID))
	allDay := fillEvent(ev, t.Fields, start, opts)
	ev.AddRrule(rule.RRuleString())

	hidden := slices.SortedFunc(maps.Keys(data.Hidden(t.ID)), model.Date.Compare)
	for _, d := range hidden {
		if allDay {
			ev.AddExdate(d.Time().Format("20060102"), ical.WithValue(string(ical.ValueDataTypeDate)))
			continue
		}
		at, _ := startEnd(t.Fields, d, opts.loc)
		ev.AddExdate(at.UTC().Format("20060102T150405Z"))
	}
	return nil
}

// fillEvent sets the shared properties and the start and end of an event on
// date. It reports whether the event was written as all-day.
func fillEvent(ev *ical.VEvent, f model.Fields, date model.Date, opts exportOptions) bool {
	ev.SetDtStampTime(opts.now)
	ev.SetSummary(f.Title)
	if f.Details != "" {
		ev.SetDescription(f.Details)
	}
	if f.TravelTo != "" {
		ev.SetLocation(f.TravelTo)
	}

	if !f.IsAllDay {
		if start, end := startEnd(f, date, opts.loc); !start.IsZero() {
			ev.SetStartAt(start)
			ev.SetEndAt(end)
			return false
		}
	}
	ev.SetAllDayStartAt(date.Time())
	ev.SetAllDayEndAt(date.AddDays(1).Time())
	return true
}

// startEnd resolves "HH:MM" times on date. A zero start means the task has
// no usable time and is exported as all-day.
func startEnd(f model.Fields, date model.Date, loc *time.Location) (time.Time, time.Time) {
	start, ok := clockOn(f.StartTime, date, loc)
	if !ok {
		return time.Time{}, time.Time{}
	}
	end, ok := clockOn(f.EndTime, date, loc)
	if !ok || end.Before(start) {
		end = start
	}
	return start, end
}

func clockOn(s string, date model.Date, loc *time.Location) (time.Time, bool) {
	c, err := time.Parse(clockTime, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(date.Year, date.Month, date.Day, c.Hour(), c.Minute(), 0, 0, loc), true
}

// RuleOption translates a repetition rule to its RFC 5545 form.
func RuleOption(rep model.Repetition) (rrule.ROption, error) {
	if err := rep.Validate(); err != nil {
		return rrule.ROption{}, err
	}
	switch rep.Type {
	case model.RepeatDaily:
		return rrule.ROption{Freq: rrule.DAILY}, nil
	case model.RepeatWeekly:
		return rrule.ROption{Freq: rrule.WEEKLY, Byweekday: []rrule.Weekday{ruleWeekdays[rep.Value]}}, nil
	case model.RepeatMonthly:
		if rep.Subtype == model.SubtypeWeekDay {
			return rrule.ROption{Freq: rrule.MONTHLY, Byweekday: []rrule.Weekday{ruleWeekdays[rep.Value].Nth(1)}}, nil
		}
		return rrule.ROption{Freq: rrule.MONTHLY, Bymonthday: []int{rep.Value}}, nil
	}

	opt := rrule.ROption{Interval: rep.Value}
	switch rep.Subtype {
	case model.UnitDay:
		opt.Freq = rrule.DAILY
	case model.UnitWeek:
		opt.Freq = rrule.WEEKLY
	case model.UnitMonth:
		opt.Freq = rrule.MONTHLY
	case model.UnitYear:
		opt.Freq = rrule.YEARLY
	}
	return opt, nil
}

// firstOccurrence finds the first date on or after the anchor that the rule
// produces. DTSTART must be an occurrence or clients add a phantom one.
// Every rule hits within a year of its anchor.
func firstOccurrence(rep model.Repetition) (model.Date, error) {
	for i := range 366 {
		d := rep.Anchor.AddDays(i)
		ok, err := recurrence.Occurs(rep, d)
		if err != nil {
			return model.Date{}, err
		}
		if ok {
			return d, nil
		}
	}
	return model.Date{}, fmt.Errorf("no occurrence within a year of %s: %w", rep.Anchor, model.ErrMalformedRule)
}
