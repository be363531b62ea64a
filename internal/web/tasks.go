package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"taskcal/internal/ics"
	appLog "taskcal/internal/log"
	"taskcal/internal/model"
	"taskcal/internal/view"
)

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), errBadRequest)
}

// taskRequest is the body of task create and update calls.
//
// A one-off task needs date; with end_date it is created once per day of
// the range. A repeating task is anchored at date, or today when omitted.
type taskRequest struct {
	Date       string             `json:"date"`
	EndDate    string             `json:"end_date,omitempty"`
	Repetition *repetitionRequest `json:"repetition,omitempty"`
	model.Fields
}

type repetitionRequest struct {
	Type    model.RepetitionType    `json:"type"`
	Subtype model.RepetitionSubtype `json:"subtype"`
	Value   int                     `json:"value"`
}

// taskResponse carries the id of a created or updated task, or the ids of
// a range.
type taskResponse struct {
	ID  int64   `json:"id,omitempty"`
	IDs []int64 `json:"ids,omitempty"`
}

type moveRequest struct {
	Day int `json:"day"`
}

func decodeBody(r *http.Request, w http.ResponseWriter, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("decode body: %v", err)
	}
	return nil
}

func (t taskRequest) date() (*model.Date, error) {
	if t.Date == "" {
		return nil, nil
	}
	d, err := model.ParseDate(t.Date)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (t taskRequest) repetition() *model.Repetition {
	if t.Repetition == nil {
		return nil
	}
	return &model.Repetition{Type: t.Repetition.Type, Subtype: t.Repetition.Subtype, Value: t.Repetition.Value}
}

// taskPath is the {y}/{m}/{d}/{id} part of a task URL.
type taskPath struct {
	calendar string
	year     int
	month    int
	day      int
	id       int64
}

func parseTaskPath(r *http.Request) (taskPath, error) {
	p := taskPath{calendar: r.PathValue("calendar")}
	var err error
	for _, f := range []struct {
		key string
		dst *int
	}{{"y", &p.year}, {"m", &p.month}, {"d", &p.day}} {
		if *f.dst, err = strconv.Atoi(r.PathValue(f.key)); err != nil {
			return p, badRequest("path %s=%q is not a number", f.key, r.PathValue(f.key))
		}
	}
	if p.id, err = strconv.ParseInt(r.PathValue("id"), 10, 64); err != nil {
		return p, badRequest("task id %q is not a number", r.PathValue("id"))
	}
	return p, nil
}

// handleView renders a calendar view.
//
// GET /api/calendars/{calendar}?view=monthly&y=2024&m=6&d=15&hide_past=1
//   - view:      daily, weekly or monthly (default)
//   - y, m, d:   requested date, defaulting to today; y and m are clamped
//   - hide_past: drop tasks before today (default from config)
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	viewType, err := view.ParseType(q.Get("view"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	var parts [3]*int
	for i, key := range []string{"y", "m", "d"} {
		if parts[i], err = optionalInt(q, key); err != nil {
			writeEngineError(w, r, err)
			return
		}
	}
	requested := s.views.Requested(parts[0], parts[1], parts[2])
	hidePast := parseBoolDefault(q.Get("hide_past"), s.cfg.HidePastTasks)

	res, err := s.views.Render(viewType, r.PathValue("calendar"), requested, hidePast)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	calendarID := r.PathValue("calendar")
	var req taskRequest
	if err := decodeBody(r, w, &req); err != nil {
		writeEngineError(w, r, err)
		return
	}
	date, err := req.date()
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	if req.EndDate != "" && req.Repetition == nil {
		if date == nil {
			writeEngineError(w, r, badRequest("end_date without date"))
			return
		}
		end, err := model.ParseDate(req.EndDate)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		ids, err := s.store.CreateTaskRange(calendarID, *date, end, req.Fields)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		s.afterWrite(calendarID, "create")
		writeJSON(w, http.StatusCreated, taskResponse{IDs: ids})
		return
	}

	id, err := s.store.CreateTask(calendarID, date, req.Fields, req.repetition())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	s.afterWrite(calendarID, "create")
	writeJSON(w, http.StatusCreated, taskResponse{ID: id})
}

// handleGetTask returns a one-off task, or with ?repeats=1 the series
// anchored in the month.
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	p, err := parseTaskPath(r)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	var t model.Task
	if parseBoolDefault(r.URL.Query().Get("repeats"), false) {
		t, err = s.store.RepetitiveTaskFromCalendar(p.calendar, p.year, p.month, p.id)
	} else {
		t, err = s.store.TaskFromCalendar(p.calendar, p.year, p.month, p.day, p.id)
	}
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleUpdateTask replaces a task. A one-off update without a date keeps
// the task on its current day. The task gets a new id.
func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	p, err := parseTaskPath(r)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	var req taskRequest
	if err := decodeBody(r, w, &req); err != nil {
		writeEngineError(w, r, err)
		return
	}
	date, err := req.date()
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if date == nil && req.Repetition == nil {
		d := model.NewDate(p.year, p.month, p.day)
		date = &d
	}

	id, err := s.store.UpdateTask(p.calendar, p.year, p.month, p.day, p.id, date, req.Fields, req.repetition())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	s.afterWrite(p.calendar, "update")
	writeJSON(w, http.StatusOK, taskResponse{ID: id})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	p, err := parseTaskPath(r)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if err := s.store.DeleteTask(p.calendar, p.year, p.month, p.day, p.id); err != nil {
		writeEngineError(w, r, err)
		return
	}
	s.afterWrite(p.calendar, "delete")
	w.WriteHeader(http.StatusNoContent)
}

// handleUpdateTaskDay moves a one-off task to another day of its month.
func (s *Server) handleUpdateTaskDay(w http.ResponseWriter, r *http.Request) {
	p, err := parseTaskPath(r)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	var req moveRequest
	if err := decodeBody(r, w, &req); err != nil {
		writeEngineError(w, r, err)
		return
	}
	if err := s.store.UpdateTaskDay(p.calendar, p.year, p.month, p.day, p.id, req.Day); err != nil {
		writeEngineError(w, r, err)
		return
	}
	s.afterWrite(p.calendar, "move")
	w.WriteHeader(http.StatusNoContent)
}

// handleHideInstance hides the occurrence of a series on the path date.
func (s *Server) handleHideInstance(w http.ResponseWriter, r *http.Request) {
	p, err := parseTaskPath(r)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if err := s.store.HideRepetitionTaskInstance(p.calendar, p.year, p.month, p.day, p.id); err != nil {
		writeEngineError(w, r, err)
		return
	}
	s.afterWrite(p.calendar, "hide")
	w.WriteHeader(http.StatusNoContent)
}

// handleExport serves the calendar as iCalendar when the export feature is
// enabled, and 404 otherwise.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.FeatureICalExport {
		http.NotFound(w, r)
		return
	}
	calendarID := r.PathValue("calendar")
	data, err := s.store.LoadCalendar(calendarID)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	out, err := ics.Export(data, s.cal, s.cfg.MonthsToExport)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.ics"`, calendarID))
	w.WriteHeader(http.StatusOK)
	if err := ics.Write(w, out); err != nil {
		appLog.Error("failed to write ics export", err, "calendar", calendarID)
	}
}
