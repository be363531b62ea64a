package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskcal/internal/config"
	"taskcal/internal/gregorian"
	appLog "taskcal/internal/log"
	"taskcal/internal/metrics"
	"taskcal/internal/model"
	"taskcal/internal/store"
	"taskcal/internal/sweep"
)

var fixedNow = time.Date(2024, time.June, 15, 9, 30, 0, 0, time.UTC)

type testServer struct {
	*httptest.Server
	store   *store.Store
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	appLog.Setup(io.Discard, appLog.LevelError)

	cfg := config.DefaultConfig()
	cfg.FeatureICalExport = true
	if mutate != nil {
		mutate(cfg)
	}
	cal := gregorian.New(gregorian.Options{
		FirstWeekday: time.Monday,
		MinYear:      cfg.MinYear,
		MaxYear:      cfg.MaxYear,
		Location:     time.UTC,
		Now:          func() time.Time { return fixedNow },
	})
	st := store.New(afero.NewMemMapFs(), "/data", cal, store.WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, st.CreateCalendar("home"))

	m := metrics.New()
	sw := sweep.New(st, sweep.Config{Chance: 0, DaysToKeep: cfg.DaysPastToKeepHiddenTasks}, sweep.WithMetrics(m))
	srv := httptest.NewServer(NewServer(cfg, st, sw, m).Handler())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: st, metrics: m}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, r)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func errorBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	return decode[struct {
		Error string `json:"error"`
	}](t, resp).Error
}

type viewBody struct {
	View       string `json:"view"`
	DefaultDay string `json:"default_day"`
	Days       []struct {
		Date  string       `json:"date"`
		Tasks []model.Task `json:"tasks"`
	} `json:"days"`
}

func (v viewBody) titlesOn(date string) []string {
	for _, d := range v.Days {
		if d.Date != date {
			continue
		}
		out := []string{}
		for _, t := range d.Tasks {
			out = append(out, t.Title)
		}
		return out
	}
	return nil
}

func (ts *testServer) create(t *testing.T, body string) int64 {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/calendars/home/tasks", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[taskResponse](t, resp).ID
}

func taskURL(date string, id int64) string {
	return "/api/calendars/home/tasks/" + strings.ReplaceAll(date, "-", "/") + "/" + strconv.FormatInt(id, 10)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	resp := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBasicAuth(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "me", Password: "secret"}
	})

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health", "").StatusCode)

	resp := ts.do(t, http.MethodGet, "/api/calendars/home", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Basic")

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/calendars/home", nil)
	require.NoError(t, err)
	req.SetBasicAuth("me", "secret")
	resp, err = ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTaskLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)

	id := ts.create(t, `{"date":"2024-06-20","title":"dentist","is_all_day":true,"details":"https://example.com/x"}`)
	require.NotZero(t, id)

	resp := ts.do(t, http.MethodGet, taskURL("2024-06-20", id), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[model.Task](t, resp)
	assert.Equal(t, "dentist", got.Title)
	assert.Equal(t, "https://example.com/x", got.Details)

	resp = ts.do(t, http.MethodGet, "/api/calendars/home?y=2024&m=6", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	v := decode[viewBody](t, resp)
	assert.Equal(t, "monthly", v.View)
	assert.Equal(t, "2024-06-15", v.DefaultDay)
	assert.Equal(t, []string{"dentist"}, v.titlesOn("2024-06-20"))

	resp = ts.do(t, http.MethodDelete, taskURL("2024-06-20", id), "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = ts.do(t, http.MethodGet, taskURL("2024-06-20", id), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Deleting again is a no-op.
	resp = ts.do(t, http.MethodDelete, taskURL("2024-06-20", id), "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.TaskWrites.WithLabelValues("create")))
	assert.Equal(t, 2.0, testutil.ToFloat64(ts.metrics.TaskWrites.WithLabelValues("delete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.Requests.WithLabelValues("task_create", "201")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.Requests.WithLabelValues("task_get", "404")))
}

func TestCreateRange(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodPost, "/api/calendars/home/tasks",
		`{"date":"2024-06-29","end_date":"2024-07-01","title":"trip","is_all_day":true}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Len(t, decode[taskResponse](t, resp).IDs, 3)

	// June's grid ends on Sunday the 30th; July's starts on Monday the 1st.
	june := decode[viewBody](t, ts.do(t, http.MethodGet, "/api/calendars/home?view=monthly&y=2024&m=6", ""))
	assert.Equal(t, []string{"trip"}, june.titlesOn("2024-06-29"))
	assert.Equal(t, []string{"trip"}, june.titlesOn("2024-06-30"))
	assert.Nil(t, june.titlesOn("2024-07-01"))

	july := decode[viewBody](t, ts.do(t, http.MethodGet, "/api/calendars/home?view=monthly&y=2024&m=7", ""))
	assert.Equal(t, []string{"trip"}, july.titlesOn("2024-07-01"))

	for _, m := range []int{6, 7} {
		_, err := ts.store.ReadBucket("home", 2024, m)
		assert.NoError(t, err, "bucket 2024-%02d", m)
	}
}

func TestSeriesHideAndView(t *testing.T) {
	ts := newTestServer(t, nil)

	id := ts.create(t, `{"date":"2024-06-10","title":"standup","start_time":"09:00","end_time":"09:15","repetition":{"type":"d"}}`)

	resp := ts.do(t, http.MethodGet, taskURL("2024-06-10", id)+"?repeats=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	series := decode[model.Task](t, resp)
	require.NotNil(t, series.Repetition)
	assert.Equal(t, model.NewDate(2024, 6, 10), series.Repetition.Anchor)

	resp = ts.do(t, http.MethodPost, taskURL("2024-06-12", id)+"/hide", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	v := decode[viewBody](t, ts.do(t, http.MethodGet, "/api/calendars/home?view=weekly&y=2024&m=6&d=12", ""))
	assert.Equal(t, []string{"standup"}, v.titlesOn("2024-06-11"))
	assert.Empty(t, v.titlesOn("2024-06-12"))
	assert.Equal(t, []string{"standup"}, v.titlesOn("2024-06-16"))

	v = decode[viewBody](t, ts.do(t, http.MethodGet, "/api/calendars/home?view=weekly&y=2024&m=6&d=12&hide_past=true", ""))
	assert.Empty(t, v.titlesOn("2024-06-14"))
	assert.Equal(t, []string{"standup"}, v.titlesOn("2024-06-15"))
}

func TestUpdateAndMove(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.create(t, `{"date":"2024-06-03","title":"draft"}`)

	resp := ts.do(t, http.MethodPut, taskURL("2024-06-03", id), `{"title":"final","color":"#f00"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	newID := decode[taskResponse](t, resp).ID
	assert.NotEqual(t, id, newID)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, taskURL("2024-06-03", id), "").StatusCode)

	resp = ts.do(t, http.MethodPut, taskURL("2024-06-03", newID)+"/day", `{"day":7}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, taskURL("2024-06-07", newID), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "final", decode[model.Task](t, resp).Title)

	resp = ts.do(t, http.MethodPut, taskURL("2024-06-07", newID)+"/day", `{"day":31}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"unknown calendar view", http.MethodGet, "/api/calendars/nobody", "", http.StatusNotFound},
		{"calendar id with dots", http.MethodGet, "/api/calendars/..", "", http.StatusNotFound},
		{"impossible day", http.MethodGet, "/api/calendars/home?y=2024&m=4&d=31", "", http.StatusBadRequest},
		{"unknown view", http.MethodGet, "/api/calendars/home?view=agenda", "", http.StatusBadRequest},
		{"non-numeric year", http.MethodGet, "/api/calendars/home?y=soon", "", http.StatusBadRequest},
		{"bad json", http.MethodPost, "/api/calendars/home/tasks", `{"title":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/calendars/home/tasks", `{"date":"2024-06-01","colour":"red"}`, http.StatusBadRequest},
		{"impossible date", http.MethodPost, "/api/calendars/home/tasks", `{"date":"2024-02-30","title":"x"}`, http.StatusBadRequest},
		{"one-off without date", http.MethodPost, "/api/calendars/home/tasks", `{"title":"x"}`, http.StatusBadRequest},
		{"malformed rule", http.MethodPost, "/api/calendars/home/tasks", `{"date":"2024-06-01","title":"x","repetition":{"type":"q"}}`, http.StatusBadRequest},
		{"create in unknown calendar", http.MethodPost, "/api/calendars/nobody/tasks", `{"date":"2024-06-01","title":"x"}`, http.StatusNotFound},
		{"non-numeric id", http.MethodGet, "/api/calendars/home/tasks/2024/6/1/abc", "", http.StatusBadRequest},
		{"missing task", http.MethodGet, "/api/calendars/home/tasks/2024/6/1/42", "", http.StatusNotFound},
		{"hide unknown series", http.MethodPost, "/api/calendars/home/tasks/2024/6/1/42/hide", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			if resp.Header.Get("Content-Type") == "application/json; charset=utf-8" {
				assert.NotEmpty(t, errorBody(t, resp))
			}
		})
	}
}

func TestExport(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.create(t, `{"date":"2024-06-20","title":"dentist","is_all_day":true}`)

	resp := ts.do(t, http.MethodGet, "/api/calendars/home/export.ics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/calendar; charset=utf-8", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "BEGIN:VEVENT")
	assert.Contains(t, string(body), "SUMMARY:dentist")

	disabled := newTestServer(t, func(c *config.Config) { c.FeatureICalExport = false })
	assert.Equal(t, http.StatusNotFound, disabled.do(t, http.MethodGet, "/api/calendars/home/export.ics", "").StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(t, http.MethodGet, "/health", "")

	resp := ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "taskcal_http_requests_total")
}
