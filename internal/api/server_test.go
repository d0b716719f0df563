package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"shopplanner/internal/config"
	"shopplanner/internal/db"
	"shopplanner/internal/model"
)

const testAPIKey = "valid-key"

type ErrorResponse struct {
	Error string `json:"error"`
}

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "planner.db"), time.UTC, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	err = database.SyncResourcesFromConfig(context.Background(), &config.ResourcesConfig{
		Technicians: []config.TechnicianConfig{
			{ID: "T1", Name: "Jonas", IsActive: true},
			{ID: "T2", Name: "Ieva", IsActive: true},
		},
		Bays: []config.BayConfig{{ID: "B1", Name: "Lift 1", IsActive: true}},
	})
	require.NoError(t, err)
	return database
}

func setupTestServer(t *testing.T, opts Options) (*httptest.Server, *db.DB) {
	t.Helper()
	database := newTestDB(t)
	if opts.OrganizationID == "" {
		opts.OrganizationID = "org-1"
	}
	if opts.APIKey == "" {
		opts.APIKey = testAPIKey
	}
	srv := httptest.NewServer(NewServer(database, opts, zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)
	return srv, database
}

func at(h, m int) time.Time {
	return time.Date(2024, 3, 12, h, m, 0, 0, time.UTC)
}

func do(t *testing.T, srv *httptest.Server, method, path string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("x-api-key", testAPIKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestAuth(t *testing.T) {
	srv, _ := setupTestServer(t, Options{})

	resp, err := srv.Client().Get(srv.URL + "/api/v1/technicians")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	health, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode, "health is public")

	ok := do(t, srv, http.MethodGet, "/api/v1/technicians", nil)
	assert.Equal(t, http.StatusOK, ok.StatusCode)
	var techs TechniciansResponse
	decode(t, ok, &techs)
	assert.Len(t, techs.Technicians, 2)
}

func TestAppointmentLifecycle(t *testing.T) {
	srv, _ := setupTestServer(t, Options{})

	resp := do(t, srv, http.MethodPost, "/api/v1/appointments", model.Appointment{
		Title:        "Brakes",
		TechnicianID: model.Ref("T1"),
		BayID:        model.Ref("B1"),
		StartsAt:     at(9, 0),
		EndsAt:       at(10, 0),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created model.Appointment
	decode(t, resp, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "org-1", created.OrganizationID)

	q := url.Values{"from": {at(0, 0).Format(time.RFC3339)}, "to": {at(24, 0).Format(time.RFC3339)}}
	resp = do(t, srv, http.MethodGet, "/api/v1/appointments?"+q.Encode(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list AppointmentsResponse
	decode(t, resp, &list)
	require.Len(t, list.Appointments, 1)
	assert.True(t, list.Appointments[0].StartsAt.Equal(at(9, 0)))

	created.StartsAt, created.EndsAt = at(13, 0), at(14, 0)
	resp = do(t, srv, http.MethodPut, "/api/v1/appointments/"+created.ID, created)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated model.Appointment
	decode(t, resp, &updated)
	assert.True(t, updated.StartsAt.Equal(at(13, 0)))

	resp = do(t, srv, http.MethodPut, "/api/v1/appointments/missing", created)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "body id must match the path")

	created.ID = ""
	resp = do(t, srv, http.MethodPut, "/api/v1/appointments/missing", created)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/v1/appointments", model.Appointment{Title: "Backwards", StartsAt: at(10, 0), EndsAt: at(9, 0)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListAppointments_Validation(t *testing.T) {
	srv, _ := setupTestServer(t, Options{})

	tests := []struct {
		name      string
		query     url.Values
		wantError string
	}{
		{"missing range", url.Values{}, "from and to are required"},
		{"bad from", url.Values{"from": {"2024-03-12"}, "to": {at(0, 0).Format(time.RFC3339)}}, "invalid from; expected RFC3339"},
		{"reversed", url.Values{"from": {at(10, 0).Format(time.RFC3339)}, "to": {at(9, 0).Format(time.RFC3339)}}, "to must be after from"},
		{"too long", url.Values{"from": {at(0, 0).Format(time.RFC3339)}, "to": {at(0, 0).AddDate(0, 2, 0).Format(time.RFC3339)}}, "range exceeds maximum of 31 days"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, srv, http.MethodGet, "/api/v1/appointments?"+tt.query.Encode(), nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var e ErrorResponse
			decode(t, resp, &e)
			assert.Equal(t, tt.wantError, e.Error)
		})
	}
}

func TestScheduleCheckAndConflicts(t *testing.T) {
	srv, database := setupTestServer(t, Options{})
	ctx := context.Background()

	first, err := database.InsertAppointment(ctx, model.Appointment{OrganizationID: "org-1", Title: "A", TechnicianID: model.Ref("T1"), StartsAt: at(9, 0), EndsAt: at(10, 0)})
	require.NoError(t, err)
	_, err = database.InsertAppointment(ctx, model.Appointment{OrganizationID: "org-1", Title: "B", TechnicianID: model.Ref("T1"), StartsAt: at(9, 30), EndsAt: at(10, 30)})
	require.NoError(t, err)

	resp := do(t, srv, http.MethodPost, "/api/v1/schedule/check", model.ScheduleRequest{TechnicianID: model.Ref("T1"), StartsAt: at(9, 0), EndsAt: at(9, 45)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var check ScheduleCheckResponse
	decode(t, resp, &check)
	assert.False(t, check.Available)

	resp = do(t, srv, http.MethodPost, "/api/v1/schedule/check", model.ScheduleRequest{TechnicianID: model.Ref("T2"), StartsAt: at(9, 0), EndsAt: at(9, 45)})
	decode(t, resp, &check)
	assert.True(t, check.Available)

	resp = do(t, srv, http.MethodPost, "/api/v1/schedule/check", map[string]string{"technician": "T1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/api/v1/appointments/"+first.ID+"/conflicts", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report ConflictsResponse
	decode(t, resp, &report)
	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, "Jonas", report.Conflicts[0].ResourceName)

	resp = do(t, srv, http.MethodGet, "/api/v1/appointments/nope/conflicts", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExportDay(t *testing.T) {
	srv, database := setupTestServer(t, Options{Tables: nil})
	_, err := database.InsertAppointment(context.Background(), model.Appointment{OrganizationID: "org-1", Title: "Brakes", TechnicianID: model.Ref("T1"), StartsAt: at(9, 0), EndsAt: at(10, 0)})
	require.NoError(t, err)

	resp := do(t, srv, http.MethodGet, "/api/v1/export/day?date=2024-03-12", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))

	f, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("2024-03-12")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Jonas", rows[1][0])

	resp = do(t, srv, http.MethodGet, "/api/v1/export/day?date=12.03.2024", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/api/v1/export/tables", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExportTables(t *testing.T) {
	database := newTestDB(t)
	srv := httptest.NewServer(NewServer(database, Options{OrganizationID: "org-1", Tables: database}, zerolog.Nop()).Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/api/v1/export/tables")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	f, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, db.ExportTableNames, f.GetSheetList())
}

func TestRateLimit(t *testing.T) {
	srv, _ := setupTestServer(t, Options{RateLimitRPS: 0.001, RateLimitBurst: 2})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/v1/bays", nil).StatusCode)
	}
	resp := do(t, srv, http.MethodGet, "/api/v1/bays", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestRateLimitEvictsIdleClients(t *testing.T) {
	database := newTestDB(t)
	s := NewServer(database, Options{OrganizationID: "org-1", RateLimitRPS: 5, RateLimitBurst: 5}, zerolog.Nop())
	clock := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	s.lastSweep = clock
	h := s.Handler()

	call := func(key string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/bays", nil)
		req.Header.Set("x-api-key", key)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for _, key := range []string{"a", "b", "c"} {
		require.Equal(t, http.StatusOK, call(key))
	}
	assert.Len(t, s.limiters, 3)

	clock = clock.Add(5 * time.Minute)
	require.Equal(t, http.StatusOK, call("a"))
	assert.Len(t, s.limiters, 3, "no sweep before the idle period")

	clock = clock.Add(6 * time.Minute)
	require.Equal(t, http.StatusOK, call("d"))
	assert.Len(t, s.limiters, 2)
	assert.Contains(t, s.limiters, "key:a")
	assert.Contains(t, s.limiters, "key:d")
}

func TestReadyz(t *testing.T) {
	srv, _ := setupTestServer(t, Options{ReadyChecks: []ReadyCheck{
		{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
	}})

	resp, err := srv.Client().Get(srv.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
