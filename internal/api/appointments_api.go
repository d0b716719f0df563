package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"shopplanner/internal/db"
	"shopplanner/internal/export"
	"shopplanner/internal/metrics"
	"shopplanner/internal/model"
)

// MaxListRange bounds GET /api/v1/appointments.
const MaxListRange = 31 * 24 * time.Hour

type AppointmentsResponse struct {
	Appointments []model.Appointment `json:"appointments"`
}

type ScheduleCheckResponse struct {
	Available bool `json:"available"`
}

type ConflictsResponse struct {
	Conflicts []model.Conflict `json:"conflicts"`
}

type TechniciansResponse struct {
	Technicians []model.Technician `json:"technicians"`
}

type BaysResponse struct {
	Bays []model.Bay `json:"bays"`
}

// handleListAppointments returns appointments starting in [from, to).
// GET /api/v1/appointments?from=RFC3339&to=RFC3339[&bay_id=][&org_id=]
func (s *Server) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("appointments_list")

	q := r.URL.Query()
	if q.Get("from") == "" || q.Get("to") == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}
	from, err := time.Parse(time.RFC3339, q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from; expected RFC3339")
		return
	}
	to, err := time.Parse(time.RFC3339, q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to; expected RFC3339")
		return
	}
	if !to.After(from) {
		writeError(w, http.StatusBadRequest, "to must be after from")
		return
	}
	if to.Sub(from) > MaxListRange {
		writeError(w, http.StatusBadRequest, "range exceeds maximum of 31 days")
		return
	}

	orgID := q.Get("org_id")
	if orgID == "" {
		orgID = s.opts.OrganizationID
	}

	items, err := s.backend.ListAppointments(r.Context(), orgID, from, to, model.Ref(q.Get("bay_id")))
	if err != nil {
		s.writeBackendError(w, "appointments_list", err)
		return
	}
	if items == nil {
		items = []model.Appointment{}
	}
	writeJSON(w, http.StatusOK, AppointmentsResponse{Appointments: items})
}

func decodeAppointment(r *http.Request) (model.Appointment, error) {
	var a model.Appointment
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&a); err != nil {
		return model.Appointment{}, fmt.Errorf("invalid JSON body")
	}
	if a.StartsAt.IsZero() || a.EndsAt.IsZero() {
		return model.Appointment{}, fmt.Errorf("starts_at and ends_at are required")
	}
	if a.Notes != nil && len([]rune(*a.Notes)) > model.MaxNotesLength {
		return model.Appointment{}, fmt.Errorf("notes exceed %d characters", model.MaxNotesLength)
	}
	return a, nil
}

// POST /api/v1/appointments
func (s *Server) handleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("appointments_create")

	a, err := decodeAppointment(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.ID = ""
	if a.OrganizationID == "" {
		a.OrganizationID = s.opts.OrganizationID
	}

	created, err := s.backend.InsertAppointment(r.Context(), a)
	if err != nil {
		s.writeBackendError(w, "appointments_create", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// PUT /api/v1/appointments/{id}
func (s *Server) handleUpdateAppointment(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("appointments_update")

	a, err := decodeAppointment(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := r.PathValue("id")
	if a.ID != "" && a.ID != id {
		writeError(w, http.StatusBadRequest, "id in body does not match path")
		return
	}
	a.ID = id

	updated, err := s.backend.UpdateAppointment(r.Context(), a)
	if err != nil {
		s.writeBackendError(w, "appointments_update", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// GET /api/v1/appointments/{id}/conflicts
func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("appointments_conflicts")

	conflicts, err := s.backend.ConflictReport(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeBackendError(w, "appointments_conflicts", err)
		return
	}
	if conflicts == nil {
		conflicts = []model.Conflict{}
	}
	writeJSON(w, http.StatusOK, ConflictsResponse{Conflicts: conflicts})
}

// POST /api/v1/schedule/check
func (s *Server) handleScheduleCheck(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("schedule_check")

	var req model.ScheduleRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.StartsAt.IsZero() || req.EndsAt.IsZero() {
		writeError(w, http.StatusBadRequest, "starts_at and ends_at are required")
		return
	}

	ok, err := s.backend.CanSchedule(r.Context(), req)
	if err != nil {
		s.writeBackendError(w, "schedule_check", err)
		return
	}
	writeJSON(w, http.StatusOK, ScheduleCheckResponse{Available: ok})
}

// GET /api/v1/technicians
func (s *Server) handleTechnicians(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("technicians")

	techs, err := s.backend.ListTechnicians(r.Context())
	if err != nil {
		s.writeBackendError(w, "technicians", err)
		return
	}
	if techs == nil {
		techs = []model.Technician{}
	}
	writeJSON(w, http.StatusOK, TechniciansResponse{Technicians: techs})
}

// GET /api/v1/bays
func (s *Server) handleBays(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bays")

	bays, err := s.backend.ListBays(r.Context())
	if err != nil {
		s.writeBackendError(w, "bays", err)
		return
	}
	if bays == nil {
		bays = []model.Bay{}
	}
	writeJSON(w, http.StatusOK, BaysResponse{Bays: bays})
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleExportDay streams the shop-floor day sheet.
// GET /api/v1/export/day?date=YYYY-MM-DD[&bay_id=]
func (s *Server) handleExportDay(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export_day")

	date := r.URL.Query().Get("date")
	day, err := time.ParseInLocation("2006-01-02", date, s.opts.Location)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	ctx := r.Context()
	items, err := s.backend.ListAppointments(ctx, s.opts.OrganizationID, day.UTC(), day.AddDate(0, 0, 1).UTC(), model.Ref(r.URL.Query().Get("bay_id")))
	if err != nil {
		s.writeBackendError(w, "export_day", err)
		return
	}
	techs, err := s.backend.ListTechnicians(ctx)
	if err != nil {
		s.writeBackendError(w, "export_day", err)
		return
	}
	bays, err := s.backend.ListBays(ctx)
	if err != nil {
		s.writeBackendError(w, "export_day", err)
		return
	}

	var active []model.Technician
	for _, t := range techs {
		if t.IsActive {
			active = append(active, t)
		}
	}

	wb := export.NewWorkbook()
	defer wb.Close()
	if err := export.DaySheet(wb, day, s.opts.Location, active, bays, items); err != nil {
		s.writeBackendError(w, "export_day", err)
		return
	}
	s.writeWorkbook(w, wb, fmt.Sprintf("day_%s.xlsx", date))
}

// GET /api/v1/export/tables
func (s *Server) handleExportTables(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export_tables")

	if s.opts.Tables == nil {
		writeError(w, http.StatusNotFound, "table export is not enabled")
		return
	}
	names := s.opts.TableNames
	if len(names) == 0 {
		names = db.ExportTableNames
	}

	wb := export.NewWorkbook()
	defer wb.Close()
	if err := export.Tables(r.Context(), wb, s.opts.Tables, names); err != nil {
		s.writeBackendError(w, "export_tables", err)
		return
	}
	s.writeWorkbook(w, wb, fmt.Sprintf("planner_%s.xlsx", time.Now().In(s.opts.Location).Format("20060102")))
}

func (s *Server) writeWorkbook(w http.ResponseWriter, wb *export.Workbook, filename string) {
	var buf bytes.Buffer
	if err := wb.Save(&buf); err != nil {
		s.logger.Error().Err(err).Msg("save workbook")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
