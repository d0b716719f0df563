// Package editor backs the create/edit dialog: field validation, the oracle
// gate and the resulting store mutation.
package editor

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"shopplanner/internal/model"
	"shopplanner/internal/timegrid"
)

// Form is the editable view of one appointment. An empty ID means create.
type Form struct {
	ID           string
	Title        string
	Status       model.Status
	TechnicianID *string
	BayID        *string
	StartsAt     time.Time
	EndsAt       time.Time
	Notes        string
	CustomerID   string
	VehicleID    string
	Priority     int
}

// FromAppointment fills a form with the current values of a.
func FromAppointment(a model.Appointment) Form {
	return Form{
		ID:           a.ID,
		Title:        a.Title,
		Status:       a.Status,
		TechnicianID: model.CloneString(a.TechnicianID),
		BayID:        model.CloneString(a.BayID),
		StartsAt:     a.StartsAt,
		EndsAt:       a.EndsAt,
		Notes:        model.Deref(a.Notes),
		CustomerID:   a.CustomerID,
		VehicleID:    a.VehicleID,
		Priority:     a.Priority,
	}
}

// Appointment converts the form back. Blank notes become nil.
func (f Form) Appointment(orgID string) model.Appointment {
	status := f.Status
	if status == "" {
		status = model.StatusScheduled
	}
	return model.Appointment{
		ID:             f.ID,
		OrganizationID: orgID,
		Title:          strings.TrimSpace(f.Title),
		Status:         status,
		TechnicianID:   model.CloneString(f.TechnicianID),
		BayID:          model.CloneString(f.BayID),
		StartsAt:       f.StartsAt,
		EndsAt:         f.EndsAt,
		Notes:          model.Ref(strings.TrimSpace(f.Notes)),
		CustomerID:     f.CustomerID,
		VehicleID:      f.VehicleID,
		Priority:       f.Priority,
	}
}

// ValidationError maps field names to messages shown next to the field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid appointment: " + strings.Join(parts, "; ")
}

// Validate checks the form before anything is sent to the network.
func Validate(f Form) error {
	fields := make(map[string]string)

	if strings.TrimSpace(f.Title) == "" {
		fields["title"] = "Title is required"
	}
	if f.Status != "" && !f.Status.IsValid() {
		fields["status"] = "Unknown status"
	}
	switch {
	case f.StartsAt.IsZero():
		fields["starts_at"] = "Start time is required"
	case f.EndsAt.IsZero():
		fields["ends_at"] = "End time is required"
	case !f.EndsAt.After(f.StartsAt):
		fields["ends_at"] = "End time must be after start time"
	case f.EndsAt.Sub(f.StartsAt) < timegrid.Slot:
		fields["ends_at"] = "Appointment must last at least 15 minutes"
	}
	if utf8.RuneCountInString(f.Notes) > model.MaxNotesLength {
		fields["notes"] = "Notes are too long"
	}
	if f.Priority < 0 {
		fields["priority"] = "Priority cannot be negative"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
