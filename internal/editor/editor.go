package editor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"shopplanner/internal/model"
	"shopplanner/internal/store"
)

// Result is the outcome of a submitted form.
type Result struct {
	Appointment model.Appointment
	Saved       bool
	// Unavailable is set when the oracle rejected the slot; nothing was written.
	Unavailable bool
}

// Editor drives the appointment dialog.
type Editor struct {
	store  *store.Store
	logger zerolog.Logger
}

func New(st *store.Store, logger zerolog.Logger) *Editor {
	return &Editor{
		store:  st,
		logger: logger.With().Str("component", "editor").Logger(),
	}
}

// Open loads an existing appointment into a form along with its conflict report.
func (e *Editor) Open(ctx context.Context, id string) (Form, []model.Conflict, error) {
	a, ok := e.store.Get(id)
	if !ok {
		return Form{}, nil, store.ErrUnknownAppointment
	}
	if a.IsTemporary() {
		return FromAppointment(a), nil, nil
	}
	conflicts, err := e.store.Conflicts(ctx, id)
	if err != nil {
		return Form{}, nil, err
	}
	return FromAppointment(a), conflicts, nil
}

// Submit validates f, asks the oracle and creates or updates the appointment.
func (e *Editor) Submit(ctx context.Context, f Form) (Result, error) {
	if err := Validate(f); err != nil {
		return Result{}, err
	}
	appt := f.Appointment(e.store.OrgID())

	ok, err := e.store.CanSchedule(ctx, model.ScheduleRequest{
		TechnicianID:  appt.TechnicianID,
		BayID:         appt.BayID,
		StartsAt:      appt.StartsAt,
		EndsAt:        appt.EndsAt,
		AppointmentID: appt.ID,
	})
	if err != nil {
		return Result{}, err
	}
	if !ok {
		e.logger.Debug().Str("appointment_id", appt.ID).Msg("slot unavailable")
		return Result{Appointment: appt, Unavailable: true}, nil
	}

	var saved model.Appointment
	if appt.ID == "" {
		saved, err = e.store.Create(ctx, appt)
	} else {
		saved, err = e.store.Update(ctx, appt)
	}
	if err != nil {
		return Result{Appointment: appt}, err
	}
	return Result{Appointment: saved, Saved: true}, nil
}

// ChangeStatus updates only the status of an existing appointment.
func (e *Editor) ChangeStatus(ctx context.Context, id string, status model.Status) (model.Appointment, error) {
	if !status.IsValid() {
		return model.Appointment{}, &ValidationError{Fields: map[string]string{"status": "Unknown status"}}
	}
	a, err := e.store.UpdateStatus(ctx, id, status)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("change status: %w", err)
	}
	return a, nil
}
