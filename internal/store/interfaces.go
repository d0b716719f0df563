package store

import (
	"context"
	"time"

	"shopplanner/internal/model"
)

// AppointmentQuery reads appointments with joined customer name and vehicle label.
type AppointmentQuery interface {
	// ListAppointments returns rows whose start falls in [from, to).
	// A nil bayID returns every bay.
	ListAppointments(ctx context.Context, orgID string, from, to time.Time, bayID *string) ([]model.Appointment, error)
}

// AppointmentWriter persists appointments and returns the stored record.
type AppointmentWriter interface {
	InsertAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error)
	UpdateAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error)
}

// AvailabilityOracle is the authoritative schedule check. It accounts for
// overlapping appointments, time off and weekly availability windows.
type AvailabilityOracle interface {
	CanSchedule(ctx context.Context, req model.ScheduleRequest) (bool, error)
}

// ConflictReporter lists bookings overlapping an appointment for read-only display.
type ConflictReporter interface {
	ConflictReport(ctx context.Context, appointmentID string) ([]model.Conflict, error)
}

// Directory lists schedulable resources.
type Directory interface {
	ListTechnicians(ctx context.Context) ([]model.Technician, error)
	ListBays(ctx context.Context) ([]model.Bay, error)
}

// Backend is everything the planner needs from persistence.
type Backend interface {
	AppointmentQuery
	AppointmentWriter
	AvailabilityOracle
	ConflictReporter
	Directory
}

// Level is the severity of a user-facing notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notifier shows non-blocking messages (toasts) to the user.
type Notifier interface {
	Notify(level Level, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(level Level, message string)

func (f NotifierFunc) Notify(level Level, message string) { f(level, message) }

type nopNotifier struct{}

func (nopNotifier) Notify(Level, string) {}
