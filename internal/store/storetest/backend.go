// Package storetest provides a testify mock of the store's persistence backend.
package storetest

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"shopplanner/internal/model"
)

type Backend struct {
	mock.Mock
}

func (m *Backend) ListAppointments(ctx context.Context, orgID string, from, to time.Time, bayID *string) ([]model.Appointment, error) {
	args := m.Called(ctx, orgID, from, to, bayID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Appointment), args.Error(1)
}

func (m *Backend) InsertAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	args := m.Called(ctx, a)
	return args.Get(0).(model.Appointment), args.Error(1)
}

func (m *Backend) UpdateAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	args := m.Called(ctx, a)
	return args.Get(0).(model.Appointment), args.Error(1)
}

func (m *Backend) CanSchedule(ctx context.Context, req model.ScheduleRequest) (bool, error) {
	args := m.Called(ctx, req)
	return args.Bool(0), args.Error(1)
}

func (m *Backend) ConflictReport(ctx context.Context, id string) ([]model.Conflict, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Conflict), args.Error(1)
}

func (m *Backend) ListTechnicians(ctx context.Context) ([]model.Technician, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Technician), args.Error(1)
}

func (m *Backend) ListBays(ctx context.Context) ([]model.Bay, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Bay), args.Error(1)
}

// ByID matches an appointment argument by id.
func ByID(id string) interface{} {
	return mock.MatchedBy(func(a model.Appointment) bool { return a.ID == id })
}
