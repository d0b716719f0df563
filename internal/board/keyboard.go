package board

import (
	"context"
	"time"

	"shopplanner/internal/metrics"
	"shopplanner/internal/model"
	"shopplanner/internal/timegrid"
)

// MoveTo places appointment id at start in the given technician lane, keeping
// its duration. It runs the same oracle and commit path as a drag.
func (b *Board) MoveTo(ctx context.Context, id string, start time.Time, technicianID *string) (Outcome, error) {
	b.mu.Lock()
	if !b.loaded {
		b.mu.Unlock()
		return Outcome{}, ErrNotLoaded
	}
	appt, ok := b.findLocked(id)
	if !ok {
		b.mu.Unlock()
		return Outcome{}, ErrUnknownAppointment
	}
	d := appt.Duration()
	snapped := b.windowLocked().ClampStart(b.grid.SnapTime(start), d)
	b.mu.Unlock()

	c := appt.Clone()
	c.StartsAt = b.grid.ToUTC(snapped)
	c.EndsAt = b.grid.ToUTC(snapped.Add(d))
	c.TechnicianID = model.CloneString(technicianID)
	return b.keyboardCommit(ctx, GestureMove, appt, c)
}

// ResizeTo sets a new time range for appointment id. Both ends are snapped and
// the range keeps at least one slot.
func (b *Board) ResizeTo(ctx context.Context, id string, start, end time.Time) (Outcome, error) {
	b.mu.Lock()
	if !b.loaded {
		b.mu.Unlock()
		return Outcome{}, ErrNotLoaded
	}
	appt, ok := b.findLocked(id)
	if !ok {
		b.mu.Unlock()
		return Outcome{}, ErrUnknownAppointment
	}
	window := b.windowLocked()
	s := b.grid.SnapTime(start)
	if s.Before(window.Start) {
		s = window.Start
	}
	if latest := window.End.Add(-timegrid.Slot); s.After(latest) {
		s = latest
	}
	e := clampResizeEnd(window, b.grid.SnapTime(end), s)
	b.mu.Unlock()

	c := appt.Clone()
	c.StartsAt = b.grid.ToUTC(s)
	c.EndsAt = b.grid.ToUTC(e)
	return b.keyboardCommit(ctx, GestureResizeEnd, appt, c)
}

// OpenEdit returns the current values of an appointment for the edit dialog.
func (b *Board) OpenEdit(id string) (model.Appointment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	appt, ok := b.findLocked(id)
	if !ok {
		return model.Appointment{}, ErrUnknownAppointment
	}
	return appt, nil
}

// ClickLane converts a click on empty lane space into create defaults. It
// never mutates state.
func (b *Board) ClickLane(laneID string, y float64) (model.Appointment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.loaded {
		return model.Appointment{}, ErrNotLoaded
	}
	if b.state != StateIdle {
		return model.Appointment{}, ErrGestureActive
	}
	if _, hit := b.hitTestLocked(laneID, y); hit {
		return model.Appointment{}, ErrOnCard
	}

	window := b.windowLocked()
	start := window.ClampStart(b.grid.PixelsToTime(y, window.Start), b.defaultDuration)
	return model.Appointment{
		OrganizationID: b.store.OrgID(),
		Status:         model.StatusScheduled,
		TechnicianID:   model.Ref(laneID),
		BayID:          model.CloneString(b.bayFilter),
		StartsAt:       b.grid.ToUTC(start),
		EndsAt:         b.grid.ToUTC(start.Add(b.defaultDuration)),
	}, nil
}

func (b *Board) keyboardCommit(ctx context.Context, kind GestureKind, original, c model.Appointment) (Outcome, error) {
	if sameSlot(original, c) {
		return Outcome{Kind: OutcomeUnchanged, Appointment: original}, nil
	}
	out, err := b.commit(ctx, 0, kind, c, func() {})
	if err != nil {
		metrics.IncGesture("keyboard", "failed")
		return out, err
	}
	metrics.IncGesture("keyboard", string(out.Kind))
	return out, nil
}
