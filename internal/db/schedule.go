package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shopplanner/internal/model"
)

// CanSchedule reports whether the requested assignment fits: no overlapping
// booking on the technician or bay (the appointment itself excluded), no time
// off, and inside an availability window on the local weekday. A resource
// without configured windows is available around the clock.
func (db *DB) CanSchedule(ctx context.Context, req model.ScheduleRequest) (bool, error) {
	if !req.EndsAt.After(req.StartsAt) {
		return false, nil
	}
	start, end := req.StartsAt.UTC(), req.EndsAt.UTC()

	type resource struct {
		id   *string
		kind model.ResourceKind
	}
	for _, r := range []resource{{req.TechnicianID, model.ResourceTechnician}, {req.BayID, model.ResourceBay}} {
		if r.id == nil || *r.id == "" {
			continue
		}
		ok, err := db.resourceFree(ctx, r.kind, *r.id, req.AppointmentID, start, end)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (db *DB) resourceFree(ctx context.Context, kind model.ResourceKind, id, exclude string, start, end time.Time) (bool, error) {
	active, err := db.resourceActive(ctx, kind, id)
	if err != nil {
		return false, err
	}
	if !active {
		return false, nil
	}

	column := "technician_id"
	if kind == model.ResourceBay {
		column = "bay_id"
	}
	var busy int
	err = db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*) FROM appointments
		WHERE %s = ? AND id <> ? AND starts_at < ? AND ends_at > ?`, column),
		id, exclude, end, start,
	).Scan(&busy)
	if err != nil {
		return false, fmt.Errorf("check %s %s overlap: %w", kind, id, err)
	}
	if busy > 0 {
		return false, nil
	}

	var off int
	err = db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM time_off
		WHERE kind = ? AND resource_id = ? AND starts_at < ? AND ends_at > ?`,
		string(kind), id, end, start,
	).Scan(&off)
	if err != nil {
		return false, fmt.Errorf("check %s %s time off: %w", kind, id, err)
	}
	if off > 0 {
		return false, nil
	}

	return db.withinWindows(ctx, kind, id, start, end)
}

func (db *DB) resourceActive(ctx context.Context, kind model.ResourceKind, id string) (bool, error) {
	table := "technicians"
	if kind == model.ResourceBay {
		table = "bays"
	}
	var active bool
	err := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT is_active FROM %s WHERE id = ?`, table), id).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup %s %s: %w", kind, id, err)
	}
	return active, nil
}

func (db *DB) withinWindows(ctx context.Context, kind model.ResourceKind, id string, start, end time.Time) (bool, error) {
	windows, err := db.ListWindows(ctx, kind, id)
	if err != nil {
		return false, err
	}
	if len(windows) == 0 {
		return true, nil
	}

	localStart := start.In(db.loc)
	dayStart := time.Date(localStart.Year(), localStart.Month(), localStart.Day(), 0, 0, 0, 0, db.loc)
	startMin := int(localStart.Sub(dayStart).Minutes())
	endMin := int(end.In(db.loc).Sub(dayStart).Minutes())
	if endMin > 24*60 {
		return false, nil
	}

	for _, w := range windows {
		if w.Weekday == localStart.Weekday() && w.Covers(startMin, endMin) {
			return true, nil
		}
	}
	return false, nil
}

// ListWindows returns the weekly availability windows of one resource.
func (db *DB) ListWindows(ctx context.Context, kind model.ResourceKind, id string) ([]model.AvailabilityWindow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, resource_id, kind, weekday, start_minute, end_minute
		FROM availability_windows
		WHERE kind = ? AND resource_id = ?
		ORDER BY weekday, start_minute`,
		string(kind), id,
	)
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}
	defer rows.Close()

	var out []model.AvailabilityWindow
	for rows.Next() {
		var (
			w       model.AvailabilityWindow
			k       string
			weekday int
		)
		if err := rows.Scan(&w.ID, &w.ResourceID, &k, &weekday, &w.StartMinute, &w.EndMinute); err != nil {
			return nil, err
		}
		w.Kind = model.ResourceKind(k)
		w.Weekday = time.Weekday(weekday)
		out = append(out, w)
	}
	return out, rows.Err()
}

// ConflictReport lists bookings that overlap the appointment on its
// technician or bay, one entry per shared resource.
func (db *DB) ConflictReport(ctx context.Context, id string) ([]model.Conflict, error) {
	a, err := db.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT o.id, o.title, o.starts_at, o.ends_at,
		       CASE WHEN o.technician_id = ? THEN 1 ELSE 0 END,
		       CASE WHEN o.bay_id = ? THEN 1 ELSE 0 END,
		       COALESCE(t.name, ''), COALESCE(b.name, '')
		FROM appointments o
		LEFT JOIN technicians t ON t.id = o.technician_id
		LEFT JOIN bays b ON b.id = o.bay_id
		WHERE o.id <> ? AND o.starts_at < ? AND o.ends_at > ?
		  AND (o.technician_id = ? OR o.bay_id = ?)
		ORDER BY o.starts_at, o.id`,
		nullString(a.TechnicianID), nullString(a.BayID),
		a.ID, a.EndsAt, a.StartsAt,
		nullString(a.TechnicianID), nullString(a.BayID),
	)
	if err != nil {
		return nil, fmt.Errorf("conflict report %s: %w", id, err)
	}
	defer rows.Close()

	var out []model.Conflict
	for rows.Next() {
		var (
			otherID, title    string
			starts, ends      time.Time
			sameTech, sameBay bool
			techName, bayName string
		)
		if err := rows.Scan(&otherID, &title, &starts, &ends, &sameTech, &sameBay, &techName, &bayName); err != nil {
			return nil, err
		}
		base := model.Conflict{
			AppointmentID:   a.ID,
			ConflictingID:   otherID,
			ConflictingName: title,
			OverlapStart:    latest(a.StartsAt, starts.UTC()),
			OverlapEnd:      earliest(a.EndsAt, ends.UTC()),
		}
		if sameTech {
			c := base
			c.ResourceKind = model.ResourceTechnician
			c.ResourceName = techName
			out = append(out, c)
		}
		if sameBay {
			c := base
			c.ResourceKind = model.ResourceBay
			c.ResourceName = bayName
			out = append(out, c)
		}
	}
	return out, rows.Err()
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earliest(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
