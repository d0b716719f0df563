package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"shopplanner/internal/model"
)

const appointmentColumns = `
	a.id, a.organization_id, a.title, a.status, a.technician_id, a.bay_id,
	a.starts_at, a.ends_at, a.notes, a.customer_id, a.vehicle_id, a.priority,
	a.created_at, a.updated_at,
	COALESCE(c.name, ''),
	COALESCE(TRIM(v.make || ' ' || v.model || CASE WHEN v.plate <> '' THEN ' (' || v.plate || ')' ELSE '' END), '')`

const appointmentJoins = `
	FROM appointments a
	LEFT JOIN customers c ON c.id = a.customer_id
	LEFT JOIN vehicles v ON v.id = a.vehicle_id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAppointment(row rowScanner) (model.Appointment, error) {
	var (
		a                        model.Appointment
		status                   string
		tech, bay, notes         sql.NullString
		customerID, vehicleID    sql.NullString
		customerName, vehicleTag string
	)
	err := row.Scan(
		&a.ID, &a.OrganizationID, &a.Title, &status, &tech, &bay,
		&a.StartsAt, &a.EndsAt, &notes, &customerID, &vehicleID, &a.Priority,
		&a.CreatedAt, &a.UpdatedAt, &customerName, &vehicleTag,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Status = model.Status(status)
	a.TechnicianID = refOf(tech)
	a.BayID = refOf(bay)
	a.Notes = refOf(notes)
	a.CustomerID = customerID.String
	a.VehicleID = vehicleID.String
	a.CustomerName = customerName
	a.VehicleLabel = vehicleTag
	a.StartsAt = a.StartsAt.UTC()
	a.EndsAt = a.EndsAt.UTC()
	return a, nil
}

// ListAppointments returns appointments of the organization starting in
// [from, to), optionally restricted to one bay, ordered by start.
func (db *DB) ListAppointments(ctx context.Context, orgID string, from, to time.Time, bayID *string) ([]model.Appointment, error) {
	query := `SELECT` + appointmentColumns + appointmentJoins + `
		WHERE a.organization_id = ? AND a.starts_at >= ? AND a.starts_at < ?`
	args := []interface{}{orgID, from.UTC(), to.UTC()}
	if bayID != nil {
		query += ` AND a.bay_id = ?`
		args = append(args, *bayID)
	}
	query += ` ORDER BY a.starts_at, a.id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (db *DB) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	row := db.QueryRowContext(ctx, `SELECT`+appointmentColumns+appointmentJoins+` WHERE a.id = ?`, id)
	a, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Appointment{}, fmt.Errorf("get appointment %s: %w", id, err)
	}
	return a, nil
}

func checkAppointment(a model.Appointment) error {
	if strings.TrimSpace(a.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if !a.EndsAt.After(a.StartsAt) {
		return model.ErrInvalidRange
	}
	if a.Status != "" && !a.Status.IsValid() {
		return fmt.Errorf("%w: status %q", ErrInvalid, a.Status)
	}
	return nil
}

// InsertAppointment stores a new appointment under a server-assigned id and
// returns the stored row.
func (db *DB) InsertAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	if err := checkAppointment(a); err != nil {
		return model.Appointment{}, err
	}
	if a.Status == "" {
		a.Status = model.StatusScheduled
	}
	id := uuid.NewString()
	now := db.now().UTC()

	_, err := db.ExecContext(ctx, `
		INSERT INTO appointments (
			id, organization_id, title, status, technician_id, bay_id, starts_at, ends_at,
			notes, customer_id, vehicle_id, priority, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, a.OrganizationID, a.Title, string(a.Status), nullString(a.TechnicianID), nullString(a.BayID),
		a.StartsAt.UTC(), a.EndsAt.UTC(), nullString(a.Notes), optString(a.CustomerID), optString(a.VehicleID),
		a.Priority, now, now,
	)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("insert appointment: %w", err)
	}

	db.logger.Debug().Str("appointment_id", id).Msg("appointment created")
	return db.GetAppointment(ctx, id)
}

// UpdateAppointment replaces the editable fields of an existing appointment.
func (db *DB) UpdateAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	if err := checkAppointment(a); err != nil {
		return model.Appointment{}, err
	}
	if a.Status == "" {
		a.Status = model.StatusScheduled
	}

	res, err := db.ExecContext(ctx, `
		UPDATE appointments SET
			title = ?, status = ?, technician_id = ?, bay_id = ?, starts_at = ?, ends_at = ?,
			notes = ?, customer_id = ?, vehicle_id = ?, priority = ?, updated_at = ?
		WHERE id = ?`,
		a.Title, string(a.Status), nullString(a.TechnicianID), nullString(a.BayID),
		a.StartsAt.UTC(), a.EndsAt.UTC(), nullString(a.Notes), optString(a.CustomerID), optString(a.VehicleID),
		a.Priority, db.now().UTC(), a.ID,
	)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("update appointment %s: %w", a.ID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", a.ID, ErrNotFound)
	}
	return db.GetAppointment(ctx, a.ID)
}

// Customer and Vehicle rows only feed display labels on appointments.
type Customer struct {
	ID    string
	Name  string
	Phone string
}

type Vehicle struct {
	ID         string
	CustomerID string
	Make       string
	Model      string
	Plate      string
}

func (db *DB) UpsertCustomer(ctx context.Context, c Customer) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, phone = excluded.phone`,
		c.ID, c.Name, optString(c.Phone), db.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert customer %s: %w", c.ID, err)
	}
	return nil
}

func (db *DB) UpsertVehicle(ctx context.Context, v Vehicle) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO vehicles (id, customer_id, make, model, plate, created_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			customer_id = excluded.customer_id,
			make = excluded.make,
			model = excluded.model,
			plate = excluded.plate`,
		v.ID, optString(v.CustomerID), v.Make, v.Model, v.Plate, db.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert vehicle %s: %w", v.ID, err)
	}
	return nil
}
