package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"shopplanner/internal/config"
	"shopplanner/internal/model"
)

func (db *DB) ListTechnicians(ctx context.Context) ([]model.Technician, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, color, resource_id, skills, is_active
		FROM technicians
		ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list technicians: %w", err)
	}
	defer rows.Close()

	var out []model.Technician
	for rows.Next() {
		var (
			t          model.Technician
			resourceID sql.NullString
			skills     string
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.Color, &resourceID, &skills, &t.IsActive); err != nil {
			return nil, err
		}
		t.ResourceID = refOf(resourceID)
		if skills != "" {
			t.Skills = strings.Split(skills, ",")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (db *DB) ListBays(ctx context.Context) ([]model.Bay, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, is_active FROM bays ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list bays: %w", err)
	}
	defer rows.Close()

	var out []model.Bay
	for rows.Next() {
		var b model.Bay
		if err := rows.Scan(&b.ID, &b.Name, &b.IsActive); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// SyncResourcesFromConfig applies resources.yaml to the database. Technicians
// and bays are upserted and the ones missing from the file are deactivated, so
// their historic appointments keep a name. Availability windows and time off
// are replaced wholesale.
func (db *DB) SyncResourcesFromConfig(ctx context.Context, cfg *config.ResourcesConfig) error {
	if cfg == nil {
		return fmt.Errorf("resources config is nil")
	}
	offs, err := cfg.TimeOffEntries(db.loc)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sync: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := db.now().UTC()

	techs := make([]string, 0, len(cfg.Technicians))
	for _, t := range cfg.TechnicianModels() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO technicians (id, name, color, resource_id, skills, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				color = excluded.color,
				resource_id = excluded.resource_id,
				skills = excluded.skills,
				is_active = excluded.is_active,
				updated_at = excluded.updated_at`,
			t.ID, t.Name, t.Color, nullString(t.ResourceID), strings.Join(t.Skills, ","), t.IsActive, now, now,
		)
		if err != nil {
			return fmt.Errorf("sync technician %s: %w", t.ID, err)
		}
		techs = append(techs, t.ID)
	}
	if err := deactivateMissing(ctx, tx, "technicians", techs, now); err != nil {
		return err
	}

	bays := make([]string, 0, len(cfg.Bays))
	for _, b := range cfg.BayModels() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bays (id, name, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				is_active = excluded.is_active,
				updated_at = excluded.updated_at`,
			b.ID, b.Name, b.IsActive, now, now,
		)
		if err != nil {
			return fmt.Errorf("sync bay %s: %w", b.ID, err)
		}
		bays = append(bays, b.ID)
	}
	if err := deactivateMissing(ctx, tx, "bays", bays, now); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM availability_windows`); err != nil {
		return fmt.Errorf("clear windows: %w", err)
	}
	for _, w := range cfg.Windows() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO availability_windows (resource_id, kind, weekday, start_minute, end_minute)
			VALUES (?, ?, ?, ?, ?)`,
			w.ResourceID, string(w.Kind), int(w.Weekday), w.StartMinute, w.EndMinute,
		)
		if err != nil {
			return fmt.Errorf("sync window for %s: %w", w.ResourceID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM time_off`); err != nil {
		return fmt.Errorf("clear time off: %w", err)
	}
	for _, off := range offs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO time_off (resource_id, kind, starts_at, ends_at, reason)
			VALUES (?, ?, ?, ?, ?)`,
			off.ResourceID, string(off.Kind), off.StartsAt, off.EndsAt, off.Reason,
		)
		if err != nil {
			return fmt.Errorf("sync time off for %s: %w", off.ResourceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sync: %w", err)
	}

	db.logger.Info().
		Int("technicians", len(techs)).
		Int("bays", len(bays)).
		Int("time_off", len(offs)).
		Msg("resources synced")
	return nil
}

func deactivateMissing(ctx context.Context, tx *sql.Tx, table string, keep []string, now interface{}) error {
	query := fmt.Sprintf(`UPDATE %s SET is_active = 0, updated_at = ? WHERE is_active = 1`, table)
	args := []interface{}{now}
	if len(keep) > 0 {
		query += ` AND id NOT IN (?` + strings.Repeat(",?", len(keep)-1) + `)`
		for _, id := range keep {
			args = append(args, id)
		}
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deactivate missing %s: %w", table, err)
	}
	return nil
}
