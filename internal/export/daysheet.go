package export

import (
	"context"
	"fmt"
	"time"

	"shopplanner/internal/model"
	"shopplanner/internal/reducer"
)

const unassignedLane = "Unassigned"

var dayColumns = []string{"Technician", "Start", "End", "Title", "Status", "Bay", "Customer", "Vehicle", "Priority", "Notes"}

// DaySheet writes one sheet for day listing appointments grouped by lane:
// technicians in the given order, then the unassigned lane. Times are shown in loc.
func DaySheet(w *Workbook, day time.Time, loc *time.Location, techs []model.Technician, bays []model.Bay, appts []model.Appointment) error {
	if loc == nil {
		loc = time.UTC
	}
	if err := w.AddSheet(day.In(loc).Format("2006-01-02")); err != nil {
		return err
	}
	if err := w.WriteHeader(dayColumns); err != nil {
		return err
	}

	bayNames := make(map[string]string, len(bays))
	for _, b := range bays {
		bayNames[b.ID] = b.Name
	}

	known := make(map[string]bool, len(techs))
	byLane := make(map[string][]model.Appointment)
	for _, t := range techs {
		known[t.ID] = true
	}
	for _, a := range reducer.Sort(appts) {
		lane := model.Deref(a.TechnicianID)
		if !known[lane] {
			lane = ""
		}
		byLane[lane] = append(byLane[lane], a)
	}

	write := func(laneName string, items []model.Appointment) error {
		for _, a := range items {
			row := []interface{}{
				laneName,
				a.StartsAt.In(loc).Format("15:04"),
				a.EndsAt.In(loc).Format("15:04"),
				a.Title,
				string(a.Status),
				bayNames[model.Deref(a.BayID)],
				a.CustomerName,
				a.VehicleLabel,
				a.Priority,
				model.Deref(a.Notes),
			}
			if err := w.WriteRow(row); err != nil {
				return fmt.Errorf("write appointment %s: %w", a.ID, err)
			}
		}
		return nil
	}

	for _, t := range techs {
		if err := write(t.Name, byLane[t.ID]); err != nil {
			return err
		}
	}
	return write(unassignedLane, byLane[""])
}

// TableSource exposes raw tables for a full dump.
type TableSource interface {
	TableData(ctx context.Context, table string) ([]map[string]interface{}, []string, error)
}

// Tables writes one sheet per table in the given order.
func Tables(ctx context.Context, w *Workbook, src TableSource, tables []string) error {
	for _, table := range tables {
		rows, columns, err := src.TableData(ctx, table)
		if err != nil {
			return fmt.Errorf("read table %s: %w", table, err)
		}
		if err := w.AddSheet(table); err != nil {
			return err
		}
		if err := w.WriteHeader(columns); err != nil {
			return err
		}
		for _, r := range rows {
			values := make([]interface{}, len(columns))
			for i, col := range columns {
				values[i] = cellValue(r[col])
			}
			if err := w.WriteRow(values); err != nil {
				return err
			}
		}
	}
	return nil
}

func cellValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return val
	}
}
