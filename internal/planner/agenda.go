package planner

import (
	"fmt"
	"io"
	"strings"

	"github.com/gosuri/uitable"

	"shopplanner/internal/board"
	"shopplanner/internal/model"
	"shopplanner/internal/timegrid"
)

// WriteAgenda prints a board layout as a text table, lane by lane. Empty
// lanes are listed with a dash so the full roster stays visible.
func WriteAgenda(w io.Writer, grid timegrid.Grid, layout board.Layout) error {
	start := grid.ToOrgLocal(layout.Window.Start)
	end := grid.ToOrgLocal(layout.Window.End)
	if _, err := fmt.Fprintf(w, "%s  %s-%s\n", start.Format("2006-01-02"), start.Format("15:04"), end.Format("15:04")); err != nil {
		return err
	}

	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.MaxColWidth = 40
	tbl.AddRow("LANE", "START", "END", "TITLE", "STATUS", "BAY", "ID", "FLAGS")
	for _, lane := range layout.Lanes {
		if len(lane.Cards) == 0 {
			if lane.Lane.ID != board.UnassignedLaneID {
				tbl.AddRow(lane.Lane.Name, "-", "", "", "", "", "", "")
			}
			continue
		}
		for _, c := range lane.Cards {
			a := c.Appointment
			tbl.AddRow(
				lane.Lane.Name,
				grid.ToOrgLocal(a.StartsAt).Format("15:04"),
				grid.ToOrgLocal(a.EndsAt).Format("15:04"),
				a.Title,
				string(a.Status),
				model.Deref(a.BayID),
				a.ID,
				flags(c),
			)
		}
	}
	_, err := fmt.Fprintln(w, tbl)
	return err
}

func flags(c board.Card) string {
	var out []string
	if c.Conflict {
		out = append(out, "conflict")
	}
	if c.Pending {
		out = append(out, "pending")
	}
	return strings.Join(out, ",")
}
