package board

import (
	"shopplanner/internal/model"
	"shopplanner/internal/timegrid"
)

// Card is the geometry of one appointment inside its lane.
type Card struct {
	Appointment model.Appointment
	LaneID      string
	Top         float64
	Height      float64
	Conflict    bool
	// Pending is set for temporary records and cards with an active candidate.
	Pending bool
}

type LaneLayout struct {
	Lane  Lane
	Cards []Card
}

// Layout is everything the view needs to draw the board.
type Layout struct {
	Window timegrid.Window
	Height float64
	Lanes  []LaneLayout
}

// Layout places every appointment into its technician lane. Appointments with
// no technician or one outside the directory go to the trailing unassigned lane.
func (b *Board) Layout() Layout {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.layoutLocked()
}

func (b *Board) layoutLocked() Layout {
	items := b.effectiveLocked()
	window := b.windowLocked()

	out := Layout{
		Window: window,
		Height: b.grid.DurationToPixels(window.Duration()),
		Lanes:  make([]LaneLayout, 0, len(b.lanes)+1),
	}
	index := make(map[string]int, len(b.lanes))
	for i, l := range b.lanes {
		index[l.ID] = i
		out.Lanes = append(out.Lanes, LaneLayout{Lane: l})
	}
	unassigned := len(out.Lanes)
	out.Lanes = append(out.Lanes, LaneLayout{Lane: Lane{ID: UnassignedLaneID, Name: "Unassigned"}})

	for _, a := range items {
		lane, ok := index[model.Deref(a.TechnicianID)]
		if !ok {
			lane = unassigned
		}
		_, overridden := b.overrides[a.ID]
		out.Lanes[lane].Cards = append(out.Lanes[lane].Cards, Card{
			Appointment: a,
			LaneID:      out.Lanes[lane].Lane.ID,
			Top:         b.grid.TimeToPixels(a.StartsAt, window.Start),
			Height:      b.grid.DurationToPixels(a.Duration()),
			Conflict:    len(conflictingIDs(a, items)) > 0,
			Pending:     a.IsTemporary() || overridden,
		})
	}
	return out
}

// HitTest returns the appointment under y in laneID.
func (b *Board) HitTest(laneID string, y float64) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hitTestLocked(laneID, y)
}

func (b *Board) hitTestLocked(laneID string, y float64) (string, bool) {
	for _, l := range b.layoutLocked().Lanes {
		if l.Lane.ID != laneID {
			continue
		}
		for _, c := range l.Cards {
			if y >= c.Top && y < c.Top+c.Height {
				return c.Appointment.ID, true
			}
		}
	}
	return "", false
}
