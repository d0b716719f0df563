package timegrid

import (
	"time"

	"shopplanner/internal/model"
)

// Default bounds of the visible day, in minutes from local midnight.
const (
	FallbackStartMinute = 8 * 60
	FallbackEndMinute   = 18 * 60
	FloorMinute         = 6 * 60
	CeilingMinute       = 20 * 60
)

// Window is the visible local time span of the day grid.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains reports whether [start, end) fits inside the window.
func (w Window) Contains(start, end time.Time) bool {
	return !start.Before(w.Start) && !end.After(w.End)
}

// LatestStart is the last start at which an appointment of length d still fits.
func (w Window) LatestStart(d time.Duration) time.Time {
	latest := w.End.Add(-d)
	if latest.Before(w.Start) {
		return w.Start
	}
	return latest
}

// ClampStart keeps an appointment of length d inside the window.
func (w Window) ClampStart(start time.Time, d time.Duration) time.Time {
	if start.Before(w.Start) {
		return w.Start
	}
	if latest := w.LatestStart(d); start.After(latest) {
		return latest
	}
	return start
}

// BoardWindow derives the visible span for day. Without appointments it is the
// fallback 08:00-18:00. Otherwise the fallback is widened to the earliest start
// and latest end padded by one slot (start snapped down, end snapped up), then
// clamped to 06:00-20:00.
func (g Grid) BoardWindow(day time.Time, appointments []model.Appointment) Window {
	startMin, endMin := FallbackStartMinute, FallbackEndMinute

	for _, a := range appointments {
		s := SnapDown(g.MinutesFromMidnight(day, a.StartsAt) - SlotMinutes)
		e := SnapUp(g.MinutesFromMidnight(day, a.EndsAt) + SlotMinutes)
		if s < startMin {
			startMin = s
		}
		if e > endMin {
			endMin = e
		}
	}

	startMin = clampInt(startMin, FloorMinute, CeilingMinute-SlotMinutes)
	endMin = clampInt(endMin, FloorMinute, CeilingMinute)
	if endMin < startMin+SlotMinutes {
		endMin = startMin + SlotMinutes
	}

	return Window{Start: g.At(day, startMin), End: g.At(day, endMin)}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
