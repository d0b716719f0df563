// Package timegrid converts between organization-local wall-clock time and
// pixel offsets on the planner's day grid.
package timegrid

import (
	"fmt"
	"math"
	"time"
)

const (
	// SlotMinutes is the snapping granularity and the minimum appointment length.
	SlotMinutes = 15
	// Slot is SlotMinutes as a duration.
	Slot = SlotMinutes * time.Minute

	DefaultPixelsPerMinute = 2.0
	DefaultTimezone        = "Europe/Vilnius"
)

// Grid holds the fixed organization zone and the vertical scale of the board.
// It is configured once and passed by value.
type Grid struct {
	loc             *time.Location
	pixelsPerMinute float64
}

// New builds a grid for the IANA zone tz. Non-positive scales fall back to the default.
func New(tz string, pixelsPerMinute float64) (Grid, error) {
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Grid{}, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return NewWithLocation(loc, pixelsPerMinute), nil
}

func NewWithLocation(loc *time.Location, pixelsPerMinute float64) Grid {
	if loc == nil {
		loc = time.UTC
	}
	if pixelsPerMinute <= 0 {
		pixelsPerMinute = DefaultPixelsPerMinute
	}
	return Grid{loc: loc, pixelsPerMinute: pixelsPerMinute}
}

func (g Grid) Location() *time.Location {
	if g.loc == nil {
		return time.UTC
	}
	return g.loc
}

func (g Grid) PixelsPerMinute() float64 {
	if g.pixelsPerMinute <= 0 {
		return DefaultPixelsPerMinute
	}
	return g.pixelsPerMinute
}

// ToOrgLocal converts an instant to organization wall-clock time.
func (g Grid) ToOrgLocal(t time.Time) time.Time {
	return t.In(g.Location())
}

// ToUTC is the inverse of ToOrgLocal, used before persisting.
func (g Grid) ToUTC(t time.Time) time.Time {
	return t.UTC()
}

// DayStart returns local midnight of the organization calendar day containing t.
func (g Grid) DayStart(t time.Time) time.Time {
	l := g.ToOrgLocal(t)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, g.Location())
}

// DayRange returns the UTC instants bounding the local calendar day containing t.
// The end is exclusive; DST days are 23 or 25 hours long.
func (g Grid) DayRange(t time.Time) (time.Time, time.Time) {
	start := g.DayStart(t)
	end := start.AddDate(0, 0, 1)
	return start.UTC(), end.UTC()
}

// DateKey formats the local calendar day of t as YYYY-MM-DD.
func (g Grid) DateKey(t time.Time) string {
	return g.ToOrgLocal(t).Format("2006-01-02")
}

// ParseDate parses YYYY-MM-DD as a local calendar day.
func (g Grid) ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", s, g.Location())
}

// At returns the local instant at minutesFromMidnight on the calendar day of day.
func (g Grid) At(day time.Time, minutesFromMidnight int) time.Time {
	l := g.ToOrgLocal(day)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, minutesFromMidnight, 0, 0, g.Location())
}

// MinutesFromMidnight returns the local wall-clock minutes of t relative to the
// start of day's calendar date. Results outside [0, 1440) mean another day.
func (g Grid) MinutesFromMidnight(day, t time.Time) int {
	l := g.ToOrgLocal(t)
	d := g.ToOrgLocal(day)
	dayOffset := civilDays(l) - civilDays(d)
	return dayOffset*24*60 + l.Hour()*60 + l.Minute()
}

func civilDays(t time.Time) int {
	return int(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// SnapMinutes rounds to the nearest multiple of SlotMinutes.
// Ties round half up: 7.5 becomes 15 and -7.5 becomes 0.
func SnapMinutes(minutes float64) float64 {
	return math.Floor(minutes/SlotMinutes+0.5) * SlotMinutes
}

// SnapDown rounds toward negative infinity to a slot boundary.
func SnapDown(minutes int) int {
	return floorDiv(minutes, SlotMinutes) * SlotMinutes
}

// SnapUp rounds toward positive infinity to a slot boundary.
func SnapUp(minutes int) int {
	return -SnapDown(-minutes)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Snap rounds a duration to the nearest slot, ties half up.
func Snap(d time.Duration) time.Duration {
	return time.Duration(SnapMinutes(d.Minutes())) * time.Minute
}

// SnapTime rounds t to the nearest slot boundary of its local day.
func (g Grid) SnapTime(t time.Time) time.Time {
	day := g.DayStart(t)
	minutes := g.ToOrgLocal(t).Sub(day).Minutes()
	return day.Add(time.Duration(SnapMinutes(minutes)) * time.Minute)
}

func (g Grid) MinutesToPixels(minutes float64) float64 {
	return minutes * g.PixelsPerMinute()
}

// PixelsToMinutes clamps negative offsets to zero.
func (g Grid) PixelsToMinutes(pixels float64) float64 {
	if pixels <= 0 || math.IsNaN(pixels) {
		return 0
	}
	return pixels / g.PixelsPerMinute()
}

// TimeToPixels returns the vertical offset of t below windowStart.
// Times before the window clamp to 0.
func (g Grid) TimeToPixels(t, windowStart time.Time) float64 {
	minutes := t.Sub(windowStart).Minutes()
	if minutes <= 0 {
		return 0
	}
	return g.MinutesToPixels(minutes)
}

// PixelsToTime converts a vertical offset to a snapped local instant.
func (g Grid) PixelsToTime(pixels float64, windowStart time.Time) time.Time {
	minutes := SnapMinutes(g.PixelsToMinutes(pixels))
	return g.ToOrgLocal(windowStart.Add(time.Duration(minutes) * time.Minute))
}

// DurationToPixels returns the card height for d.
func (g Grid) DurationToPixels(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return g.MinutesToPixels(d.Minutes())
}
