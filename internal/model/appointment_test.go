package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func datetime(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}

func TestAppointment_Duration(t *testing.T) {
	a := Appointment{
		StartsAt: datetime(2026, 1, 15, 10, 0),
		EndsAt:   datetime(2026, 1, 15, 12, 30),
	}
	assert.Equal(t, 2*time.Hour+30*time.Minute, a.Duration())
}

func TestAppointment_IsTemporary(t *testing.T) {
	assert.True(t, Appointment{ID: TempIDPrefix + "abc"}.IsTemporary())
	assert.False(t, Appointment{ID: "5f0c3b0e-8d7e-4b7a-9a53-3f2c0a8e9c11"}.IsTemporary())
}

func TestAppointment_ConflictsWith(t *testing.T) {
	existing := Appointment{
		ID:           "a",
		TechnicianID: Ref("t1"),
		BayID:        Ref("b1"),
		StartsAt:     datetime(2026, 1, 15, 8, 0),
		EndsAt:       datetime(2026, 1, 15, 9, 0),
	}

	// Same technician, overlapping
	other := Appointment{ID: "b", TechnicianID: Ref("t1"), StartsAt: datetime(2026, 1, 15, 8, 30), EndsAt: datetime(2026, 1, 15, 9, 30)}
	assert.True(t, existing.ConflictsWith(other))

	// Touching ranges do not overlap
	after := Appointment{ID: "c", TechnicianID: Ref("t1"), StartsAt: datetime(2026, 1, 15, 9, 0), EndsAt: datetime(2026, 1, 15, 10, 0)}
	assert.False(t, existing.ConflictsWith(after))

	// Different technician, same bay
	sameBay := Appointment{ID: "d", TechnicianID: Ref("t2"), BayID: Ref("b1"), StartsAt: datetime(2026, 1, 15, 8, 15), EndsAt: datetime(2026, 1, 15, 8, 45)}
	assert.True(t, existing.ConflictsWith(sameBay))

	// Different technician, no bay
	unrelated := Appointment{ID: "e", TechnicianID: Ref("t2"), StartsAt: datetime(2026, 1, 15, 8, 15), EndsAt: datetime(2026, 1, 15, 8, 45)}
	assert.False(t, existing.ConflictsWith(unrelated))

	// Both unassigned
	u1 := Appointment{ID: "f", StartsAt: datetime(2026, 1, 15, 8, 0), EndsAt: datetime(2026, 1, 15, 9, 0)}
	u2 := Appointment{ID: "g", StartsAt: datetime(2026, 1, 15, 8, 0), EndsAt: datetime(2026, 1, 15, 9, 0)}
	assert.False(t, u1.ConflictsWith(u2))

	// Never conflicts with itself
	assert.False(t, existing.ConflictsWith(existing))
}

func TestAppointment_MatchesBay(t *testing.T) {
	a := Appointment{BayID: Ref("b1")}
	assert.True(t, a.MatchesBay(nil))
	assert.True(t, a.MatchesBay(Ref("b1")))
	assert.False(t, a.MatchesBay(Ref("b2")))
	assert.False(t, Appointment{}.MatchesBay(Ref("b1")))
}

func TestAppointment_CloneSharesNoPointers(t *testing.T) {
	a := Appointment{ID: "a", TechnicianID: Ref("t1"), BayID: Ref("b1"), Notes: Ref("check brakes")}
	c := a.Clone()

	assert.Equal(t, a, c)
	assert.NotSame(t, a.TechnicianID, c.TechnicianID)
	assert.NotSame(t, a.BayID, c.BayID)
	assert.NotSame(t, a.Notes, c.Notes)

	*c.Notes = "changed"
	assert.Equal(t, "check brakes", *a.Notes)
}

func TestStatus_IsValid(t *testing.T) {
	for _, s := range []Status{StatusScheduled, StatusInProgress, StatusWaitingParts, StatusCompleted} {
		assert.True(t, s.IsValid(), s)
	}
	assert.False(t, Status("cancelled").IsValid())
}

func TestAvailabilityWindow_Covers(t *testing.T) {
	w := AvailabilityWindow{StartMinute: 8 * 60, EndMinute: 17 * 60}
	assert.True(t, w.Covers(8*60, 9*60))
	assert.True(t, w.Covers(16*60, 17*60))
	assert.False(t, w.Covers(7*60+45, 9*60))
	assert.False(t, w.Covers(16*60, 17*60+15))
}
