package board

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"shopplanner/internal/events"
	"shopplanner/internal/model"
	"shopplanner/internal/store"
	"shopplanner/internal/store/storetest"
	"shopplanner/internal/timegrid"
)

var day = time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)

func hm(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func appt(id, tech string, h, m, minutes int) model.Appointment {
	return model.Appointment{
		ID:             id,
		OrganizationID: "org-1",
		Title:          "Job " + id,
		Status:         model.StatusScheduled,
		TechnicianID:   model.Ref(tech),
		StartsAt:       hm(h, m),
		EndsAt:         hm(h, m).Add(time.Duration(minutes) * time.Minute),
	}
}

// pos converts a time of day to a vertical offset on b.
func pos(b *Board, h, m int) float64 {
	return b.grid.TimeToPixels(hm(h, m), b.Window().Start)
}

func newBoard(t *testing.T, rows ...model.Appointment) (*Board, *storetest.Backend) {
	t.Helper()
	backend := &storetest.Backend{}
	backend.On("ListTechnicians", mock.Anything).Return([]model.Technician{
		{ID: "T1", Name: "Ona", IsActive: true},
		{ID: "T2", Name: "Jonas", IsActive: true},
		{ID: "T3", Name: "Retired", IsActive: false},
	}, nil)
	backend.On("ListAppointments", mock.Anything, "org-1", mock.Anything, mock.Anything, mock.Anything).Return(rows, nil)

	grid := timegrid.NewWithLocation(time.UTC, 2)
	bus := events.NewBus()
	st := store.New(backend, grid, "org-1", zerolog.Nop(), store.WithBus(bus))
	b := New(st, bus, time.Hour, zerolog.Nop())
	require.NoError(t, b.Load(context.Background(), day, nil))
	return b, backend
}

func TestDragSnapsToNearestSlotKeepingDuration(t *testing.T) {
	b, _ := newBoard(t, appt("A", "T1", 8, 0, 60))

	require.NoError(t, b.OnGestureStart("A", GestureMove, Pointer{Y: pos(b, 8, 0) + 10, LaneID: "T1"}))
	preview, err := b.OnGestureUpdate(Pointer{Y: pos(b, 8, 7) + 10, LaneID: "T1"})
	require.NoError(t, err)

	assert.True(t, hm(8, 0).Equal(preview.Candidate.StartsAt))
	assert.True(t, hm(9, 0).Equal(preview.Candidate.EndsAt))
	assert.Equal(t, time.Hour, preview.Candidate.Duration())

	preview, err = b.OnGestureUpdate(Pointer{Y: pos(b, 8, 8) + 10, LaneID: "T2"})
	require.NoError(t, err)
	assert.True(t, hm(8, 15).Equal(preview.Candidate.StartsAt))
	assert.Equal(t, "T2", model.Deref(preview.Candidate.TechnicianID))

	s, ok := b.Session()
	require.True(t, ok)
	assert.Equal(t, "T2", s.DestinationLaneID)
	assert.Equal(t, StateDragging, b.State())
}

func TestDragClampsToWindow(t *testing.T) {
	b, _ := newBoard(t, appt("A", "T1", 9, 0, 60))

	require.NoError(t, b.OnGestureStart("A", GestureMove, Pointer{Y: pos(b, 9, 0), LaneID: "T1"}))
	preview, err := b.OnGestureUpdate(Pointer{Y: pos(b, 23, 0), LaneID: "T1"})
	require.NoError(t, err)
	assert.True(t, hm(17, 0).Equal(preview.Candidate.StartsAt), "latest start for one hour in 08:00-18:00")
}

func TestDragReportsLocalConflictWithoutOracle(t *testing.T) {
	b, backend := newBoard(t, appt("A", "T1", 8, 0, 60), appt("B", "T1", 9, 0, 60))

	require.NoError(t, b.OnGestureStart("B", GestureMove, Pointer{Y: pos(b, 9, 0), LaneID: "T1"}))
	preview, err := b.OnGestureUpdate(Pointer{Y: pos(b, 8, 30), LaneID: "T1"})
	require.NoError(t, err)

	assert.True(t, preview.Conflict)
	assert.Equal(t, []string{"A"}, preview.ConflictingIDs)
	backend.AssertNotCalled(t, "CanSchedule", mock.Anything, mock.Anything)
}

func TestResizeKeepsMinimumDuration(t *testing.T) {
	b, _ := newBoard(t, appt("A", "T1", 10, 0, 60))

	require.NoError(t, b.OnGestureStart("A", GestureResizeEnd, Pointer{Y: pos(b, 11, 0)}))
	assert.Equal(t, StateResizing, b.State())
	for _, py := range []float64{pos(b, 11, 30), 0, pos(b, 9, 0), pos(b, 10, 7)} {
		preview, err := b.OnGestureUpdate(Pointer{Y: py})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, preview.Candidate.Duration(), timegrid.Slot)
		assert.True(t, hm(10, 0).Equal(preview.Candidate.StartsAt))
	}
	require.NoError(t, b.Cancel())

	require.NoError(t, b.OnGestureStart("A", GestureResizeStart, Pointer{Y: pos(b, 10, 0)}))
	for _, py := range []float64{pos(b, 12, 0), pos(b, 10, 50), 0} {
		preview, err := b.OnGestureUpdate(Pointer{Y: py})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, preview.Candidate.Duration(), timegrid.Slot)
		assert.True(t, hm(11, 0).Equal(preview.Candidate.EndsAt))
	}
	preview, err := b.OnGestureUpdate(Pointer{Y: pos(b, 12, 0)})
	require.NoError(t, err)
	assert.True(t, hm(10, 45).Equal(preview.Candidate.StartsAt))
}

func TestCancelDiscardsOverride(t *testing.T) {
	b, backend := newBoard(t, appt("A", "T1", 8, 0, 60))

	require.NoError(t, b.OnGestureStart("A", GestureMove, Pointer{Y: pos(b, 8, 0), LaneID: "T1"}))
	_, err := b.OnGestureUpdate(Pointer{Y: pos(b, 12, 0), LaneID: "T2"})
	require.NoError(t, err)
	assert.True(t, hm(12, 0).Equal(b.Appointments()[0].StartsAt))

	b.Escape()

	assert.Equal(t, StateIdle, b.State())
	assert.True(t, hm(8, 0).Equal(b.Appointments()[0].StartsAt))
	assert.ErrorIs(t, b.Cancel(), ErrNoGesture)
	backend.AssertNotCalled(t, "UpdateAppointment", mock.Anything, mock.Anything)
}

func TestGestureEndCommitsAfterOracle(t *testing.T) {
	b, backend := newBoard(t, appt("A", "T1", 8, 0, 60))
	saved := appt("A", "T2", 10, 0, 60)
	backend.On("CanSchedule", mock.Anything, mock.MatchedBy(func(r model.ScheduleRequest) bool {
		return r.AppointmentID == "A" && model.Deref(r.TechnicianID) == "T2" && r.StartsAt.Equal(hm(10, 0))
	})).Return(true, nil).Once()
	backend.On("UpdateAppointment", mock.Anything, mock.Anything).Return(saved, nil).Once()

	require.NoError(t, b.OnGestureStart("A", GestureMove, Pointer{Y: pos(b, 8, 0), LaneID: "T1"}))
	_, err := b.OnGestureUpdate(Pointer{Y: pos(b, 10, 0), LaneID: "T2"})
	require.NoError(t, err)

	out, err := b.OnGestureEnd(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, out.Kind)
	assert.Equal(t, StateIdle, b.State())

	items := b.Appointments()
	require.Len(t, items, 1)
	assert.Equal(t, "T2", model.Deref(items[0].TechnicianID))
	backend.AssertExpectations(t)
}

func TestGestureEndSuggestsSlotWhenUnavailable(t *testing.T) {
	b, backend := newBoard(t, appt("A", "T1", 8, 0, 60), appt("B", "T1", 9, 0, 60), appt("C", "T1", 10, 0, 90))
	backend.On("CanSchedule", mock.Anything, mock.Anything).Return(false, nil).Once()

	require.NoError(t, b.OnGestureStart("A", GestureMove, Pointer{Y: pos(b, 8, 0), LaneID: "T1"}))
	_, err := b.OnGestureUpdate(Pointer{Y: pos(b, 9, 30), LaneID: "T1"})
	require.NoError(t, err)

	out, err := b.OnGestureEnd(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnavailable, out.Kind)
	require.NotNil(t, out.Suggestion)
	assert.True(t, hm(11, 30).Equal(out.Suggestion.StartsAt))
	assert.True(t, hm(12, 30).Equal(out.Suggestion.EndsAt))

	assert.True(t, hm(8, 0).Equal(b.Appointments()[0].StartsAt), "nothing committed")
	backend.AssertNotCalled(t, "UpdateAppointment", mock.Anything, mock.Anything)
}

func TestGestureEndNoSlotLeft(t *testing.T) {
	b, backend := newBoard(t, appt("A", "T1", 8, 0, 60), appt("B", "T1", 9, 0, 540))
	backend.On("CanSchedule", mock.Anything, mock.Anything).Return(false, nil).Once()

	require.NoError(t, b.OnGestureStart("A", GestureMove, Pointer{Y: pos(b, 8, 0), LaneID: "T1"}))
	_, err := b.OnGestureUpdate(Pointer{Y: pos(b, 12, 0), LaneID: "T1"})
	require.NoError(t, err)

	out, err := b.OnGestureEnd(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnavailable, out.Kind)
	assert.Nil(t, out.Suggestion)
}

func TestGestureEndOracleFailure(t *testing.T) {
	b, backend := newBoard(t, appt("A", "T1", 8, 0, 60))
	backend.On("CanSchedule", mock.Anything, mock.Anything).Return(false, errors.New("timeout")).Once()

	require.NoError(t, b.OnGestureStart("A", GestureMove, Pointer{Y: pos(b, 8, 0), LaneID: "T1"}))
	_, err := b.OnGestureUpdate(Pointer{Y: pos(b, 10, 0), LaneID: "T1"})
	require.NoError(t, err)

	_, err = b.OnGestureEnd(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateIdle, b.State())
	assert.True(t, hm(8, 0).Equal(b.Appointments()[0].StartsAt))
}

func TestGestureEndWithoutMovement(t *testing.T) {
	b, backend := newBoard(t, appt("A", "T1", 8, 0, 60))

	require.NoError(t, b.OnGestureStart("A", GestureMove, Pointer{Y: pos(b, 8, 0), LaneID: "T1"}))
	out, err := b.OnGestureEnd(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, out.Kind)
	backend.AssertNotCalled(t, "CanSchedule", mock.Anything, mock.Anything)
}

func TestSupersededGestureKeepsNewOverride(t *testing.T) {
	b, backend := newBoard(t, appt("A", "T1", 8, 0, 60))
	backend.On("CanSchedule", mock.Anything, mock.Anything).Return(true, nil).Once()
	backend.On("UpdateAppointment", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			require.NoError(t, b.OnGestureStart("A", GestureMove, Pointer{Y: pos(b, 10, 0), LaneID: "T1"}))
			_, err := b.OnGestureUpdate(Pointer{Y: pos(b, 14, 0), LaneID: "T1"})
			require.NoError(t, err)
		}).
		Return(appt("A", "T1", 10, 0, 60), nil).Once()

	require.NoError(t, b.OnGestureStart("A", GestureMove, Pointer{Y: pos(b, 8, 0), LaneID: "T1"}))
	_, err := b.OnGestureUpdate(Pointer{Y: pos(b, 10, 0), LaneID: "T1"})
	require.NoError(t, err)
	_, err = b.OnGestureEnd(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateDragging, b.State())
	assert.True(t, hm(14, 0).Equal(b.Appointments()[0].StartsAt), "second gesture's candidate still rendered")
}

func TestGestureGuards(t *testing.T) {
	b, _ := newBoard(t, appt("A", "T1", 8, 0, 60), appt("B", "T2", 8, 0, 60))

	_, err := b.OnGestureUpdate(Pointer{})
	assert.ErrorIs(t, err, ErrNoGesture)
	_, err = b.OnGestureEnd(context.Background())
	assert.ErrorIs(t, err, ErrNoGesture)

	assert.ErrorIs(t, b.OnGestureStart("missing", GestureMove, Pointer{}), ErrUnknownAppointment)
	require.NoError(t, b.OnGestureStart("A", GestureMove, Pointer{LaneID: "T1"}))
	assert.ErrorIs(t, b.OnGestureStart("B", GestureMove, Pointer{LaneID: "T2"}), ErrGestureActive)
	assert.Error(t, b.OnGestureStart("B", GestureKind("spin"), Pointer{}))
}

func TestClickLane(t *testing.T) {
	b, _ := newBoard(t, appt("A", "T1", 8, 0, 60))

	_, err := b.ClickLane("T1", pos(b, 8, 30))
	assert.ErrorIs(t, err, ErrOnCard)

	draft, err := b.ClickLane("T1", pos(b, 13, 7))
	require.NoError(t, err)
	assert.Empty(t, draft.ID)
	assert.Equal(t, "T1", model.Deref(draft.TechnicianID))
	assert.True(t, hm(13, 0).Equal(draft.StartsAt))
	assert.True(t, hm(14, 0).Equal(draft.EndsAt))
	assert.Len(t, b.Appointments(), 1, "click does not create")

	draft, err = b.ClickLane(UnassignedLaneID, pos(b, 17, 50))
	require.NoError(t, err)
	assert.Nil(t, draft.TechnicianID)
	assert.True(t, hm(17, 0).Equal(draft.StartsAt), "clamped so the default duration fits")
}

func TestLayout(t *testing.T) {
	b, _ := newBoard(t,
		appt("A", "T1", 8, 0, 60),
		appt("B", "T1", 8, 30, 60),
		appt("C", "", 9, 0, 30),
		appt("D", "ghost", 11, 0, 30),
	)

	layout := b.Layout()
	require.Len(t, layout.Lanes, 3)
	assert.Equal(t, "T1", layout.Lanes[0].Lane.ID)
	assert.Equal(t, "T2", layout.Lanes[1].Lane.ID)
	assert.Equal(t, UnassignedLaneID, layout.Lanes[2].Lane.ID)
	assert.True(t, hm(7, 45).Equal(layout.Window.Start), "padded one slot before the first appointment")
	assert.Equal(t, float64(615*2), layout.Height)

	t1 := layout.Lanes[0].Cards
	require.Len(t, t1, 2)
	assert.Equal(t, 30.0, t1[0].Top)
	assert.Equal(t, 120.0, t1[0].Height)
	assert.Equal(t, 90.0, t1[1].Top)
	assert.True(t, t1[0].Conflict)
	assert.True(t, t1[1].Conflict)

	assert.Len(t, layout.Lanes[2].Cards, 2)
	for _, c := range layout.Lanes[2].Cards {
		assert.False(t, c.Conflict)
	}

	id, ok := b.HitTest("T1", 170)
	require.True(t, ok)
	assert.Equal(t, "B", id)
	_, ok = b.HitTest("T2", 40)
	assert.False(t, ok)
}

func TestWindowFollowsWritesOutsideSpan(t *testing.T) {
	b, backend := newBoard(t, appt("A", "T1", 9, 0, 60))
	assert.True(t, hm(8, 0).Equal(b.Window().Start))

	require.NoError(t, b.OnGestureStart("A", GestureMove, Pointer{Y: pos(b, 9, 0), LaneID: "T1"}))

	backend.On("InsertAppointment", mock.Anything, mock.Anything).Return(appt("B", "T1", 6, 30, 30), nil).Once()
	_, err := b.store.Create(context.Background(), model.Appointment{
		Title:        "Early drop-off",
		TechnicianID: model.Ref("T1"),
		StartsAt:     hm(6, 30),
		EndsAt:       hm(7, 0),
	})
	require.NoError(t, err)

	assert.True(t, hm(8, 0).Equal(b.Window().Start), "span is fixed while a gesture is active")
	require.NoError(t, b.Cancel())

	layout := b.Layout()
	assert.True(t, hm(6, 15).Equal(layout.Window.Start))
	assert.True(t, hm(18, 0).Equal(layout.Window.End))
	assert.Equal(t, float64((18*60-6*60-15)*2), layout.Height)

	cards := layout.Lanes[0].Cards
	require.Len(t, cards, 2)
	assert.Equal(t, "B", cards[0].Appointment.ID)
	assert.Equal(t, 30.0, cards[0].Top)
	assert.Equal(t, 60.0, cards[0].Height)
	assert.Equal(t, "A", cards[1].Appointment.ID)
	assert.Equal(t, 330.0, cards[1].Top)

	draft, err := b.ClickLane("T2", pos(b, 6, 15))
	require.NoError(t, err)
	assert.True(t, hm(6, 15).Equal(draft.StartsAt))
}

func TestMoveTo_KeyboardParity(t *testing.T) {
	b, backend := newBoard(t, appt("A", "T1", 8, 0, 60))
	backend.On("CanSchedule", mock.Anything, mock.MatchedBy(func(r model.ScheduleRequest) bool {
		return r.StartsAt.Equal(hm(11, 0)) && r.EndsAt.Equal(hm(12, 0))
	})).Return(true, nil).Once()
	backend.On("UpdateAppointment", mock.Anything, mock.Anything).Return(appt("A", "T2", 11, 0, 60), nil).Once()

	out, err := b.MoveTo(context.Background(), "A", hm(11, 7), model.Ref("T2"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, out.Kind)

	edit, err := b.OpenEdit("A")
	require.NoError(t, err)
	assert.Equal(t, "T2", model.Deref(edit.TechnicianID))

	_, err = b.OpenEdit("nope")
	assert.ErrorIs(t, err, ErrUnknownAppointment)
}

func TestResizeTo_KeepsMinimum(t *testing.T) {
	b, backend := newBoard(t, appt("A", "T1", 8, 0, 60))
	backend.On("CanSchedule", mock.Anything, mock.MatchedBy(func(r model.ScheduleRequest) bool {
		return r.StartsAt.Equal(hm(9, 0)) && r.EndsAt.Equal(hm(9, 15))
	})).Return(true, nil).Once()
	backend.On("UpdateAppointment", mock.Anything, mock.Anything).Return(appt("A", "T1", 9, 0, 15), nil).Once()

	out, err := b.ResizeTo(context.Background(), "A", hm(9, 0), hm(8, 0))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, out.Kind)
	backend.AssertExpectations(t)
}

func TestCandidateEventsPublished(t *testing.T) {
	b, _ := newBoard(t, appt("A", "T1", 8, 0, 60))
	var got []Preview
	b.bus.Subscribe(events.CandidateChanged, func(e events.Event) {
		got = append(got, e.Payload.(Preview))
	})

	require.NoError(t, b.OnGestureStart("A", GestureMove, Pointer{Y: pos(b, 8, 0), LaneID: "T1"}))
	_, err := b.OnGestureUpdate(Pointer{Y: pos(b, 9, 0), LaneID: "T1"})
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.True(t, hm(9, 0).Equal(got[0].Candidate.StartsAt))
}
