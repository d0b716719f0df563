package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"shopplanner/internal/events"
	"shopplanner/internal/metrics"
	"shopplanner/internal/model"
	"shopplanner/internal/store"
	"shopplanner/internal/timegrid"
)

var (
	ErrGestureActive      = errors.New("another gesture is active")
	ErrNoGesture          = errors.New("no active gesture")
	ErrOnCard             = errors.New("click landed on an existing appointment")
	ErrUnknownAppointment = errors.New("appointment is not on the board")
	ErrNotLoaded          = errors.New("board has no day loaded")
)

// UnassignedLaneID is the lane of appointments without a known technician.
const UnassignedLaneID = ""

// Lane is one technician column.
type Lane struct {
	ID    string
	Name  string
	Color string
}

// Pointer is a position on the board: pixel offset below the window start and
// the hovered lane.
type Pointer struct {
	Y      float64
	LaneID string
}

// Session is the state of the one active gesture.
type Session struct {
	ActiveID          string
	Kind              GestureKind
	OriginOffset      float64
	PointerY          float64
	DestinationLaneID string
	Original          model.Appointment
	Candidate         model.Appointment
	seq               uint64
	// window is the span the pointer offsets are measured against. It stays
	// fixed for the gesture's lifetime.
	window            timegrid.Window
}

// Preview is what the view renders while a gesture is active.
type Preview struct {
	Candidate      model.Appointment
	Conflict       bool
	ConflictingIDs []string
}

type OutcomeKind string

const (
	OutcomeUnchanged   OutcomeKind = "unchanged"
	OutcomeCommitted   OutcomeKind = "committed"
	OutcomeUnavailable OutcomeKind = "unavailable"
)

// Suggestion is the nearest open position proposed when the oracle rejects a candidate.
type Suggestion struct {
	AppointmentID string
	TechnicianID  *string
	StartsAt      time.Time
	EndsAt        time.Time
}

// Outcome reports how a committed gesture or keyboard action ended.
type Outcome struct {
	Kind        OutcomeKind
	Appointment model.Appointment
	// Suggestion is set for OutcomeUnavailable when an open slot exists.
	Suggestion *Suggestion
}

type override struct {
	candidate model.Appointment
	seq       uint64
}

// Board owns one loaded day of the scheduling board.
type Board struct {
	store           *store.Store
	grid            timegrid.Grid
	bus             *events.Bus
	fsm             *FSM
	logger          zerolog.Logger
	defaultDuration time.Duration

	mu        sync.Mutex
	loaded    bool
	day       time.Time
	bayFilter *string
	key       store.ViewKey
	lanes     []Lane
	state     State
	session   *Session
	overrides map[string]override
	seq       uint64
}

// New creates a board. Non-positive default durations fall back to one hour.
func New(st *store.Store, bus *events.Bus, defaultDuration time.Duration, logger zerolog.Logger) *Board {
	if defaultDuration < timegrid.Slot {
		defaultDuration = time.Hour
	}
	return &Board{
		store:           st,
		grid:            st.Grid(),
		bus:             bus,
		fsm:             NewFSM(),
		logger:          logger.With().Str("component", "board").Logger(),
		defaultDuration: defaultDuration,
		state:           StateIdle,
		overrides:       make(map[string]override),
	}
}

// Load fetches lanes and appointments for day.
func (b *Board) Load(ctx context.Context, day time.Time, bayFilter *string) error {
	techs, err := b.store.Technicians(ctx)
	if err != nil {
		return fmt.Errorf("load technicians: %w", err)
	}
	items, err := b.store.List(ctx, day, bayFilter)
	if err != nil {
		return err
	}

	lanes := make([]Lane, 0, len(techs))
	for _, t := range techs {
		if !t.IsActive {
			continue
		}
		lanes = append(lanes, Lane{ID: t.ID, Name: t.Name, Color: t.Color})
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.loaded = true
	b.day = b.grid.DayStart(day)
	b.bayFilter = model.CloneString(bayFilter)
	b.key = b.store.Key(day, bayFilter)
	b.lanes = lanes
	b.overrides = make(map[string]override)
	b.logger.Debug().Str("view", b.key.String()).Int("lanes", len(lanes)).Int("appointments", len(items)).Msg("board loaded")
	return nil
}

// Window returns the visible span of the loaded day. It follows the current
// view, so a write landing outside the span widens it.
func (b *Board) Window() timegrid.Window {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.windowLocked()
}

// windowLocked derives the span from the effective view. An active gesture
// keeps the span it started with.
func (b *Board) windowLocked() timegrid.Window {
	if b.session != nil {
		return b.session.window
	}
	return b.grid.BoardWindow(b.day, b.effectiveLocked())
}

// State returns the current gesture state.
func (b *Board) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Session returns a copy of the active gesture session.
func (b *Board) Session() (Session, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return Session{}, false
	}
	s := *b.session
	s.Original = s.Original.Clone()
	s.Candidate = s.Candidate.Clone()
	return s, true
}

// Appointments returns the loaded view with optimistic overrides applied.
func (b *Board) Appointments() []model.Appointment {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.effectiveLocked()
}

// OnGestureStart begins a drag or resize of appointment id.
func (b *Board) OnGestureStart(id string, kind GestureKind, p Pointer) error {
	if !kind.valid() {
		return fmt.Errorf("unknown gesture kind %q", kind)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.loaded {
		return ErrNotLoaded
	}
	if b.state != StateIdle {
		return ErrGestureActive
	}
	appt, ok := b.findLocked(id)
	if !ok {
		return ErrUnknownAppointment
	}
	window := b.windowLocked()
	b.state = kind.state()
	b.seq++

	lane := model.Deref(appt.TechnicianID)
	if kind == GestureMove && p.LaneID != "" {
		lane = p.LaneID
	}
	b.session = &Session{
		ActiveID:          id,
		Kind:              kind,
		OriginOffset:      p.Y - b.grid.TimeToPixels(appt.StartsAt, window.Start),
		PointerY:          p.Y,
		DestinationLaneID: lane,
		Original:          appt.Clone(),
		Candidate:         appt.Clone(),
		seq:               b.seq,
		window:            window,
	}
	metrics.IncGesture(string(kind), "started")
	b.logger.Debug().Str("appointment_id", id).Str("kind", string(kind)).Msg("gesture started")
	return nil
}

// OnGestureUpdate recomputes the candidate for the pointer position. The
// candidate only drives rendering; nothing is persisted.
func (b *Board) OnGestureUpdate(p Pointer) (Preview, error) {
	b.mu.Lock()
	if b.session == nil || (b.state != StateDragging && b.state != StateResizing) {
		b.mu.Unlock()
		return Preview{}, ErrNoGesture
	}
	s := b.session
	s.PointerY = p.Y

	c := s.Original.Clone()
	switch s.Kind {
	case GestureMove:
		s.DestinationLaneID = p.LaneID
		d := c.Duration()
		start := b.grid.PixelsToTime(p.Y-s.OriginOffset, s.window.Start)
		start = s.window.ClampStart(start, d)
		c.StartsAt = b.grid.ToUTC(start)
		c.EndsAt = b.grid.ToUTC(start.Add(d))
		c.TechnicianID = model.Ref(p.LaneID)
	case GestureResizeStart:
		c.StartsAt = b.grid.ToUTC(clampResizeStart(s.window, b.grid.PixelsToTime(p.Y, s.window.Start), c.EndsAt))
	case GestureResizeEnd:
		c.EndsAt = b.grid.ToUTC(clampResizeEnd(s.window, b.grid.PixelsToTime(p.Y, s.window.Start), c.StartsAt))
	}
	s.Candidate = c
	b.overrides[s.ActiveID] = override{candidate: c.Clone(), seq: s.seq}

	ids := conflictingIDs(c, b.effectiveLocked())
	preview := Preview{Candidate: c.Clone(), Conflict: len(ids) > 0, ConflictingIDs: ids}
	b.mu.Unlock()

	b.publish(events.Event{Type: events.CandidateChanged, AppointmentID: c.ID, Payload: preview})
	return preview, nil
}

// Cancel discards the active gesture without any persistence call.
func (b *Board) Cancel() error {
	b.mu.Lock()
	if b.session == nil || !b.fsm.CanTransition(b.state, StateCancelled) {
		b.mu.Unlock()
		return ErrNoGesture
	}
	s := b.session
	b.state = StateCancelled
	b.dropOverrideLocked(s.ActiveID, s.seq)
	b.session = nil
	b.state = StateIdle
	b.mu.Unlock()

	metrics.IncGesture(string(s.Kind), "cancelled")
	b.logger.Debug().Str("appointment_id", s.ActiveID).Msg("gesture cancelled")
	b.publish(events.Event{Type: events.GestureEnded, AppointmentID: s.ActiveID, Payload: StateCancelled})
	return nil
}

// Escape is the keyboard binding for Cancel. It is a no-op when idle.
func (b *Board) Escape() {
	if err := b.Cancel(); err != nil && !errors.Is(err, ErrNoGesture) {
		b.logger.Warn().Err(err).Msg("escape failed")
	}
}

// OnGestureEnd commits the candidate. The oracle is consulted first; a
// rejected candidate yields a suggestion instead of a write.
func (b *Board) OnGestureEnd(ctx context.Context) (Outcome, error) {
	b.mu.Lock()
	if b.session == nil || !b.fsm.CanTransition(b.state, StateCommitting) {
		b.mu.Unlock()
		return Outcome{}, ErrNoGesture
	}
	s := *b.session
	b.state = StateCommitting
	b.mu.Unlock()

	kind := string(s.Kind)
	if sameSlot(s.Original, s.Candidate) {
		b.finish(s, false)
		metrics.IncGesture(kind, "unchanged")
		return Outcome{Kind: OutcomeUnchanged, Appointment: s.Original}, nil
	}

	out, err := b.commit(ctx, s.seq, s.Kind, s.Candidate, func() { b.finish(s, true) })
	switch {
	case err != nil:
		metrics.IncGesture(kind, "failed")
	default:
		metrics.IncGesture(kind, string(out.Kind))
	}
	return out, err
}

// finish returns the controller to idle. With keepOverride the candidate stays
// rendered until the write it started settles.
func (b *Board) finish(s Session, keepOverride bool) {
	b.mu.Lock()
	if !keepOverride {
		b.dropOverrideLocked(s.ActiveID, s.seq)
	}
	if b.session != nil && b.session.seq == s.seq {
		b.session = nil
		b.state = StateIdle
	}
	b.mu.Unlock()
	b.publish(events.Event{Type: events.GestureEnded, AppointmentID: s.ActiveID, Payload: StateCommitting})
}

// commit runs the oracle and then the mutation. release is called once the
// write is about to be issued, so the board accepts new gestures meanwhile.
func (b *Board) commit(ctx context.Context, seq uint64, kind GestureKind, c model.Appointment, release func()) (Outcome, error) {
	req := model.ScheduleRequest{
		TechnicianID:  model.CloneString(c.TechnicianID),
		BayID:         model.CloneString(c.BayID),
		StartsAt:      c.StartsAt,
		EndsAt:        c.EndsAt,
		AppointmentID: c.ID,
	}
	ok, err := b.store.CanSchedule(ctx, req)
	if err != nil {
		b.settle(c.ID, seq)
		release()
		return Outcome{}, err
	}
	if !ok {
		suggestion := b.suggest(c)
		b.settle(c.ID, seq)
		release()
		b.publish(events.Event{Type: events.SlotSuggested, AppointmentID: c.ID, Payload: suggestion})
		return Outcome{Kind: OutcomeUnavailable, Appointment: c, Suggestion: suggestion}, nil
	}

	release()
	var saved model.Appointment
	if kind == GestureMove {
		saved, err = b.store.Move(ctx, store.MoveInput{
			ID:           c.ID,
			TechnicianID: c.TechnicianID,
			BayID:        c.BayID,
			StartsAt:     c.StartsAt,
			EndsAt:       c.EndsAt,
		})
	} else {
		saved, err = b.store.Resize(ctx, store.ResizeInput{ID: c.ID, StartsAt: c.StartsAt, EndsAt: c.EndsAt})
	}
	b.settle(c.ID, seq)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: OutcomeCommitted, Appointment: saved}, nil
}

// settle clears the override a finished commit owned. A newer gesture on the
// same appointment keeps its own override.
func (b *Board) settle(id string, seq uint64) {
	b.mu.Lock()
	b.dropOverrideLocked(id, seq)
	b.mu.Unlock()
}

func (b *Board) dropOverrideLocked(id string, seq uint64) {
	if o, ok := b.overrides[id]; ok && o.seq == seq {
		delete(b.overrides, id)
	}
}

// suggest scans forward one slot at a time from the candidate start up to the
// latest start that still fits the window and returns the first position with
// no local conflict.
func (b *Board) suggest(c model.Appointment) *Suggestion {
	b.mu.Lock()
	items := b.effectiveLocked()
	window := b.windowLocked()
	b.mu.Unlock()

	others := make([]model.Appointment, 0, len(items))
	for _, a := range items {
		if a.ID != c.ID {
			others = append(others, a)
		}
	}

	d := c.Duration()
	latest := window.LatestStart(d)
	candidate := c.Clone()
	for start := c.StartsAt.Add(timegrid.Slot); !start.After(latest); start = start.Add(timegrid.Slot) {
		candidate.StartsAt = start
		candidate.EndsAt = start.Add(d)
		if len(conflictingIDs(candidate, others)) == 0 {
			metrics.IncSlotSearch(true)
			return &Suggestion{
				AppointmentID: c.ID,
				TechnicianID:  model.CloneString(c.TechnicianID),
				StartsAt:      b.grid.ToUTC(start),
				EndsAt:        b.grid.ToUTC(start.Add(d)),
			}
		}
	}
	metrics.IncSlotSearch(false)
	return nil
}

func clampResizeStart(w timegrid.Window, start, end time.Time) time.Time {
	if start.Before(w.Start) {
		start = w.Start
	}
	if limit := end.Add(-timegrid.Slot); start.After(limit) {
		start = limit
	}
	return start
}

func clampResizeEnd(w timegrid.Window, end, start time.Time) time.Time {
	if end.After(w.End) {
		end = w.End
	}
	if limit := start.Add(timegrid.Slot); end.Before(limit) {
		end = limit
	}
	return end
}

func (b *Board) findLocked(id string) (model.Appointment, bool) {
	for _, a := range b.effectiveLocked() {
		if a.ID == id {
			return a, true
		}
	}
	return model.Appointment{}, false
}

// effectiveLocked returns the cached view with overrides applied.
func (b *Board) effectiveLocked() []model.Appointment {
	items, _ := b.store.Items(b.key)
	for i := range items {
		if o, ok := b.overrides[items[i].ID]; ok {
			items[i] = o.candidate.Clone()
		}
	}
	return items
}

func (b *Board) publish(e events.Event) {
	if b.bus != nil {
		b.bus.Publish(e)
	}
}

// conflictingIDs applies the advisory local predicate: overlapping time and a
// shared technician or bay.
func conflictingIDs(c model.Appointment, items []model.Appointment) []string {
	var ids []string
	for _, a := range items {
		if c.ConflictsWith(a) {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

func sameSlot(a, b model.Appointment) bool {
	return a.StartsAt.Equal(b.StartsAt) && a.EndsAt.Equal(b.EndsAt) &&
		model.EqualRef(a.TechnicianID, b.TechnicianID) && model.EqualRef(a.BayID, b.BayID)
}
