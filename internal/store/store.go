// Package store is the planner's data-access and mutation layer. It keeps one
// cached collection per board view and applies optimistic changes to every
// affected view before a write settles, rolling them back on failure.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"shopplanner/internal/events"
	"shopplanner/internal/metrics"
	"shopplanner/internal/model"
	"shopplanner/internal/reducer"
	"shopplanner/internal/timegrid"
)

// ViewKey identifies one cached board view. An empty BayFilter means all bays.
type ViewKey struct {
	OrgID     string
	DateKey   string
	BayFilter string
}

// Bay returns the filter as an optional reference.
func (k ViewKey) Bay() *string {
	return model.Ref(k.BayFilter)
}

func (k ViewKey) String() string {
	if k.BayFilter == "" {
		return k.OrgID + "/" + k.DateKey
	}
	return k.OrgID + "/" + k.DateKey + "/" + k.BayFilter
}

type view struct {
	items    []model.Appointment
	version  uint64
	loadedAt time.Time
}

type snapshot struct {
	items   []model.Appointment
	version uint64
}

// pending tracks one optimistic mutation until it settles.
type pending struct {
	op        string
	id        string
	snapshots map[ViewKey]snapshot
	started   time.Time
}

// Store caches board views for one organization.
type Store struct {
	backend  Backend
	grid     timegrid.Grid
	orgID    string
	bus      *events.Bus
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	views    map[ViewKey]*view
	inFlight map[string]string
}

// Option configures a Store.
type Option func(*Store)

func WithBus(bus *events.Bus) Option {
	return func(s *Store) { s.bus = bus }
}

func WithNotifier(n Notifier) Option {
	return func(s *Store) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a store for orgID.
func New(backend Backend, grid timegrid.Grid, orgID string, logger zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		grid:     grid,
		orgID:    orgID,
		notifier: nopNotifier{},
		logger:   logger.With().Str("component", "store").Str("org_id", orgID).Logger(),
		now:      time.Now,
		views:    make(map[ViewKey]*view),
		inFlight: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Grid() timegrid.Grid { return s.grid }

func (s *Store) OrgID() string { return s.orgID }

// Key builds the view key for a day and optional bay filter.
func (s *Store) Key(day time.Time, bayFilter *string) ViewKey {
	return ViewKey{OrgID: s.orgID, DateKey: s.grid.DateKey(day), BayFilter: model.Deref(bayFilter)}
}

// List fetches the day's appointments and replaces the cached view.
func (s *Store) List(ctx context.Context, day time.Time, bayFilter *string) ([]model.Appointment, error) {
	from, to := s.grid.DayRange(day)
	rows, err := s.backend.ListAppointments(ctx, s.orgID, from, to, bayFilter)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	items := make([]model.Appointment, 0, len(rows))
	for _, a := range rows {
		if a.MatchesBay(bayFilter) {
			items = append(items, a)
		}
	}
	items = reducer.Sort(items)

	key := s.Key(day, bayFilter)
	s.mu.Lock()
	v, ok := s.views[key]
	if !ok {
		v = &view{}
		s.views[key] = v
	}
	v.items = items
	v.version++
	v.loadedAt = s.now()
	out := reducer.Sort(v.items)
	s.mu.Unlock()

	s.logger.Debug().Str("view", key.String()).Int("count", len(out)).Msg("view loaded")
	s.publish(events.Event{Type: events.AppointmentsChanged, Payload: key})
	return out, nil
}

// Items returns a clone of a cached view.
func (s *Store) Items(key ViewKey) ([]model.Appointment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.views[key]
	if !ok {
		return nil, false
	}
	return reducer.Sort(v.items), true
}

// Get looks the appointment up in any cached view.
func (s *Store) Get(id string) (model.Appointment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(id)
}

// Invalidate drops a cached view so the next List refetches it.
func (s *Store) Invalidate(key ViewKey) {
	s.mu.Lock()
	delete(s.views, key)
	s.mu.Unlock()
}

// InFlight reports whether a write for id has not settled yet.
func (s *Store) InFlight(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[id]
	return ok
}

// Technicians lists the technician directory.
func (s *Store) Technicians(ctx context.Context) ([]model.Technician, error) {
	return s.backend.ListTechnicians(ctx)
}

// Bays lists the bay directory.
func (s *Store) Bays(ctx context.Context) ([]model.Bay, error) {
	return s.backend.ListBays(ctx)
}

// CanSchedule asks the availability oracle. It never alters cached state.
func (s *Store) CanSchedule(ctx context.Context, req model.ScheduleRequest) (bool, error) {
	ok, err := s.backend.CanSchedule(ctx, req)
	switch {
	case err != nil:
		metrics.IncScheduleCheck("error")
		s.logger.Warn().Err(err).Str("appointment_id", req.AppointmentID).Msg("schedule check failed")
		return false, fmt.Errorf("can schedule: %w", err)
	case ok:
		metrics.IncScheduleCheck("available")
	default:
		metrics.IncScheduleCheck("unavailable")
	}
	return ok, nil
}

// Conflicts returns the overlap report for an appointment.
func (s *Store) Conflicts(ctx context.Context, id string) ([]model.Conflict, error) {
	conflicts, err := s.backend.ConflictReport(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("conflict report: %w", err)
	}
	return conflicts, nil
}

// MoveInput is the target placement of an existing appointment.
type MoveInput struct {
	ID           string
	TechnicianID *string
	BayID        *string
	StartsAt     time.Time
	EndsAt       time.Time
}

// Move reassigns lane and time range.
func (s *Store) Move(ctx context.Context, in MoveInput) (model.Appointment, error) {
	return s.mutateExisting(ctx, "move", in.ID, func(a *model.Appointment) error {
		a.TechnicianID = model.CloneString(in.TechnicianID)
		a.BayID = model.CloneString(in.BayID)
		a.StartsAt = in.StartsAt
		a.EndsAt = in.EndsAt
		return checkRange(a.StartsAt, a.EndsAt)
	})
}

// ResizeInput is the new time range of an existing appointment.
type ResizeInput struct {
	ID       string
	StartsAt time.Time
	EndsAt   time.Time
}

// Resize changes only the time range.
func (s *Store) Resize(ctx context.Context, in ResizeInput) (model.Appointment, error) {
	return s.mutateExisting(ctx, "resize", in.ID, func(a *model.Appointment) error {
		a.StartsAt = in.StartsAt
		a.EndsAt = in.EndsAt
		return checkRange(a.StartsAt, a.EndsAt)
	})
}

// Update writes every editable field of appt.
func (s *Store) Update(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	return s.mutateExisting(ctx, "update", appt.ID, func(a *model.Appointment) error {
		a.Title = appt.Title
		a.Status = appt.Status
		a.TechnicianID = model.CloneString(appt.TechnicianID)
		a.BayID = model.CloneString(appt.BayID)
		a.StartsAt = appt.StartsAt
		a.EndsAt = appt.EndsAt
		a.Notes = model.CloneString(appt.Notes)
		a.CustomerID = appt.CustomerID
		a.VehicleID = appt.VehicleID
		a.Priority = appt.Priority
		return checkRange(a.StartsAt, a.EndsAt)
	})
}

// UpdateStatus changes only the status.
func (s *Store) UpdateStatus(ctx context.Context, id string, status model.Status) (model.Appointment, error) {
	if !status.IsValid() {
		return model.Appointment{}, fmt.Errorf("unknown status %q", status)
	}
	return s.mutateExisting(ctx, "status", id, func(a *model.Appointment) error {
		a.Status = status
		return nil
	})
}

// Create inserts appt under a temporary id, then swaps in the confirmed record.
func (s *Store) Create(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	if err := checkRange(appt.StartsAt, appt.EndsAt); err != nil {
		return model.Appointment{}, err
	}
	if appt.Status == "" {
		appt.Status = model.StatusScheduled
	}
	appt.OrganizationID = s.orgID

	optimistic := appt.Clone()
	optimistic.ID = model.TempIDPrefix + uuid.NewString()
	p, err := s.begin("create", optimistic.ID, optimistic)
	if err != nil {
		return model.Appointment{}, err
	}

	toWrite := appt.Clone()
	toWrite.ID = ""
	confirmed, err := s.backend.InsertAppointment(ctx, toWrite)
	metrics.ObserveWrite("create", s.now().Sub(p.started).Seconds())
	if err != nil {
		s.rollback(p, err)
		return model.Appointment{}, fmt.Errorf("create appointment: %w", err)
	}
	s.confirmCreate(p, confirmed)
	return confirmed.Clone(), nil
}

func (s *Store) mutateExisting(ctx context.Context, op, id string, change func(*model.Appointment) error) (model.Appointment, error) {
	s.mu.Lock()
	current, ok := s.findLocked(id)
	s.mu.Unlock()
	if !ok {
		metrics.IncMutation(op, "rejected")
		return model.Appointment{}, ErrUnknownAppointment
	}

	updated := current.Clone()
	if err := change(&updated); err != nil {
		metrics.IncMutation(op, "rejected")
		return model.Appointment{}, err
	}

	p, err := s.begin(op, id, updated)
	if err != nil {
		return model.Appointment{}, err
	}

	confirmed, err := s.backend.UpdateAppointment(ctx, updated)
	metrics.ObserveWrite(op, s.now().Sub(p.started).Seconds())
	if err != nil {
		s.rollback(p, err)
		return model.Appointment{}, fmt.Errorf("%s appointment %s: %w", op, id, err)
	}
	s.confirmUpdate(p, confirmed)
	return confirmed.Clone(), nil
}

// begin marks id in flight, captures snapshots and applies appt optimistically
// to every view it belongs to.
func (s *Store) begin(op, id string, appt model.Appointment) (*pending, error) {
	s.mu.Lock()
	if _, busy := s.inFlight[id]; busy {
		s.mu.Unlock()
		metrics.IncMutation(op, "in_flight")
		s.logger.Debug().Str("op", op).Str("appointment_id", id).Msg("mutation rejected, write in flight")
		s.notifier.Notify(LevelInfo, UserMessage(ErrMutationInFlight))
		return nil, ErrMutationInFlight
	}
	s.inFlight[id] = op

	p := &pending{op: op, id: id, snapshots: make(map[ViewKey]snapshot), started: s.now()}
	dateKey := s.grid.DateKey(appt.StartsAt)
	var changed []ViewKey
	for key, v := range s.views {
		if key.OrgID != s.orgID {
			continue
		}
		_, holds := reducer.Find(v.items, id)
		var next []model.Appointment
		switch {
		case key.DateKey == dateKey && holds:
			next = reducer.ApplyOptimisticUpdate(v.items, appt, key.Bay())
		case key.DateKey == dateKey:
			next = reducer.ApplyOptimisticCreate(v.items, appt, key.Bay())
		case holds:
			next = reducer.RemoveAppointment(v.items, id)
		default:
			continue
		}
		p.snapshots[key] = snapshot{items: v.items, version: v.version}
		v.items = next
		v.version++
		changed = append(changed, key)
	}
	s.mu.Unlock()

	s.publishAll(changed, id)
	return p, nil
}

func (s *Store) confirmUpdate(p *pending, confirmed model.Appointment) {
	s.settle(p, func(key ViewKey, items []model.Appointment) ([]model.Appointment, bool) {
		_, holds := reducer.Find(items, confirmed.ID)
		switch {
		case key.DateKey == s.grid.DateKey(confirmed.StartsAt):
			return reducer.ApplyUpdateSuccess(items, confirmed, key.Bay()), true
		case holds:
			return reducer.RemoveAppointment(items, confirmed.ID), true
		}
		return nil, false
	})
	metrics.IncMutation(p.op, "success")
	s.logger.Info().Str("op", p.op).Str("appointment_id", confirmed.ID).Msg("appointment saved")
}

func (s *Store) confirmCreate(p *pending, confirmed model.Appointment) {
	s.settle(p, func(key ViewKey, items []model.Appointment) ([]model.Appointment, bool) {
		_, holdsTemp := reducer.Find(items, p.id)
		switch {
		case key.DateKey == s.grid.DateKey(confirmed.StartsAt):
			return reducer.ApplyCreateSuccess(items, p.id, confirmed, key.Bay()), true
		case holdsTemp:
			return reducer.RemoveAppointment(items, p.id), true
		}
		return nil, false
	})
	metrics.IncMutation(p.op, "success")
	s.logger.Info().Str("temp_id", p.id).Str("appointment_id", confirmed.ID).Msg("appointment created")
}

// rollback restores the snapshot captured when the write was issued. A view
// that changed since then only gets the affected item restored, so unrelated
// updates that landed meanwhile survive.
func (s *Store) rollback(p *pending, cause error) {
	s.mu.Lock()
	var changed []ViewKey
	for key, snap := range p.snapshots {
		v, ok := s.views[key]
		if !ok {
			continue
		}
		if v.version == snap.version+1 {
			v.items = reducer.Revert(snap.items)
		} else if prev, had := reducer.Find(snap.items, p.id); had {
			v.items = reducer.ApplyUpdateSuccess(v.items, prev, key.Bay())
		} else {
			v.items = reducer.RemoveAppointment(v.items, p.id)
		}
		v.version++
		changed = append(changed, key)
	}
	delete(s.inFlight, p.id)
	s.mu.Unlock()

	metrics.IncMutation(p.op, "failure")
	metrics.IncRollback(p.op)
	s.logger.Error().Err(cause).Str("op", p.op).Str("appointment_id", p.id).Msg("write failed, optimistic change rolled back")
	s.publishAll(changed, p.id)
	s.notifier.Notify(LevelError, UserMessage(cause))
}

func (s *Store) settle(p *pending, apply func(ViewKey, []model.Appointment) ([]model.Appointment, bool)) {
	s.mu.Lock()
	var changed []ViewKey
	for key, v := range s.views {
		if key.OrgID != s.orgID {
			continue
		}
		next, ok := apply(key, v.items)
		if !ok {
			continue
		}
		v.items = next
		v.version++
		changed = append(changed, key)
	}
	delete(s.inFlight, p.id)
	s.mu.Unlock()

	s.publishAll(changed, p.id)
}

func (s *Store) findLocked(id string) (model.Appointment, bool) {
	for key, v := range s.views {
		if key.OrgID != s.orgID {
			continue
		}
		if a, ok := reducer.Find(v.items, id); ok {
			return a, true
		}
	}
	return model.Appointment{}, false
}

func (s *Store) publishAll(keys []ViewKey, id string) {
	for _, key := range keys {
		s.publish(events.Event{Type: events.AppointmentsChanged, AppointmentID: id, Payload: key})
	}
}

func (s *Store) publish(e events.Event) {
	if s.bus == nil {
		return
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	s.bus.Publish(e)
}

func checkRange(start, end time.Time) error {
	if !end.After(start) {
		return model.ErrInvalidRange
	}
	if end.Sub(start) < timegrid.Slot {
		return ErrTooShort
	}
	return nil
}
