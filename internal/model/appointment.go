package model

import (
	"errors"
	"strings"
	"time"
)

// Status represents appointment progress on the shop floor.
type Status string

const (
	StatusScheduled    Status = "scheduled"
	StatusInProgress   Status = "in_progress"
	StatusWaitingParts Status = "waiting_parts"
	StatusCompleted    Status = "completed"
)

// TempIDPrefix marks client-assigned ids of appointments not yet confirmed by the backend.
const TempIDPrefix = "tmp-"

// MaxNotesLength is the maximum number of characters allowed in appointment notes.
const MaxNotesLength = 2000

var ErrInvalidRange = errors.New("appointment must end after it starts")

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusWaitingParts, StatusCompleted:
		return true
	}
	return false
}

type Appointment struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Title          string    `json:"title"`
	Status         Status    `json:"status"`
	TechnicianID   *string   `json:"technician_id,omitempty"`
	BayID          *string   `json:"bay_id,omitempty"`
	StartsAt       time.Time `json:"starts_at"`
	EndsAt         time.Time `json:"ends_at"`
	Notes          *string   `json:"notes,omitempty"`
	CustomerID     string    `json:"customer_id,omitempty"`
	CustomerName   string    `json:"customer_name,omitempty"`
	VehicleID      string    `json:"vehicle_id,omitempty"`
	VehicleLabel   string    `json:"vehicle_label,omitempty"`
	Priority       int       `json:"priority"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Clone returns a copy that shares no pointers with a.
func (a Appointment) Clone() Appointment {
	c := a
	c.TechnicianID = CloneString(a.TechnicianID)
	c.BayID = CloneString(a.BayID)
	c.Notes = CloneString(a.Notes)
	return c
}

func (a Appointment) Duration() time.Duration {
	return a.EndsAt.Sub(a.StartsAt)
}

// IsTemporary reports whether the appointment is a pending optimistic create.
func (a Appointment) IsTemporary() bool {
	return strings.HasPrefix(a.ID, TempIDPrefix)
}

// OverlapsRange uses half-open intervals: touching ranges do not overlap.
func (a Appointment) OverlapsRange(start, end time.Time) bool {
	return a.StartsAt.Before(end) && a.EndsAt.After(start)
}

// ConflictsWith reports whether both appointments overlap in time and share
// a technician or a bay. The unassigned lane holds no resource and never conflicts.
func (a Appointment) ConflictsWith(b Appointment) bool {
	if a.ID == b.ID {
		return false
	}
	if !a.OverlapsRange(b.StartsAt, b.EndsAt) {
		return false
	}
	return sharesRef(a.TechnicianID, b.TechnicianID) || sharesRef(a.BayID, b.BayID)
}

func sharesRef(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

// MatchesBay reports whether the appointment is visible under bayFilter.
// A nil filter matches everything.
func (a Appointment) MatchesBay(bayFilter *string) bool {
	if bayFilter == nil {
		return true
	}
	return a.BayID != nil && *a.BayID == *bayFilter
}

// Ref returns a pointer to a copy of s, or nil for an empty string.
func Ref(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func CloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// EqualRef compares two optional references; two nils are equal.
func EqualRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
