package model

import "time"

// Technician is a schedulable lane on the board.
type Technician struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Color      string   `json:"color"`
	ResourceID *string  `json:"resource_id,omitempty"`
	Skills     []string `json:"skills,omitempty"`
	IsActive   bool     `json:"is_active"`
}

type Bay struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// ResourceKind distinguishes technicians from bays in availability data.
type ResourceKind string

const (
	ResourceTechnician ResourceKind = "technician"
	ResourceBay        ResourceKind = "bay"
)

// AvailabilityWindow is a recurring weekly working window for a resource.
// Minutes are counted from local midnight.
type AvailabilityWindow struct {
	ID          int64        `json:"id"`
	ResourceID  string       `json:"resource_id"`
	Kind        ResourceKind `json:"kind"`
	Weekday     time.Weekday `json:"weekday"`
	StartMinute int          `json:"start_minute"`
	EndMinute   int          `json:"end_minute"`
}

// Covers reports whether [startMin, endMin) lies inside the window.
func (w AvailabilityWindow) Covers(startMin, endMin int) bool {
	return startMin >= w.StartMinute && endMin <= w.EndMinute
}

type TimeOff struct {
	ID         int64        `json:"id"`
	ResourceID string       `json:"resource_id"`
	Kind       ResourceKind `json:"kind"`
	StartsAt   time.Time    `json:"starts_at"`
	EndsAt     time.Time    `json:"ends_at"`
	Reason     string       `json:"reason,omitempty"`
}

// Conflict is one overlapping booking reported for an appointment.
type Conflict struct {
	AppointmentID   string       `json:"appointment_id"`
	ConflictingID   string       `json:"conflicting_id"`
	ConflictingName string       `json:"conflicting_title"`
	ResourceKind    ResourceKind `json:"resource_kind"`
	ResourceName    string       `json:"resource_name"`
	OverlapStart    time.Time    `json:"overlap_start"`
	OverlapEnd      time.Time    `json:"overlap_end"`
}

// ScheduleRequest asks whether a resource assignment fits the schedule.
// AppointmentID, when set, is excluded from overlap checks.
type ScheduleRequest struct {
	TechnicianID  *string   `json:"technician_id,omitempty"`
	BayID         *string   `json:"bay_id,omitempty"`
	StartsAt      time.Time `json:"starts_at"`
	EndsAt        time.Time `json:"ends_at"`
	AppointmentID string    `json:"appointment_id,omitempty"`
}
