package store

import (
	"context"
	"errors"

	"shopplanner/internal/model"
)

var (
	// ErrMutationInFlight rejects a second mutation of an appointment whose
	// previous write has not settled yet.
	ErrMutationInFlight = errors.New("mutation already in flight for appointment")
	// ErrUnknownAppointment means the id is not in any cached view.
	ErrUnknownAppointment = errors.New("appointment not loaded")
	ErrTooShort           = errors.New("appointment shorter than one slot")
)

// UserMessage derives a human-readable message from a mutation error.
// The raw error is never shown to the user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMutationInFlight):
		return "This appointment is still being saved. Try again in a moment."
	case errors.Is(err, model.ErrInvalidRange), errors.Is(err, ErrTooShort):
		return "An appointment must end after it starts and last at least 15 minutes."
	case errors.Is(err, ErrUnknownAppointment):
		return "This appointment is no longer on the board. Refresh and try again."
	case errors.Is(err, context.DeadlineExceeded):
		return "The server took too long to respond. Your change was undone."
	case errors.Is(err, context.Canceled):
		return "The request was cancelled. Your change was undone."
	default:
		return "Could not save the appointment. Your change was undone, please try again."
	}
}
