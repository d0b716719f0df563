// Package reducer holds pure transformations over the planner's appointment
// collection. No function mutates its input: every result is a freshly cloned,
// chronologically sorted slice that shares no pointers with the arguments.
package reducer

import (
	"sort"

	"shopplanner/internal/model"
)

// Sort returns a cloned collection stably ordered by StartsAt.
func Sort(items []model.Appointment) []model.Appointment {
	out := cloneAll(items)
	sortInPlace(out)
	return out
}

// ApplyOptimisticCreate inserts appt unless bayFilter hides it.
func ApplyOptimisticCreate(current []model.Appointment, appt model.Appointment, bayFilter *string) []model.Appointment {
	return insert(cloneAll(current), appt, bayFilter)
}

// ApplyCreateSuccess swaps the temporary record for the confirmed one.
func ApplyCreateSuccess(current []model.Appointment, temporaryID string, confirmed model.Appointment, bayFilter *string) []model.Appointment {
	out := without(current, temporaryID)
	out = without(out, confirmed.ID)
	return insert(out, confirmed, bayFilter)
}

// ApplyOptimisticUpdate replaces the item with updated.ID. Unknown ids leave
// the collection unchanged.
func ApplyOptimisticUpdate(current []model.Appointment, updated model.Appointment, bayFilter *string) []model.Appointment {
	if indexOf(current, updated.ID) < 0 {
		return Sort(current)
	}
	return insert(without(current, updated.ID), updated, bayFilter)
}

// ApplyUpdateSuccess writes server-confirmed data. Unlike the optimistic
// variant it also inserts records the view does not hold yet, since a
// confirmed row may have moved into this view.
func ApplyUpdateSuccess(current []model.Appointment, confirmed model.Appointment, bayFilter *string) []model.Appointment {
	return insert(without(current, confirmed.ID), confirmed, bayFilter)
}

// ApplyStatusUpdate replaces the status of the item with id. Every element of
// the result is a fresh copy, including the untouched ones.
func ApplyStatusUpdate(current []model.Appointment, id string, status model.Status) []model.Appointment {
	out := cloneAll(current)
	for i := range out {
		if out[i].ID == id {
			out[i].Status = status
		}
	}
	sortInPlace(out)
	return out
}

// RemoveAppointment drops the item with id, used by explicit removal flows
// and to discard a failed optimistic create.
func RemoveAppointment(current []model.Appointment, id string) []model.Appointment {
	out := without(current, id)
	sortInPlace(out)
	return out
}

// Revert returns a deep clone of a prior snapshot.
func Revert(previous []model.Appointment) []model.Appointment {
	return Sort(previous)
}

// Find returns a clone of the item with id.
func Find(items []model.Appointment, id string) (model.Appointment, bool) {
	i := indexOf(items, id)
	if i < 0 {
		return model.Appointment{}, false
	}
	return items[i].Clone(), true
}

func insert(items []model.Appointment, appt model.Appointment, bayFilter *string) []model.Appointment {
	if appt.MatchesBay(bayFilter) {
		items = append(items, appt.Clone())
	}
	sortInPlace(items)
	return items
}

// without returns clones of every item except id.
func without(items []model.Appointment, id string) []model.Appointment {
	out := make([]model.Appointment, 0, len(items)+1)
	for _, a := range items {
		if a.ID == id {
			continue
		}
		out = append(out, a.Clone())
	}
	return out
}

func cloneAll(items []model.Appointment) []model.Appointment {
	out := make([]model.Appointment, len(items), len(items)+1)
	for i, a := range items {
		out[i] = a.Clone()
	}
	return out
}

func indexOf(items []model.Appointment, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func sortInPlace(items []model.Appointment) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].StartsAt.Before(items[j].StartsAt)
	})
}
