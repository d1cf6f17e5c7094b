package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusRequested Status = "requested"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// Terminal reports whether a status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// CanTransition encodes the lifecycle state machine:
// requested -> confirmed -> {completed, cancelled, no_show}; requested may
// also be cancelled directly.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusRequested:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusCompleted || to == StatusCancelled || to == StatusNoShow
	}
	return false
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Appointment occupies exactly one slot range of a provider's grid while it
// is active (not cancelled). Rows are never deleted; cancellation is soft so
// utilization history stays intact.
type Appointment struct {
	ID              uuid.UUID
	ProviderID      uuid.UUID
	PatientID       uuid.UUID
	StartsAt        time.Time // UTC, aligned to the slot grid
	DurationMinutes int
	Reason          string
	Status          Status

	// ExternalEventID links the mirrored external-calendar event, when one
	// exists. Opaque to everything but the calendar adapter.
	ExternalEventID *string

	CancelledAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (a *Appointment) EndsAt() time.Time {
	return a.StartsAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Active reports whether the appointment currently claims its slot range.
func (a *Appointment) Active() bool {
	return a.Status == StatusRequested || a.Status == StatusConfirmed
}
