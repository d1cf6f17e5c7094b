package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// CreateRequested inserts a new appointment in the requested state.
	CreateRequested(ctx context.Context, providerID, patientID uuid.UUID, startsAt time.Time, durationMinutes int, reason string) (*Appointment, error)

	// UpdateStatus performs a compare-and-set transition: the row moves from
	// `from` to `to` or, if another writer got there first, nothing matches
	// and ErrAppointmentNotFound is returned. A transition to cancelled also
	// stamps cancelled_at.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// SetExternalEventID records the external calendar event mirroring this
	// appointment; ClearExternalEventID drops a stale mapping.
	SetExternalEventID(ctx context.Context, id uuid.UUID, eventID string) error
	ClearExternalEventID(ctx context.Context, id uuid.UUID) error

	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error)
}
