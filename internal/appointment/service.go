package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicflow/slot-sync/internal/clinictime"
	redisclient "github.com/clinicflow/slot-sync/internal/redis"
	"github.com/clinicflow/slot-sync/internal/slotgrid"
)

const DefaultDurationMinutes = 30

var (
	// ErrSlotUnavailable is returned to a caller who lost the confirmation
	// race or whose slot was blocked between read and write. The caller must
	// re-fetch availability; the service never picks another slot silently.
	ErrSlotUnavailable = slotgrid.ErrSlotUnavailable

	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrSlotBeingBooked         = errors.New("slot is currently being booked, please retry")

	// ErrCalendarNotConnected marks a skipped optional calendar integration.
	// It never blocks a booking transition.
	ErrCalendarNotConnected = errors.New("calendar not connected")
)

// EventPusher mirrors appointment changes to the external calendar. All
// methods are best-effort from the service's perspective: local truth is
// committed first and a push failure is logged, never propagated to the user.
type EventPusher interface {
	// PushConfirmed creates (or, when a mapping already exists, updates) the
	// external event for a confirmed appointment and returns its id.
	PushConfirmed(ctx context.Context, appt *Appointment) (string, error)

	// PushStatus refreshes the external event after a completed/no-show
	// transition.
	PushStatus(ctx context.Context, appt *Appointment) error

	// PushCancelled deletes the external event linked to a cancelled
	// appointment. Deleting an already-deleted event is a no-op.
	PushCancelled(ctx context.Context, providerID uuid.UUID, eventID string) error
}

// BusyProbe reports which slots the external calendar currently claims, so
// cancellation can recompute availability instead of assuming.
type BusyProbe interface {
	BusySlots(ctx context.Context, providerID uuid.UUID, from, to time.Time) (map[time.Time]bool, error)
}

// Notifier is the fire-and-forget notification collaborator.
type Notifier interface {
	AppointmentConfirmed(ctx context.Context, appt *Appointment)
	AppointmentCancelled(ctx context.Context, appt *Appointment)
}

type Service struct {
	repo     Repository
	grid     slotgrid.Store
	locker   redisclient.Locker
	tz       *clinictime.Normalizer
	pusher   EventPusher
	busy     BusyProbe
	notifier Notifier
	log      zerolog.Logger
}

func NewService(
	repo Repository,
	grid slotgrid.Store,
	locker redisclient.Locker,
	tz *clinictime.Normalizer,
	pusher EventPusher,
	busy BusyProbe,
	notifier Notifier,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:     repo,
		grid:     grid,
		locker:   locker,
		tz:       tz,
		pusher:   pusher,
		busy:     busy,
		notifier: notifier,
		log:      log.With().Str("component", "appointment_service").Logger(),
	}
}

// Request normalizes the clinic-local booking time and creates a requested
// appointment after a preliminary availability read. The authoritative check
// happens at confirmation time via the conditional grid write.
func (s *Service) Request(ctx context.Context, providerID, patientID uuid.UUID, date, wallClock string, durationMinutes int, reason string) (*Appointment, error) {
	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	startsAt, err := s.tz.ToUTC(date, wallClock)
	if err != nil {
		return nil, err
	}
	if durationMinutes <= 0 {
		durationMinutes = DefaultDurationMinutes
	}
	endsAt := startsAt.Add(time.Duration(durationMinutes) * time.Minute)

	if err := s.checkRangeAvailable(ctx, providerID, startsAt, endsAt); err != nil {
		return nil, err
	}

	appt, err := s.repo.CreateRequested(ctx, providerID, patientID, startsAt, durationMinutes, reason)
	if err != nil {
		return nil, fmt.Errorf("create requested appointment: %w", err)
	}

	return appt, nil
}

func (s *Service) checkRangeAvailable(ctx context.Context, providerID uuid.UUID, start, end time.Time) error {
	slots, err := s.grid.GetAvailability(ctx, providerID, clinictime.AlignDown(start), clinictime.AlignUp(end))
	if err != nil {
		return fmt.Errorf("read availability: %w", err)
	}

	open := make(map[time.Time]bool, len(slots))
	for _, slot := range slots {
		open[slot.StartsAt] = slot.Available
	}
	for _, want := range clinictime.SlotsCovering(start, end) {
		if !open[want] {
			return ErrSlotUnavailable
		}
	}

	return nil
}

// Confirm moves a requested appointment to confirmed. The slot grid mutation
// is a conditional write inside a per-slot lock, so two concurrent
// confirmations of the same slot produce exactly one winner; the loser gets
// ErrSlotUnavailable. The external calendar push happens after the local
// commit and never blocks the confirmation.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if appt.Status != StatusRequested {
		return nil, ErrInvalidStatusTransition
	}

	var confirmed *Appointment

	err = s.locker.WithSlotLock(ctx, appt.ProviderID, appt.StartsAt, func(lockCtx context.Context) error {
		duration := time.Duration(appt.DurationMinutes) * time.Minute
		if err := s.grid.Reserve(lockCtx, appt.ProviderID, appt.StartsAt, duration); err != nil {
			return err
		}

		updated, err := s.repo.UpdateStatus(lockCtx, appt.ID, StatusRequested, StatusConfirmed)
		if err != nil {
			// The grid flip won but the status CAS lost (e.g. a concurrent
			// cancel). Undo the reservation; a sweep re-blocks it if the
			// external side claims it.
			if relErr := s.grid.SetAvailability(lockCtx, appt.ProviderID, appt.StartsAt, appt.EndsAt(), true); relErr != nil {
				s.log.Error().Err(relErr).Str("appointment_id", appt.ID.String()).Msg("failed to roll back slot reservation")
			}
			if errors.Is(err, ErrAppointmentNotFound) {
				return ErrInvalidStatusTransition
			}
			return fmt.Errorf("confirm appointment: %w", err)
		}

		confirmed = updated
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	// Local truth is committed; everything below is best-effort.
	s.pushConfirmed(ctx, confirmed)
	s.notifier.AppointmentConfirmed(ctx, confirmed)

	return confirmed, nil
}

func (s *Service) pushConfirmed(ctx context.Context, appt *Appointment) {
	eventID, err := s.pusher.PushConfirmed(ctx, appt)
	if err != nil {
		if errors.Is(err, ErrCalendarNotConnected) {
			s.log.Debug().Str("appointment_id", appt.ID.String()).Msg("calendar not connected, outbound push skipped")
			return
		}
		s.log.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("outbound calendar push failed")
		return
	}

	if err := s.repo.SetExternalEventID(ctx, appt.ID, eventID); err != nil {
		s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to persist external event id")
		return
	}
	appt.ExternalEventID = &eventID
}

// Cancel soft-cancels an appointment and frees its slot range, except for
// slots the external calendar independently still claims, which is recomputed
// rather than assumed. Cancelling an already-cancelled appointment is a
// no-op, not an error.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if appt.Status == StatusCancelled {
		return appt, nil
	}
	if !CanTransition(appt.Status, StatusCancelled) {
		return nil, ErrInvalidStatusTransition
	}

	wasConfirmed := appt.Status == StatusConfirmed

	cancelled, err := s.repo.UpdateStatus(ctx, appt.ID, appt.Status, StatusCancelled)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// A concurrent writer moved the row; reload to see who won.
			latest, lerr := s.repo.GetAppointmentByID(ctx, id)
			if lerr == nil && latest.Status == StatusCancelled {
				return latest, nil
			}
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	// Only a confirmed appointment held grid slots.
	if wasConfirmed {
		s.releaseSlots(ctx, cancelled)
	}

	if cancelled.ExternalEventID != nil {
		s.pushCancelled(ctx, cancelled)
	}
	s.notifier.AppointmentCancelled(ctx, cancelled)

	return cancelled, nil
}

// releaseSlots frees the cancelled appointment's range, slot by slot, keeping
// any slot the external calendar still covers blocked.
func (s *Service) releaseSlots(ctx context.Context, appt *Appointment) {
	busy, err := s.busy.BusySlots(ctx, appt.ProviderID, clinictime.AlignDown(appt.StartsAt), clinictime.AlignUp(appt.EndsAt()))
	if err != nil {
		if !errors.Is(err, ErrCalendarNotConnected) {
			// Recompute failed; free optimistically. The next reconciliation
			// sweep re-blocks anything the external calendar still holds.
			s.log.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("external busy recompute failed, releasing slots")
		}
		busy = nil
	}

	for _, slot := range clinictime.SlotsCovering(appt.StartsAt, appt.EndsAt()) {
		if busy[slot] {
			continue
		}
		if err := s.grid.SetAvailability(ctx, appt.ProviderID, slot, slot.Add(clinictime.SlotDuration), true); err != nil {
			s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Time("slot", slot).Msg("failed to release slot")
		}
	}
}

func (s *Service) pushCancelled(ctx context.Context, appt *Appointment) {
	err := s.pusher.PushCancelled(ctx, appt.ProviderID, *appt.ExternalEventID)
	if err != nil {
		if errors.Is(err, ErrCalendarNotConnected) {
			return
		}
		s.log.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("external event delete failed")
		return
	}

	if err := s.repo.ClearExternalEventID(ctx, appt.ID); err != nil {
		s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to clear external event id")
		return
	}
	appt.ExternalEventID = nil
}

// Complete marks a confirmed appointment as completed.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.finish(ctx, id, StatusCompleted)
}

// MarkNoShow marks a confirmed appointment as a no-show.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.finish(ctx, id, StatusNoShow)
}

func (s *Service) finish(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if !CanTransition(appt.Status, to) {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.UpdateStatus(ctx, appt.ID, appt.Status, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	if updated.ExternalEventID != nil {
		if err := s.pusher.PushStatus(ctx, updated); err != nil && !errors.Is(err, ErrCalendarNotConnected) {
			s.log.Warn().Err(err).Str("appointment_id", updated.ID.String()).Msg("external event status update failed")
		}
	}

	return updated, nil
}

// Reschedule is cancel-then-request, never an in-place slot mutation, so the
// audit trail and utilization history stay accurate.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, date, wallClock string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if appt.Status.Terminal() {
		return nil, ErrInvalidStatusTransition
	}

	// Validate the new time before giving up the old slot.
	newStart, err := s.tz.ToUTC(date, wallClock)
	if err != nil {
		return nil, err
	}
	newEnd := newStart.Add(time.Duration(appt.DurationMinutes) * time.Minute)
	if err := s.checkRangeAvailable(ctx, appt.ProviderID, newStart, newEnd); err != nil {
		return nil, err
	}

	if _, err := s.Cancel(ctx, id); err != nil {
		return nil, err
	}

	return s.Request(ctx, appt.ProviderID, appt.PatientID, date, wallClock, appt.DurationMinutes, appt.Reason)
}

// GetAppointment retrieves an appointment by ID.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ListAppointmentsByPatient retrieves appointments for a specific patient.
func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	appts, err := s.repo.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appts, nil
}
