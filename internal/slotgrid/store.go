package slotgrid

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrSlotUnavailable means a conditional reservation lost: at least one slot
// in the requested range was already taken (or never generated) at commit
// time. Callers must re-read availability; they must not pick another slot on
// the user's behalf.
var ErrSlotUnavailable = errors.New("slot is not available")

// Store is the single write path for slot availability. Booking and
// external-calendar reconciliation both go through it, so neither can bypass
// the rule that an unavailable claim from either side wins.
type Store interface {
	// GetAvailability returns the generated slots in [from, to) ordered by
	// start. A provider with no generated rows yields an empty result, which
	// means "no slots offered", not "all unavailable".
	GetAvailability(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Slot, error)

	// SetAvailability idempotently flips every slot covered by [start, end).
	// Unaligned ranges are expanded to the grid. Slots that were never
	// generated are skipped silently; re-blocking a blocked slot is a no-op.
	SetAvailability(ctx context.Context, providerID uuid.UUID, start, end time.Time, available bool) error

	// Reserve atomically claims every slot covered by [start, start+duration).
	// It is the conditional write that serializes concurrent confirmations:
	// all covered slots flip from available to unavailable in one step, or
	// none do and ErrSlotUnavailable is returned.
	Reserve(ctx context.Context, providerID uuid.UUID, start time.Time, duration time.Duration) error

	// EnsureGrid generates the rolling future window of slot rows for a
	// provider, starting at from for the given number of days. Existing rows
	// are left untouched.
	EnsureGrid(ctx context.Context, providerID uuid.UUID, from time.Time, days int) error
}
