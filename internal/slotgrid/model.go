package slotgrid

import (
	"time"

	"github.com/google/uuid"
)

// Slot is one 30-minute bookable unit of a provider's grid. Availability is
// the only mutable attribute: false whenever an internal appointment or an
// external calendar event claims the slot.
type Slot struct {
	ProviderID uuid.UUID
	StartsAt   time.Time // UTC, aligned to the 30-minute grid
	Available  bool
}

// Grid generation defaults: rows are produced for clinic-local working hours
// on weekdays. Weekend rows are simply never generated, which reads back as
// "no slots offered".
const (
	GridDayStartHour = 8
	GridDayEndHour   = 18
)
