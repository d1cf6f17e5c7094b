package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicflow/slot-sync/internal/clinictime"
	"github.com/clinicflow/slot-sync/internal/provider"
	"github.com/clinicflow/slot-sync/internal/slotgrid"
)

type sweepFixture struct {
	cal       *fakeCalendar
	providers *provider.MemoryStore
	grid      *slotgrid.MemoryStore
	sweeper   *Sweeper
	tz        *clinictime.Normalizer

	providerID uuid.UUID
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()

	tz, err := clinictime.NewNormalizer("America/New_York")
	if err != nil {
		t.Fatalf("normalizer: %v", err)
	}

	f := &sweepFixture{
		cal:        newFakeCalendar(t),
		providers:  provider.NewMemoryStore(),
		grid:       slotgrid.NewMemoryStore(tz),
		tz:         tz,
		providerID: uuid.New(),
	}

	f.providers.Add(provider.Provider{
		ID:             f.providerID,
		DisplayName:    "Dr. Chen",
		CalendarStatus: provider.CalendarConnected,
		RefreshToken:   "refresh-ok",
	})

	// Monday 2025-06-09, full working-hours grid.
	from := f.slotUTC(t, "2025-06-09", "08:00")
	if err := f.grid.EnsureGrid(context.Background(), f.providerID, from, 1); err != nil {
		t.Fatalf("grid: %v", err)
	}

	f.sweeper = NewSweeper(f.cal.client(), f.providers, f.grid, tz, zerolog.Nop())
	return f
}

func (f *sweepFixture) slotUTC(t *testing.T, date, wall string) time.Time {
	t.Helper()
	ts, err := f.tz.ToUTC(date, wall)
	if err != nil {
		t.Fatalf("slot time: %v", err)
	}
	return ts
}

func (f *sweepFixture) available(t *testing.T, wall string) bool {
	t.Helper()
	start := f.slotUTC(t, "2025-06-09", wall)
	slots, err := f.grid.GetAvailability(context.Background(), f.providerID, start, start.Add(clinictime.SlotDuration))
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot at %s, got %d", wall, len(slots))
	}
	return slots[0].Available
}

func (f *sweepFixture) sweepDay(t *testing.T) {
	t.Helper()
	prov, err := f.providers.GetByID(context.Background(), f.providerID)
	if err != nil {
		t.Fatalf("get provider: %v", err)
	}
	from := f.slotUTC(t, "2025-06-09", "08:00")
	if err := f.sweeper.SweepProvider(context.Background(), *prov, from, from.Add(24*time.Hour)); err != nil {
		t.Fatalf("sweep: %v", err)
	}
}

func TestSweepProvider_TimedEvent(t *testing.T) {
	f := newSweepFixture(t)

	// 14:00-15:00 clinic-local.
	f.cal.addEvent(timedWireEvent("busy-1",
		f.slotUTC(t, "2025-06-09", "14:00"),
		f.slotUTC(t, "2025-06-09", "15:00")))

	f.sweepDay(t)

	if f.available(t, "14:00") || f.available(t, "14:30") {
		t.Error("slots under the event should be blocked")
	}
	if !f.available(t, "13:30") || !f.available(t, "15:00") {
		t.Error("slots outside the event must stay open")
	}
}

func TestSweepProvider_UnalignedEventExpands(t *testing.T) {
	f := newSweepFixture(t)

	// 09:10-09:40 touches both the 09:00 and 09:30 slots.
	f.cal.addEvent(timedWireEvent("busy-odd",
		f.slotUTC(t, "2025-06-09", "09:00").Add(10*time.Minute),
		f.slotUTC(t, "2025-06-09", "09:30").Add(10*time.Minute)))

	f.sweepDay(t)

	if f.available(t, "09:00") || f.available(t, "09:30") {
		t.Error("partially covered slots should be blocked")
	}
	if !f.available(t, "10:00") {
		t.Error("10:00 is untouched by the event")
	}
}

func TestSweepProvider_AllDayEvent(t *testing.T) {
	f := newSweepFixture(t)

	f.cal.addEvent(wireEvent{
		ID:    "vacation",
		Start: &eventTime{Date: "2025-06-09"},
		End:   &eventTime{Date: "2025-06-10"}, // exclusive: Monday only
	})

	f.sweepDay(t)

	for _, wall := range []string{"08:00", "12:00", "17:30"} {
		if f.available(t, wall) {
			t.Errorf("slot %s should be blocked by the all-day event", wall)
		}
	}
}

func TestSweepProvider_Idempotent(t *testing.T) {
	f := newSweepFixture(t)

	f.cal.addEvent(timedWireEvent("busy-1",
		f.slotUTC(t, "2025-06-09", "14:00"),
		f.slotUTC(t, "2025-06-09", "15:00")))

	f.sweepDay(t)
	f.sweepDay(t)

	if f.available(t, "14:00") {
		t.Error("repeated sweep must keep the slot blocked")
	}
	if !f.available(t, "13:30") {
		t.Error("repeated sweep must not block extra slots")
	}
}

func TestSweepProvider_NeverReopensSlots(t *testing.T) {
	f := newSweepFixture(t)

	// Internally blocked slot with no matching external event.
	start := f.slotUTC(t, "2025-06-09", "10:00")
	if err := f.grid.SetAvailability(context.Background(), f.providerID, start, start.Add(clinictime.SlotDuration), false); err != nil {
		t.Fatalf("block: %v", err)
	}

	f.sweepDay(t)

	if f.available(t, "10:00") {
		t.Error("a sweep must never mark a slot available")
	}
}

func TestSweepProvider_DeadTokenDisconnects(t *testing.T) {
	f := newSweepFixture(t)
	f.cal.validRefreshToken = "rotated-away"

	prov, _ := f.providers.GetByID(context.Background(), f.providerID)
	from := f.slotUTC(t, "2025-06-09", "08:00")

	err := f.sweeper.SweepProvider(context.Background(), *prov, from, from.Add(24*time.Hour))
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}

	after, _ := f.providers.GetByID(context.Background(), f.providerID)
	if after.Connected() {
		t.Error("provider with a dead grant should be marked disconnected")
	}
}

func TestSweepAll_IsolatesFailures(t *testing.T) {
	f := newSweepFixture(t)

	// Second provider whose refresh token the fake rejects.
	badID := uuid.New()
	f.providers.Add(provider.Provider{
		ID:             badID,
		DisplayName:    "Dr. Adams",
		CalendarStatus: provider.CalendarConnected,
		RefreshToken:   "revoked",
	})

	from := f.slotUTC(t, "2025-06-09", "08:00")
	swept, err := f.sweeper.SweepAll(context.Background(), from, from.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("SweepAll: %v", err)
	}
	if swept != 1 {
		t.Errorf("swept = %d, want the one healthy provider", swept)
	}

	healthy, _ := f.providers.GetByID(context.Background(), f.providerID)
	if healthy.LastSyncedAt == nil {
		t.Error("healthy provider's sync time not recorded")
	}
}

func TestBusyProbe(t *testing.T) {
	f := newSweepFixture(t)

	f.cal.addEvent(timedWireEvent("busy-1",
		f.slotUTC(t, "2025-06-09", "14:00"),
		f.slotUTC(t, "2025-06-09", "15:00")))

	probe := NewBusyProbe(f.cal.client(), f.providers, f.tz)
	from := f.slotUTC(t, "2025-06-09", "08:00")

	busy, err := probe.BusySlots(context.Background(), f.providerID, from, from.Add(10*time.Hour))
	if err != nil {
		t.Fatalf("BusySlots: %v", err)
	}

	if !busy[f.slotUTC(t, "2025-06-09", "14:00")] || !busy[f.slotUTC(t, "2025-06-09", "14:30")] {
		t.Error("event slots should be busy")
	}
	if busy[f.slotUTC(t, "2025-06-09", "15:00")] {
		t.Error("15:00 is outside the event")
	}
}

func TestBusyProbe_NotConnected(t *testing.T) {
	f := newSweepFixture(t)
	if err := f.providers.Disconnect(context.Background(), f.providerID); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	probe := NewBusyProbe(f.cal.client(), f.providers, f.tz)
	_, err := probe.BusySlots(context.Background(), f.providerID, time.Now(), time.Now().Add(time.Hour))
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}
