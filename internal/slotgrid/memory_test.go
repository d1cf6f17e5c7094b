package slotgrid

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinicflow/slot-sync/internal/clinictime"
)

func testStore(t *testing.T) *MemoryStore {
	t.Helper()
	tz, err := clinictime.NewNormalizer("UTC")
	if err != nil {
		t.Fatalf("normalizer: %v", err)
	}
	return NewMemoryStore(tz)
}

func at(h, m int) time.Time {
	return time.Date(2024, 6, 10, h, m, 0, 0, time.UTC)
}

func TestGetAvailability_EmptyWhenNoGrid(t *testing.T) {
	store := testStore(t)

	slots, err := store.GetAvailability(context.Background(), uuid.New(), at(0, 0), at(23, 30))
	if err != nil {
		t.Fatalf("GetAvailability: %v", err)
	}
	if len(slots) != 0 {
		t.Errorf("expected no slots offered, got %d", len(slots))
	}
}

func TestSetAvailability_IdempotentBlock(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	provider := uuid.New()

	store.AddSlot(provider, at(14, 0), true)
	store.AddSlot(provider, at(14, 30), true)
	store.AddSlot(provider, at(15, 0), true)

	if err := store.SetAvailability(ctx, provider, at(14, 0), at(15, 0), false); err != nil {
		t.Fatalf("block: %v", err)
	}
	// Re-blocking an already-blocked range is a no-op, not an error.
	if err := store.SetAvailability(ctx, provider, at(14, 0), at(15, 0), false); err != nil {
		t.Fatalf("redundant block: %v", err)
	}

	slots, err := store.GetAvailability(ctx, provider, at(14, 0), at(15, 30))
	if err != nil {
		t.Fatalf("GetAvailability: %v", err)
	}
	want := map[string]bool{"14:00": false, "14:30": false, "15:00": true}
	for _, s := range slots {
		key := s.StartsAt.Format("15:04")
		if s.Available != want[key] {
			t.Errorf("slot %s: available=%v want %v", key, s.Available, want[key])
		}
	}
}

func TestSetAvailability_ExpandsUnalignedRange(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	provider := uuid.New()

	store.AddSlot(provider, at(9, 0), true)
	store.AddSlot(provider, at(9, 30), true)
	store.AddSlot(provider, at(10, 0), true)

	// 09:10-09:40 rounds down to 09:00 and up to 10:00.
	if err := store.SetAvailability(ctx, provider, at(9, 10), at(9, 40), false); err != nil {
		t.Fatalf("block: %v", err)
	}

	slots, _ := store.GetAvailability(ctx, provider, at(9, 0), at(10, 30))
	for _, s := range slots {
		switch s.StartsAt.Format("15:04") {
		case "09:00", "09:30":
			if s.Available {
				t.Errorf("slot %s should be blocked", s.StartsAt.Format("15:04"))
			}
		case "10:00":
			if !s.Available {
				t.Error("slot 10:00 should be untouched")
			}
		}
	}
}

func TestSetAvailability_MissingRowsSkipped(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	provider := uuid.New()

	// No rows generated; blocking must not invent any.
	if err := store.SetAvailability(ctx, provider, at(9, 0), at(17, 0), false); err != nil {
		t.Fatalf("block on empty grid: %v", err)
	}
	slots, _ := store.GetAvailability(ctx, provider, at(0, 0), at(23, 30))
	if len(slots) != 0 {
		t.Errorf("blocking created %d rows", len(slots))
	}
}

func TestReserve_ExactlyOneWinner(t *testing.T) {
	store := testStore(t)
	provider := uuid.New()
	store.AddSlot(provider, at(9, 0), true)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Reserve(context.Background(), provider, at(9, 0), 30*time.Minute)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrSlotUnavailable):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestReserve_PartialRangeLoses(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	provider := uuid.New()

	store.AddSlot(provider, at(9, 0), true)
	store.AddSlot(provider, at(9, 30), false) // second half already taken

	err := store.Reserve(ctx, provider, at(9, 0), time.Hour)
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}

	// The losing attempt must not have flipped the first half.
	slots, _ := store.GetAvailability(ctx, provider, at(9, 0), at(9, 30))
	if len(slots) != 1 || !slots[0].Available {
		t.Error("losing reservation mutated the grid")
	}
}

func TestReserve_UngeneratedSlotLoses(t *testing.T) {
	store := testStore(t)

	err := store.Reserve(context.Background(), uuid.New(), at(9, 0), 30*time.Minute)
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
}

func TestEnsureGrid_WeekdaysWorkingHours(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	provider := uuid.New()

	// 2024-06-10 is a Monday.
	from := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	if err := store.EnsureGrid(ctx, provider, from, 7); err != nil {
		t.Fatalf("EnsureGrid: %v", err)
	}

	slots, _ := store.GetAvailability(ctx, provider, from, from.AddDate(0, 0, 7))
	// 5 weekdays x 10 hours x 2 slots.
	if len(slots) != 100 {
		t.Fatalf("expected 100 generated slots, got %d", len(slots))
	}
	for _, s := range slots {
		if !s.Available {
			t.Fatalf("generated slot %v not available by default", s.StartsAt)
		}
		if wd := s.StartsAt.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Fatalf("generated weekend slot %v", s.StartsAt)
		}
	}

	// Second run is idempotent and preserves mutations.
	_ = store.SetAvailability(ctx, provider, at(9, 0), at(9, 30), false)
	if err := store.EnsureGrid(ctx, provider, from, 7); err != nil {
		t.Fatalf("EnsureGrid again: %v", err)
	}
	slots, _ = store.GetAvailability(ctx, provider, at(9, 0), at(9, 30))
	if len(slots) != 1 || slots[0].Available {
		t.Error("EnsureGrid overwrote an existing row")
	}
}
