package slotgrid

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicflow/slot-sync/internal/clinictime"
)

// MemoryStore is an in-memory Store with the same conditional-write semantics
// as PgStore. It backs unit tests and local development without Postgres.
type MemoryStore struct {
	mu    sync.Mutex
	tz    *clinictime.Normalizer
	slots map[uuid.UUID]map[int64]bool // provider -> slot start (unix) -> available
}

func NewMemoryStore(tz *clinictime.Normalizer) *MemoryStore {
	return &MemoryStore{
		tz:    tz,
		slots: make(map[uuid.UUID]map[int64]bool),
	}
}

// AddSlot generates a single slot row, available by default. Test setup helper.
func (m *MemoryStore) AddSlot(providerID uuid.UUID, start time.Time, available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grid(providerID)[start.UTC().Unix()] = available
}

func (m *MemoryStore) grid(providerID uuid.UUID) map[int64]bool {
	g, ok := m.slots[providerID]
	if !ok {
		g = make(map[int64]bool)
		m.slots[providerID] = g
	}
	return g
}

func (m *MemoryStore) GetAvailability(_ context.Context, providerID uuid.UUID, from, to time.Time) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Slot
	for unix, avail := range m.slots[providerID] {
		start := time.Unix(unix, 0).UTC()
		if start.Before(from) || !start.Before(to) {
			continue
		}
		result = append(result, Slot{ProviderID: providerID, StartsAt: start, Available: avail})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartsAt.Before(result[j].StartsAt) })

	return result, nil
}

func (m *MemoryStore) SetAvailability(_ context.Context, providerID uuid.UUID, start, end time.Time, available bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := m.grid(providerID)
	for _, s := range clinictime.SlotsCovering(start.UTC(), end.UTC()) {
		if _, ok := g[s.Unix()]; !ok {
			continue // never generated, nothing to flip
		}
		g[s.Unix()] = available
	}

	return nil
}

func (m *MemoryStore) Reserve(_ context.Context, providerID uuid.UUID, start time.Time, duration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	starts := clinictime.SlotsCovering(start.UTC(), start.UTC().Add(duration))
	if len(starts) == 0 {
		return ErrSlotUnavailable
	}

	g := m.grid(providerID)
	for _, s := range starts {
		if avail, ok := g[s.Unix()]; !ok || !avail {
			return ErrSlotUnavailable
		}
	}
	for _, s := range starts {
		g[s.Unix()] = false
	}

	return nil
}

func (m *MemoryStore) EnsureGrid(_ context.Context, providerID uuid.UUID, from time.Time, days int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := m.grid(providerID)
	for _, s := range GridSlotStarts(m.tz, from, days) {
		if _, ok := g[s.Unix()]; !ok {
			g[s.Unix()] = true
		}
	}

	return nil
}
