package stats

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory Repository for tests.
type MemoryRepository struct {
	mu      sync.Mutex
	counts  []CountRow
	records []Record
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) SetCounts(rows []CountRow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts = append([]CountRow(nil), rows...)
}

func (m *MemoryRepository) SetRecords(records []Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append([]Record(nil), records...)
}

func (m *MemoryRepository) FetchCounts(_ context.Context, _, _ time.Time) ([]CountRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CountRow(nil), m.counts...), nil
}

func (m *MemoryRepository) ReplaceRecords(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append([]Record(nil), records...)
	return nil
}

func (m *MemoryRepository) GetForWeekday(_ context.Context, providerID uuid.UUID, weekday time.Weekday) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Record
	for _, rec := range m.records {
		if rec.ProviderID == providerID && rec.Weekday == weekday {
			result = append(result, rec)
		}
	}
	return result, nil
}
