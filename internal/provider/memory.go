package provider

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu        sync.Mutex
	providers map[uuid.UUID]*Provider
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{providers: make(map[uuid.UUID]*Provider)}
}

func (m *MemoryStore) Add(p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p
	m.providers[p.ID] = &cp
}

func (m *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) List(_ context.Context) ([]Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot(func(*Provider) bool { return true }), nil
}

func (m *MemoryStore) ListConnected(_ context.Context) ([]Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot(func(p *Provider) bool { return p.Connected() }), nil
}

func (m *MemoryStore) snapshot(keep func(*Provider) bool) []Provider {
	var result []Provider
	for _, p := range m.providers {
		if keep(p) {
			result = append(result, *p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DisplayName < result[j].DisplayName })
	return result
}

func (m *MemoryStore) Connect(_ context.Context, id uuid.UUID, refreshToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[id]
	if !ok {
		return ErrProviderNotFound
	}
	p.CalendarStatus = CalendarConnected
	p.RefreshToken = refreshToken
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) Disconnect(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[id]
	if !ok {
		return ErrProviderNotFound
	}
	p.CalendarStatus = CalendarNotConnected
	p.RefreshToken = ""
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) TouchSyncTime(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[id]
	if !ok {
		return ErrProviderNotFound
	}
	t := at.UTC()
	p.LastSyncedAt = &t
	return nil
}
