package patientpref

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Get(ctx context.Context, patientID uuid.UUID) (*Preference, error) {
	var buckets []string

	err := s.pool.QueryRow(ctx, `
		SELECT preferred_buckets
		FROM patient_preferences
		WHERE patient_id = $1
	`, patientID).Scan(&buckets)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPreferenceNotFound
		}
		return nil, err
	}

	pref := &Preference{PatientID: patientID}
	for _, b := range buckets {
		pref.Buckets = append(pref.Buckets, Bucket(b))
	}
	return pref, nil
}

// MemoryStore is a map-backed Store for tests.
type MemoryStore struct {
	prefs map[uuid.UUID]Preference
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{prefs: make(map[uuid.UUID]Preference)}
}

func (m *MemoryStore) Set(p Preference) {
	m.prefs[p.PatientID] = p
}

func (m *MemoryStore) Get(_ context.Context, patientID uuid.UUID) (*Preference, error) {
	p, ok := m.prefs[patientID]
	if !ok {
		return nil, ErrPreferenceNotFound
	}
	cp := p
	return &cp, nil
}
