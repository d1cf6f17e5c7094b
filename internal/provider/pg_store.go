package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

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

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	var lastSyncedAt *time.Time

	err := row.Scan(
		&p.ID,
		&p.DisplayName,
		&p.CalendarStatus,
		&p.RefreshToken,
		&lastSyncedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	p.LastSyncedAt = lastSyncedAt
	return &p, nil
}

const providerColumns = `id, display_name, calendar_status, COALESCE(refresh_token, ''), last_synced_at, created_at, updated_at`

func (s *PgStore) GetByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+providerColumns+`
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

func (s *PgStore) List(ctx context.Context) ([]Provider, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+providerColumns+`
		FROM providers
		ORDER BY display_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectProviders(rows)
}

func (s *PgStore) ListConnected(ctx context.Context) ([]Provider, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+providerColumns+`
		FROM providers
		WHERE calendar_status = 'connected'
		  AND refresh_token IS NOT NULL
		ORDER BY display_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectProviders(rows)
}

func collectProviders(rows pgx.Rows) ([]Provider, error) {
	var result []Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PgStore) Connect(ctx context.Context, id uuid.UUID, refreshToken string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE providers
		SET calendar_status = 'connected',
		    refresh_token = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, refreshToken)
	if err != nil {
		return fmt.Errorf("connect provider: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProviderNotFound
	}
	return nil
}

func (s *PgStore) Disconnect(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE providers
		SET calendar_status = 'not_connected',
		    refresh_token = NULL,
		    updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("disconnect provider: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProviderNotFound
	}
	return nil
}

func (s *PgStore) TouchSyncTime(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE providers
		SET last_synced_at = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("touch sync time: %w", err)
	}
	return nil
}
