package provider

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrProviderNotFound = errors.New("provider not found")

type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	List(ctx context.Context) ([]Provider, error)

	// ListConnected returns the providers eligible for a reconciliation sweep.
	ListConnected(ctx context.Context) ([]Provider, error)

	// Connect stores a fresh refresh token and marks the provider connected.
	// Token rotation is an overwrite of the previous value.
	Connect(ctx context.Context, id uuid.UUID, refreshToken string) error

	// Disconnect clears the stored token and marks the provider
	// not_connected. Called on explicit disconnect and on token failure.
	Disconnect(ctx context.Context, id uuid.UUID) error

	// TouchSyncTime records the completion instant of an inbound sweep.
	TouchSyncTime(ctx context.Context, id uuid.UUID, at time.Time) error
}
