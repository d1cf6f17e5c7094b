package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicflow/slot-sync/internal/clinictime"
	"github.com/clinicflow/slot-sync/internal/provider"
	"github.com/clinicflow/slot-sync/internal/slotgrid"
)

// Sweeper pulls external calendar busy-time into the internal slot grid.
// A sweep only ever removes availability: the absence of an external event
// says nothing about internal bookings, so it never marks a slot available.
type Sweeper struct {
	client    *Client
	providers provider.Store
	grid      slotgrid.Store
	tz        *clinictime.Normalizer
	log       zerolog.Logger
}

func NewSweeper(client *Client, providers provider.Store, grid slotgrid.Store, tz *clinictime.Normalizer, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		client:    client,
		providers: providers,
		grid:      grid,
		tz:        tz,
		log:       log.With().Str("component", "calendar_sweeper").Logger(),
	}
}

// SweepAll runs one reconciliation pass over every connected provider.
// Failures are isolated: one provider's broken credential or flaky API never
// affects another provider's sweep. Returns the number of providers swept
// cleanly.
func (s *Sweeper) SweepAll(ctx context.Context, from, to time.Time) (int, error) {
	providers, err := s.providers.ListConnected(ctx)
	if err != nil {
		return 0, fmt.Errorf("list connected providers: %w", err)
	}

	swept := 0
	for _, prov := range providers {
		if err := s.SweepProvider(ctx, prov, from, to); err != nil {
			s.log.Warn().
				Err(err).
				Str("provider_id", prov.ID.String()).
				Msg("sweep failed for provider, will retry next pass")
			continue
		}
		swept++
	}

	return swept, nil
}

// SweepProvider reconciles one provider's grid against its external calendar
// for [from, to). A dead refresh token disconnects the provider; transient
// failures abort this sweep only.
func (s *Sweeper) SweepProvider(ctx context.Context, prov provider.Provider, from, to time.Time) error {
	if !prov.Connected() {
		return fmt.Errorf("provider %s: %w", prov.ID, ErrNotConnected)
	}

	token, err := s.client.ExchangeRefreshToken(ctx, prov.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrNotConnected) {
			if dErr := s.providers.Disconnect(ctx, prov.ID); dErr != nil {
				s.log.Error().Err(dErr).Str("provider_id", prov.ID.String()).Msg("failed to mark provider disconnected")
			}
		}
		return fmt.Errorf("provider %s token exchange: %w", prov.ID, err)
	}

	events, err := s.client.ListEvents(ctx, token, from, to)
	if err != nil {
		return fmt.Errorf("provider %s list events: %w", prov.ID, err)
	}

	for _, ev := range events {
		if err := s.blockEvent(ctx, prov.ID, ev); err != nil {
			// Log and skip; the next sweep retries.
			s.log.Warn().
				Err(err).
				Str("provider_id", prov.ID.String()).
				Str("event_id", ev.ID).
				Msg("failed to block slots for event")
		}
	}

	if err := s.providers.TouchSyncTime(ctx, prov.ID, time.Now().UTC()); err != nil {
		s.log.Warn().Err(err).Str("provider_id", prov.ID.String()).Msg("failed to record sync time")
	}

	return nil
}

func (s *Sweeper) blockEvent(ctx context.Context, providerID uuid.UUID, ev ExternalEvent) error {
	ranges, err := ev.BlockRanges(s.tz)
	if err != nil {
		return err
	}
	for _, r := range ranges {
		if err := s.grid.SetAvailability(ctx, providerID, r[0], r[1], false); err != nil {
			return err
		}
	}
	return nil
}

// BusyProbe answers "which slots does the external calendar currently claim"
// for a provider. Used on cancellation to recompute availability instead of
// assuming the freed range is open.
type BusyProbe struct {
	client    *Client
	providers provider.Store
	tz        *clinictime.Normalizer
}

func NewBusyProbe(client *Client, providers provider.Store, tz *clinictime.Normalizer) *BusyProbe {
	return &BusyProbe{client: client, providers: providers, tz: tz}
}

// BusySlots returns the set of UTC slot starts in [from, to) covered by any
// external event. ErrNotConnected when the provider has no usable credential.
func (b *BusyProbe) BusySlots(ctx context.Context, providerID uuid.UUID, from, to time.Time) (map[time.Time]bool, error) {
	prov, err := b.providers.GetByID(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if !prov.Connected() {
		return nil, ErrNotConnected
	}

	token, err := b.client.ExchangeRefreshToken(ctx, prov.RefreshToken)
	if err != nil {
		return nil, err
	}

	events, err := b.client.ListEvents(ctx, token, from, to)
	if err != nil {
		return nil, err
	}

	busy := make(map[time.Time]bool)
	for _, ev := range events {
		ranges, err := ev.BlockRanges(b.tz)
		if err != nil {
			continue
		}
		for _, r := range ranges {
			for _, slot := range clinictime.SlotsCovering(r[0], r[1]) {
				if !slot.Before(from) && slot.Before(to) {
					busy[slot] = true
				}
			}
		}
	}

	return busy, nil
}
