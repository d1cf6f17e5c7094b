package calendar

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicflow/slot-sync/internal/appointment"
	"github.com/clinicflow/slot-sync/internal/provider"
)

// Event colors by appointment status, per the external provider's palette.
const (
	colorConfirmed = "2"  // sage
	colorCompleted = "8"  // graphite
	colorNoShow    = "11" // tomato
)

// Outbound mirrors internal appointment changes to the external calendar.
// Every method resolves the provider's credential fresh and returns
// ErrNotConnected when the integration is absent; callers treat that as a
// silent skip, never a booking failure.
type Outbound struct {
	client    *Client
	providers provider.Store
	log       zerolog.Logger
}

func NewOutbound(client *Client, providers provider.Store, log zerolog.Logger) *Outbound {
	return &Outbound{
		client:    client,
		providers: providers,
		log:       log.With().Str("component", "calendar_outbound").Logger(),
	}
}

var _ appointment.EventPusher = (*Outbound)(nil)

// PushConfirmed creates the external event for a confirmed appointment, or
// updates it if a mapping already exists. Repeating the push with the same
// logical state must not duplicate events.
func (o *Outbound) PushConfirmed(ctx context.Context, appt *appointment.Appointment) (string, error) {
	token, err := o.token(ctx, appt.ProviderID)
	if err != nil {
		return "", err
	}

	payload := eventPayloadFor(appt)

	if appt.ExternalEventID != nil {
		err := o.client.UpdateEvent(ctx, token, *appt.ExternalEventID, payload)
		if err == nil {
			return *appt.ExternalEventID, nil
		}
		if !errors.Is(err, ErrEventGone) {
			return "", err
		}
		// Stale mapping; fall through and create a fresh event.
	}

	eventID, err := o.client.CreateEvent(ctx, token, payload)
	if err != nil {
		return "", err
	}
	return eventID, nil
}

// PushStatus refreshes the linked event after a completed/no-show transition.
func (o *Outbound) PushStatus(ctx context.Context, appt *appointment.Appointment) error {
	if appt.ExternalEventID == nil {
		return nil
	}

	token, err := o.token(ctx, appt.ProviderID)
	if err != nil {
		return err
	}

	err = o.client.UpdateEvent(ctx, token, *appt.ExternalEventID, eventPayloadFor(appt))
	if errors.Is(err, ErrEventGone) {
		o.log.Debug().Str("appointment_id", appt.ID.String()).Msg("external event already gone, status push skipped")
		return nil
	}
	return err
}

// PushCancelled deletes the external event linked to a cancelled appointment.
func (o *Outbound) PushCancelled(ctx context.Context, providerID uuid.UUID, eventID string) error {
	token, err := o.token(ctx, providerID)
	if err != nil {
		return err
	}
	return o.client.DeleteEvent(ctx, token, eventID)
}

func (o *Outbound) token(ctx context.Context, providerID uuid.UUID) (string, error) {
	prov, err := o.providers.GetByID(ctx, providerID)
	if err != nil {
		return "", fmt.Errorf("load provider: %w", err)
	}
	if !prov.Connected() {
		return "", ErrNotConnected
	}
	return o.client.ExchangeRefreshToken(ctx, prov.RefreshToken)
}

func eventPayloadFor(appt *appointment.Appointment) EventPayload {
	summary := "Clinic appointment"
	if appt.Reason != "" {
		summary = "Clinic appointment: " + appt.Reason
	}

	color := colorConfirmed
	switch appt.Status {
	case appointment.StatusCompleted:
		color = colorCompleted
	case appointment.StatusNoShow:
		color = colorNoShow
	}

	return EventPayload{
		Summary:     summary,
		Description: fmt.Sprintf("Booked via clinicflow (appointment %s, status %s)", appt.ID, appt.Status),
		Start:       appt.StartsAt,
		End:         appt.EndsAt(),
		ColorID:     color,
	}
}
