package calendar

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicflow/slot-sync/internal/appointment"
	"github.com/clinicflow/slot-sync/internal/provider"
)

func newOutboundFixture(t *testing.T) (*Outbound, *fakeCalendar, uuid.UUID) {
	t.Helper()

	cal := newFakeCalendar(t)
	providers := provider.NewMemoryStore()
	providerID := uuid.New()
	providers.Add(provider.Provider{
		ID:             providerID,
		DisplayName:    "Dr. Chen",
		CalendarStatus: provider.CalendarConnected,
		RefreshToken:   "refresh-ok",
	})

	return NewOutbound(cal.client(), providers, zerolog.Nop()), cal, providerID
}

func confirmedAppointment(providerID uuid.UUID) *appointment.Appointment {
	return &appointment.Appointment{
		ID:              uuid.New(),
		ProviderID:      providerID,
		PatientID:       uuid.New(),
		StartsAt:        time.Date(2025, 6, 9, 13, 0, 0, 0, time.UTC),
		DurationMinutes: 30,
		Reason:          "Checkup",
		Status:          appointment.StatusConfirmed,
	}
}

func TestPushConfirmed_CreatesEvent(t *testing.T) {
	outbound, cal, providerID := newOutboundFixture(t)
	appt := confirmedAppointment(providerID)

	eventID, err := outbound.PushConfirmed(context.Background(), appt)
	if err != nil {
		t.Fatalf("PushConfirmed: %v", err)
	}

	ev, ok := cal.events[eventID]
	if !ok {
		t.Fatalf("event %s not created", eventID)
	}
	if !strings.Contains(ev.Summary, "Checkup") {
		t.Errorf("summary = %q, want the reason included", ev.Summary)
	}
	if ev.ColorID != colorConfirmed {
		t.Errorf("colorId = %q, want %q", ev.ColorID, colorConfirmed)
	}
}

func TestPushConfirmed_UpdatesExistingMapping(t *testing.T) {
	outbound, cal, providerID := newOutboundFixture(t)
	appt := confirmedAppointment(providerID)

	first, err := outbound.PushConfirmed(context.Background(), appt)
	if err != nil {
		t.Fatalf("first push: %v", err)
	}
	appt.ExternalEventID = &first

	second, err := outbound.PushConfirmed(context.Background(), appt)
	if err != nil {
		t.Fatalf("second push: %v", err)
	}
	if second != first {
		t.Errorf("repeat push created a new event: %s != %s", second, first)
	}
	if len(cal.events) != 1 {
		t.Errorf("events = %d, want 1", len(cal.events))
	}
}

func TestPushConfirmed_StaleMappingRecreates(t *testing.T) {
	outbound, cal, providerID := newOutboundFixture(t)
	appt := confirmedAppointment(providerID)

	stale := "deleted-on-the-other-side"
	appt.ExternalEventID = &stale

	eventID, err := outbound.PushConfirmed(context.Background(), appt)
	if err != nil {
		t.Fatalf("PushConfirmed: %v", err)
	}
	if eventID == stale {
		t.Error("stale mapping should have been replaced")
	}
	if _, ok := cal.events[eventID]; !ok {
		t.Errorf("fresh event %s not created", eventID)
	}
}

func TestPushStatus_NoMappingIsNoop(t *testing.T) {
	outbound, cal, providerID := newOutboundFixture(t)
	appt := confirmedAppointment(providerID)
	appt.Status = appointment.StatusCompleted

	if err := outbound.PushStatus(context.Background(), appt); err != nil {
		t.Fatalf("PushStatus: %v", err)
	}
	if len(cal.events) != 0 {
		t.Error("status push without a mapping should touch nothing")
	}
}

func TestPushStatus_UpdatesColor(t *testing.T) {
	outbound, cal, providerID := newOutboundFixture(t)
	appt := confirmedAppointment(providerID)

	eventID, err := outbound.PushConfirmed(context.Background(), appt)
	if err != nil {
		t.Fatalf("PushConfirmed: %v", err)
	}
	appt.ExternalEventID = &eventID
	appt.Status = appointment.StatusNoShow

	if err := outbound.PushStatus(context.Background(), appt); err != nil {
		t.Fatalf("PushStatus: %v", err)
	}
	if got := cal.events[eventID].ColorID; got != colorNoShow {
		t.Errorf("colorId = %q, want %q", got, colorNoShow)
	}
}

func TestPushCancelled_DeletesEvent(t *testing.T) {
	outbound, cal, providerID := newOutboundFixture(t)
	appt := confirmedAppointment(providerID)

	eventID, err := outbound.PushConfirmed(context.Background(), appt)
	if err != nil {
		t.Fatalf("PushConfirmed: %v", err)
	}

	if err := outbound.PushCancelled(context.Background(), providerID, eventID); err != nil {
		t.Fatalf("PushCancelled: %v", err)
	}
	if len(cal.events) != 0 {
		t.Error("event not deleted")
	}

	// Cancelling again must stay idempotent.
	if err := outbound.PushCancelled(context.Background(), providerID, eventID); err != nil {
		t.Fatalf("repeat PushCancelled: %v", err)
	}
}

func TestOutbound_NotConnected(t *testing.T) {
	cal := newFakeCalendar(t)
	providers := provider.NewMemoryStore()
	providerID := uuid.New()
	providers.Add(provider.Provider{ID: providerID, DisplayName: "Dr. Adams"})

	outbound := NewOutbound(cal.client(), providers, zerolog.Nop())

	_, err := outbound.PushConfirmed(context.Background(), confirmedAppointment(providerID))
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}
