// Package notify is the boundary to the external notification collaborator.
// Delivery is fire-and-forget: a lost notification is logged, never an error
// in the booking flow.
package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/clinicflow/slot-sync/internal/appointment"
)

// LogNotifier records notification intents in the structured log. The real
// mail/SMS service is an external collaborator invoked from here.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notifier").Logger()}
}

var _ appointment.Notifier = (*LogNotifier)(nil)

func (n *LogNotifier) AppointmentConfirmed(_ context.Context, appt *appointment.Appointment) {
	n.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("patient_id", appt.PatientID.String()).
		Time("starts_at", appt.StartsAt).
		Msg("appointment confirmed notification")
}

func (n *LogNotifier) AppointmentCancelled(_ context.Context, appt *appointment.Appointment) {
	n.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("patient_id", appt.PatientID.String()).
		Time("starts_at", appt.StartsAt).
		Msg("appointment cancelled notification")
}
