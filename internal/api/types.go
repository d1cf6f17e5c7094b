package api

import (
	"time"

	"github.com/google/uuid"
)

type BookAppointmentRequest struct {
	ProviderID      string `json:"provider_id"`
	PatientID       string `json:"patient_id"`
	Date            string `json:"date"` // clinic-local "2006-01-02"
	Time            string `json:"time"` // clinic-local "15:04"
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

type RescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type ConnectCalendarRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type AppointmentResponse struct {
	ID              uuid.UUID  `json:"id"`
	ProviderID      uuid.UUID  `json:"provider_id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	StartsAt        time.Time  `json:"starts_at"`
	DurationMinutes int        `json:"duration_minutes"`
	Reason          string     `json:"reason,omitempty"`
	Status          string     `json:"status"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
}

type SlotResponse struct {
	Date        string `json:"date"` // clinic-local
	Time        string `json:"time"` // clinic-local
	IsAvailable bool   `json:"is_available"`
}

type SyncResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
