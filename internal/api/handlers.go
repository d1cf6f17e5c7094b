package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicflow/slot-sync/internal/appointment"
	"github.com/clinicflow/slot-sync/internal/clinictime"
	"github.com/clinicflow/slot-sync/internal/provider"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func appointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		ProviderID:      a.ProviderID,
		PatientID:       a.PatientID,
		StartsAt:        a.StartsAt,
		DurationMinutes: a.DurationMinutes,
		Reason:          a.Reason,
		Status:          string(a.Status),
		CancelledAt:     a.CancelledAt,
	}
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func bookAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		appt, err := svc.Request(r.Context(), providerID, patientID, req.Date, req.Time, req.DurationMinutes, req.Reason)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, appointmentResponse(appt))
	}
}

// transitionHandler serves the lifecycle endpoints that take an appointment
// ID and no body (confirm, cancel, complete, no-show).
func transitionHandler(apply func(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := apply(r.Context(), id)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}

func confirmAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return transitionHandler(svc.Confirm)
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return transitionHandler(svc.Cancel)
}

func completeAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return transitionHandler(svc.Complete)
}

func noShowAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return transitionHandler(svc.MarkNoShow)
}

func rescheduleAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, req.Date, req.Time)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := uuid.Parse(r.URL.Query().Get("patient_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id query parameter must be a valid UUID")
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		appts, err := svc.ListAppointmentsByPatient(r.Context(), patientID, limit, offset)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, appointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func availabilityHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		fromDate := r.URL.Query().Get("from")
		toDate := r.URL.Query().Get("to")
		if toDate == "" {
			toDate = fromDate
		}

		from, _, err := cfg.TZ.DayBoundsUTC(fromDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", "from must be a valid date")
			return
		}
		_, to, err := cfg.TZ.DayBoundsUTC(toDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", "to must be a valid date")
			return
		}

		slots, err := cfg.Grid.GetAvailability(r.Context(), providerID, from, to)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		// Empty means "no slots offered", rendered as an empty list.
		resp := make([]SlotResponse, 0, len(slots))
		for _, slot := range slots {
			local := cfg.TZ.ToClinicLocal(slot.StartsAt)
			resp = append(resp, SlotResponse{
				Date:        local.Format(clinictime.DateLayout),
				Time:        local.Format(clinictime.TimeLayout),
				IsAvailable: slot.Available,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func recommendationsHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}
		patientID, err := uuid.Parse(r.URL.Query().Get("patient_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id query parameter must be a valid UUID")
			return
		}

		result, err := cfg.Selector.Recommend(r.Context(), providerID, patientID, r.URL.Query().Get("date"))
		if err != nil {
			if errors.Is(err, clinictime.ErrInvalidTime) {
				writeError(w, http.StatusBadRequest, "invalid_time", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func syncProviderHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		prov, err := cfg.Providers.GetByID(r.Context(), providerID)
		if err != nil {
			handleProviderError(w, err)
			return
		}

		from := time.Now().UTC()
		to := from.AddDate(0, 0, cfg.SweepHorizonDays)
		if err := cfg.Sweeper.SweepProvider(r.Context(), *prov, from, to); err != nil {
			switch {
			case errors.Is(err, appointment.ErrCalendarNotConnected):
				writeError(w, http.StatusConflict, "calendar_not_connected", "provider has no usable calendar connection")
			default:
				// Transient: the periodic worker retries; the caller just
				// needs to know this pass did not land.
				writeError(w, http.StatusBadGateway, "sync_failed", err.Error())
			}
			return
		}

		writeJSON(w, http.StatusOK, SyncResponse{Status: "synced"})
	}
}

func listProvidersHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providers, err := cfg.Providers.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, providers)
	}
}

func connectCalendarHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		var req ConnectCalendarRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "refresh_token is required")
			return
		}

		if err := cfg.Providers.Connect(r.Context(), providerID, req.RefreshToken); err != nil {
			handleProviderError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, SyncResponse{Status: "connected"})
	}
}

func disconnectCalendarHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		if err := cfg.Providers.Disconnect(r.Context(), providerID); err != nil {
			handleProviderError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, SyncResponse{Status: "disconnected"})
	}
}

// handleAppointmentError maps service errors onto the API contract. Only
// invalid-time and slot-unavailable are actionable user errors; calendar
// trouble never surfaces as a booking failure.
func handleAppointmentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, clinictime.ErrInvalidTime):
		writeError(w, http.StatusBadRequest, "invalid_time", err.Error())
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", "slot is no longer available, re-fetch availability")
	case errors.Is(err, appointment.ErrSlotBeingBooked):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleProviderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, provider.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
