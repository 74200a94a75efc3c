package httpapi

import (
	"net/http"
	"strings"
	"time"

	"lexhub.org/internal/audit"
	"lexhub.org/internal/auth"
)

type createAppointmentRequest struct {
	LawyerID         string    `json:"lawyer_id"`
	ConsultationType string    `json:"consultation_type"`
	ScheduledAt      time.Time `json:"scheduled_at"`
	Duration         int       `json:"duration"`
}

type completeAppointmentRequest struct {
	Rating int `json:"rating"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (a *API) handleAppointmentsCollection(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req createAppointmentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		appt, err := a.appointments.Create(r.Context(), userID, req.LawyerID, req.ConsultationType, req.ScheduledAt, req.Duration)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "appointment.create", map[string]any{
			"appointment_id": appt.ID,
			"lawyer_id":      appt.LawyerID,
		})
		w.Header().Set("Location", "/v1/appointments/"+appt.ID)
		writeJSON(w, http.StatusCreated, appt)

	case http.MethodGet:
		if auth.HasRole(r.Context(), auth.RoleLawyer) {
			items, err := a.appointments.ListForLawyer(r.Context(), userID)
			if err != nil {
				handleDomainError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": items})
			return
		}
		items, err := a.appointments.ListForUser(r.Context(), userID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAppointmentResource(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/appointments/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	id, action, hasAction := strings.Cut(path, "/")
	if id == "" || strings.Contains(action, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if !hasAction {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		appt, err := a.appointments.Get(r.Context(), userID, id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
		return
	}

	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	switch action {
	case "confirm":
		appt, err := a.appointments.Confirm(r.Context(), userID, id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)

	case "complete":
		var req completeAppointmentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		appt, err := a.appointments.Complete(r.Context(), userID, id, req.Rating)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)

	case "cancel":
		var req cancelRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		appt, err := a.appointments.Cancel(r.Context(), userID, id, req.Reason)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "appointment.cancel", map[string]any{
			"appointment_id": id,
			"reason":         req.Reason,
		})
		writeJSON(w, http.StatusOK, appt)

	case "no-show":
		appt, err := a.appointments.MarkNoShow(r.Context(), userID, id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)

	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}
