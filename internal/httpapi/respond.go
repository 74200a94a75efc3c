package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"lexhub.org/internal/appointment"
	"lexhub.org/internal/assistant"
	"lexhub.org/internal/chat"
	"lexhub.org/internal/directory"
	"lexhub.org/internal/document"
	"lexhub.org/internal/esign"
	"lexhub.org/internal/estamp"
	"lexhub.org/internal/payment"
	"lexhub.org/internal/workflow"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func respondError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleDomainError maps service sentinel errors onto HTTP statuses. Invalid
// lifecycle transitions surface as 409 so clients can distinguish them from
// validation failures.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, workflow.ErrInvalidTransition):
		writeError(w, r, http.StatusConflict, err.Error())

	case errors.Is(err, directory.ErrNotFound),
		errors.Is(err, appointment.ErrNotFound),
		errors.Is(err, document.ErrNotFound),
		errors.Is(err, esign.ErrNotFound),
		errors.Is(err, estamp.ErrNotFound),
		errors.Is(err, payment.ErrNotFound),
		errors.Is(err, chat.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())

	case errors.Is(err, directory.ErrBadCredentials):
		writeError(w, r, http.StatusUnauthorized, err.Error())

	case errors.Is(err, directory.ErrForbidden),
		errors.Is(err, appointment.ErrForbidden),
		errors.Is(err, document.ErrForbidden),
		errors.Is(err, esign.ErrForbidden),
		errors.Is(err, estamp.ErrForbidden),
		errors.Is(err, payment.ErrForbidden),
		errors.Is(err, chat.ErrNotMember):
		writeError(w, r, http.StatusForbidden, err.Error())

	case errors.Is(err, directory.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, err.Error())

	case errors.Is(err, appointment.ErrSlotUnavailable),
		errors.Is(err, appointment.ErrCancelWindow),
		errors.Is(err, document.ErrLocked):
		writeError(w, r, http.StatusConflict, err.Error())

	case errors.Is(err, appointment.ErrLawyerUnavailable):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())

	case errors.Is(err, document.ErrBadOTP),
		errors.Is(err, esign.ErrBadOTP),
		errors.Is(err, esign.ErrUnknownSigner):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())

	case errors.Is(err, payment.ErrBadSignature),
		errors.Is(err, estamp.ErrBadSignature):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())

	case errors.Is(err, payment.ErrRefundTooLarge),
		errors.Is(err, payment.ErrRetriesExceeded):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())

	case errors.Is(err, payment.ErrGateway):
		writeError(w, r, http.StatusBadGateway, err.Error())

	case errors.Is(err, assistant.ErrQuota):
		writeError(w, r, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, assistant.ErrNotConfigured):
		writeError(w, r, http.StatusServiceUnavailable, err.Error())

	case errors.Is(err, directory.ErrInvalidInput),
		errors.Is(err, appointment.ErrInvalidInput),
		errors.Is(err, document.ErrInvalidInput),
		errors.Is(err, esign.ErrInvalidInput),
		errors.Is(err, estamp.ErrInvalidInput),
		errors.Is(err, payment.ErrInvalidInput),
		errors.Is(err, chat.ErrEmptyBody),
		errors.Is(err, assistant.ErrEmptyQuestion):
		writeError(w, r, http.StatusBadRequest, err.Error())

	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
