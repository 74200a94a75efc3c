package httpapi

import (
	"net/http"
	"strings"

	"lexhub.org/internal/audit"
	"lexhub.org/internal/estamp"
)

type createEStampRequest struct {
	State               string         `json:"state"`
	StampType           string         `json:"stamp_type"`
	Parties             []estamp.Party `json:"parties"`
	ConsiderationAmount int64          `json:"consideration_amount"`
	StampValue          int64          `json:"stamp_value"`
}

type initiateStampPaymentRequest struct {
	OrderID string `json:"order_id"`
}

type verifyStampPaymentRequest struct {
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

func (a *API) handleEStampsCollection(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req createEStampRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		e, err := a.estamps.Create(r.Context(), userID, req.State, req.StampType, req.Parties, req.ConsiderationAmount, req.StampValue)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "estamp.create", map[string]any{
			"estamp_id": e.ID,
			"state":     e.State,
		})
		w.Header().Set("Location", "/v1/estamps/"+e.ID)
		writeJSON(w, http.StatusCreated, e)

	case http.MethodGet:
		items, err := a.estamps.ListForUser(r.Context(), userID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleEStampResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/estamps/")

	// Public certificate verification; no account required.
	if cert, ok := strings.CutPrefix(path, "verify/"); ok {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		e, err := a.estamps.VerifyCertificate(r.Context(), cert)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"valid":       true,
			"certificate": e.Certificate,
			"state":       e.State,
			"stamp_type":  e.StampType,
			"stamp_value": e.StampValue,
		})
		return
	}

	userID, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
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
		e, err := a.estamps.Get(r.Context(), userID, id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
		return
	}

	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	switch action {
	case "pay":
		var req initiateStampPaymentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		e, err := a.estamps.InitiatePayment(r.Context(), userID, id, req.OrderID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, e)

	case "verify-payment":
		var req verifyStampPaymentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		e, err := a.estamps.VerifyPayment(r.Context(), userID, id, req.PaymentID, req.Signature)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "estamp.stamped", map[string]any{
			"estamp_id":   id,
			"certificate": e.Certificate.Number,
		})
		writeJSON(w, http.StatusOK, e)

	case "complete":
		e, err := a.estamps.Complete(r.Context(), userID, id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, e)

	case "cancel":
		e, err := a.estamps.Cancel(r.Context(), userID, id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, e)

	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}
