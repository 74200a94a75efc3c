package httpapi

import (
	"net/http"
	"strings"

	"lexhub.org/internal/audit"
)

type createPaymentRequest struct {
	Kind     string `json:"kind"` // appointment | document | estamp
	RefID    string `json:"ref_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type verifyPaymentRequest struct {
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}

type refundPaymentRequest struct {
	Amount int64  `json:"amount"` // 0 means maximum refundable
	Reason string `json:"reason"`
}

func (a *API) handlePaymentsCollection(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req createPaymentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		p, err := a.payments.CreateOrder(r.Context(), userID, req.Kind, req.RefID, req.Amount, req.Currency)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "payment.order.create", map[string]any{
			"payment_id": p.ID,
			"kind":       p.Kind,
			"amount":     p.Amount,
		})
		w.Header().Set("Location", "/v1/payments/"+p.ID)
		writeJSON(w, http.StatusCreated, p)

	case http.MethodGet:
		items, err := a.payments.ListForUser(r.Context(), userID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePaymentResource(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/payments/")
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
		p, err := a.payments.Get(r.Context(), userID, id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
		return
	}

	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	switch action {
	case "verify":
		var req verifyPaymentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		p, err := a.payments.Verify(r.Context(), userID, id, req.GatewayPaymentID, req.Signature)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "payment.verify", map[string]any{
			"payment_id": id,
			"status":     string(p.Status),
		})
		writeJSON(w, http.StatusOK, p)

	case "refund":
		var req refundPaymentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		p, err := a.payments.RefundPayment(r.Context(), userID, id, req.Amount, req.Reason)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "payment.refund", map[string]any{
			"payment_id": id,
			"amount":     p.Refund.Amount,
		})
		writeJSON(w, http.StatusOK, p)

	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}
