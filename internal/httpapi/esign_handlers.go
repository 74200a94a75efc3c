package httpapi

import (
	"net/http"
	"strings"

	"lexhub.org/internal/audit"
	"lexhub.org/internal/esign"
)

type createESignRequest struct {
	DocumentID string         `json:"document_id"`
	Title      string         `json:"title"`
	Signers    []esign.Signer `json:"signers"`
}

type signESignRequest struct {
	Email        string `json:"email"`
	OTP          string `json:"otp"`
	SignatureRef string `json:"signature_ref"`
}

func (a *API) handleESignCollection(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req createESignRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		sr, err := a.esign.Create(r.Context(), userID, req.DocumentID, req.Title, req.Signers)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "esign.create", map[string]any{
			"esign_request_id": sr.ID,
			"signers":          len(sr.Signers),
		})
		w.Header().Set("Location", "/v1/esignatures/"+sr.ID)
		writeJSON(w, http.StatusCreated, sr)

	case http.MethodGet:
		items, err := a.esign.ListForRequester(r.Context(), userID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleESignResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/esignatures/")
	id, action, hasAction := strings.Cut(path, "/")
	if id == "" || strings.Contains(action, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	// Signing is keyed by the emailed code; external signers carry no token.
	if hasAction && action == "sign" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		var req signESignRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		sr, err := a.esign.Sign(r.Context(), id, req.Email, req.OTP, req.SignatureRef)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sr)
		return
	}

	userID, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if !hasAction {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		sr, err := a.esign.Get(r.Context(), userID, id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sr)
		return
	}

	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	switch action {
	case "send":
		sr, err := a.esign.Send(r.Context(), userID, id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "esign.send", map[string]any{
			"esign_request_id": id,
		})
		writeJSON(w, http.StatusOK, sr)

	case "cancel":
		sr, err := a.esign.Cancel(r.Context(), userID, id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sr)

	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}
