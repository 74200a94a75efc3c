package httpapi

import (
	"net/http"
	"strings"

	"lexhub.org/internal/audit"
)

type createDocumentRequest struct {
	Title             string `json:"title"`
	DocumentType      string `json:"document_type"`
	ContentRef        string `json:"content_ref"`
	BasePrice         int64  `json:"base_price"`
	AdditionalCharges int64  `json:"additional_charges"`
}

type updateDocumentRequest struct {
	Title             string `json:"title"`
	ContentRef        string `json:"content_ref"`
	BasePrice         *int64 `json:"base_price"`
	AdditionalCharges *int64 `json:"additional_charges"`
}

type submitDocumentRequest struct {
	LawyerID string `json:"lawyer_id"`
}

type reviewDocumentRequest struct {
	Verdict string `json:"verdict"` // approve | reject | needs_revision
	Note    string `json:"note"`
}

type requestSignaturesRequest struct {
	SignerIDs []string `json:"signer_ids"`
}

type signDocumentRequest struct {
	OTP string `json:"otp"`
}

func (a *API) handleDocumentsCollection(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req createDocumentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		doc, err := a.documents.Create(r.Context(), userID, req.Title, req.DocumentType, req.ContentRef, req.BasePrice, req.AdditionalCharges)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "document.create", map[string]any{
			"document_id": doc.ID,
			"type":        doc.DocType,
		})
		w.Header().Set("Location", "/v1/documents/"+doc.ID)
		writeJSON(w, http.StatusCreated, doc)

	case http.MethodGet:
		items, err := a.documents.ListForActor(r.Context(), userID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleDocumentResource(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	id, action, hasAction := strings.Cut(path, "/")
	if id == "" || strings.Contains(action, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if !hasAction {
		switch r.Method {
		case http.MethodGet:
			doc, err := a.documents.Get(r.Context(), userID, id)
			if err != nil {
				handleDomainError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, doc)
		case http.MethodPatch:
			var req updateDocumentRequest
			if err := decodeJSON(w, r, &req); err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			doc, err := a.documents.Update(r.Context(), userID, id, req.Title, req.ContentRef, req.BasePrice, req.AdditionalCharges)
			if err != nil {
				handleDomainError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, doc)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
		}
		return
	}

	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	switch action {
	case "submit":
		var req submitDocumentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		doc, err := a.documents.SubmitForReview(r.Context(), userID, id, req.LawyerID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)

	case "start-review":
		doc, err := a.documents.StartReview(r.Context(), userID, id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)

	case "review":
		var req reviewDocumentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		doc, err := a.documents.Review(r.Context(), userID, id, req.Verdict, req.Note)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "document.review", map[string]any{
			"document_id": id,
			"verdict":     req.Verdict,
		})
		writeJSON(w, http.StatusOK, doc)

	case "request-signatures":
		var req requestSignaturesRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		doc, err := a.documents.RequestSignatures(r.Context(), userID, id, req.SignerIDs)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)

	case "sign":
		var req signDocumentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		doc, err := a.documents.Sign(r.Context(), userID, id, req.OTP)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)

	case "cancel":
		var req cancelRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		doc, err := a.documents.Cancel(r.Context(), userID, id, req.Reason)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)

	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}
