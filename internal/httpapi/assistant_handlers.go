package httpapi

import (
	"net/http"
	"strings"
)

type assistantChatRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

func (a *API) handleAssistantChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.assistant == nil {
		writeError(w, r, http.StatusServiceUnavailable, "assistant is not configured")
		return
	}

	var req assistantChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = a.assistant.NewSession()
	}

	turn, err := a.assistant.Ask(r.Context(), sessionID, req.Question)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"question":   turn.Question,
		"answer":     turn.Answer,
		"asked_at":   turn.AskedAt,
	})
}

func (a *API) handleAssistantSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.assistant == nil {
		writeError(w, r, http.StatusServiceUnavailable, "assistant is not configured")
		return
	}
	sessionID := strings.TrimPrefix(r.URL.Path, "/v1/assistant/sessions/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"turns":      a.assistant.History(sessionID),
	})
}
