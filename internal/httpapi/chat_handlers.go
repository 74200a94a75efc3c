package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"lexhub.org/internal/obs"
)

type openRoomRequest struct {
	MemberID string `json:"member_id"` // the other party
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect from the frontend origin; bearer auth already
	// gates the upgrade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (a *API) handleChatRooms(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if a.chat == nil {
		writeError(w, r, http.StatusServiceUnavailable, "chat is disabled")
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req openRoomRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		room, err := a.chat.OpenRoom(r.Context(), userID, req.MemberID)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, room)

	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"items": a.chat.RoomsFor(r.Context(), userID)})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleChatRoomResource(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if a.chat == nil {
		writeError(w, r, http.StatusServiceUnavailable, "chat is disabled")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/chat/rooms/")
	id, rest, _ := strings.Cut(path, "/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch rest {
	case "history":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		msgs, err := a.chat.History(r.Context(), id, userID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": msgs})

	case "ws":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.serveChatSocket(w, r, id, userID)

	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// serveChatSocket upgrades the connection and bridges it to the room hub:
// inbound frames become room messages, hub messages become outbound frames.
func (a *API) serveChatSocket(w http.ResponseWriter, r *http.Request, roomID, userID string) {
	sub, err := a.chat.Subscribe(r.Context(), roomID, userID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	go func() {
		for msg := range sub {
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	}()

	for {
		var in struct {
			Body string `json:"body"`
		}
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		if _, err := a.chat.Send(r.Context(), roomID, userID, in.Body); err != nil {
			obs.LogRequest(map[string]any{
				"level": "warn",
				"msg":   "chat send failed",
				"room":  roomID,
				"error": err.Error(),
			})
		}
	}
}
