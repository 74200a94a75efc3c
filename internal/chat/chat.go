package chat

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"lexhub.org/internal/ids"
)

// Message is one chat message inside a room.
type Message struct {
	ID       string    `json:"id"`
	RoomID   string    `json:"room_id"`
	SenderID string    `json:"sender_id"`
	Body     string    `json:"body"`
	SentAt   time.Time `json:"sent_at"`
}

// Room is a two-party consultation channel.
type Room struct {
	ID        string    `json:"id"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrNotFound  = errors.New("chat: room not found")
	ErrNotMember = errors.New("chat: not a room member")
	ErrEmptyBody = errors.New("chat: empty message body")
)

// historyLimit caps how many messages a room keeps in memory.
const historyLimit = 200

type room struct {
	meta    Room
	members map[string]bool
	history []Message
	subs    map[int]chan Message
	next    int
}

// Hub fan-outs room messages to all active subscribers (WebSocket clients)
// and keeps a bounded in-memory history for late joiners.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*room
	now   func() time.Time
}

// NewHub initialises an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]*room),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source. Only intended for test use.
func (h *Hub) SetClock(now func() time.Time) { h.now = now }

// OpenRoom creates a room for the given members, or returns the existing
// room that has exactly the same member set.
func (h *Hub) OpenRoom(ctx context.Context, members ...string) (Room, error) {
	set := make(map[string]bool, len(members))
	for _, m := range members {
		if m = strings.TrimSpace(m); m != "" {
			set[m] = true
		}
	}
	if len(set) < 2 {
		return Room{}, errors.New("chat: a room needs at least two members")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.rooms {
		if sameMembers(r.members, set) {
			return r.meta, nil
		}
	}
	names := make([]string, 0, len(set))
	for m := range set {
		names = append(names, m)
	}
	sort.Strings(names)
	r := &room{
		meta:    Room{ID: ids.New(), Members: names, CreatedAt: h.now()},
		members: set,
		subs:    make(map[int]chan Message),
	}
	h.rooms[r.meta.ID] = r
	return r.meta, nil
}

// Send appends a message to the room and fan-outs it to subscribers.
func (h *Hub) Send(ctx context.Context, roomID, senderID, body string) (Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Message{}, ErrEmptyBody
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[roomID]
	if !ok {
		return Message{}, ErrNotFound
	}
	if !r.members[senderID] {
		return Message{}, ErrNotMember
	}
	msg := Message{
		ID:       ids.New(),
		RoomID:   roomID,
		SenderID: senderID,
		Body:     body,
		SentAt:   h.now(),
	}
	r.history = append(r.history, msg)
	if len(r.history) > historyLimit {
		r.history = r.history[len(r.history)-historyLimit:]
	}
	for _, ch := range r.subs {
		select {
		case ch <- msg:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
	return msg, nil
}

// Subscribe registers a subscriber and returns a channel which will receive
// messages. The channel is closed when the provided context ends.
func (h *Hub) Subscribe(ctx context.Context, roomID, userID string) (<-chan Message, error) {
	h.mu.Lock()
	r, ok := h.rooms[roomID]
	if !ok {
		h.mu.Unlock()
		return nil, ErrNotFound
	}
	if !r.members[userID] {
		h.mu.Unlock()
		return nil, ErrNotMember
	}
	ch := make(chan Message, 16)
	id := r.next
	r.next++
	r.subs[id] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(r.subs, id)
		close(ch)
		h.mu.Unlock()
	}()

	return ch, nil
}

// History returns the room's retained messages, oldest first.
func (h *Hub) History(ctx context.Context, roomID, userID string) ([]Message, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	if !r.members[userID] {
		return nil, ErrNotMember
	}
	return append([]Message(nil), r.history...), nil
}

// RoomsFor lists the rooms the user is a member of, newest first.
func (h *Hub) RoomsFor(ctx context.Context, userID string) []Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []Room
	for _, r := range h.rooms {
		if r.members[userID] {
			out = append(out, r.meta)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func sameMembers(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for m := range a {
		if !b[m] {
			return false
		}
	}
	return true
}
