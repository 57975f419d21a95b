package ws

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// Client represents a single connected session. One user may hold several
// clients at once; all of them receive the same events.
type Client struct {
	ID       string
	UserID   string
	UserName string
	Send     chan []byte
}

// Hub is the live channel registry mapping user id to the set of active
// sessions. Membership is ephemeral: it is rebuilt as clients reconnect and
// nothing is persisted for absent users.
type Hub struct {
	log zerolog.Logger

	mu       sync.RWMutex
	channels map[string]map[*Client]struct{} // user id -> active sessions
}

// NewHub creates an empty Hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:      log,
		channels: make(map[string]map[*Client]struct{}),
	}
}

// Register subscribes a session to its user's channel.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessions, ok := h.channels[client.UserID]
	if !ok {
		sessions = make(map[*Client]struct{})
		h.channels[client.UserID] = sessions
	}
	sessions[client] = struct{}{}
}

// Unregister removes a session and closes its send channel. Removing the
// last session of a user drops the channel entirely.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessions, ok := h.channels[client.UserID]
	if !ok {
		return
	}
	if _, ok := sessions[client]; !ok {
		return
	}
	delete(sessions, client)
	if len(sessions) == 0 {
		delete(h.channels, client.UserID)
	}
	close(client.Send)
}

// Notify delivers the event to every live session of the user. Events for a
// user with no sessions are dropped silently; a session whose buffer is full
// is skipped rather than blocked on.
func (h *Hub) Notify(userID string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Str("event", event.Type).Msg("failed to marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.channels[userID] {
		select {
		case client.Send <- data:
		default:
			// Slow client; best-effort delivery drops the event.
		}
	}
}

// SessionCount returns the number of live sessions for a user.
func (h *Hub) SessionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[userID])
}

// ClientCount returns the total number of connected sessions.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, sessions := range h.channels {
		n += len(sessions)
	}
	return n
}
