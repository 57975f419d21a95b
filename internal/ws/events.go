// Package ws implements the real-time notification layer: one logical channel
// per user, fanned out to every live session of that user. Delivery is push
// only and best effort; a disconnected or slow recipient simply misses the
// event.
package ws

import "time"

// Event types pushed to clients.
const (
	EventConnected        = "connected"
	EventNewMessage       = "new_message"
	EventMessageDelivered = "message_delivered"
	EventMessageRead      = "message_read"
	EventUserTyping       = "user_typing"
	EventUnreadCount      = "unread_count_update"
)

// Inbound client actions.
const (
	ActionTypingStart        = "typing_start"
	ActionTypingStop         = "typing_stop"
	ActionRequestUnreadCount = "request_unread_count"
)

// Event is a real-time notification pushed to a user channel.
type Event struct {
	Type      string      `json:"event"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ClientMessage is an inbound frame from a connected session.
type ClientMessage struct {
	Action      string `json:"action"`
	RecipientID string `json:"recipientId,omitempty"`
}

// Notifier delivers an event to every live session of the target user.
// Implementations never block and never report delivery failure to the
// triggering operation.
type Notifier interface {
	Notify(userID string, event Event)
}

// NopNotifier discards every event. Used where real-time delivery is not
// wired, such as unit tests.
type NopNotifier struct{}

// Notify implements Notifier by doing nothing.
func (NopNotifier) Notify(string, Event) {}
