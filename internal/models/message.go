package models

import (
	"time"
)

// MessagePriority represents the urgency of an internal message.
type MessagePriority string

const (
	PriorityLow    MessagePriority = "low"
	PriorityNormal MessagePriority = "normal"
	PriorityHigh   MessagePriority = "high"
	PriorityUrgent MessagePriority = "urgent"
)

// MessageType classifies internal messages for filtering and display.
type MessageType string

const (
	MessageGeneral     MessageType = "general"
	MessageQueueUpdate MessageType = "queue_update"
	MessageAppointment MessageType = "appointment"
	MessagePatientInfo MessageType = "patient_info"
	MessageSystem      MessageType = "system"
)

// InternalMessage is a persisted message between clinical staff members.
// Each side soft-deletes independently: a message hidden from the sender's
// view remains visible to the recipient and vice versa. Messages are never
// hard-deleted.
type InternalMessage struct {
	BaseModel
	SenderID    string          `gorm:"size:36;index;not null" json:"senderId"`
	RecipientID string          `gorm:"size:36;index;not null" json:"recipientId"`
	Subject     string          `gorm:"size:200" json:"subject"`
	Content     string          `gorm:"type:text;not null" json:"content"`
	Type        MessageType     `gorm:"size:20;default:'general'" json:"type"`
	Priority    MessagePriority `gorm:"size:20;default:'normal'" json:"priority"`

	IsRead               bool       `gorm:"default:false" json:"isRead"`
	ReadAt               *time.Time `json:"readAt,omitempty"`
	IsDeletedBySender    bool       `gorm:"default:false" json:"-"`
	IsDeletedByRecipient bool       `gorm:"default:false" json:"-"`

	RelatedAppointmentID string `gorm:"size:36;index" json:"relatedAppointmentId,omitempty"`
	RelatedPatientID     string `gorm:"size:36;index" json:"relatedPatientId,omitempty"`

	// Relations
	Sender    User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Recipient User `gorm:"foreignKey:RecipientID" json:"recipient,omitempty"`
}

// Preview returns the message content truncated for notification payloads.
// Truncation counts runes so a multi-byte character is never split.
func (m *InternalMessage) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	return string(runes[:maxLen]) + "..."
}
