package models

import (
	"time"
)

// QueueStatus represents the waiting-room state of a queue entry.
type QueueStatus string

const (
	QueueWaiting    QueueStatus = "waiting"
	QueueInProgress QueueStatus = "in_progress"
	QueueCompleted  QueueStatus = "completed"
	QueueDelayed    QueueStatus = "delayed"
	QueueNoShow     QueueStatus = "no_show"
)

// QueueEntry is the tracked waiting-room position derived from a confirmed
// appointment. QueueNumber is assigned once per (doctor, day) partition and is
// never renumbered, even if earlier entries leave the queue.
type QueueEntry struct {
	BaseModel
	AppointmentID     string      `gorm:"size:36;uniqueIndex;not null" json:"appointmentId"`
	QueueNumber       int         `gorm:"not null" json:"queueNumber"`
	Status            QueueStatus `gorm:"size:20;default:'waiting'" json:"status"`
	EstimatedWaitTime int         `gorm:"default:0" json:"estimatedWaitTime"` // minutes, recomputed on demand
	ActualStartTime   *time.Time  `json:"actualStartTime,omitempty"`
	ActualEndTime     *time.Time  `json:"actualEndTime,omitempty"`
	DelayReason       string      `gorm:"type:text" json:"delayReason,omitempty"`
	Notes             string      `gorm:"type:text" json:"notes,omitempty"`

	// Relations
	Appointment Appointment `gorm:"foreignKey:AppointmentID" json:"appointment,omitempty"`
}

// IsOpen reports whether entries in this status still occupy a place in the
// live queue.
func (s QueueStatus) IsOpen() bool {
	return s == QueueWaiting || s == QueueInProgress || s == QueueDelayed
}

// QueueStatuses lists every recognized queue entry status.
func QueueStatuses() []QueueStatus {
	return []QueueStatus{QueueWaiting, QueueInProgress, QueueCompleted, QueueDelayed, QueueNoShow}
}

// OpenQueueStatuses returns the statuses that hold a place in the live queue.
func OpenQueueStatuses() []QueueStatus {
	var open []QueueStatus
	for _, s := range QueueStatuses() {
		if s.IsOpen() {
			open = append(open, s)
		}
	}
	return open
}
