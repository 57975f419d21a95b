// Package messaging implements the persisted internal messaging store for
// clinical staff, with per-side soft deletion and real-time delivery events.
package messaging

import (
	"errors"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"clinic-management-server/internal/clock"
	"clinic-management-server/internal/models"
	"clinic-management-server/internal/ws"
)

// previewLength is how much of a message body rides along in the
// new_message notification payload.
const previewLength = 100

// ErrNotParticipant signals an operation on a message by a user who is
// neither its sender nor its recipient.
var ErrNotParticipant = errors.New("you are not a participant of this message")

// ErrSelfMessage rejects sending a message to oneself.
var ErrSelfMessage = errors.New("cannot send a message to yourself")

// Service owns the internal message store. Writes go to the database first;
// notification events are emitted afterwards, fire-and-forget.
type Service struct {
	DB       *gorm.DB
	Clock    clock.Clock
	Log      zerolog.Logger
	Notifier ws.Notifier
}

// NewService creates a messaging Service.
func NewService(db *gorm.DB, clk clock.Clock, log zerolog.Logger, notifier ws.Notifier) *Service {
	if notifier == nil {
		notifier = ws.NopNotifier{}
	}
	return &Service{DB: db, Clock: clk, Log: log, Notifier: notifier}
}

// SendRequest carries a validated message send intent.
type SendRequest struct {
	SenderID             string
	RecipientID          string
	Subject              string
	Content              string
	Type                 models.MessageType
	Priority             models.MessagePriority
	RelatedAppointmentID string
	RelatedPatientID     string
}

// Send persists a new message and pushes new_message to the recipient's
// channel and message_delivered back to the sender's. Event delivery is best
// effort and never fails the send.
func (s *Service) Send(req SendRequest) (*models.InternalMessage, error) {
	if req.SenderID == req.RecipientID {
		return nil, ErrSelfMessage
	}

	var sender models.User
	if err := s.DB.First(&sender, "id = ?", req.SenderID).Error; err != nil {
		return nil, err
	}
	var recipient models.User
	if err := s.DB.First(&recipient, "id = ?", req.RecipientID).Error; err != nil {
		return nil, err
	}

	if req.Subject == "" {
		req.Subject = "Chat Message"
	}
	if req.Type == "" {
		req.Type = models.MessageGeneral
	}
	if req.Priority == "" {
		req.Priority = models.PriorityNormal
	}

	msg := &models.InternalMessage{
		SenderID:             req.SenderID,
		RecipientID:          req.RecipientID,
		Subject:              req.Subject,
		Content:              req.Content,
		Type:                 req.Type,
		Priority:             req.Priority,
		RelatedAppointmentID: req.RelatedAppointmentID,
		RelatedPatientID:     req.RelatedPatientID,
	}
	if err := s.DB.Create(msg).Error; err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	s.Notifier.Notify(req.RecipientID, ws.Event{
		Type: ws.EventNewMessage,
		Data: map[string]interface{}{
			"message": msg,
			"notification": map[string]interface{}{
				"title":    "New message from " + sender.DisplayName(),
				"body":     msg.Preview(previewLength),
				"priority": string(msg.Priority),
			},
		},
		Timestamp: now,
	})
	s.Notifier.Notify(req.SenderID, ws.Event{
		Type: ws.EventMessageDelivered,
		Data: map[string]interface{}{
			"messageId":   msg.ID,
			"deliveredAt": now,
		},
		Timestamp: now,
	})

	return msg, nil
}

// MarkRead marks a message read from the recipient's side. Re-marking an
// already-read message is a no-op: the stored read timestamp is preserved
// and no event is emitted.
func (s *Service) MarkRead(messageID, readerID string) (*models.InternalMessage, error) {
	var msg models.InternalMessage
	if err := s.DB.First(&msg, "id = ?", messageID).Error; err != nil {
		return nil, err
	}
	if msg.RecipientID != readerID {
		return nil, ErrNotParticipant
	}
	if msg.IsRead {
		return &msg, nil
	}

	now := s.Clock.Now()
	msg.IsRead = true
	msg.ReadAt = &now
	if err := s.DB.Save(&msg).Error; err != nil {
		return nil, err
	}

	s.notifyRead(&msg, readerID)
	return &msg, nil
}

// MarkConversationRead marks every unread message from partnerID to readerID
// as read and returns how many were newly marked.
func (s *Service) MarkConversationRead(partnerID, readerID string) (int, error) {
	var unread []models.InternalMessage
	err := s.DB.
		Where("sender_id = ? AND recipient_id = ? AND is_read = ?", partnerID, readerID, false).
		Find(&unread).Error
	if err != nil {
		return 0, err
	}

	now := s.Clock.Now()
	for i := range unread {
		unread[i].IsRead = true
		unread[i].ReadAt = &now
		if err := s.DB.Save(&unread[i]).Error; err != nil {
			return 0, err
		}
		s.notifyRead(&unread[i], readerID)
	}
	return len(unread), nil
}

func (s *Service) notifyRead(msg *models.InternalMessage, readerID string) {
	var reader models.User
	readerName := ""
	if err := s.DB.First(&reader, "id = ?", readerID).Error; err == nil {
		readerName = reader.DisplayName()
	}

	s.Notifier.Notify(msg.SenderID, ws.Event{
		Type: ws.EventMessageRead,
		Data: map[string]interface{}{
			"messageId":  msg.ID,
			"readAt":     msg.ReadAt,
			"readerId":   readerID,
			"readerName": readerName,
		},
		Timestamp: s.Clock.Now(),
	})
}

// SoftDelete hides the message from the acting party's view. The other
// party's view, unread count and conversation listing are unaffected.
// Messages are never physically removed.
func (s *Service) SoftDelete(messageID, userID string) error {
	var msg models.InternalMessage
	if err := s.DB.First(&msg, "id = ?", messageID).Error; err != nil {
		return err
	}

	switch userID {
	case msg.RecipientID:
		msg.IsDeletedByRecipient = true
	case msg.SenderID:
		msg.IsDeletedBySender = true
	default:
		return ErrNotParticipant
	}
	return s.DB.Save(&msg).Error
}

// visibleTo scopes a query to messages the viewer has not soft-deleted on
// their own side.
func visibleTo(db *gorm.DB, viewerID string) *gorm.DB {
	return db.Where(
		"(sender_id = ? AND is_deleted_by_sender = ?) OR (recipient_id = ? AND is_deleted_by_recipient = ?)",
		viewerID, false, viewerID, false,
	)
}

// Inbox returns the viewer's received messages, newest first.
func (s *Service) Inbox(viewerID string) ([]models.InternalMessage, error) {
	var msgs []models.InternalMessage
	err := s.DB.Preload("Sender").
		Where("recipient_id = ? AND is_deleted_by_recipient = ?", viewerID, false).
		Order("created_at desc").
		Find(&msgs).Error
	return msgs, err
}

// Sent returns the viewer's sent messages, newest first.
func (s *Service) Sent(viewerID string) ([]models.InternalMessage, error) {
	var msgs []models.InternalMessage
	err := s.DB.Preload("Recipient").
		Where("sender_id = ? AND is_deleted_by_sender = ?", viewerID, false).
		Order("created_at desc").
		Find(&msgs).Error
	return msgs, err
}

// Latest returns the viewer's most recent received messages, capped at limit.
// Used by the notification dropdown, so it stays cheap.
func (s *Service) Latest(viewerID string, limit int) ([]models.InternalMessage, error) {
	if limit <= 0 {
		limit = 5
	}
	var msgs []models.InternalMessage
	err := s.DB.Preload("Sender").
		Where("recipient_id = ? AND is_deleted_by_recipient = ?", viewerID, false).
		Order("created_at desc").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

// Conversation returns the time-ordered exchange between the viewer and the
// other user, excluding only the messages the viewer has deleted on their
// side.
func (s *Service) Conversation(viewerID, otherID string) ([]models.InternalMessage, error) {
	var msgs []models.InternalMessage
	err := visibleTo(s.DB.Preload("Sender"), viewerID).
		Where(
			"(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)",
			viewerID, otherID, otherID, viewerID,
		).
		Order("created_at asc").
		Find(&msgs).Error
	return msgs, err
}

// ConversationPreview summarizes one conversation partner for the inbox
// sidebar.
type ConversationPreview struct {
	Partner     models.UserSanitized    `json:"partner"`
	LastMessage *models.InternalMessage `json:"lastMessage"`
	UnreadCount int64                   `json:"unreadCount"`
}

// Conversations lists every user the viewer has exchanged messages with,
// most recently active first.
func (s *Service) Conversations(viewerID string) ([]ConversationPreview, error) {
	var partnerIDs []string
	err := s.DB.Raw(`
		SELECT DISTINCT partner_id FROM (
			SELECT recipient_id AS partner_id FROM internal_messages WHERE sender_id = ?
			UNION
			SELECT sender_id AS partner_id FROM internal_messages WHERE recipient_id = ?
		) AS partners
	`, viewerID, viewerID).Scan(&partnerIDs).Error
	if err != nil {
		return nil, err
	}

	previews := make([]ConversationPreview, 0, len(partnerIDs))
	for _, partnerID := range partnerIDs {
		var partner models.User
		if err := s.DB.First(&partner, "id = ?", partnerID).Error; err != nil {
			continue
		}

		var last models.InternalMessage
		err := visibleTo(s.DB, viewerID).
			Where(
				"(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)",
				viewerID, partnerID, partnerID, viewerID,
			).
			Order("created_at desc").
			First(&last).Error
		if err != nil {
			continue
		}

		unread, err := s.unreadFrom(partnerID, viewerID)
		if err != nil {
			return nil, err
		}

		lastCopy := last
		previews = append(previews, ConversationPreview{
			Partner:     partner.Sanitize(),
			LastMessage: &lastCopy,
			UnreadCount: unread,
		})
	}
	return previews, nil
}

// UnreadCount returns the number of unread, undeleted messages waiting for
// the user.
func (s *Service) UnreadCount(userID string) (int64, error) {
	var count int64
	err := s.DB.Model(&models.InternalMessage{}).
		Where("recipient_id = ? AND is_read = ? AND is_deleted_by_recipient = ?", userID, false, false).
		Count(&count).Error
	return count, err
}

func (s *Service) unreadFrom(senderID, recipientID string) (int64, error) {
	var count int64
	err := s.DB.Model(&models.InternalMessage{}).
		Where("sender_id = ? AND recipient_id = ? AND is_read = ? AND is_deleted_by_recipient = ?",
			senderID, recipientID, false, false).
		Count(&count).Error
	return count, err
}
