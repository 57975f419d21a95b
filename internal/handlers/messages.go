package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"clinic-management-server/internal/messaging"
	"clinic-management-server/internal/middleware"
	"clinic-management-server/internal/models"
	"clinic-management-server/internal/utils"
)

// MessageHandler handles internal messaging between clinical users.
type MessageHandler struct {
	Messages *messaging.Service
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(messages *messaging.Service) *MessageHandler {
	return &MessageHandler{Messages: messages}
}

func respondMessagingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, messaging.ErrNotParticipant):
		utils.Forbidden(c, err.Error())
	case errors.Is(err, messaging.ErrSelfMessage):
		utils.BadRequest(c, err.Error())
	case errors.Is(err, gorm.ErrRecordNotFound):
		utils.NotFound(c, "Message not found")
	default:
		utils.InternalServerError(c, err.Error())
	}
}

// SendMessageRequest represents the request body for sending a message.
type SendMessageRequest struct {
	RecipientID          string `json:"recipientId" binding:"required"`
	Subject              string `json:"subject"`
	Content              string `json:"content" binding:"required"`
	Type                 string `json:"type" binding:"omitempty,oneof=general queue_update appointment patient_info system"`
	Priority             string `json:"priority" binding:"omitempty,oneof=low normal high urgent"`
	RelatedAppointmentID string `json:"relatedAppointmentId"`
	RelatedPatientID     string `json:"relatedPatientId"`
}

// SendMessage sends an internal message to another clinical user and pushes
// the realtime new-message event to their channel.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	senderID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	var req SendMessageRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	msg, err := h.Messages.Send(messaging.SendRequest{
		SenderID:             senderID,
		RecipientID:          req.RecipientID,
		Subject:              req.Subject,
		Content:              req.Content,
		Type:                 models.MessageType(req.Type),
		Priority:             models.MessagePriority(req.Priority),
		RelatedAppointmentID: req.RelatedAppointmentID,
		RelatedPatientID:     req.RelatedPatientID,
	})
	if err != nil {
		respondMessagingError(c, err)
		return
	}

	utils.Created(c, "Message sent", msg)
}

// GetInbox returns the current user's received messages, newest first.
func (h *MessageHandler) GetInbox(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	messages, err := h.Messages.Inbox(userID)
	if err != nil {
		utils.InternalServerError(c, "Failed to fetch inbox: "+err.Error())
		return
	}
	utils.Success(c, "Inbox fetched successfully", messages)
}

// GetSent returns the current user's sent messages, newest first.
func (h *MessageHandler) GetSent(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	messages, err := h.Messages.Sent(userID)
	if err != nil {
		utils.InternalServerError(c, "Failed to fetch sent messages: "+err.Error())
		return
	}
	utils.Success(c, "Sent messages fetched successfully", messages)
}

// GetLatestMessages returns the most recent received messages for the
// notification dropdown.
func (h *MessageHandler) GetLatestMessages(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "5"))
	messages, err := h.Messages.Latest(userID, limit)
	if err != nil {
		utils.InternalServerError(c, "Failed to fetch latest messages: "+err.Error())
		return
	}
	utils.Success(c, "Latest messages fetched successfully", messages)
}

// GetConversations returns one preview per conversation partner with the
// latest message and unread count.
func (h *MessageHandler) GetConversations(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	previews, err := h.Messages.Conversations(userID)
	if err != nil {
		utils.InternalServerError(c, "Failed to fetch conversations: "+err.Error())
		return
	}
	utils.Success(c, "Conversations fetched successfully", previews)
}

// GetConversation returns the message history with one partner, oldest
// first, filtered by the viewer's own deletions.
func (h *MessageHandler) GetConversation(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	messages, err := h.Messages.Conversation(userID, c.Param("userId"))
	if err != nil {
		utils.InternalServerError(c, "Failed to fetch conversation: "+err.Error())
		return
	}
	utils.Success(c, "Conversation fetched successfully", messages)
}

// MarkMessageRead marks a single received message as read and notifies the
// sender. Marking an already-read message again is a no-op.
func (h *MessageHandler) MarkMessageRead(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	msg, err := h.Messages.MarkRead(c.Param("id"), userID)
	if err != nil {
		respondMessagingError(c, err)
		return
	}
	utils.Success(c, "Message marked as read", msg)
}

// MarkConversationRead marks every unread message from one partner as read.
func (h *MessageHandler) MarkConversationRead(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	count, err := h.Messages.MarkConversationRead(c.Param("userId"), userID)
	if err != nil {
		utils.InternalServerError(c, "Failed to mark conversation read: "+err.Error())
		return
	}
	utils.Success(c, "Conversation marked as read", gin.H{"updated": count})
}

// DeleteMessage hides a message from the current user's view. The other
// participant's copy is unaffected.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	if err := h.Messages.SoftDelete(c.Param("id"), userID); err != nil {
		respondMessagingError(c, err)
		return
	}
	utils.Success(c, "Message deleted", nil)
}

// GetUnreadCount returns the number of unread, undeleted received messages.
func (h *MessageHandler) GetUnreadCount(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	count, err := h.Messages.UnreadCount(userID)
	if err != nil {
		utils.InternalServerError(c, "Failed to fetch unread count: "+err.Error())
		return
	}
	utils.Success(c, "Unread count fetched successfully", gin.H{"count": count})
}
