package ws

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"clinic-management-server/internal/clock"
	"clinic-management-server/internal/config"
	"clinic-management-server/internal/models"
	"clinic-management-server/internal/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Origin is enforced by the CORS layer in front.
	},
}

// UnreadCounter reports the current unread message count for a user.
// Implemented by the messaging service.
type UnreadCounter interface {
	UnreadCount(userID string) (int64, error)
}

// Handler upgrades HTTP connections to WebSocket sessions and routes inbound
// client actions.
type Handler struct {
	Hub    *Hub
	DB     *gorm.DB
	Cfg    *config.Config
	Clock  clock.Clock
	Log    zerolog.Logger
	Unread UnreadCounter
}

// NewHandler creates a websocket Handler bound to the hub.
func NewHandler(hub *Hub, db *gorm.DB, cfg *config.Config, clk clock.Clock, log zerolog.Logger, unread UnreadCounter) *Handler {
	return &Handler{Hub: hub, DB: db, Cfg: cfg, Clock: clk, Log: log, Unread: unread}
}

// HandleConnect authenticates the caller, upgrades the connection and
// subscribes the session to the caller's own user channel. Only clinical
// roles (doctor, staff) join the real-time layer.
func (h *Handler) HandleConnect(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		authHeader := c.GetHeader("Authorization")
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			tokenString = parts[1]
		}
	}
	if tokenString == "" {
		utils.Unauthorized(c, "Authentication token required")
		return
	}

	claims, err := utils.ValidateToken(tokenString, h.Cfg.JWTSecret)
	if err != nil {
		utils.Unauthorized(c, "Invalid token: "+err.Error())
		return
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", claims.UserID).Error; err != nil {
		utils.Unauthorized(c, "Unknown user")
		return
	}
	if !user.IsClinical() || !user.Active {
		utils.Forbidden(c, "The real-time channel is restricted to clinical staff.")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		ID:       uuid.New().String(),
		UserID:   user.ID,
		UserName: user.DisplayName(),
		Send:     make(chan []byte, 256),
	}
	h.Hub.Register(client)
	h.Log.Info().Str("user_id", user.ID).Str("session_id", client.ID).Msg("websocket session connected")

	go h.writePump(client, conn)
	go h.readPump(client, conn)

	h.Hub.Notify(user.ID, Event{
		Type:      EventConnected,
		Data:      gin.H{"status": "Connected to messaging system"},
		Timestamp: h.Clock.Now(),
	})
}

func (h *Handler) readPump(client *Client, conn *websocket.Conn) {
	defer func() {
		h.Hub.Unregister(client)
		conn.Close()
		h.Log.Info().Str("user_id", client.UserID).Str("session_id", client.ID).Msg("websocket session disconnected")
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue // Ignore malformed frames.
		}
		h.dispatch(client, msg)
	}
}

func (h *Handler) writePump(client *Client, conn *websocket.Conn) {
	defer conn.Close()

	for message := range client.Send {
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			break
		}
	}
}

func (h *Handler) dispatch(client *Client, msg ClientMessage) {
	switch msg.Action {
	case ActionTypingStart, ActionTypingStop:
		if msg.RecipientID == "" {
			return
		}
		h.Hub.Notify(msg.RecipientID, Event{
			Type: EventUserTyping,
			Data: gin.H{
				"userId":   client.UserID,
				"userName": client.UserName,
				"typing":   msg.Action == ActionTypingStart,
			},
			Timestamp: h.Clock.Now(),
		})
	case ActionRequestUnreadCount:
		if h.Unread == nil {
			return
		}
		count, err := h.Unread.UnreadCount(client.UserID)
		if err != nil {
			h.Log.Error().Err(err).Str("user_id", client.UserID).Msg("failed to count unread messages")
			return
		}
		h.Hub.Notify(client.UserID, Event{
			Type:      EventUnreadCount,
			Data:      gin.H{"count": count},
			Timestamp: h.Clock.Now(),
		})
	}
}
