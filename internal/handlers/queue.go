package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"clinic-management-server/internal/clock"
	"clinic-management-server/internal/middleware"
	"clinic-management-server/internal/models"
	"clinic-management-server/internal/queue"
	"clinic-management-server/internal/utils"
)

// QueueHandler handles waiting-room queue requests. Routes using it are
// restricted to clinical users and admins.
type QueueHandler struct {
	Queue *queue.Service
	Clock clock.Clock
}

// NewQueueHandler creates a new QueueHandler.
func NewQueueHandler(q *queue.Service, clk clock.Clock) *QueueHandler {
	return &QueueHandler{Queue: q, Clock: clk}
}

// GetQueue returns the open queue entries for a day, ordered by queue
// number. Query params: doctorId (optional; doctors default to their own
// queue), date (YYYY-MM-DD, default today).
func (h *QueueHandler) GetQueue(c *gin.Context) {
	doctorID := c.Query("doctorId")
	if doctorID == "" {
		if role, _ := middleware.GetUserRoleFromContext(c); role == models.RoleDoctor {
			doctorID, _ = middleware.GetUserIDFromContext(c)
		}
	}

	day := h.Clock.Now()
	if date := c.Query("date"); date != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			utils.BadRequest(c, "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	entries, err := h.Queue.CurrentQueue(doctorID, day)
	if err != nil {
		utils.InternalServerError(c, "Failed to fetch queue: "+err.Error())
		return
	}

	utils.Success(c, "Queue fetched successfully", entries)
}

// CheckIn creates the waiting queue entry for an appointment. Normally this
// happens automatically on confirmation; the endpoint covers walk-up
// check-in at the front desk.
func (h *QueueHandler) CheckIn(c *gin.Context) {
	entry, err := h.Queue.CheckIn(c.Param("appointmentId"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Appointment not found")
			return
		}
		utils.InternalServerError(c, "Failed to check in: "+err.Error())
		return
	}

	utils.Success(c, "Patient checked in", entry)
}

// UpdateQueueStatusRequest represents the status change request body.
type UpdateQueueStatusRequest struct {
	Status      string `json:"status" binding:"required,oneof=waiting in_progress completed delayed no_show"`
	DelayReason string `json:"delayReason"`
	Notes       string `json:"notes"`
}

// UpdateQueueStatus moves a queue entry to a new status. Marking an entry
// delayed requires a reason and notifies all staff.
func (h *QueueHandler) UpdateQueueStatus(c *gin.Context) {
	actorID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	var req UpdateQueueStatusRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	entry, err := h.Queue.UpdateStatus(c.Param("id"), models.QueueStatus(req.Status), req.DelayReason, req.Notes, actorID)
	if err != nil {
		switch {
		case errors.Is(err, queue.ErrDelayReasonRequired), errors.Is(err, queue.ErrUnknownStatus):
			utils.BadRequest(c, err.Error())
		case errors.Is(err, gorm.ErrRecordNotFound):
			utils.NotFound(c, "Queue entry not found")
		default:
			utils.InternalServerError(c, "Failed to update queue entry: "+err.Error())
		}
		return
	}

	utils.Success(c, "Queue entry updated", entry)
}

// GetWaitEstimate recomputes and returns the estimated wait for an entry.
func (h *QueueHandler) GetWaitEstimate(c *gin.Context) {
	minutes, ahead, err := h.Queue.EstimateWait(c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Queue entry not found")
			return
		}
		utils.InternalServerError(c, "Failed to estimate wait: "+err.Error())
		return
	}

	utils.Success(c, "Wait estimate computed", gin.H{
		"estimatedWaitMinutes": minutes,
		"patientsAhead":        ahead,
	})
}
