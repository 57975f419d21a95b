package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"clinic-management-server/internal/middleware"
	"clinic-management-server/internal/models"
	"clinic-management-server/internal/scheduling"
	"clinic-management-server/internal/utils"
)

// AppointmentHandler handles appointment booking, listing and lifecycle
// requests. All state changes go through the scheduling service.
type AppointmentHandler struct {
	DB        *gorm.DB
	Scheduler *scheduling.Service
	Slots     *scheduling.Generator
}

// NewAppointmentHandler creates a new AppointmentHandler.
func NewAppointmentHandler(db *gorm.DB, scheduler *scheduling.Service) *AppointmentHandler {
	return &AppointmentHandler{
		DB:        db,
		Scheduler: scheduler,
		Slots:     scheduling.NewGenerator(db, scheduler.BusinessLocation),
	}
}

// respondSchedulingError maps scheduling service errors onto HTTP statuses.
func respondSchedulingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, scheduling.ErrSlotTaken):
		utils.Conflict(c, err.Error())
	case errors.Is(err, scheduling.ErrTooLateToCancel):
		utils.Conflict(c, err.Error())
	case scheduling.IsInvalidTransition(err):
		utils.Conflict(c, err.Error())
	case errors.Is(err, scheduling.ErrRoleNotAllowed):
		utils.Forbidden(c, err.Error())
	case errors.Is(err, scheduling.ErrNotOwner):
		utils.Forbidden(c, err.Error())
	case errors.Is(err, scheduling.ErrOutsideWorkingHours):
		utils.BadRequest(c, err.Error())
	case errors.Is(err, gorm.ErrRecordNotFound):
		utils.NotFound(c, "Appointment not found")
	default:
		utils.BadRequest(c, err.Error())
	}
}

func actorFromContext(c *gin.Context) (scheduling.Actor, bool) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return scheduling.Actor{}, false
	}
	role, ok := middleware.GetUserRoleFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User role not found")
		return scheduling.Actor{}, false
	}
	return scheduling.Actor{UserID: userID, Role: role}, true
}

// CreateAppointmentRequest represents the request body for booking.
type CreateAppointmentRequest struct {
	PatientID       string `json:"patientId"` // ignored for patients, who always book for themselves
	DoctorID        string `json:"doctorId" binding:"required"`
	StartTime       string `json:"startTime" binding:"required"` // RFC 3339
	DurationMinutes int    `json:"durationMinutes"`
	Type            string `json:"type"`
	ChiefComplaint  string `json:"chiefComplaint"`
}

// CreateAppointment books a new appointment. Patients book for themselves;
// staff and admins may book on behalf of a patient.
func (h *AppointmentHandler) CreateAppointment(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var req CreateAppointmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		utils.BadRequest(c, "startTime must be RFC 3339: "+err.Error())
		return
	}

	patientID := req.PatientID
	if actor.Role == models.RolePatient || patientID == "" {
		patientID = actor.UserID
	}

	var doctor models.User
	if err := h.DB.First(&doctor, "id = ? AND role = ?", req.DoctorID, models.RoleDoctor).Error; err != nil {
		utils.NotFound(c, "Doctor not found")
		return
	}

	apptType := models.AppointmentType(req.Type)
	if req.Type == "" {
		apptType = models.TypeConsultation
	}

	appt, err := h.Scheduler.Book(scheduling.BookRequest{
		PatientID:       patientID,
		DoctorID:        req.DoctorID,
		StartTime:       start,
		DurationMinutes: req.DurationMinutes,
		Type:            apptType,
		ChiefComplaint:  req.ChiefComplaint,
	})
	if err != nil {
		respondSchedulingError(c, err)
		return
	}

	utils.Created(c, "Appointment booked successfully", appt)
}

// GetAppointments lists appointments visible to the current user: patients
// and doctors see their own, staff and admins see everything. Optional
// filters: doctorId, patientId, status, date (YYYY-MM-DD).
func (h *AppointmentHandler) GetAppointments(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	query := h.DB.Preload("Patient").Preload("Doctor").Order("start_time")

	switch actor.Role {
	case models.RolePatient:
		query = query.Where("patient_id = ?", actor.UserID)
	case models.RoleDoctor:
		query = query.Where("doctor_id = ?", actor.UserID)
	}

	if doctorID := c.Query("doctorId"); doctorID != "" {
		query = query.Where("doctor_id = ?", doctorID)
	}
	if patientID := c.Query("patientId"); patientID != "" && actor.Role != models.RolePatient {
		query = query.Where("patient_id = ?", patientID)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if date := c.Query("date"); date != "" {
		day, err := time.Parse("2006-01-02", date)
		if err != nil {
			utils.BadRequest(c, "date must be YYYY-MM-DD")
			return
		}
		query = query.Where("start_time >= ? AND start_time < ?", day, day.Add(24*time.Hour))
	}

	var appointments []models.Appointment
	if err := query.Find(&appointments).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch appointments: "+err.Error())
		return
	}

	utils.Success(c, "Appointments fetched successfully", appointments)
}

// GetAppointmentByID fetches a single appointment, enforcing ownership for
// patients and doctors.
func (h *AppointmentHandler) GetAppointmentByID(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var appt models.Appointment
	if err := h.DB.Preload("Patient").Preload("Doctor").First(&appt, "id = ?", c.Param("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.NotFound(c, "Appointment not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return
	}

	switch actor.Role {
	case models.RolePatient:
		if appt.PatientID != actor.UserID {
			utils.Forbidden(c, "You can only view your own appointments")
			return
		}
	case models.RoleDoctor:
		if appt.DoctorID != actor.UserID {
			utils.Forbidden(c, "You can only view your own appointments")
			return
		}
	}

	utils.Success(c, "Appointment fetched successfully", appt)
}

// GetAvailableSlots returns the free slot start times for a doctor on a
// given day. Query params: doctorId, date (YYYY-MM-DD), duration (minutes,
// default 30), tz (optional IANA zone for display).
func (h *AppointmentHandler) GetAvailableSlots(c *gin.Context) {
	doctorID := c.Query("doctorId")
	if doctorID == "" {
		utils.BadRequest(c, "doctorId query parameter is required")
		return
	}

	date := c.Query("date")
	if date == "" {
		utils.BadRequest(c, "date query parameter is required")
		return
	}
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		utils.BadRequest(c, "date must be YYYY-MM-DD")
		return
	}

	duration := 30
	if d := c.Query("duration"); d != "" {
		parsed, err := time.ParseDuration(d + "m")
		if err != nil || parsed <= 0 {
			utils.BadRequest(c, "duration must be a positive number of minutes")
			return
		}
		duration = int(parsed.Minutes())
	}

	slots, err := h.Slots.AvailableSlots(doctorID, day, duration)
	if err != nil {
		utils.InternalServerError(c, "Failed to compute available slots: "+err.Error())
		return
	}

	// Slots are stored and computed in UTC; an optional tz parameter renders
	// them in the caller's display timezone.
	tz := c.Query("tz")
	formatted := make([]string, len(slots))
	for i, slot := range slots {
		formatted[i] = utils.ToDisplay(slot, tz, time.UTC).Format(time.RFC3339)
	}

	utils.Success(c, "Available slots fetched successfully", gin.H{
		"doctorId": doctorID,
		"date":     date,
		"duration": duration,
		"slots":    formatted,
	})
}

// ConfirmAppointment moves a scheduled appointment to confirmed and checks
// the patient into the day's queue.
func (h *AppointmentHandler) ConfirmAppointment(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	appt, err := h.Scheduler.Confirm(actor, c.Param("id"))
	if err != nil {
		respondSchedulingError(c, err)
		return
	}
	utils.Success(c, "Appointment confirmed", appt)
}

// CancelAppointmentRequest carries the optional cancellation reason.
type CancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

// CancelAppointment cancels an appointment, subject to the two-hour window.
func (h *AppointmentHandler) CancelAppointment(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var req CancelAppointmentRequest
	_ = c.ShouldBindJSON(&req) // body is optional

	appt, err := h.Scheduler.Cancel(actor, c.Param("id"), req.Reason)
	if err != nil {
		respondSchedulingError(c, err)
		return
	}
	utils.Success(c, "Appointment cancelled", appt)
}

// StartAppointment moves a confirmed appointment to in-progress and
// activates its queue entry. Doctors only.
func (h *AppointmentHandler) StartAppointment(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	appt, err := h.Scheduler.Start(actor, c.Param("id"))
	if err != nil {
		respondSchedulingError(c, err)
		return
	}
	utils.Success(c, "Appointment started", appt)
}

// CompleteAppointment moves an in-progress appointment to completed.
func (h *AppointmentHandler) CompleteAppointment(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	appt, err := h.Scheduler.Complete(actor, c.Param("id"))
	if err != nil {
		respondSchedulingError(c, err)
		return
	}
	utils.Success(c, "Appointment completed", appt)
}

// MarkNoShow records that the patient did not arrive for the appointment.
func (h *AppointmentHandler) MarkNoShow(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	appt, err := h.Scheduler.MarkNoShow(actor, c.Param("id"))
	if err != nil {
		respondSchedulingError(c, err)
		return
	}
	utils.Success(c, "Appointment marked as no-show", appt)
}

// RescheduleAppointmentRequest carries the new start time.
type RescheduleAppointmentRequest struct {
	StartTime string `json:"startTime" binding:"required"` // RFC 3339
}

// RescheduleAppointment moves an appointment to a new slot. The new slot is
// conflict-checked and the appointment returns to scheduled.
func (h *AppointmentHandler) RescheduleAppointment(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var req RescheduleAppointmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	newStart, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		utils.BadRequest(c, "startTime must be RFC 3339: "+err.Error())
		return
	}

	appt, err := h.Scheduler.Reschedule(actor, c.Param("id"), newStart)
	if err != nil {
		respondSchedulingError(c, err)
		return
	}
	utils.Success(c, "Appointment rescheduled", appt)
}
