package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"clinic-management-server/internal/models"
	"clinic-management-server/internal/queue"
	"clinic-management-server/internal/scheduling"
	"clinic-management-server/internal/utils"
)

// ConsultationHandler handles the clinical record written during a visit.
// Routes using it are restricted to doctors.
type ConsultationHandler struct {
	DB        *gorm.DB
	Scheduler *scheduling.Service
	Queue     *queue.Service
}

// NewConsultationHandler creates a new ConsultationHandler.
func NewConsultationHandler(db *gorm.DB, scheduler *scheduling.Service, q *queue.Service) *ConsultationHandler {
	return &ConsultationHandler{DB: db, Scheduler: scheduler, Queue: q}
}

// CreateConsultationRequest represents the request body for starting a
// consultation record.
type CreateConsultationRequest struct {
	AppointmentID string `json:"appointmentId" binding:"required"`
	Diagnosis     string `json:"diagnosis"`
	Treatment     string `json:"treatment"`
	Prescription  string `json:"prescription"`
	FollowUpNotes string `json:"followUpNotes"`
}

// CreateConsultation opens the clinical record for an in-progress
// appointment. One record per appointment.
func (h *ConsultationHandler) CreateConsultation(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var req CreateConsultationRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	var appt models.Appointment
	if err := h.DB.First(&appt, "id = ?", req.AppointmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Appointment not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return
	}

	if appt.DoctorID != actor.UserID {
		utils.Forbidden(c, "You can only record consultations for your own appointments")
		return
	}
	if appt.Status != models.StatusInProgress {
		utils.Conflict(c, "Consultation records can only be created for in-progress appointments")
		return
	}

	var existing models.Consultation
	if err := h.DB.First(&existing, "appointment_id = ?", req.AppointmentID).Error; err == nil {
		utils.Conflict(c, "A consultation record already exists for this appointment")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		utils.InternalServerError(c, "Database error: "+err.Error())
		return
	}

	consultation := models.Consultation{
		AppointmentID: appt.ID,
		PatientID:     appt.PatientID,
		DoctorID:      appt.DoctorID,
		Diagnosis:     req.Diagnosis,
		Treatment:     req.Treatment,
		Prescription:  req.Prescription,
		FollowUpNotes: req.FollowUpNotes,
	}
	if err := h.DB.Create(&consultation).Error; err != nil {
		utils.InternalServerError(c, "Failed to create consultation: "+err.Error())
		return
	}

	utils.Created(c, "Consultation record created", consultation)
}

// UpdateConsultationRequest represents the request body for editing a
// consultation record.
type UpdateConsultationRequest struct {
	Diagnosis     string `json:"diagnosis"`
	Treatment     string `json:"treatment"`
	Prescription  string `json:"prescription"`
	FollowUpNotes string `json:"followUpNotes"`
}

// UpdateConsultation edits the record. Only the authoring doctor may edit,
// and only while the appointment has not been completed.
func (h *ConsultationHandler) UpdateConsultation(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var req UpdateConsultationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	var consultation models.Consultation
	if err := h.DB.Preload("Appointment").First(&consultation, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Consultation not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return
	}

	if consultation.DoctorID != actor.UserID {
		utils.Forbidden(c, "You can only edit your own consultation records")
		return
	}
	if consultation.Appointment.Status.IsTerminal() {
		utils.Conflict(c, "Consultation records cannot be edited after the appointment has ended")
		return
	}

	if req.Diagnosis != "" {
		consultation.Diagnosis = req.Diagnosis
	}
	if req.Treatment != "" {
		consultation.Treatment = req.Treatment
	}
	if req.Prescription != "" {
		consultation.Prescription = req.Prescription
	}
	if req.FollowUpNotes != "" {
		consultation.FollowUpNotes = req.FollowUpNotes
	}

	if err := h.DB.Save(&consultation).Error; err != nil {
		utils.InternalServerError(c, "Failed to update consultation: "+err.Error())
		return
	}

	utils.Success(c, "Consultation record updated", consultation)
}

// GetConsultation fetches a consultation record. Doctors see their own,
// patients the records of their own visits.
func (h *ConsultationHandler) GetConsultation(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var consultation models.Consultation
	if err := h.DB.First(&consultation, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Consultation not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return
	}

	switch actor.Role {
	case models.RoleDoctor:
		if consultation.DoctorID != actor.UserID {
			utils.Forbidden(c, "You can only view your own consultation records")
			return
		}
	case models.RolePatient:
		if consultation.PatientID != actor.UserID {
			utils.Forbidden(c, "You can only view your own consultation records")
			return
		}
	}

	utils.Success(c, "Consultation fetched successfully", consultation)
}

// CompleteConsultation finalizes the record, completes the appointment and
// closes its queue entry in one step.
func (h *ConsultationHandler) CompleteConsultation(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var consultation models.Consultation
	if err := h.DB.First(&consultation, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Consultation not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return
	}

	if consultation.DoctorID != actor.UserID {
		utils.Forbidden(c, "You can only complete your own consultations")
		return
	}

	appt, err := h.Scheduler.Complete(actor, consultation.AppointmentID)
	if err != nil {
		respondSchedulingError(c, err)
		return
	}

	var entry models.QueueEntry
	if err := h.DB.First(&entry, "appointment_id = ?", consultation.AppointmentID).Error; err == nil {
		if _, err := h.Queue.UpdateStatus(entry.ID, models.QueueCompleted, "", "", actor.UserID); err != nil {
			// The appointment is already completed; the queue entry is
			// best effort and can be fixed from the dashboard.
			utils.Success(c, "Consultation completed (queue entry update failed)", gin.H{
				"consultation": consultation,
				"appointment":  appt,
			})
			return
		}
	}

	utils.Success(c, "Consultation completed", gin.H{
		"consultation": consultation,
		"appointment":  appt,
	})
}
