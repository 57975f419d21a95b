// Package queue implements the per-day, per-doctor patient queue derived
// from confirmed appointments: positions, wait-status transitions and
// wait-time estimation.
package queue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"clinic-management-server/internal/clock"
	"clinic-management-server/internal/messaging"
	"clinic-management-server/internal/models"
)

// ErrDelayReasonRequired rejects a delay status update without a reason.
var ErrDelayReasonRequired = errors.New("a reason is required when marking a queue entry delayed")

// ErrUnknownStatus rejects a status value outside the queue state set.
var ErrUnknownStatus = errors.New("unknown queue status")

// Service owns queue entries. Queue numbers are assigned under a per
// (doctor, day) lock so concurrent check-ins cannot compute the same next
// number.
type Service struct {
	DB       *gorm.DB
	Clock    clock.Clock
	Log      zerolog.Logger
	Messages *messaging.Service

	// AvgConsultationMinutes drives wait-time estimation. Default 15.
	AvgConsultationMinutes int

	mu       sync.Mutex
	dayLocks map[string]*sync.Mutex
}

// NewService creates a queue Service.
func NewService(db *gorm.DB, clk clock.Clock, log zerolog.Logger, messages *messaging.Service, avgConsultationMinutes int) *Service {
	if avgConsultationMinutes <= 0 {
		avgConsultationMinutes = 15
	}
	return &Service{
		DB:                     db,
		Clock:                  clk,
		Log:                    log,
		Messages:               messages,
		AvgConsultationMinutes: avgConsultationMinutes,
		dayLocks:               make(map[string]*sync.Mutex),
	}
}

func (s *Service) lockDay(doctorID string, day time.Time) *sync.Mutex {
	key := doctorID + "/" + day.Format("2006-01-02")
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.dayLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.dayLocks[key] = l
	}
	return l
}

// CheckIn creates the waiting queue entry for a confirmed appointment. The
// queue number is the next integer after the highest existing number for the
// doctor's day, assigned once and never reused. Calling CheckIn again for
// the same appointment returns the existing entry.
func (s *Service) CheckIn(appointmentID string) (*models.QueueEntry, error) {
	var appt models.Appointment
	if err := s.DB.First(&appt, "id = ?", appointmentID).Error; err != nil {
		return nil, err
	}

	day := appt.StartTime.UTC().Truncate(24 * time.Hour)
	lock := s.lockDay(appt.DoctorID, day)
	lock.Lock()
	defer lock.Unlock()

	entry := &models.QueueEntry{
		AppointmentID: appointmentID,
		Status:        models.QueueWaiting,
	}
	created := false
	// The already-checked-in lookup runs under the day lock so a concurrent
	// check-in of the same appointment gets the existing entry rather than a
	// unique-index violation.
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var existing models.QueueEntry
		err := tx.First(&existing, "appointment_id = ?", appointmentID).Error
		if err == nil {
			entry = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		next, err := nextQueueNumber(tx, appt.DoctorID, day)
		if err != nil {
			return err
		}
		entry.QueueNumber = next
		created = true
		return tx.Create(entry).Error
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.Log.Info().
			Str("appointment_id", appointmentID).
			Str("doctor_id", appt.DoctorID).
			Int("queue_number", entry.QueueNumber).
			Msg("queue entry created")
	}
	return entry, nil
}

// nextQueueNumber computes the next position for the doctor's day partition.
// Numbers start at 1 and never repeat within the partition even when earlier
// entries leave the queue.
func nextQueueNumber(tx *gorm.DB, doctorID string, day time.Time) (int, error) {
	var highest int
	err := tx.Model(&models.QueueEntry{}).
		Joins("JOIN appointments ON appointments.id = queue_entries.appointment_id").
		Where("appointments.doctor_id = ?", doctorID).
		Where("appointments.start_time >= ? AND appointments.start_time < ?", day, day.Add(24*time.Hour)).
		Select("COALESCE(MAX(queue_number), 0)").
		Scan(&highest).Error
	if err != nil {
		return 0, err
	}
	return highest + 1, nil
}

// Activate ensures the appointment has a queue entry and moves it to
// in-progress, stamping the actual start time. Called when the doctor starts
// the consultation.
func (s *Service) Activate(appointmentID string) (*models.QueueEntry, error) {
	entry, err := s.CheckIn(appointmentID)
	if err != nil {
		return nil, err
	}
	if entry.Status == models.QueueInProgress {
		return entry, nil
	}
	return s.applyStatus(entry, models.QueueInProgress, "", "")
}

// UpdateStatus moves a queue entry to the requested status. Entering delayed
// requires a reason and broadcasts a queue-delay message to every staff
// user; delayed entries return to waiting only through another manual
// update. actorID is the clinical user driving the change.
func (s *Service) UpdateStatus(entryID string, status models.QueueStatus, delayReason, notes, actorID string) (*models.QueueEntry, error) {
	switch status {
	case models.QueueWaiting, models.QueueInProgress, models.QueueCompleted, models.QueueDelayed, models.QueueNoShow:
	default:
		return nil, ErrUnknownStatus
	}

	var entry models.QueueEntry
	if err := s.DB.Preload("Appointment").First(&entry, "id = ?", entryID).Error; err != nil {
		return nil, err
	}

	if status == models.QueueDelayed && delayReason == "" {
		return nil, ErrDelayReasonRequired
	}

	wasDelayed := entry.Status == models.QueueDelayed
	updated, err := s.applyStatus(&entry, status, delayReason, notes)
	if err != nil {
		return nil, err
	}

	if status == models.QueueDelayed && !wasDelayed {
		s.sendDelayNotification(updated, delayReason, actorID)
	}
	return updated, nil
}

func (s *Service) applyStatus(entry *models.QueueEntry, status models.QueueStatus, delayReason, notes string) (*models.QueueEntry, error) {
	now := s.Clock.Now()
	entry.Status = status

	switch status {
	case models.QueueInProgress:
		if entry.ActualStartTime == nil {
			entry.ActualStartTime = &now
		}
	case models.QueueCompleted:
		if entry.ActualEndTime == nil {
			entry.ActualEndTime = &now
		}
	case models.QueueDelayed:
		entry.DelayReason = delayReason
	}
	if notes != "" {
		entry.Notes = notes
	}

	if err := s.DB.Save(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// sendDelayNotification delivers the delay notice to all staff users as a
// persisted high-priority internal message. Failures are logged, never
// surfaced to the status update that triggered them.
func (s *Service) sendDelayNotification(entry *models.QueueEntry, reason, actorID string) {
	var appt models.Appointment
	if err := s.DB.Preload("Patient").First(&appt, "id = ?", entry.AppointmentID).Error; err != nil {
		s.Log.Error().Err(err).Str("queue_entry_id", entry.ID).Msg("failed to load appointment for delay notice")
		return
	}

	var staff []models.User
	if err := s.DB.Where("role = ? AND active = ?", models.RoleStaff, true).Find(&staff).Error; err != nil {
		s.Log.Error().Err(err).Msg("failed to list staff for delay notice")
		return
	}

	for _, member := range staff {
		if member.ID == actorID {
			continue
		}
		_, err := s.Messages.Send(messaging.SendRequest{
			SenderID:             actorID,
			RecipientID:          member.ID,
			Subject:              "Queue Delay - " + appt.Patient.DisplayName(),
			Content:              fmt.Sprintf("Appointment delayed. Reason: %s. Queue #: %d", reason, entry.QueueNumber),
			Type:                 models.MessageQueueUpdate,
			Priority:             models.PriorityHigh,
			RelatedAppointmentID: appt.ID,
			RelatedPatientID:     appt.PatientID,
		})
		if err != nil {
			s.Log.Error().Err(err).Str("recipient_id", member.ID).Msg("failed to send delay notice")
		}
	}
}

// EstimateWait recomputes the estimated wait in minutes for a queue entry:
// the number of open entries ahead of it for the same doctor times the
// average consultation length. The estimate is persisted on the entry and is
// best effort under concurrent queue changes.
func (s *Service) EstimateWait(entryID string) (minutes int, ahead int64, err error) {
	var entry models.QueueEntry
	if err := s.DB.Preload("Appointment").First(&entry, "id = ?", entryID).Error; err != nil {
		return 0, 0, err
	}

	err = s.DB.Model(&models.QueueEntry{}).
		Joins("JOIN appointments ON appointments.id = queue_entries.appointment_id").
		Where("appointments.doctor_id = ?", entry.Appointment.DoctorID).
		Where("queue_entries.queue_number < ?", entry.QueueNumber).
		Where("queue_entries.status IN ?", []models.QueueStatus{models.QueueWaiting, models.QueueInProgress}).
		Count(&ahead).Error
	if err != nil {
		return 0, 0, err
	}

	minutes = int(ahead) * s.AvgConsultationMinutes
	if err := s.DB.Model(&entry).Update("estimated_wait_time", minutes).Error; err != nil {
		return 0, 0, err
	}
	return minutes, ahead, nil
}

// CurrentQueue returns the open entries (waiting, in-progress, delayed) for
// the given day, ordered by queue number. With an empty doctorID the whole
// clinic's queues are returned grouped by doctor.
func (s *Service) CurrentQueue(doctorID string, day time.Time) ([]models.QueueEntry, error) {
	dayStart := day.UTC().Truncate(24 * time.Hour)

	query := s.DB.Model(&models.QueueEntry{}).
		Joins("JOIN appointments ON appointments.id = queue_entries.appointment_id").
		Where("appointments.start_time >= ? AND appointments.start_time < ?", dayStart, dayStart.Add(24*time.Hour)).
		Where("queue_entries.status IN ?", models.OpenQueueStatuses()).
		Preload("Appointment").Preload("Appointment.Patient").Preload("Appointment.Doctor")

	if doctorID != "" {
		query = query.Where("appointments.doctor_id = ?", doctorID).
			Order("queue_entries.queue_number")
	} else {
		query = query.Order("appointments.doctor_id, queue_entries.queue_number")
	}

	var entries []models.QueueEntry
	err := query.Find(&entries).Error
	return entries, err
}
