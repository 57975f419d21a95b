package scheduling

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"clinic-management-server/internal/clock"
	"clinic-management-server/internal/models"
)

// ErrNotOwner signals an ownership violation: the actor's role permits the
// operation, but not on somebody else's appointment.
var ErrNotOwner = errors.New("you can only act on your own appointments")

// QueueActivator manages the queue entry derived from an appointment:
// CheckIn creates the waiting entry when the visit is confirmed for the day,
// Activate moves it to in-progress when the consultation starts. Implemented
// by the queue service.
type QueueActivator interface {
	CheckIn(appointmentID string) (*models.QueueEntry, error)
	Activate(appointmentID string) (*models.QueueEntry, error)
}

// Service owns the appointment lifecycle: booking with conflict detection,
// and the guarded state transitions. Booking and rescheduling for one doctor
// are serialized through a per-doctor lock so the conflict check and the
// insert act as one unit; two concurrent requests for the same slot cannot
// both pass the check.
type Service struct {
	DB    *gorm.DB
	Clock clock.Clock
	Log   zerolog.Logger
	Queue QueueActivator // may be nil when queue tracking is not wired

	// BusinessLocation is the timezone the 09:00-17:00 working window is
	// evaluated in. Stored timestamps remain UTC.
	BusinessLocation *time.Location

	mu          sync.Mutex
	doctorLocks map[string]*sync.Mutex
}

// NewService creates a scheduling Service.
func NewService(db *gorm.DB, clk clock.Clock, log zerolog.Logger, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		DB:               db,
		Clock:            clk,
		Log:              log,
		BusinessLocation: loc,
		doctorLocks:      make(map[string]*sync.Mutex),
	}
}

func (s *Service) lockDoctor(doctorID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.doctorLocks[doctorID]
	if !ok {
		l = &sync.Mutex{}
		s.doctorLocks[doctorID] = l
	}
	return l
}

// BookRequest carries a validated booking intent.
type BookRequest struct {
	PatientID       string
	DoctorID        string
	StartTime       time.Time
	DurationMinutes int
	Type            models.AppointmentType
	ChiefComplaint  string
}

// Book creates a new scheduled appointment after validating the slot. The
// conflict check and the insert run under the doctor's booking lock inside a
// single transaction.
func (s *Service) Book(req BookRequest) (*models.Appointment, error) {
	now := s.Clock.Now()

	if req.DurationMinutes <= 0 {
		req.DurationMinutes = 30
	}
	start := req.StartTime.UTC().Truncate(time.Minute)

	if !start.After(now) {
		return nil, errors.New("appointment must be scheduled for a future date and time")
	}
	if !s.withinWorkingHours(start, req.DurationMinutes) {
		return nil, ErrOutsideWorkingHours
	}
	if req.Type == "" {
		req.Type = models.TypeConsultation
	}

	appt := &models.Appointment{
		PatientID:       req.PatientID,
		DoctorID:        req.DoctorID,
		StartTime:       start,
		DurationMinutes: req.DurationMinutes,
		Type:            req.Type,
		Status:          models.StatusScheduled,
		ChiefComplaint:  req.ChiefComplaint,
	}

	lock := s.lockDoctor(req.DoctorID)
	lock.Lock()
	defer lock.Unlock()

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		conflict, err := hasConflict(tx, req.DoctorID, start, req.DurationMinutes, "")
		if err != nil {
			return err
		}
		if conflict {
			return ErrSlotTaken
		}
		return tx.Create(appt).Error
	})
	if err != nil {
		return nil, err
	}

	// Confirmation dispatch is a logged side effect; its failure never rolls
	// back the booking that already committed.
	s.sendConfirmation(appt)

	return appt, nil
}

func (s *Service) withinWorkingHours(start time.Time, durationMinutes int) bool {
	local := start.In(s.BusinessLocation)
	open := time.Date(local.Year(), local.Month(), local.Day(), WorkingHoursOpen, 0, 0, 0, s.BusinessLocation)
	close := time.Date(local.Year(), local.Month(), local.Day(), WorkingHoursClose, 0, 0, 0, s.BusinessLocation)
	end := local.Add(time.Duration(durationMinutes) * time.Minute)
	return !local.Before(open) && !end.After(close)
}

func (s *Service) sendConfirmation(appt *models.Appointment) {
	s.Log.Info().
		Str("appointment_id", appt.ID).
		Str("patient_id", appt.PatientID).
		Time("start_time", appt.StartTime).
		Time("end_time", appt.EndTime()).
		Msg("appointment confirmation dispatched")

	if err := s.DB.Model(appt).Update("confirmation_sent", true).Error; err != nil {
		s.Log.Error().Err(err).Str("appointment_id", appt.ID).Msg("failed to record confirmation dispatch")
		return
	}
	appt.ConfirmationSent = true
}

// Actor identifies who is performing a lifecycle operation.
type Actor struct {
	UserID string
	Role   models.Role
}

// authorize applies the capability table and the per-resource ownership
// rules. The role check runs before the appointment is even loaded, so an
// unauthorized caller learns nothing about resource existence.
func authorize(action Action, actor Actor, appt *models.Appointment) error {
	if appt == nil {
		if !RoleAllowed(action, actor.Role) {
			return ErrRoleNotAllowed
		}
		return nil
	}
	switch actor.Role {
	case models.RoleDoctor:
		if appt.DoctorID != actor.UserID {
			return ErrNotOwner
		}
	case models.RolePatient:
		if appt.PatientID != actor.UserID {
			return ErrNotOwner
		}
	}
	return nil
}

func (s *Service) load(appointmentID string) (*models.Appointment, error) {
	var appt models.Appointment
	if err := s.DB.First(&appt, "id = ?", appointmentID).Error; err != nil {
		return nil, err
	}
	return &appt, nil
}

func (s *Service) save(appt *models.Appointment) error {
	return s.DB.Save(appt).Error
}

// Confirm transitions a scheduled appointment to confirmed.
func (s *Service) Confirm(actor Actor, appointmentID string) (*models.Appointment, error) {
	if err := authorize(ActionConfirm, actor, nil); err != nil {
		return nil, err
	}
	appt, err := s.load(appointmentID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ActionConfirm, actor, appt); err != nil {
		return nil, err
	}
	if err := Confirm(appt, s.Clock.Now()); err != nil {
		return nil, err
	}
	if err := s.save(appt); err != nil {
		return nil, err
	}
	if s.Queue != nil {
		if _, err := s.Queue.CheckIn(appt.ID); err != nil {
			s.Log.Error().Err(err).Str("appointment_id", appt.ID).Msg("failed to create queue entry")
		}
	}
	s.Log.Info().Str("appointment_id", appt.ID).Msg("appointment confirmed")
	return appt, nil
}

// Cancel transitions an appointment to cancelled, recording the reason.
func (s *Service) Cancel(actor Actor, appointmentID, reason string) (*models.Appointment, error) {
	if err := authorize(ActionCancel, actor, nil); err != nil {
		return nil, err
	}
	appt, err := s.load(appointmentID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ActionCancel, actor, appt); err != nil {
		return nil, err
	}
	if err := Cancel(appt, reason, s.Clock.Now()); err != nil {
		return nil, err
	}
	if err := s.save(appt); err != nil {
		return nil, err
	}
	s.Log.Info().Str("appointment_id", appt.ID).Str("reason", reason).Msg("appointment cancelled")
	return appt, nil
}

// Start transitions a confirmed appointment to in-progress and activates its
// queue entry. Only the appointment's own doctor may start a consultation.
func (s *Service) Start(actor Actor, appointmentID string) (*models.Appointment, error) {
	if err := authorize(ActionStart, actor, nil); err != nil {
		return nil, err
	}
	appt, err := s.load(appointmentID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ActionStart, actor, appt); err != nil {
		return nil, err
	}
	if err := Start(appt); err != nil {
		return nil, err
	}
	if err := s.save(appt); err != nil {
		return nil, err
	}
	if s.Queue != nil {
		if _, err := s.Queue.Activate(appt.ID); err != nil {
			s.Log.Error().Err(err).Str("appointment_id", appt.ID).Msg("failed to activate queue entry")
		}
	}
	s.Log.Info().Str("appointment_id", appt.ID).Msg("appointment started")
	return appt, nil
}

// Complete transitions an in-progress appointment to completed.
func (s *Service) Complete(actor Actor, appointmentID string) (*models.Appointment, error) {
	if err := authorize(ActionComplete, actor, nil); err != nil {
		return nil, err
	}
	appt, err := s.load(appointmentID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ActionComplete, actor, appt); err != nil {
		return nil, err
	}
	if err := Complete(appt); err != nil {
		return nil, err
	}
	if err := s.save(appt); err != nil {
		return nil, err
	}
	s.Log.Info().Str("appointment_id", appt.ID).Msg("appointment completed")
	return appt, nil
}

// MarkNoShow transitions a scheduled or confirmed appointment to no-show.
func (s *Service) MarkNoShow(actor Actor, appointmentID string) (*models.Appointment, error) {
	if err := authorize(ActionNoShow, actor, nil); err != nil {
		return nil, err
	}
	appt, err := s.load(appointmentID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ActionNoShow, actor, appt); err != nil {
		return nil, err
	}
	if err := MarkNoShow(appt, s.Clock.Now()); err != nil {
		return nil, err
	}
	if err := s.save(appt); err != nil {
		return nil, err
	}
	s.Log.Info().Str("appointment_id", appt.ID).Msg("appointment marked no-show")
	return appt, nil
}

// Reschedule moves an appointment to a new start time. The conflict check
// excludes the appointment being moved and runs under the doctor's booking
// lock. A rescheduled appointment returns to scheduled and must be
// re-confirmed.
func (s *Service) Reschedule(actor Actor, appointmentID string, newStart time.Time) (*models.Appointment, error) {
	if err := authorize(ActionCancel, actor, nil); err != nil {
		return nil, err
	}
	appt, err := s.load(appointmentID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ActionCancel, actor, appt); err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	if !appt.CanBeRescheduled(now) {
		return nil, &InvalidTransitionError{From: appt.Status, To: models.StatusScheduled}
	}

	start := newStart.UTC().Truncate(time.Minute)
	if !start.After(now) {
		return nil, errors.New("new appointment time must be in the future")
	}
	if !s.withinWorkingHours(start, appt.DurationMinutes) {
		return nil, ErrOutsideWorkingHours
	}

	lock := s.lockDoctor(appt.DoctorID)
	lock.Lock()
	defer lock.Unlock()

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		conflict, err := hasConflict(tx, appt.DoctorID, start, appt.DurationMinutes, appt.ID)
		if err != nil {
			return err
		}
		if conflict {
			return ErrSlotTaken
		}
		appt.StartTime = start
		appt.Status = models.StatusScheduled
		appt.ConfirmedAt = nil
		return tx.Save(appt).Error
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info().Str("appointment_id", appt.ID).Time("new_start", start).Msg("appointment rescheduled")
	return appt, nil
}
