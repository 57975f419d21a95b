package models

import (
	"time"
)

// AppointmentStatus represents the status of an appointment. The string values
// are persisted and compared by value; they must remain stable.
type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "scheduled"
	StatusConfirmed  AppointmentStatus = "confirmed"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
	StatusNoShow     AppointmentStatus = "no_show"
)

// IsTerminal reports whether no further transition is permitted from s.
func (s AppointmentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// IsActive reports whether an appointment in this status occupies its time
// slot for conflict detection purposes.
func (s AppointmentStatus) IsActive() bool {
	return s == StatusScheduled || s == StatusConfirmed || s == StatusInProgress
}

// AppointmentStatuses lists every recognized appointment status.
func AppointmentStatuses() []AppointmentStatus {
	return []AppointmentStatus{
		StatusScheduled, StatusConfirmed, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusNoShow,
	}
}

// ActiveAppointmentStatuses returns the statuses that occupy their time slot.
func ActiveAppointmentStatuses() []AppointmentStatus {
	var active []AppointmentStatus
	for _, s := range AppointmentStatuses() {
		if s.IsActive() {
			active = append(active, s)
		}
	}
	return active
}

// AppointmentType represents the kind of visit being booked.
type AppointmentType string

const (
	TypeConsultation   AppointmentType = "consultation"
	TypeFollowUp       AppointmentType = "follow_up"
	TypeEmergency      AppointmentType = "emergency"
	TypeRoutineCheckup AppointmentType = "routine_checkup"
	TypeVaccination    AppointmentType = "vaccination"
	TypeProcedure      AppointmentType = "procedure"
)

// Appointment represents a scheduled visit between a patient and a doctor.
// StartTime is stored as a UTC instant at minute precision; the end time is
// always derived from StartTime and DurationMinutes, never stored.
type Appointment struct {
	BaseModel
	PatientID       string            `gorm:"size:36;index" json:"patientId"`
	DoctorID        string            `gorm:"size:36;index" json:"doctorId"`
	StartTime       time.Time         `gorm:"index" json:"startTime"`
	DurationMinutes int               `gorm:"default:30;not null" json:"durationMinutes"`
	Type            AppointmentType   `gorm:"size:30;default:'consultation'" json:"type"`
	Status          AppointmentStatus `gorm:"size:20;default:'scheduled'" json:"status"`
	ChiefComplaint  string            `gorm:"type:text" json:"chiefComplaint"`
	Notes           string            `gorm:"type:text" json:"notes"`

	ConfirmedAt        *time.Time `json:"confirmedAt,omitempty"`
	CancelledAt        *time.Time `json:"cancelledAt,omitempty"`
	CancellationReason string     `gorm:"size:500" json:"cancellationReason,omitempty"`

	ReminderSent     bool `gorm:"default:false" json:"reminderSent"`
	ConfirmationSent bool `gorm:"default:false" json:"confirmationSent"`

	// Relations
	Patient User `gorm:"foreignKey:PatientID" json:"patient,omitempty"`
	Doctor  User `gorm:"foreignKey:DoctorID" json:"doctor,omitempty"`
}

// EndTime returns the derived end of the appointment interval [start, end).
func (a *Appointment) EndTime() time.Time {
	return a.StartTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// IsPast reports whether the appointment start has already passed.
func (a *Appointment) IsPast(now time.Time) bool {
	return a.StartTime.Before(now)
}

// CanBeCancelled reports whether the appointment may still be cancelled:
// non-terminal status and more than two hours before the scheduled start.
func (a *Appointment) CanBeCancelled(now time.Time) bool {
	if a.Status.IsTerminal() {
		return false
	}
	return a.StartTime.After(now.Add(2 * time.Hour))
}

// CanBeRescheduled reports whether the appointment may be moved to a new slot.
func (a *Appointment) CanBeRescheduled(now time.Time) bool {
	return (a.Status == StatusScheduled || a.Status == StatusConfirmed) && !a.IsPast(now)
}
