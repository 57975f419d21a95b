package scheduling

import (
	"time"

	"gorm.io/gorm"

	"clinic-management-server/internal/models"
)

// maxAppointmentSpan bounds how far back the conflict query has to look for
// appointments that could still overlap a candidate interval. No appointment
// spans more than a day.
const maxAppointmentSpan = 24 * time.Hour

// Overlaps reports whether the half-open intervals [aStart, aStart+aDur) and
// [bStart, bStart+bDur) intersect. Back-to-back intervals do not overlap.
func Overlaps(aStart time.Time, aDur time.Duration, bStart time.Time, bDur time.Duration) bool {
	aEnd := aStart.Add(aDur)
	bEnd := bStart.Add(bDur)
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Detector answers conflict queries against the appointment store.
type Detector struct {
	DB *gorm.DB
}

// NewDetector creates a new Detector.
func NewDetector(db *gorm.DB) *Detector {
	return &Detector{DB: db}
}

// HasConflict reports whether the candidate interval [start, start+duration)
// overlaps any active (scheduled, confirmed or in-progress) appointment for
// the doctor. excludeAppointmentID, when non-empty, lets a reschedule ignore
// the appointment being moved. Pure query; no side effects.
func (d *Detector) HasConflict(doctorID string, start time.Time, durationMinutes int, excludeAppointmentID string) (bool, error) {
	return hasConflict(d.DB, doctorID, start, durationMinutes, excludeAppointmentID)
}

// hasConflict is the transaction-aware form used by the booking service so
// the check runs on the same connection that will perform the insert.
func hasConflict(db *gorm.DB, doctorID string, start time.Time, durationMinutes int, excludeAppointmentID string) (bool, error) {
	candidateDur := time.Duration(durationMinutes) * time.Minute
	end := start.Add(candidateDur)

	query := db.
		Where("doctor_id = ?", doctorID).
		Where("status IN ?", activeStatuses()).
		Where("start_time < ? AND start_time > ?", end, start.Add(-maxAppointmentSpan))
	if excludeAppointmentID != "" {
		query = query.Where("id <> ?", excludeAppointmentID)
	}

	var existing []models.Appointment
	if err := query.Find(&existing).Error; err != nil {
		return false, err
	}

	for _, appt := range existing {
		if Overlaps(appt.StartTime, time.Duration(appt.DurationMinutes)*time.Minute, start, candidateDur) {
			return true, nil
		}
	}
	return false, nil
}

func activeStatuses() []models.AppointmentStatus {
	return models.ActiveAppointmentStatuses()
}
