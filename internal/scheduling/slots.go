package scheduling

import (
	"time"

	"gorm.io/gorm"

	"clinic-management-server/internal/models"
)

// Clinic working hours. Fixed for the facility, not per-doctor.
const (
	WorkingHoursOpen  = 9  // 09:00
	WorkingHoursClose = 17 // 17:00
)

// SlotTimes walks the working-hours window of the given day in steps of the
// slot duration and returns every candidate start whose slot ends at or
// before closing time, minus those overlapping a busy interval. Pure
// function; busy intervals with inactive statuses must be filtered out by the
// caller.
func SlotTimes(day time.Time, durationMinutes int, busy []models.Appointment) []time.Time {
	slotDur := time.Duration(durationMinutes) * time.Minute
	open := time.Date(day.Year(), day.Month(), day.Day(), WorkingHoursOpen, 0, 0, 0, day.Location())
	close := time.Date(day.Year(), day.Month(), day.Day(), WorkingHoursClose, 0, 0, 0, day.Location())

	var slots []time.Time
	for cur := open; !cur.Add(slotDur).After(close); cur = cur.Add(slotDur) {
		available := true
		for _, appt := range busy {
			if Overlaps(appt.StartTime, time.Duration(appt.DurationMinutes)*time.Minute, cur, slotDur) {
				available = false
				break
			}
		}
		if available {
			slots = append(slots, cur)
		}
	}
	return slots
}

// Generator enumerates bookable slots for a doctor. Location is the clinic's
// business timezone; the working-hours window is anchored there so every
// returned slot passes the booking service's working-hours guard.
type Generator struct {
	DB       *gorm.DB
	Location *time.Location
}

// NewGenerator creates a new slot Generator.
func NewGenerator(db *gorm.DB, loc *time.Location) *Generator {
	if loc == nil {
		loc = time.UTC
	}
	return &Generator{DB: db, Location: loc}
}

// AvailableSlots returns the bookable start times for the doctor on the given
// day. Only active appointments block slots; cancelled, completed and no-show
// visits free their interval. Safe to call repeatedly, no state is mutated.
func (g *Generator) AvailableSlots(doctorID string, day time.Time, durationMinutes int) ([]time.Time, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, g.Location)
	dayEnd := dayStart.Add(24 * time.Hour)

	var busy []models.Appointment
	err := g.DB.
		Where("doctor_id = ?", doctorID).
		Where("status IN ?", activeStatuses()).
		Where("start_time >= ? AND start_time < ?", dayStart, dayEnd).
		Find(&busy).Error
	if err != nil {
		return nil, err
	}

	return SlotTimes(dayStart, durationMinutes, busy), nil
}
