package jobs

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"clinic-management-server/internal/clock"
	"clinic-management-server/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	return db
}

func seedAppointment(t *testing.T, db *gorm.DB, status models.AppointmentStatus, start time.Time) *models.Appointment {
	t.Helper()
	appt := &models.Appointment{
		PatientID:       uuid.NewString(),
		DoctorID:        uuid.NewString(),
		StartTime:       start,
		DurationMinutes: 30,
		Status:          status,
	}
	require.NoError(t, db.Create(appt).Error)
	return appt
}

func TestSweepNoShows(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	runner := NewRunner(db, &clock.Fixed{Current: now}, zerolog.Nop(), 30*time.Minute)

	overdue := seedAppointment(t, db, models.StatusScheduled, now.Add(-time.Hour))
	overdueConfirmed := seedAppointment(t, db, models.StatusConfirmed, now.Add(-45*time.Minute))
	withinGrace := seedAppointment(t, db, models.StatusScheduled, now.Add(-10*time.Minute))
	upcoming := seedAppointment(t, db, models.StatusScheduled, now.Add(time.Hour))
	inProgress := seedAppointment(t, db, models.StatusInProgress, now.Add(-time.Hour))

	// The overdue confirmed visit has a waiting queue entry.
	entry := &models.QueueEntry{AppointmentID: overdueConfirmed.ID, QueueNumber: 1, Status: models.QueueWaiting}
	require.NoError(t, db.Create(entry).Error)

	runner.SweepNoShows()

	status := func(id string) models.AppointmentStatus {
		var appt models.Appointment
		require.NoError(t, db.First(&appt, "id = ?", id).Error)
		return appt.Status
	}

	assert.Equal(t, models.StatusNoShow, status(overdue.ID))
	assert.Equal(t, models.StatusNoShow, status(overdueConfirmed.ID))
	assert.Equal(t, models.StatusScheduled, status(withinGrace.ID), "inside the grace period")
	assert.Equal(t, models.StatusScheduled, status(upcoming.ID))
	assert.Equal(t, models.StatusInProgress, status(inProgress.ID), "started visits are never swept")

	var sweptEntry models.QueueEntry
	require.NoError(t, db.First(&sweptEntry, "id = ?", entry.ID).Error)
	assert.Equal(t, models.QueueNoShow, sweptEntry.Status)
}

func TestSweepIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	runner := NewRunner(db, &clock.Fixed{Current: now}, zerolog.Nop(), 30*time.Minute)

	appt := seedAppointment(t, db, models.StatusScheduled, now.Add(-time.Hour))

	runner.SweepNoShows()
	runner.SweepNoShows()

	var stored models.Appointment
	require.NoError(t, db.First(&stored, "id = ?", appt.ID).Error)
	assert.Equal(t, models.StatusNoShow, stored.Status)
}

func TestSendReminders(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	runner := NewRunner(db, &clock.Fixed{Current: now}, zerolog.Nop(), 30*time.Minute)

	soon := seedAppointment(t, db, models.StatusConfirmed, now.Add(3*time.Hour))
	farOut := seedAppointment(t, db, models.StatusScheduled, now.Add(48*time.Hour))
	cancelled := seedAppointment(t, db, models.StatusCancelled, now.Add(3*time.Hour))

	alreadySent := seedAppointment(t, db, models.StatusConfirmed, now.Add(4*time.Hour))
	require.NoError(t, db.Model(alreadySent).Update("reminder_sent", true).Error)

	runner.SendReminders()

	flagged := func(id string) bool {
		var appt models.Appointment
		require.NoError(t, db.First(&appt, "id = ?", id).Error)
		return appt.ReminderSent
	}

	assert.True(t, flagged(soon.ID))
	assert.False(t, flagged(farOut.ID), "outside the 24-hour window")
	assert.False(t, flagged(cancelled.ID), "terminal visits get no reminder")
	assert.True(t, flagged(alreadySent.ID), "flag stays set, reminder not re-sent")
}
