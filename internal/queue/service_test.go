package queue

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"clinic-management-server/internal/clock"
	"clinic-management-server/internal/messaging"
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

func newTestUser(t *testing.T, db *gorm.DB, role models.Role) *models.User {
	t.Helper()
	user := &models.User{
		Email:     uuid.NewString() + "@clinic.test",
		FirstName: "Test",
		LastName:  string(role),
		Role:      role,
		Active:    true,
	}
	require.NoError(t, user.SetPassword("password123"))
	require.NoError(t, db.Create(user).Error)
	return user
}

func newTestAppointment(t *testing.T, db *gorm.DB, doctorID, patientID string, start time.Time) *models.Appointment {
	t.Helper()
	appt := &models.Appointment{
		PatientID:       patientID,
		DoctorID:        doctorID,
		StartTime:       start,
		DurationMinutes: 30,
		Type:            models.TypeConsultation,
		Status:          models.StatusConfirmed,
	}
	require.NoError(t, db.Create(appt).Error)
	return appt
}

func newTestQueue(t *testing.T, db *gorm.DB, now time.Time) (*Service, *clock.Fixed) {
	t.Helper()
	clk := &clock.Fixed{Current: now}
	messages := messaging.NewService(db, clk, zerolog.Nop(), nil)
	return NewService(db, clk, zerolog.Nop(), messages, 15), clk
}

func TestCheckInAssignsSequentialNumbers(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	svc, _ := newTestQueue(t, db, now)

	doctor := newTestUser(t, db, models.RoleDoctor)
	start := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		patient := newTestUser(t, db, models.RolePatient)
		appt := newTestAppointment(t, db, doctor.ID, patient.ID, start.Add(time.Duration(i)*time.Hour))
		entry, err := svc.CheckIn(appt.ID)
		require.NoError(t, err)
		assert.Equal(t, i, entry.QueueNumber)
		assert.Equal(t, models.QueueWaiting, entry.Status)
	}
}

func TestCheckInIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	svc, _ := newTestQueue(t, db, now)

	doctor := newTestUser(t, db, models.RoleDoctor)
	patient := newTestUser(t, db, models.RolePatient)
	appt := newTestAppointment(t, db, doctor.ID, patient.ID, time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC))

	first, err := svc.CheckIn(appt.ID)
	require.NoError(t, err)
	second, err := svc.CheckIn(appt.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.QueueNumber, second.QueueNumber)

	var count int64
	require.NoError(t, db.Model(&models.QueueEntry{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestQueueNumbersArePerDoctorPerDay(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	svc, _ := newTestQueue(t, db, now)

	docA := newTestUser(t, db, models.RoleDoctor)
	docB := newTestUser(t, db, models.RoleDoctor)
	patient := newTestUser(t, db, models.RolePatient)

	apptA := newTestAppointment(t, db, docA.ID, patient.ID, time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC))
	apptB := newTestAppointment(t, db, docB.ID, patient.ID, time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC))
	apptNextDay := newTestAppointment(t, db, docA.ID, patient.ID, time.Date(2024, 6, 11, 10, 0, 0, 0, time.UTC))

	entryA, err := svc.CheckIn(apptA.ID)
	require.NoError(t, err)
	entryB, err := svc.CheckIn(apptB.ID)
	require.NoError(t, err)
	entryNext, err := svc.CheckIn(apptNextDay.ID)
	require.NoError(t, err)

	// Each doctor's day starts its own numbering.
	assert.Equal(t, 1, entryA.QueueNumber)
	assert.Equal(t, 1, entryB.QueueNumber)
	assert.Equal(t, 1, entryNext.QueueNumber)
}

func TestQueueNumbersNeverReused(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	svc, _ := newTestQueue(t, db, now)

	doctor := newTestUser(t, db, models.RoleDoctor)
	staff := newTestUser(t, db, models.RoleStaff)

	p1 := newTestUser(t, db, models.RolePatient)
	appt1 := newTestAppointment(t, db, doctor.ID, p1.ID, time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC))
	entry1, err := svc.CheckIn(appt1.ID)
	require.NoError(t, err)

	// First patient leaves the queue entirely.
	_, err = svc.UpdateStatus(entry1.ID, models.QueueNoShow, "", "", staff.ID)
	require.NoError(t, err)

	p2 := newTestUser(t, db, models.RolePatient)
	appt2 := newTestAppointment(t, db, doctor.ID, p2.ID, time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC))
	entry2, err := svc.CheckIn(appt2.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, entry2.QueueNumber, "numbers are never reassigned within a day")
}

func TestConcurrentCheckInsGetDistinctNumbers(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	svc, _ := newTestQueue(t, db, now)

	doctor := newTestUser(t, db, models.RoleDoctor)

	const n = 8
	appts := make([]*models.Appointment, n)
	for i := 0; i < n; i++ {
		patient := newTestUser(t, db, models.RolePatient)
		appts[i] = newTestAppointment(t, db, doctor.ID, patient.ID,
			time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC).Add(time.Duration(i)*30*time.Minute))
	}

	var wg sync.WaitGroup
	entries := make([]*models.QueueEntry, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entries[i], errs[i] = svc.CheckIn(appts[i].ID)
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool)
	for i, entry := range entries {
		require.NoError(t, errs[i])
		assert.False(t, seen[entry.QueueNumber], "queue number %d assigned twice", entry.QueueNumber)
		seen[entry.QueueNumber] = true
		assert.GreaterOrEqual(t, entry.QueueNumber, 1)
		assert.LessOrEqual(t, entry.QueueNumber, n)
	}
}

func TestConcurrentCheckInsOfSameAppointment(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	svc, _ := newTestQueue(t, db, now)

	doctor := newTestUser(t, db, models.RoleDoctor)
	patient := newTestUser(t, db, models.RolePatient)
	appt := newTestAppointment(t, db, doctor.ID, patient.ID,
		time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC))

	const n = 8
	var wg sync.WaitGroup
	entries := make([]*models.QueueEntry, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entries[i], errs[i] = svc.CheckIn(appt.ID)
		}(i)
	}
	wg.Wait()

	// Every caller gets the one entry back, never a duplicate-key error.
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, entries[0].ID, entries[i].ID)
		assert.Equal(t, 1, entries[i].QueueNumber)
	}

	var count int64
	require.NoError(t, db.Model(&models.QueueEntry{}).
		Where("appointment_id = ?", appt.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestActivateStampsStart(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)
	svc, _ := newTestQueue(t, db, now)

	doctor := newTestUser(t, db, models.RoleDoctor)
	patient := newTestUser(t, db, models.RolePatient)
	appt := newTestAppointment(t, db, doctor.ID, patient.ID, now)

	entry, err := svc.Activate(appt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueInProgress, entry.Status)
	require.NotNil(t, entry.ActualStartTime)
	assert.Equal(t, now, entry.ActualStartTime.UTC())

	// Activating again keeps the original start.
	again, err := svc.Activate(appt.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, again.ID)
	assert.Equal(t, entry.ActualStartTime.UTC(), again.ActualStartTime.UTC())
}

func TestDelayRequiresReasonAndNotifiesStaff(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)
	svc, _ := newTestQueue(t, db, now)

	doctor := newTestUser(t, db, models.RoleDoctor)
	patient := newTestUser(t, db, models.RolePatient)
	actor := newTestUser(t, db, models.RoleStaff)
	colleague := newTestUser(t, db, models.RoleStaff)

	appt := newTestAppointment(t, db, doctor.ID, patient.ID, now.Add(time.Hour))
	entry, err := svc.CheckIn(appt.ID)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(entry.ID, models.QueueDelayed, "", "", actor.ID)
	assert.ErrorIs(t, err, ErrDelayReasonRequired)

	updated, err := svc.UpdateStatus(entry.ID, models.QueueDelayed, "doctor running late", "", actor.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueDelayed, updated.Status)
	assert.Equal(t, "doctor running late", updated.DelayReason)

	// The other staff member got a persisted high-priority notice; the
	// actor did not message themselves.
	var notices []models.InternalMessage
	require.NoError(t, db.Where("type = ?", models.MessageQueueUpdate).Find(&notices).Error)
	require.Len(t, notices, 1)
	assert.Equal(t, colleague.ID, notices[0].RecipientID)
	assert.Equal(t, actor.ID, notices[0].SenderID)
	assert.Equal(t, models.PriorityHigh, notices[0].Priority)
	assert.Equal(t, appt.ID, notices[0].RelatedAppointmentID)
	assert.Equal(t, patient.ID, notices[0].RelatedPatientID)
	assert.Contains(t, notices[0].Content, "doctor running late")
}

func TestUpdateStatusStampsTimes(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)
	svc, clk := newTestQueue(t, db, now)

	doctor := newTestUser(t, db, models.RoleDoctor)
	patient := newTestUser(t, db, models.RolePatient)
	staff := newTestUser(t, db, models.RoleStaff)
	appt := newTestAppointment(t, db, doctor.ID, patient.ID, now)

	entry, err := svc.CheckIn(appt.ID)
	require.NoError(t, err)

	entry, err = svc.UpdateStatus(entry.ID, models.QueueInProgress, "", "", staff.ID)
	require.NoError(t, err)
	require.NotNil(t, entry.ActualStartTime)
	startedAt := entry.ActualStartTime.UTC()

	clk.Advance(20 * time.Minute)
	entry, err = svc.UpdateStatus(entry.ID, models.QueueCompleted, "", "seen", staff.ID)
	require.NoError(t, err)
	require.NotNil(t, entry.ActualEndTime)
	assert.Equal(t, startedAt.Add(20*time.Minute), entry.ActualEndTime.UTC())
	assert.Equal(t, "seen", entry.Notes)

	_, err = svc.UpdateStatus(entry.ID, "bogus", "", "", staff.ID)
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestEstimateWait(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	svc, _ := newTestQueue(t, db, now)

	doctor := newTestUser(t, db, models.RoleDoctor)
	staff := newTestUser(t, db, models.RoleStaff)

	var entries []*models.QueueEntry
	for i := 0; i < 3; i++ {
		patient := newTestUser(t, db, models.RolePatient)
		appt := newTestAppointment(t, db, doctor.ID, patient.ID,
			time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC).Add(time.Duration(i)*30*time.Minute))
		entry, err := svc.CheckIn(appt.ID)
		require.NoError(t, err)
		entries = append(entries, entry)
	}

	// Two open entries ahead of the third.
	minutes, ahead, err := svc.EstimateWait(entries[2].ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, ahead)
	assert.Equal(t, 30, minutes)

	// Front of the queue waits nothing.
	minutes, ahead, err = svc.EstimateWait(entries[0].ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, ahead)
	assert.Equal(t, 0, minutes)

	// Completed entries ahead stop counting.
	_, err = svc.UpdateStatus(entries[0].ID, models.QueueCompleted, "", "", staff.ID)
	require.NoError(t, err)
	minutes, _, err = svc.EstimateWait(entries[2].ID)
	require.NoError(t, err)
	assert.Equal(t, 15, minutes)

	// The estimate is persisted on the entry.
	var stored models.QueueEntry
	require.NoError(t, db.First(&stored, "id = ?", entries[2].ID).Error)
	assert.Equal(t, 15, stored.EstimatedWaitTime)
}

func TestCurrentQueueOrdering(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	svc, _ := newTestQueue(t, db, now)

	doctor := newTestUser(t, db, models.RoleDoctor)
	staff := newTestUser(t, db, models.RoleStaff)
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	var entries []*models.QueueEntry
	for i := 0; i < 4; i++ {
		patient := newTestUser(t, db, models.RolePatient)
		appt := newTestAppointment(t, db, doctor.ID, patient.ID,
			time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC).Add(time.Duration(i)*time.Hour))
		entry, err := svc.CheckIn(appt.ID)
		require.NoError(t, err)
		entries = append(entries, entry)
	}

	// One completed entry drops out of the live queue.
	_, err := svc.UpdateStatus(entries[1].ID, models.QueueCompleted, "", "", staff.ID)
	require.NoError(t, err)

	live, err := svc.CurrentQueue(doctor.ID, day)
	require.NoError(t, err)
	require.Len(t, live, 3)
	assert.Equal(t, 1, live[0].QueueNumber)
	assert.Equal(t, 3, live[1].QueueNumber)
	assert.Equal(t, 4, live[2].QueueNumber)

	// Another day is empty.
	empty, err := svc.CurrentQueue(doctor.ID, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, empty)
}
