package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-management-server/internal/models"
)

func newAppointment(status models.AppointmentStatus, start time.Time) *models.Appointment {
	return &models.Appointment{
		Status:          status,
		StartTime:       start,
		DurationMinutes: 30,
	}
}

func TestConfirmTransition(t *testing.T) {
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)

	appt := newAppointment(models.StatusScheduled, now.Add(3*time.Hour))
	require.NoError(t, Confirm(appt, now))
	assert.Equal(t, models.StatusConfirmed, appt.Status)
	require.NotNil(t, appt.ConfirmedAt)
	assert.Equal(t, now, *appt.ConfirmedAt)

	// Confirming twice is rejected.
	err := Confirm(appt, now)
	assert.True(t, IsInvalidTransition(err))
}

func TestCancelWindow(t *testing.T) {
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)

	// 2h01m ahead: allowed.
	appt := newAppointment(models.StatusScheduled, now.Add(2*time.Hour+time.Minute))
	require.NoError(t, Cancel(appt, "patient request", now))
	assert.Equal(t, models.StatusCancelled, appt.Status)
	assert.Equal(t, "patient request", appt.CancellationReason)
	require.NotNil(t, appt.CancelledAt)

	// 1h59m ahead: inside the window, rejected.
	appt = newAppointment(models.StatusScheduled, now.Add(2*time.Hour-time.Minute))
	err := Cancel(appt, "", now)
	assert.ErrorIs(t, err, ErrTooLateToCancel)
	assert.Equal(t, models.StatusScheduled, appt.Status)

	// Exactly 2h ahead: boundary counts as too late.
	appt = newAppointment(models.StatusScheduled, now.Add(2*time.Hour))
	assert.ErrorIs(t, Cancel(appt, "", now), ErrTooLateToCancel)
}

func TestTerminalStatesRejectAllTransitions(t *testing.T) {
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	start := now.Add(4 * time.Hour)

	for _, status := range []models.AppointmentStatus{
		models.StatusCompleted,
		models.StatusCancelled,
		models.StatusNoShow,
	} {
		appt := newAppointment(status, start)
		assert.True(t, IsInvalidTransition(Confirm(appt, now)), "confirm from %s", status)
		assert.True(t, IsInvalidTransition(Cancel(appt, "", now)), "cancel from %s", status)
		assert.True(t, IsInvalidTransition(Start(appt)), "start from %s", status)
		assert.True(t, IsInvalidTransition(Complete(appt)), "complete from %s", status)
		assert.True(t, IsInvalidTransition(MarkNoShow(appt, now.Add(5*time.Hour))), "no-show from %s", status)
		assert.Equal(t, status, appt.Status, "status must not change")
	}
}

func TestStartRequiresConfirmed(t *testing.T) {
	appt := newAppointment(models.StatusScheduled, time.Now())
	assert.True(t, IsInvalidTransition(Start(appt)))

	appt.Status = models.StatusConfirmed
	require.NoError(t, Start(appt))
	assert.Equal(t, models.StatusInProgress, appt.Status)

	require.NoError(t, Complete(appt))
	assert.Equal(t, models.StatusCompleted, appt.Status)
}

func TestMarkNoShowNeedsElapsedStart(t *testing.T) {
	now := time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)

	// Start still in the future: rejected.
	appt := newAppointment(models.StatusConfirmed, now.Add(time.Hour))
	assert.True(t, IsInvalidTransition(MarkNoShow(appt, now)))

	// Start has passed: allowed from scheduled and confirmed.
	appt = newAppointment(models.StatusScheduled, now.Add(-time.Hour))
	require.NoError(t, MarkNoShow(appt, now))
	assert.Equal(t, models.StatusNoShow, appt.Status)

	appt = newAppointment(models.StatusConfirmed, now.Add(-time.Hour))
	require.NoError(t, MarkNoShow(appt, now))
	assert.Equal(t, models.StatusNoShow, appt.Status)

	// Never from in-progress.
	appt = newAppointment(models.StatusInProgress, now.Add(-time.Hour))
	assert.True(t, IsInvalidTransition(MarkNoShow(appt, now)))
}

func TestCapabilityTable(t *testing.T) {
	cases := []struct {
		action  Action
		role    models.Role
		allowed bool
	}{
		{ActionStart, models.RoleDoctor, true},
		{ActionStart, models.RoleStaff, false},
		{ActionStart, models.RoleAdmin, false},
		{ActionComplete, models.RoleDoctor, true},
		{ActionComplete, models.RolePatient, false},
		{ActionConfirm, models.RoleStaff, true},
		{ActionConfirm, models.RolePatient, false},
		{ActionCancel, models.RolePatient, true},
		{ActionCancel, models.RoleStaff, true},
		{ActionNoShow, models.RoleAdmin, true},
		{ActionNoShow, models.RolePatient, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, RoleAllowed(tc.action, tc.role), "%s as %s", tc.action, tc.role)
	}
}
