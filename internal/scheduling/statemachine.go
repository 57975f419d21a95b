package scheduling

import (
	"time"

	"clinic-management-server/internal/models"
)

// Action identifies a lifecycle operation on an appointment.
type Action string

const (
	ActionConfirm  Action = "confirm"
	ActionCancel   Action = "cancel"
	ActionStart    Action = "start"
	ActionComplete Action = "complete"
	ActionNoShow   Action = "no_show"
)

// actionRoles is the per-operation capability table. Ownership checks (a
// doctor may only act on their own appointments, a patient on theirs) are
// applied on top of this by the service.
var actionRoles = map[Action][]models.Role{
	ActionConfirm:  {models.RoleDoctor, models.RoleStaff, models.RoleAdmin},
	ActionCancel:   {models.RolePatient, models.RoleDoctor, models.RoleStaff, models.RoleAdmin},
	ActionStart:    {models.RoleDoctor},
	ActionComplete: {models.RoleDoctor},
	ActionNoShow:   {models.RoleDoctor, models.RoleStaff, models.RoleAdmin},
}

// RoleAllowed reports whether the capability table permits role to perform
// the action.
func RoleAllowed(action Action, role models.Role) bool {
	for _, r := range actionRoles[action] {
		if r == role {
			return true
		}
	}
	return false
}

// Confirm moves a scheduled appointment to confirmed and stamps ConfirmedAt.
func Confirm(a *models.Appointment, now time.Time) error {
	if a.Status != models.StatusScheduled {
		return &InvalidTransitionError{From: a.Status, To: models.StatusConfirmed}
	}
	a.Status = models.StatusConfirmed
	a.ConfirmedAt = &now
	return nil
}

// Cancel moves an appointment to cancelled, recording the reason and
// CancelledAt. Rejected from any terminal state, and rejected inside the
// two-hour window before the start.
func Cancel(a *models.Appointment, reason string, now time.Time) error {
	if a.Status.IsTerminal() {
		return &InvalidTransitionError{From: a.Status, To: models.StatusCancelled}
	}
	if !a.CanBeCancelled(now) {
		return ErrTooLateToCancel
	}
	a.Status = models.StatusCancelled
	a.CancelledAt = &now
	a.CancellationReason = reason
	return nil
}

// Start moves a confirmed appointment to in-progress. The queue entry
// activation that accompanies this transition is handled by the service.
func Start(a *models.Appointment) error {
	if a.Status != models.StatusConfirmed {
		return &InvalidTransitionError{From: a.Status, To: models.StatusInProgress}
	}
	a.Status = models.StatusInProgress
	return nil
}

// Complete moves an in-progress appointment to completed.
func Complete(a *models.Appointment) error {
	if a.Status != models.StatusInProgress {
		return &InvalidTransitionError{From: a.Status, To: models.StatusCompleted}
	}
	a.Status = models.StatusCompleted
	return nil
}

// MarkNoShow moves a scheduled or confirmed appointment to no-show once the
// start time has passed without check-in.
func MarkNoShow(a *models.Appointment, now time.Time) error {
	if a.Status != models.StatusScheduled && a.Status != models.StatusConfirmed {
		return &InvalidTransitionError{From: a.Status, To: models.StatusNoShow}
	}
	if a.StartTime.After(now) {
		return &InvalidTransitionError{From: a.Status, To: models.StatusNoShow}
	}
	a.Status = models.StatusNoShow
	return nil
}
