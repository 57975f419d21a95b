package scheduling

import (
	"errors"
	"fmt"

	"clinic-management-server/internal/models"
)

// ErrSlotTaken signals that the requested interval overlaps an existing
// active appointment for the doctor. The caller may retry with another slot.
var ErrSlotTaken = errors.New("selected time slot is not available")

// ErrTooLateToCancel signals a cancellation attempt inside the two-hour
// window before the appointment start.
var ErrTooLateToCancel = errors.New("appointments can only be cancelled more than 2 hours in advance")

// ErrOutsideWorkingHours signals a booking outside the clinic's 09:00-17:00
// working window.
var ErrOutsideWorkingHours = errors.New("appointments can only be scheduled between 9 AM and 5 PM")

// ErrRoleNotAllowed signals that the acting role lacks the capability for the
// attempted operation. Handlers surface it uniformly, without revealing
// whether the target resource exists.
var ErrRoleNotAllowed = errors.New("role is not permitted to perform this operation")

// InvalidTransitionError reports a rejected appointment state transition,
// carrying the current and attempted states.
type InvalidTransitionError struct {
	From models.AppointmentStatus
	To   models.AppointmentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid appointment transition from %q to %q", e.From, e.To)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var ite *InvalidTransitionError
	return errors.As(err, &ite)
}
