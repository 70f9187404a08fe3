package scheduling

import "time"

// Transition decides whether an appointment may move to the requested
// status at the given moment. It returns apply=false for accepted no-ops:
// repeating the current status, or any attempt to leave a terminal state.
//
// Cancellation carries a lead-time policy: with less than minCancelLead
// remaining before the appointment starts (but not already past), the
// request is rejected with ErrCancellationWindow.
func Transition(a Appointment, to Status, now time.Time, minCancelLead time.Duration) (apply bool, err error) {
	if _, err := ParseStatus(string(to)); err != nil {
		return false, err
	}

	if to == a.Status {
		return false, nil
	}

	if a.Status.Terminal() {
		return false, nil
	}

	if to == StatusCancelled {
		remaining := a.Date.At(a.Start, now.Location()).Sub(now)
		if remaining > 0 && remaining < minCancelLead {
			return false, ErrCancellationWindow
		}
	}

	return true, nil
}
