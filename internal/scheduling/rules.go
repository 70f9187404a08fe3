package scheduling

import (
	"fmt"
	"time"
)

// Hours is the clinic's daily operating window, half-open [Open, Close).
type Hours struct {
	Open  TimeOfDay
	Close TimeOfDay
}

func DefaultHours() Hours {
	return Hours{Open: NewTimeOfDay(8, 0), Close: NewTimeOfDay(22, 0)}
}

// ValidateSlot enforces calendar policy on the start of a requested slot.
// Only the start time is checked against the operating window; an end time
// spilling past close is allowed, matching long-standing clinic behavior.
func ValidateSlot(date Date, start TimeOfDay, now time.Time, hours Hours) error {
	switch date.Weekday() {
	case time.Saturday, time.Sunday:
		return &RuleViolationError{
			Rule:   RuleWeekend,
			Detail: "appointments cannot be scheduled on weekends",
		}
	}

	if start < hours.Open || start >= hours.Close {
		return &RuleViolationError{
			Rule:   RuleOutOfHours,
			Detail: fmt.Sprintf("operating hours are %s to %s", hours.Open, hours.Close),
		}
	}

	if date.At(start, now.Location()).Before(now) {
		return &RuleViolationError{
			Rule:   RulePastSlot,
			Detail: "appointments cannot be scheduled in the past",
		}
	}

	return nil
}
