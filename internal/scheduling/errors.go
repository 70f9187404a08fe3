package scheduling

import (
	"errors"
	"fmt"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrClinicianNotFound   = errors.New("clinician not found")
	ErrRoomNotFound        = errors.New("room not found")
	ErrServiceNotFound     = errors.New("service not found")

	ErrInvalidStatus      = errors.New("unknown appointment status")
	ErrCancellationWindow = errors.New("cancellation window closed, the appointment is too close")
	ErrEndBeforeStart     = errors.New("end time must be after start time")
	ErrCrossesMidnight    = errors.New("appointment would run past midnight")

	// ErrScheduleBusy is returned when the advisory lock for the requested
	// slot could not be acquired and the caller should retry.
	ErrScheduleBusy = errors.New("schedule is being modified, please retry")
)

// Rule identifies which calendar policy a request violated.
type Rule string

const (
	RuleWeekend    Rule = "weekend"
	RuleOutOfHours Rule = "out_of_hours"
	RulePastSlot   Rule = "past_slot"
)

type RuleViolationError struct {
	Rule   Rule
	Detail string
}

func (e *RuleViolationError) Error() string { return e.Detail }

func (e *RuleViolationError) Is(target error) bool {
	t, ok := target.(*RuleViolationError)
	return ok && t.Rule == e.Rule
}

// Dimension is an axis along which double-booking is checked.
type Dimension string

const (
	DimensionClinician Dimension = "clinician"
	DimensionRoom      Dimension = "room"
	DimensionPatient   Dimension = "patient"
)

type ConflictError struct {
	Dimension Dimension
}

func (e *ConflictError) Error() string {
	switch e.Dimension {
	case DimensionClinician:
		return "clinician already has an appointment in this time range"
	case DimensionRoom:
		return "room is already occupied in this time range"
	case DimensionPatient:
		return "patient already has another appointment in this time range"
	}
	return fmt.Sprintf("schedule conflict on %s", e.Dimension)
}

func (e *ConflictError) Is(target error) bool {
	t, ok := target.(*ConflictError)
	return ok && t.Dimension == e.Dimension
}
