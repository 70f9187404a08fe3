package scheduling

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter narrows an appointment listing. Nil fields are not applied.
// Results are always ordered by (date asc, start asc).
type ListFilter struct {
	Date        *Date
	From        *Date
	To          *Date
	Status      *Status
	ClinicianID *uuid.UUID
	PatientID   *uuid.UUID
	RoomID      *uuid.UUID
	Offset      int
	Limit       int
}

// Repository contains all DB interactions needed by the scheduler.
type Repository interface {
	ConflictReader
	ServiceDirectory

	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetClinicianByID(ctx context.Context, id uuid.UUID) (*Clinician, error)
	GetRoomByID(ctx context.Context, id uuid.UUID) (*Room, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	UpdateAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, to Status) error
	DeleteAppointment(ctx context.Context, id uuid.UUID) error

	ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error)

	// Best-effort audit trail of scheduling decisions.
	InsertEvent(ctx context.Context, ev EventLog) error
}
