package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinic-scheduler/internal/scheduling"
)

type CreateAppointmentRequest struct {
	PatientID   string  `json:"patient_id"`
	ClinicianID *string `json:"clinician_id"`
	RoomID      *string `json:"room_id"`
	ServiceID   *string `json:"service_id"`
	Date        string  `json:"date"`
	Start       string  `json:"start_time"`
	Reason      string  `json:"reason"`
	Notes       string  `json:"notes"`
}

// UpdateAppointmentRequest carries the optional references as raw JSON so
// an explicit null (clear the reference) is distinguishable from an absent
// field (leave it alone).
type UpdateAppointmentRequest struct {
	Date        *string          `json:"date"`
	Start       *string          `json:"start_time"`
	PatientID   *string          `json:"patient_id"`
	ClinicianID *json.RawMessage `json:"clinician_id"`
	RoomID      *json.RawMessage `json:"room_id"`
	ServiceID   *json.RawMessage `json:"service_id"`
	Reason      *string          `json:"reason"`
	Notes       *string          `json:"notes"`
}

type MoveAppointmentRequest struct {
	Date  string  `json:"date"`
	Start string  `json:"start_time"`
	End   *string `json:"end_time"`
}

type ChangeStatusRequest struct {
	Status string `json:"status"`
}

type AppointmentResponse struct {
	ID          uuid.UUID            `json:"id"`
	Date        scheduling.Date      `json:"date"`
	Start       scheduling.TimeOfDay `json:"start_time"`
	End         scheduling.TimeOfDay `json:"end_time"`
	Status      string               `json:"status"`
	PatientID   uuid.UUID            `json:"patient_id"`
	ClinicianID *uuid.UUID           `json:"clinician_id,omitempty"`
	RoomID      *uuid.UUID           `json:"room_id,omitempty"`
	ServiceID   *uuid.UUID           `json:"service_id,omitempty"`
	Reason      string               `json:"reason,omitempty"`
	Notes       string               `json:"notes,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

func toAppointmentResponse(a scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		Date:        a.Date,
		Start:       a.Start,
		End:         a.End,
		Status:      string(a.Status),
		PatientID:   a.PatientID,
		ClinicianID: a.ClinicianID,
		RoomID:      a.RoomID,
		ServiceID:   a.ServiceID,
		Reason:      a.Reason,
		Notes:       a.Notes,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func toAppointmentResponses(appts []scheduling.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentResponse(a))
	}
	return out
}

type AckResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
