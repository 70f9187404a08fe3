package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicdesk/clinic-scheduler/internal/scheduling"
)

// decodeJSON parses a typed request body and rejects unknown fields, so a
// misspelled key fails loudly instead of being silently dropped.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func parseOptionalUUID(s *string) (*uuid.UUID, error) {
	if s == nil {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// parseNullableUUID maps an update reference: absent leaves the field
// alone, JSON null clears it, a string must be a UUID.
func parseNullableUUID(raw *json.RawMessage) (scheduling.OptionalRef, error) {
	if raw == nil {
		return scheduling.OptionalRef{}, nil
	}
	if string(*raw) == "null" {
		return scheduling.ClearRef(), nil
	}
	var s string
	if err := json.Unmarshal(*raw, &s); err != nil {
		return scheduling.OptionalRef{}, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return scheduling.OptionalRef{}, err
	}
	return scheduling.RefTo(id), nil
}

func pathID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	return id, err == nil
}

func createAppointmentHandler(svc *scheduling.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		clinicianID, err := parseOptionalUUID(req.ClinicianID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_clinician_id", "clinician_id must be a valid UUID")
			return
		}
		roomID, err := parseOptionalUUID(req.RoomID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_room_id", "room_id must be a valid UUID")
			return
		}
		serviceID, err := parseOptionalUUID(req.ServiceID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}

		date, err := scheduling.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		start, err := scheduling.ParseTimeOfDay(req.Start)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be HH:MM")
			return
		}

		appt, err := svc.Create(r.Context(), scheduling.CreateRequest{
			PatientID:   patientID,
			ClinicianID: clinicianID,
			RoomID:      roomID,
			ServiceID:   serviceID,
			Date:        date,
			Start:       start,
			Reason:      req.Reason,
			Notes:       req.Notes,
		})
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func getAppointmentHandler(svc *scheduling.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func updateAppointmentHandler(svc *scheduling.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req UpdateAppointmentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		update := scheduling.UpdateRequest{
			Reason: req.Reason,
			Notes:  req.Notes,
		}

		if req.Date != nil {
			date, err := scheduling.ParseDate(*req.Date)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
				return
			}
			update.Date = &date
		}
		if req.Start != nil {
			start, err := scheduling.ParseTimeOfDay(*req.Start)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be HH:MM")
				return
			}
			update.Start = &start
		}

		var err error
		if update.PatientID, err = parseOptionalUUID(req.PatientID); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		if update.ClinicianID, err = parseNullableUUID(req.ClinicianID); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_clinician_id", "clinician_id must be a valid UUID or null")
			return
		}
		if update.RoomID, err = parseNullableUUID(req.RoomID); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_room_id", "room_id must be a valid UUID or null")
			return
		}
		if update.ServiceID, err = parseNullableUUID(req.ServiceID); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID or null")
			return
		}

		appt, err := svc.Update(r.Context(), id, update)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func moveAppointmentHandler(svc *scheduling.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req MoveAppointmentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		date, err := scheduling.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		start, err := scheduling.ParseTimeOfDay(req.Start)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be HH:MM")
			return
		}

		var end *scheduling.TimeOfDay
		if req.End != nil {
			parsed, err := scheduling.ParseTimeOfDay(*req.End)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_end_time", "end_time must be HH:MM")
				return
			}
			end = &parsed
		}

		appt, err := svc.Move(r.Context(), id, date, start, end)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func changeStatusHandler(svc *scheduling.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req ChangeStatusRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		status, err := scheduling.ParseStatus(req.Status)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		if err := svc.ChangeStatus(r.Context(), id, status); err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, AckResponse{
			Message: "appointment status set to " + string(status),
		})
	}
}

func deleteAppointmentHandler(svc *scheduling.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		if err := svc.Delete(r.Context(), id); err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, AckResponse{Message: "appointment deleted"})
	}
}

func listAppointmentsHandler(svc *scheduling.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, ok := listFilterFromQuery(w, r)
		if !ok {
			return
		}

		appts, err := svc.List(r.Context(), filter)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	}
}

func todayAppointmentsHandler(svc *scheduling.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appts, err := svc.Today(r.Context())
		if err != nil {
			handleSchedulingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	}
}

func calendarHandler(svc *scheduling.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		from, err := scheduling.ParseDate(q.Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD")
			return
		}
		to, err := scheduling.ParseDate(q.Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD")
			return
		}

		clinicianID, ok := queryUUID(w, q.Get("clinician_id"), "clinician_id")
		if !ok {
			return
		}
		roomID, ok := queryUUID(w, q.Get("room_id"), "room_id")
		if !ok {
			return
		}

		var status *scheduling.Status
		if s := q.Get("status"); s != "" {
			parsed, err := scheduling.ParseStatus(s)
			if err != nil {
				handleSchedulingError(w, err)
				return
			}
			status = &parsed
		}

		appts, err := svc.Calendar(r.Context(), from, to, clinicianID, roomID, status)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	}
}

// listFilterFromQuery parses the listing query parameters, writing a 400
// and returning ok=false on the first invalid one.
func listFilterFromQuery(w http.ResponseWriter, r *http.Request) (scheduling.ListFilter, bool) {
	var filter scheduling.ListFilter
	q := r.URL.Query()

	parseDate := func(name string) (*scheduling.Date, bool) {
		v := q.Get(name)
		if v == "" {
			return nil, true
		}
		d, err := scheduling.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be YYYY-MM-DD")
			return nil, false
		}
		return &d, true
	}

	var ok bool
	if filter.Date, ok = parseDate("date"); !ok {
		return filter, false
	}
	if filter.From, ok = parseDate("from"); !ok {
		return filter, false
	}
	if filter.To, ok = parseDate("to"); !ok {
		return filter, false
	}

	if s := q.Get("status"); s != "" {
		parsed, err := scheduling.ParseStatus(s)
		if err != nil {
			handleSchedulingError(w, err)
			return filter, false
		}
		filter.Status = &parsed
	}

	if filter.ClinicianID, ok = queryUUID(w, q.Get("clinician_id"), "clinician_id"); !ok {
		return filter, false
	}
	if filter.PatientID, ok = queryUUID(w, q.Get("patient_id"), "patient_id"); !ok {
		return filter, false
	}
	if filter.RoomID, ok = queryUUID(w, q.Get("room_id"), "room_id"); !ok {
		return filter, false
	}

	if filter.Offset, ok = queryInt(w, q.Get("offset"), "offset"); !ok {
		return filter, false
	}
	if filter.Limit, ok = queryInt(w, q.Get("limit"), "limit"); !ok {
		return filter, false
	}

	return filter, true
}

func queryUUID(w http.ResponseWriter, v, name string) (*uuid.UUID, bool) {
	if v == "" {
		return nil, true
	}
	id, err := uuid.Parse(v)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return nil, false
	}
	return &id, true
}

func queryInt(w http.ResponseWriter, v, name string) (int, bool) {
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be an integer")
		return 0, false
	}
	return n, true
}

func handleSchedulingError(w http.ResponseWriter, err error) {
	var (
		rule     *scheduling.RuleViolationError
		conflict *scheduling.ConflictError
	)

	switch {
	case errors.As(err, &rule):
		writeError(w, http.StatusBadRequest, ruleCode(rule.Rule), rule.Detail)
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, string(conflict.Dimension)+"_conflict", conflict.Error())
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, scheduling.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, scheduling.ErrClinicianNotFound):
		writeError(w, http.StatusNotFound, "clinician_not_found", err.Error())
	case errors.Is(err, scheduling.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, "room_not_found", err.Error())
	case errors.Is(err, scheduling.ErrServiceNotFound):
		writeError(w, http.StatusNotFound, "service_not_found", err.Error())
	case errors.Is(err, scheduling.ErrCancellationWindow):
		writeError(w, http.StatusConflict, "cancellation_window_closed",
			"appointments cannot be cancelled with less than the required lead time; please call the clinic")
	case errors.Is(err, scheduling.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
	case errors.Is(err, scheduling.ErrEndBeforeStart),
		errors.Is(err, scheduling.ErrCrossesMidnight):
		writeError(w, http.StatusBadRequest, "invalid_time_range", err.Error())
	case errors.Is(err, scheduling.ErrScheduleBusy):
		writeError(w, http.StatusConflict, "schedule_busy", "this schedule is being modified, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func ruleCode(r scheduling.Rule) string {
	switch r {
	case scheduling.RuleWeekend:
		return "weekend_not_allowed"
	case scheduling.RuleOutOfHours:
		return "outside_operating_hours"
	case scheduling.RulePastSlot:
		return "slot_in_past"
	}
	return "rule_violation"
}
