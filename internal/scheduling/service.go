package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic-scheduler/internal/config"
	redisclient "github.com/clinicdesk/clinic-scheduler/internal/redis"
)

const (
	EventAppointmentBooked  = "APPOINTMENT_BOOKED"
	EventAppointmentUpdated = "APPOINTMENT_UPDATED"
	EventAppointmentMoved   = "APPOINTMENT_MOVED"
	EventStatusChanged      = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentDeleted = "APPOINTMENT_DELETED"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
	calendarMaxRows  = 1000
)

// Scheduler owns all appointment mutation. Requests flow through duration
// resolution, the rule validator and the conflict detector before anything
// is written; the conflict check and the write are held under a per-key
// schedule lock so two concurrent requests cannot double-book.
type Scheduler struct {
	repo       Repository
	locker     redisclient.Locker
	hours      Hours
	duration   DurationPolicy
	cancelLead time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

func NewScheduler(repo Repository, locker redisclient.Locker, cfg config.Config, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		repo:   repo,
		locker: locker,
		hours: Hours{
			Open:  TimeOfDay(cfg.OpenMinute),
			Close: TimeOfDay(cfg.CloseMinute),
		},
		duration: DurationPolicy{
			Fallback:       cfg.DefaultDuration,
			RequireService: cfg.RequireService,
		},
		cancelLead: cfg.CancelLead,
		log:        log,
		now:        time.Now,
	}
}

type CreateRequest struct {
	PatientID   uuid.UUID
	ClinicianID *uuid.UUID
	RoomID      *uuid.UUID
	ServiceID   *uuid.UUID
	Date        Date
	Start       TimeOfDay
	Reason      string
	Notes       string
}

// Create books a new pending appointment.
func (s *Scheduler) Create(ctx context.Context, req CreateRequest) (*Appointment, error) {
	if err := s.checkReferences(ctx, &req.PatientID, req.ClinicianID, req.RoomID); err != nil {
		return nil, err
	}

	end, err := ResolveEnd(ctx, s.repo, s.duration, req.Start, req.ServiceID)
	if err != nil {
		return nil, err
	}

	if err := ValidateSlot(req.Date, req.Start, s.now(), s.hours); err != nil {
		return nil, err
	}

	candidate := Appointment{
		ID:          uuid.New(),
		Date:        req.Date,
		Start:       req.Start,
		End:         end,
		Status:      StatusPending,
		PatientID:   req.PatientID,
		ClinicianID: req.ClinicianID,
		ServiceID:   req.ServiceID,
		RoomID:      req.RoomID,
		Reason:      req.Reason,
		Notes:       req.Notes,
	}

	var created *Appointment
	err = s.withSlotLock(ctx, candidate, func(lockCtx context.Context) error {
		if err := DetectConflict(lockCtx, s.repo, ConflictProbe{
			Date:        candidate.Date,
			Start:       candidate.Start,
			End:         candidate.End,
			ClinicianID: candidate.ClinicianID,
			RoomID:      candidate.RoomID,
			PatientID:   &candidate.PatientID,
		}); err != nil {
			return err
		}

		appt, err := s.repo.InsertAppointment(lockCtx, candidate)
		if err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentBooked, map[string]any{
			"date":  appt.Date.String(),
			"start": appt.Start.String(),
			"end":   appt.End.String(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// OptionalRef is a tri-state reference for partial updates: left alone,
// set to an id, or explicitly cleared (Set with a nil ID).
type OptionalRef struct {
	Set bool
	ID  *uuid.UUID
}

func RefTo(id uuid.UUID) OptionalRef { return OptionalRef{Set: true, ID: &id} }
func ClearRef() OptionalRef          { return OptionalRef{Set: true} }

type UpdateRequest struct {
	Date        *Date
	Start       *TimeOfDay
	PatientID   *uuid.UUID
	ClinicianID OptionalRef
	RoomID      OptionalRef
	ServiceID   OptionalRef
	Reason      *string
	Notes       *string
}

// slotChanged reports whether the update touches any field that places the
// appointment on the calendar, which forces full re-validation.
func (r UpdateRequest) slotChanged() bool {
	return r.Date != nil || r.Start != nil || r.ClinicianID.Set ||
		r.RoomID.Set || r.ServiceID.Set
}

// Update merges the supplied fields over the stored appointment. If the
// slot placement changed, the merged candidate is re-validated and
// conflict-checked, excluding the appointment's own occupancy.
func (s *Scheduler) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	merged := *appt
	if req.Date != nil {
		merged.Date = *req.Date
	}
	if req.Start != nil {
		merged.Start = *req.Start
	}
	if req.PatientID != nil {
		merged.PatientID = *req.PatientID
	}
	if req.ClinicianID.Set {
		merged.ClinicianID = req.ClinicianID.ID
	}
	if req.RoomID.Set {
		merged.RoomID = req.RoomID.ID
	}
	if req.ServiceID.Set {
		merged.ServiceID = req.ServiceID.ID
	}
	if req.Reason != nil {
		merged.Reason = *req.Reason
	}
	if req.Notes != nil {
		merged.Notes = *req.Notes
	}

	if err := s.checkReferences(ctx, req.PatientID, req.ClinicianID.ID, req.RoomID.ID); err != nil {
		return nil, err
	}

	if !req.slotChanged() {
		updated, err := s.repo.UpdateAppointment(ctx, merged)
		if err != nil {
			return nil, fmt.Errorf("update appointment: %w", err)
		}
		return updated, nil
	}

	end, err := ResolveEnd(ctx, s.repo, s.duration, merged.Start, merged.ServiceID)
	if err != nil {
		return nil, err
	}
	merged.End = end

	if err := ValidateSlot(merged.Date, merged.Start, s.now(), s.hours); err != nil {
		return nil, err
	}

	var updated *Appointment
	err = s.withSlotLock(ctx, merged, func(lockCtx context.Context) error {
		if err := DetectConflict(lockCtx, s.repo, ConflictProbe{
			Date:        merged.Date,
			Start:       merged.Start,
			End:         merged.End,
			ClinicianID: merged.ClinicianID,
			RoomID:      merged.RoomID,
			PatientID:   &merged.PatientID,
			ExcludeID:   &merged.ID,
		}); err != nil {
			return err
		}

		a, err := s.repo.UpdateAppointment(lockCtx, merged)
		if err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		updated = a

		s.logEvent(lockCtx, a.ID, EventAppointmentUpdated, map[string]any{
			"date":  a.Date.String(),
			"start": a.Start.String(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Move reschedules an appointment to a new date and start. The original
// duration is preserved unless a new end is supplied.
func (s *Scheduler) Move(ctx context.Context, id uuid.UUID, newDate Date, newStart TimeOfDay, newEnd *TimeOfDay) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	end := newStart.Add(int(appt.End - appt.Start))
	if newEnd != nil {
		end = *newEnd
	}
	if end <= newStart {
		return nil, ErrEndBeforeStart
	}
	if !end.Valid() {
		return nil, ErrCrossesMidnight
	}

	if err := ValidateSlot(newDate, newStart, s.now(), s.hours); err != nil {
		return nil, err
	}

	moved := *appt
	moved.Date = newDate
	moved.Start = newStart
	moved.End = end

	var updated *Appointment
	err = s.withSlotLock(ctx, moved, func(lockCtx context.Context) error {
		if err := DetectConflict(lockCtx, s.repo, ConflictProbe{
			Date:        moved.Date,
			Start:       moved.Start,
			End:         moved.End,
			ClinicianID: moved.ClinicianID,
			RoomID:      moved.RoomID,
			PatientID:   &moved.PatientID,
			ExcludeID:   &moved.ID,
		}); err != nil {
			return err
		}

		a, err := s.repo.UpdateAppointment(lockCtx, moved)
		if err != nil {
			return fmt.Errorf("move appointment: %w", err)
		}
		updated = a

		s.logEvent(lockCtx, a.ID, EventAppointmentMoved, map[string]any{
			"date":  a.Date.String(),
			"start": a.Start.String(),
			"end":   a.End.String(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// ChangeStatus runs the requested transition through the state machine and
// persists it only when accepted. No-op transitions succeed without a write.
func (s *Scheduler) ChangeStatus(ctx context.Context, id uuid.UUID, to Status) error {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return err
	}

	apply, err := Transition(*appt, to, s.now(), s.cancelLead)
	if err != nil {
		return err
	}
	if !apply {
		return nil
	}

	if err := s.repo.UpdateAppointmentStatus(ctx, id, to); err != nil {
		return fmt.Errorf("change status: %w", err)
	}

	s.logEvent(ctx, id, EventStatusChanged, map[string]any{
		"from": string(appt.Status),
		"to":   string(to),
	})
	return nil
}

func (s *Scheduler) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

// Delete removes an appointment outright. This is an administrative
// operation, not part of the lifecycle; cancellation is a status change.
func (s *Scheduler) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteAppointment(ctx, id); err != nil {
		return err
	}
	s.logEvent(ctx, id, EventAppointmentDeleted, nil)
	return nil
}

// List returns appointments matching the filter, ordered by date then
// start, with offset/limit pagination.
func (s *Scheduler) List(ctx context.Context, f ListFilter) ([]Appointment, error) {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	appts, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// Calendar returns all appointments inside [from, to] for calendar
// rendering, optionally narrowed to one clinician, room or status.
func (s *Scheduler) Calendar(ctx context.Context, from, to Date, clinicianID, roomID *uuid.UUID, status *Status) ([]Appointment, error) {
	appts, err := s.repo.ListAppointments(ctx, ListFilter{
		From:        &from,
		To:          &to,
		ClinicianID: clinicianID,
		RoomID:      roomID,
		Status:      status,
		Limit:       calendarMaxRows,
	})
	if err != nil {
		return nil, fmt.Errorf("calendar query: %w", err)
	}
	return appts, nil
}

// Today lists the current day's appointments for the reception desk.
func (s *Scheduler) Today(ctx context.Context) ([]Appointment, error) {
	today := DateOf(s.now())
	return s.List(ctx, ListFilter{Date: &today})
}

// checkReferences verifies that the supplied entity ids exist. Nil ids are
// skipped.
func (s *Scheduler) checkReferences(ctx context.Context, patientID, clinicianID, roomID *uuid.UUID) error {
	if patientID != nil {
		if _, err := s.repo.GetPatientByID(ctx, *patientID); err != nil {
			if errors.Is(err, ErrPatientNotFound) {
				return err
			}
			return fmt.Errorf("load patient: %w", err)
		}
	}
	if clinicianID != nil {
		if _, err := s.repo.GetClinicianByID(ctx, *clinicianID); err != nil {
			if errors.Is(err, ErrClinicianNotFound) {
				return err
			}
			return fmt.Errorf("load clinician: %w", err)
		}
	}
	if roomID != nil {
		if _, err := s.repo.GetRoomByID(ctx, *roomID); err != nil {
			if errors.Is(err, ErrRoomNotFound) {
				return err
			}
			return fmt.Errorf("load room: %w", err)
		}
	}
	return nil
}

// withSlotLock holds an advisory lock for every dimension the appointment
// occupies on its date, so the conflict check and the write happen as one
// critical section per key.
func (s *Scheduler) withSlotLock(ctx context.Context, a Appointment, fn func(ctx context.Context) error) error {
	keys := scheduleLockKeys(a)
	err := s.locker.WithScheduleLock(ctx, keys, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrScheduleBusy
	}
	return err
}

func scheduleLockKeys(a Appointment) []string {
	keys := []string{
		fmt.Sprintf("patient:%s:%s", a.PatientID, a.Date),
	}
	if a.ClinicianID != nil {
		keys = append(keys, fmt.Sprintf("clinician:%s:%s", a.ClinicianID, a.Date))
	}
	if a.RoomID != nil {
		keys = append(keys, fmt.Sprintf("room:%s:%s", a.RoomID, a.Date))
	}
	return keys
}

func (s *Scheduler) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event", eventType).Msg("marshal event payload")
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn().Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("insert event log")
	}
}
