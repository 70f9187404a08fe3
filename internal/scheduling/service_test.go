package scheduling

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic-scheduler/internal/config"
	redisclient "github.com/clinicdesk/clinic-scheduler/internal/redis"
)

// memRepo is an in-memory Repository for exercising the scheduler without
// Postgres. Overlap detection reuses the same predicate the SQL query
// implements.
type memRepo struct {
	appointments map[uuid.UUID]Appointment
	patients     map[uuid.UUID]Patient
	clinicians   map[uuid.UUID]Clinician
	rooms        map[uuid.UUID]Room
	services     map[uuid.UUID]Service

	events       []EventLog
	statusWrites int
}

func newMemRepo() *memRepo {
	return &memRepo{
		appointments: make(map[uuid.UUID]Appointment),
		patients:     make(map[uuid.UUID]Patient),
		clinicians:   make(map[uuid.UUID]Clinician),
		rooms:        make(map[uuid.UUID]Room),
		services:     make(map[uuid.UUID]Service),
	}
}

func (m *memRepo) HasOverlap(_ context.Context, q OverlapQuery) (bool, error) {
	for _, a := range m.appointments {
		if a.Status == StatusCancelled || a.Date != q.Date {
			continue
		}
		if q.ExcludeID != nil && a.ID == *q.ExcludeID {
			continue
		}
		var ref *uuid.UUID
		switch q.Dimension {
		case DimensionClinician:
			ref = a.ClinicianID
		case DimensionRoom:
			ref = a.RoomID
		case DimensionPatient:
			id := a.PatientID
			ref = &id
		}
		if ref == nil || *ref != q.RefID {
			continue
		}
		if Overlaps(a.Start, a.End, q.Start, q.End) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) GetServiceByID(_ context.Context, id uuid.UUID) (*Service, error) {
	if s, ok := m.services[id]; ok {
		return &s, nil
	}
	return nil, ErrServiceNotFound
}

func (m *memRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	if p, ok := m.patients[id]; ok {
		return &p, nil
	}
	return nil, ErrPatientNotFound
}

func (m *memRepo) GetClinicianByID(_ context.Context, id uuid.UUID) (*Clinician, error) {
	if c, ok := m.clinicians[id]; ok {
		return &c, nil
	}
	return nil, ErrClinicianNotFound
}

func (m *memRepo) GetRoomByID(_ context.Context, id uuid.UUID) (*Room, error) {
	if r, ok := m.rooms[id]; ok {
		return &r, nil
	}
	return nil, ErrRoomNotFound
}

func (m *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	if a, ok := m.appointments[id]; ok {
		return &a, nil
	}
	return nil, ErrAppointmentNotFound
}

func (m *memRepo) InsertAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.appointments[a.ID] = a
	return &a, nil
}

func (m *memRepo) UpdateAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	if _, ok := m.appointments[a.ID]; !ok {
		return nil, ErrAppointmentNotFound
	}
	a.UpdatedAt = time.Now()
	m.appointments[a.ID] = a
	return &a, nil
}

func (m *memRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, to Status) error {
	a, ok := m.appointments[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	a.Status = to
	m.appointments[id] = a
	m.statusWrites++
	return nil
}

func (m *memRepo) DeleteAppointment(_ context.Context, id uuid.UUID) error {
	if _, ok := m.appointments[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(m.appointments, id)
	return nil
}

func (m *memRepo) ListAppointments(_ context.Context, f ListFilter) ([]Appointment, error) {
	var out []Appointment
	for _, a := range m.appointments {
		if f.Date != nil && a.Date != *f.Date {
			continue
		}
		if f.From != nil && a.Date.Before(*f.From) {
			continue
		}
		if f.To != nil && f.To.Before(a.Date) {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if f.ClinicianID != nil && (a.ClinicianID == nil || *a.ClinicianID != *f.ClinicianID) {
			continue
		}
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.RoomID != nil && (a.RoomID == nil || *a.RoomID != *f.RoomID) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Start < out[j].Start
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	m.events = append(m.events, ev)
	return nil
}

// noopLocker runs the critical section without any locking.
type noopLocker struct{}

func (noopLocker) WithScheduleLock(ctx context.Context, _ []string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fixture struct {
	repo      *memRepo
	sched     *Scheduler
	patient   uuid.UUID
	clinician uuid.UUID
	room      uuid.UUID
	service   uuid.UUID
}

// newFixture builds a scheduler frozen at Tuesday 2025-03-04 09:00 UTC with
// one patient, clinician, room and a 30 minute service on file.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := newMemRepo()
	f := &fixture{
		repo:      repo,
		patient:   uuid.New(),
		clinician: uuid.New(),
		room:      uuid.New(),
		service:   uuid.New(),
	}
	repo.patients[f.patient] = Patient{ID: f.patient, Name: "Ana Suarez"}
	repo.clinicians[f.clinician] = Clinician{ID: f.clinician, Name: "Dr. Molina"}
	repo.rooms[f.room] = Room{ID: f.room, Name: "Room 101"}
	repo.services[f.service] = Service{ID: f.service, Name: "Consultation", DurationMinutes: 30}

	f.sched = NewScheduler(repo, noopLocker{}, config.Config{
		OpenMinute:      8 * 60,
		CloseMinute:     22 * 60,
		DefaultDuration: 30 * time.Minute,
		RequireService:  false,
		CancelLead:      24 * time.Hour,
	}, zerolog.Nop())
	f.sched.now = func() time.Time {
		return time.Date(2025, time.March, 4, 9, 0, 0, 0, time.UTC)
	}
	return f
}

func (f *fixture) book(t *testing.T, date Date, start TimeOfDay) *Appointment {
	t.Helper()
	appt, err := f.sched.Create(context.Background(), CreateRequest{
		PatientID:   f.patient,
		ClinicianID: &f.clinician,
		RoomID:      &f.room,
		ServiceID:   &f.service,
		Date:        date,
		Start:       start,
	})
	if err != nil {
		t.Fatalf("book %s %s: %v", date, start, err)
	}
	return appt
}

func TestSchedulerCreate(t *testing.T) {
	f := newFixture(t)
	date := NewDate(2025, time.March, 10)

	t.Run("happy path", func(t *testing.T) {
		appt := f.book(t, date, NewTimeOfDay(10, 0))

		if appt.Status != StatusPending {
			t.Errorf("status = %s, want pending", appt.Status)
		}
		if appt.End != NewTimeOfDay(10, 30) {
			t.Errorf("end = %v, want 10:30", appt.End)
		}
		if len(f.repo.events) != 1 || f.repo.events[0].EventType != EventAppointmentBooked {
			t.Errorf("expected one booked event, got %+v", f.repo.events)
		}
	})

	t.Run("clinician conflict on overlapping slot", func(t *testing.T) {
		otherPatient := uuid.New()
		f.repo.patients[otherPatient] = Patient{ID: otherPatient, Name: "Luis Paz"}

		_, err := f.sched.Create(context.Background(), CreateRequest{
			PatientID:   otherPatient,
			ClinicianID: &f.clinician,
			ServiceID:   &f.service,
			Date:        date,
			Start:       NewTimeOfDay(10, 15),
		})
		var conflict *ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
		if conflict.Dimension != DimensionClinician {
			t.Errorf("dimension = %s, want clinician", conflict.Dimension)
		}
	})

	t.Run("back to back slot accepted", func(t *testing.T) {
		otherPatient := uuid.New()
		f.repo.patients[otherPatient] = Patient{ID: otherPatient, Name: "Luis Paz"}

		if _, err := f.sched.Create(context.Background(), CreateRequest{
			PatientID:   otherPatient,
			ClinicianID: &f.clinician,
			ServiceID:   &f.service,
			Date:        date,
			Start:       NewTimeOfDay(10, 30),
		}); err != nil {
			t.Fatalf("back to back booking should succeed: %v", err)
		}
	})
}

func TestSchedulerCreateRejections(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		req   CreateRequest
		check func(t *testing.T, err error)
	}{
		{
			name: "weekend",
			req: CreateRequest{
				PatientID: f.patient,
				Date:      NewDate(2025, time.March, 8),
				Start:     NewTimeOfDay(10, 0),
			},
			check: func(t *testing.T, err error) {
				var rv *RuleViolationError
				if !errors.As(err, &rv) || rv.Rule != RuleWeekend {
					t.Fatalf("expected weekend violation, got %v", err)
				}
			},
		},
		{
			name: "before opening",
			req: CreateRequest{
				PatientID: f.patient,
				Date:      NewDate(2025, time.March, 10),
				Start:     NewTimeOfDay(7, 30),
			},
			check: func(t *testing.T, err error) {
				var rv *RuleViolationError
				if !errors.As(err, &rv) || rv.Rule != RuleOutOfHours {
					t.Fatalf("expected out of hours violation, got %v", err)
				}
			},
		},
		{
			name: "slot in the past",
			req: CreateRequest{
				PatientID: f.patient,
				Date:      NewDate(2025, time.March, 3),
				Start:     NewTimeOfDay(10, 0),
			},
			check: func(t *testing.T, err error) {
				var rv *RuleViolationError
				if !errors.As(err, &rv) || rv.Rule != RulePastSlot {
					t.Fatalf("expected past slot violation, got %v", err)
				}
			},
		},
		{
			name: "unknown patient",
			req: CreateRequest{
				PatientID: uuid.New(),
				Date:      NewDate(2025, time.March, 10),
				Start:     NewTimeOfDay(10, 0),
			},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrPatientNotFound) {
					t.Fatalf("expected ErrPatientNotFound, got %v", err)
				}
			},
		},
		{
			name: "unknown clinician",
			req: func() CreateRequest {
				bogus := uuid.New()
				return CreateRequest{
					PatientID:   f.patient,
					ClinicianID: &bogus,
					Date:        NewDate(2025, time.March, 10),
					Start:       NewTimeOfDay(10, 0),
				}
			}(),
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrClinicianNotFound) {
					t.Fatalf("expected ErrClinicianNotFound, got %v", err)
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.sched.Create(context.Background(), tc.req)
			if err == nil {
				t.Fatal("expected rejection")
			}
			tc.check(t, err)

			if len(f.repo.appointments) != 0 {
				t.Errorf("rejected request must not persist anything, have %d appointments", len(f.repo.appointments))
			}
		})
	}
}

func TestSchedulerUpdate(t *testing.T) {
	date := NewDate(2025, time.March, 10)

	t.Run("notes only skips revalidation", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, date, NewTimeOfDay(10, 0))

		// Freeze time after the slot has passed; a notes-only edit must
		// still succeed because the slot placement did not change.
		f.sched.now = func() time.Time {
			return time.Date(2025, time.March, 11, 9, 0, 0, 0, time.UTC)
		}

		notes := "patient asked for a reminder call"
		updated, err := f.sched.Update(context.Background(), appt.ID, UpdateRequest{Notes: &notes})
		if err != nil {
			t.Fatalf("notes update: %v", err)
		}
		if updated.Notes != notes {
			t.Errorf("notes = %q, want %q", updated.Notes, notes)
		}
		if updated.Date != appt.Date || updated.Start != appt.Start || updated.End != appt.End {
			t.Errorf("slot fields must be untouched: %+v", updated)
		}
	})

	t.Run("slot change revalidates excluding self", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, date, NewTimeOfDay(10, 0))

		// Moving a half hour later still overlaps the appointment's own
		// old slot; the self-exclusion keeps that from counting.
		start := NewTimeOfDay(10, 15)
		updated, err := f.sched.Update(context.Background(), appt.ID, UpdateRequest{Start: &start})
		if err != nil {
			t.Fatalf("slot update: %v", err)
		}
		if updated.Start != start || updated.End != NewTimeOfDay(10, 45) {
			t.Errorf("slot = %v-%v, want 10:15-10:45", updated.Start, updated.End)
		}
	})

	t.Run("slot change into another booking conflicts", func(t *testing.T) {
		f := newFixture(t)
		f.book(t, date, NewTimeOfDay(10, 0))

		otherPatient := uuid.New()
		f.repo.patients[otherPatient] = Patient{ID: otherPatient, Name: "Luis Paz"}
		second, err := f.sched.Create(context.Background(), CreateRequest{
			PatientID:   otherPatient,
			ClinicianID: &f.clinician,
			ServiceID:   &f.service,
			Date:        date,
			Start:       NewTimeOfDay(11, 0),
		})
		if err != nil {
			t.Fatalf("second booking: %v", err)
		}

		start := NewTimeOfDay(10, 15)
		_, err = f.sched.Update(context.Background(), second.ID, UpdateRequest{Start: &start})
		var conflict *ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
	})

	t.Run("explicit null clears the clinician", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, date, NewTimeOfDay(10, 0))

		updated, err := f.sched.Update(context.Background(), appt.ID, UpdateRequest{ClinicianID: ClearRef()})
		if err != nil {
			t.Fatalf("clear clinician: %v", err)
		}
		if updated.ClinicianID != nil {
			t.Errorf("clinician = %v, want nil", updated.ClinicianID)
		}
	})

	t.Run("cleared clinician no longer conflicts", func(t *testing.T) {
		f := newFixture(t)

		if _, err := f.sched.Create(context.Background(), CreateRequest{
			PatientID:   f.patient,
			ClinicianID: &f.clinician,
			ServiceID:   &f.service,
			Date:        date,
			Start:       NewTimeOfDay(10, 0),
		}); err != nil {
			t.Fatalf("first booking: %v", err)
		}

		otherPatient := uuid.New()
		f.repo.patients[otherPatient] = Patient{ID: otherPatient, Name: "Luis Paz"}
		second, err := f.sched.Create(context.Background(), CreateRequest{
			PatientID:   otherPatient,
			ClinicianID: &f.clinician,
			ServiceID:   &f.service,
			Date:        date,
			Start:       NewTimeOfDay(11, 0),
		})
		if err != nil {
			t.Fatalf("second booking: %v", err)
		}

		// Dropping the shared clinician removes the only overlapping
		// dimension, so the slot shift is accepted.
		start := NewTimeOfDay(10, 15)
		updated, err := f.sched.Update(context.Background(), second.ID, UpdateRequest{
			Start:       &start,
			ClinicianID: ClearRef(),
		})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if updated.ClinicianID != nil {
			t.Errorf("clinician = %v, want nil", updated.ClinicianID)
		}
	})

	t.Run("weekend target rejected", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, date, NewTimeOfDay(10, 0))

		weekend := NewDate(2025, time.March, 15)
		_, err := f.sched.Update(context.Background(), appt.ID, UpdateRequest{Date: &weekend})
		var rv *RuleViolationError
		if !errors.As(err, &rv) || rv.Rule != RuleWeekend {
			t.Fatalf("expected weekend violation, got %v", err)
		}
	})

	t.Run("unknown appointment", func(t *testing.T) {
		f := newFixture(t)
		notes := "x"
		if _, err := f.sched.Update(context.Background(), uuid.New(), UpdateRequest{Notes: &notes}); !errors.Is(err, ErrAppointmentNotFound) {
			t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
		}
	})
}

func TestSchedulerMove(t *testing.T) {
	date := NewDate(2025, time.March, 10)

	t.Run("preserves duration", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, date, NewTimeOfDay(10, 0))

		target := NewDate(2025, time.March, 12)
		moved, err := f.sched.Move(context.Background(), appt.ID, target, NewTimeOfDay(14, 0), nil)
		if err != nil {
			t.Fatalf("move: %v", err)
		}
		if moved.Date != target || moved.Start != NewTimeOfDay(14, 0) || moved.End != NewTimeOfDay(14, 30) {
			t.Errorf("moved slot = %s %v-%v, want 2025-03-12 14:00-14:30", moved.Date, moved.Start, moved.End)
		}
	})

	t.Run("explicit end overrides duration", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, date, NewTimeOfDay(10, 0))

		end := NewTimeOfDay(15, 0)
		moved, err := f.sched.Move(context.Background(), appt.ID, date, NewTimeOfDay(14, 0), &end)
		if err != nil {
			t.Fatalf("move: %v", err)
		}
		if moved.End != end {
			t.Errorf("end = %v, want 15:00", moved.End)
		}
	})

	t.Run("end at midnight rejected", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, date, NewTimeOfDay(10, 0))

		end := NewTimeOfDay(24, 0)
		if _, err := f.sched.Move(context.Background(), appt.ID, date, NewTimeOfDay(21, 30), &end); !errors.Is(err, ErrCrossesMidnight) {
			t.Fatalf("expected ErrCrossesMidnight, got %v", err)
		}
	})

	t.Run("end before start rejected", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, date, NewTimeOfDay(10, 0))

		end := NewTimeOfDay(13, 0)
		if _, err := f.sched.Move(context.Background(), appt.ID, date, NewTimeOfDay(14, 0), &end); !errors.Is(err, ErrEndBeforeStart) {
			t.Fatalf("expected ErrEndBeforeStart, got %v", err)
		}
	})

	t.Run("move into occupied slot conflicts", func(t *testing.T) {
		f := newFixture(t)
		f.book(t, date, NewTimeOfDay(10, 0))

		otherPatient := uuid.New()
		f.repo.patients[otherPatient] = Patient{ID: otherPatient, Name: "Luis Paz"}
		second, err := f.sched.Create(context.Background(), CreateRequest{
			PatientID:   otherPatient,
			ClinicianID: &f.clinician,
			ServiceID:   &f.service,
			Date:        date,
			Start:       NewTimeOfDay(11, 0),
		})
		if err != nil {
			t.Fatalf("second booking: %v", err)
		}

		_, err = f.sched.Move(context.Background(), second.ID, date, NewTimeOfDay(10, 15), nil)
		var conflict *ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
	})
}

func TestSchedulerChangeStatus(t *testing.T) {
	date := NewDate(2025, time.March, 10)

	t.Run("confirm then complete", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, date, NewTimeOfDay(10, 0))

		if err := f.sched.ChangeStatus(context.Background(), appt.ID, StatusConfirmed); err != nil {
			t.Fatalf("confirm: %v", err)
		}
		if err := f.sched.ChangeStatus(context.Background(), appt.ID, StatusCompleted); err != nil {
			t.Fatalf("complete: %v", err)
		}
		if got := f.repo.appointments[appt.ID].Status; got != StatusCompleted {
			t.Errorf("status = %s, want completed", got)
		}
	})

	t.Run("cancel inside window rejected", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, date, NewTimeOfDay(10, 0))

		// 2025-03-09 20:00 is 14 hours before the 2025-03-10 10:00 slot.
		f.sched.now = func() time.Time {
			return time.Date(2025, time.March, 9, 20, 0, 0, 0, time.UTC)
		}
		if err := f.sched.ChangeStatus(context.Background(), appt.ID, StatusCancelled); !errors.Is(err, ErrCancellationWindow) {
			t.Fatalf("expected ErrCancellationWindow, got %v", err)
		}
		if got := f.repo.appointments[appt.ID].Status; got != StatusPending {
			t.Errorf("status = %s, want pending", got)
		}
	})

	t.Run("cancel well ahead accepted", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, date, NewTimeOfDay(10, 0))

		if err := f.sched.ChangeStatus(context.Background(), appt.ID, StatusCancelled); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if got := f.repo.appointments[appt.ID].Status; got != StatusCancelled {
			t.Errorf("status = %s, want cancelled", got)
		}
	})

	t.Run("re-cancel is a no-op without a write", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, date, NewTimeOfDay(10, 0))

		if err := f.sched.ChangeStatus(context.Background(), appt.ID, StatusCancelled); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		writes := f.repo.statusWrites
		if err := f.sched.ChangeStatus(context.Background(), appt.ID, StatusCancelled); err != nil {
			t.Fatalf("re-cancel: %v", err)
		}
		if f.repo.statusWrites != writes {
			t.Errorf("re-cancel must not write, writes %d -> %d", writes, f.repo.statusWrites)
		}
	})

	t.Run("cancelled slot frees the calendar", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, date, NewTimeOfDay(10, 0))

		if err := f.sched.ChangeStatus(context.Background(), appt.ID, StatusCancelled); err != nil {
			t.Fatalf("cancel: %v", err)
		}

		otherPatient := uuid.New()
		f.repo.patients[otherPatient] = Patient{ID: otherPatient, Name: "Luis Paz"}
		if _, err := f.sched.Create(context.Background(), CreateRequest{
			PatientID:   otherPatient,
			ClinicianID: &f.clinician,
			ServiceID:   &f.service,
			Date:        date,
			Start:       NewTimeOfDay(10, 0),
		}); err != nil {
			t.Fatalf("rebooking a cancelled slot should succeed: %v", err)
		}
	})
}

func TestSchedulerList(t *testing.T) {
	f := newFixture(t)

	f.book(t, NewDate(2025, time.March, 11), NewTimeOfDay(9, 0))
	f.book(t, NewDate(2025, time.March, 10), NewTimeOfDay(14, 0))
	f.book(t, NewDate(2025, time.March, 10), NewTimeOfDay(9, 0))

	t.Run("ordered by date then start", func(t *testing.T) {
		appts, err := f.sched.List(context.Background(), ListFilter{})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(appts) != 3 {
			t.Fatalf("len = %d, want 3", len(appts))
		}
		want := []struct {
			date  Date
			start TimeOfDay
		}{
			{NewDate(2025, time.March, 10), NewTimeOfDay(9, 0)},
			{NewDate(2025, time.March, 10), NewTimeOfDay(14, 0)},
			{NewDate(2025, time.March, 11), NewTimeOfDay(9, 0)},
		}
		for i, w := range want {
			if appts[i].Date != w.date || appts[i].Start != w.start {
				t.Errorf("appts[%d] = %s %v, want %s %v", i, appts[i].Date, appts[i].Start, w.date, w.start)
			}
		}
	})

	t.Run("pagination", func(t *testing.T) {
		appts, err := f.sched.List(context.Background(), ListFilter{Offset: 1, Limit: 1})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(appts) != 1 || appts[0].Start != NewTimeOfDay(14, 0) {
			t.Fatalf("page = %+v, want the 14:00 slot alone", appts)
		}
	})

	t.Run("calendar range", func(t *testing.T) {
		appts, err := f.sched.Calendar(context.Background(),
			NewDate(2025, time.March, 11), NewDate(2025, time.March, 12), nil, nil, nil)
		if err != nil {
			t.Fatalf("calendar: %v", err)
		}
		if len(appts) != 1 || appts[0].Date != NewDate(2025, time.March, 11) {
			t.Fatalf("calendar = %+v, want only 2025-03-11", appts)
		}
	})

	t.Run("today", func(t *testing.T) {
		f.sched.now = func() time.Time {
			return time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
		}
		appts, err := f.sched.Today(context.Background())
		if err != nil {
			t.Fatalf("today: %v", err)
		}
		if len(appts) != 2 {
			t.Fatalf("today len = %d, want 2", len(appts))
		}
	})
}

func TestSchedulerDelete(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, NewDate(2025, time.March, 10), NewTimeOfDay(10, 0))

	if err := f.sched.Delete(context.Background(), appt.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.sched.Get(context.Background(), appt.ID); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound after delete, got %v", err)
	}
	if err := f.sched.Delete(context.Background(), appt.ID); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound on double delete, got %v", err)
	}
}

func TestSchedulerBusySchedule(t *testing.T) {
	f := newFixture(t)
	f.sched.locker = busyLocker{}

	_, err := f.sched.Create(context.Background(), CreateRequest{
		PatientID: f.patient,
		Date:      NewDate(2025, time.March, 10),
		Start:     NewTimeOfDay(10, 0),
	})
	if !errors.Is(err, ErrScheduleBusy) {
		t.Fatalf("expected ErrScheduleBusy, got %v", err)
	}
}

type busyLocker struct{}

func (busyLocker) WithScheduleLock(context.Context, []string, func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}
