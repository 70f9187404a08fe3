package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Dates and times of day travel as text so the minute-granularity domain
// types stay the single representation on both sides of the driver.
const appointmentColumns = `
	id,
	to_char(date, 'YYYY-MM-DD'),
	to_char(start_time, 'HH24:MI'),
	to_char(end_time, 'HH24:MI'),
	status,
	patient_id,
	clinician_id,
	room_id,
	service_id,
	reason,
	notes,
	created_at,
	updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a        Appointment
		dateStr  string
		startStr string
		endStr   string
		status   string
	)

	err := row.Scan(
		&a.ID,
		&dateStr,
		&startStr,
		&endStr,
		&status,
		&a.PatientID,
		&a.ClinicianID,
		&a.RoomID,
		&a.ServiceID,
		&a.Reason,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if a.Date, err = ParseDate(dateStr); err != nil {
		return nil, err
	}
	if a.Start, err = ParseTimeOfDay(startStr); err != nil {
		return nil, err
	}
	if a.End, err = ParseTimeOfDay(endStr); err != nil {
		return nil, err
	}
	if a.Status, err = ParseStatus(status); err != nil {
		return nil, err
	}

	return &a, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanClinician(row pgx.Row) (*Clinician, error) {
	var c Clinician
	err := row.Scan(&c.ID, &c.Name, &c.Specialty, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicianNotFound
		}
		return nil, err
	}
	return &c, nil
}

func scanRoom(row pgx.Row) (*Room, error) {
	var rm Room
	err := row.Scan(&rm.ID, &rm.Name, &rm.CreatedAt, &rm.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return &rm, nil
}

func scanService(row pgx.Row) (*Service, error) {
	var s Service
	err := row.Scan(&s.ID, &s.Name, &s.Description, &s.DurationMinutes, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	return &s, nil
}

// mapConstraintError turns an exclusion or uniqueness violation on one of
// the no-overlap constraints into the ConflictError the scheduler expects.
// The schedule lock makes these rare, but the constraints are the invariant
// of last resort when two writers race past the check.
func mapConstraintError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	if pgErr.Code != "23P01" && pgErr.Code != "23505" {
		return err
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, "room"):
		return &ConflictError{Dimension: DimensionRoom}
	case strings.Contains(pgErr.ConstraintName, "patient"):
		return &ConflictError{Dimension: DimensionPatient}
	default:
		return &ConflictError{Dimension: DimensionClinician}
	}
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetClinicianByID(ctx context.Context, id uuid.UUID) (*Clinician, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM clinicians
		WHERE id = $1
	`, id)
	return scanClinician(row)
}

func (r *PgRepository) GetRoomByID(ctx context.Context, id uuid.UUID) (*Room, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, created_at, updated_at
		FROM rooms
		WHERE id = $1
	`, id)
	return scanRoom(row)
}

func (r *PgRepository) GetServiceByID(ctx context.Context, id uuid.UUID) (*Service, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, description, duration_minutes, created_at, updated_at
		FROM services
		WHERE id = $1
	`, id)
	return scanService(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) HasOverlap(ctx context.Context, q OverlapQuery) (bool, error) {
	var col string
	switch q.Dimension {
	case DimensionClinician:
		col = "clinician_id"
	case DimensionRoom:
		col = "room_id"
	case DimensionPatient:
		col = "patient_id"
	default:
		return false, fmt.Errorf("unknown conflict dimension %q", q.Dimension)
	}

	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM appointments
			WHERE date = $1::date
			  AND status <> 'cancelled'
			  AND `+col+` = $2
			  AND start_time < $3::time
			  AND end_time > $4::time
			  AND ($5::uuid IS NULL OR id <> $5::uuid)
		)
	`, q.Date.String(), q.RefID, q.End.String(), q.Start.String(), q.ExcludeID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgRepository) InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments
			(id, date, start_time, end_time, status, patient_id, clinician_id, room_id, service_id, reason, notes, created_at, updated_at)
		VALUES
			($1, $2::date, $3::time, $4::time, $5, $6, $7, $8, $9, $10, $11, now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.Date.String(), a.Start.String(), a.End.String(), string(a.Status),
		a.PatientID, a.ClinicianID, a.RoomID, a.ServiceID, a.Reason, a.Notes)

	appt, err := scanAppointment(row)
	if err != nil {
		return nil, mapConstraintError(err)
	}
	return appt, nil
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET date = $2::date,
		    start_time = $3::time,
		    end_time = $4::time,
		    patient_id = $5,
		    clinician_id = $6,
		    room_id = $7,
		    service_id = $8,
		    reason = $9,
		    notes = $10,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		a.ID, a.Date.String(), a.Start.String(), a.End.String(),
		a.PatientID, a.ClinicianID, a.RoomID, a.ServiceID, a.Reason, a.Notes)

	appt, err := scanAppointment(row)
	if err != nil {
		return nil, mapConstraintError(err)
	}
	return appt, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, to Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM appointments
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	sql := `SELECT ` + appointmentColumns + ` FROM appointments`

	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Date != nil {
		add("date = $%d::date", f.Date.String())
	}
	if f.From != nil {
		add("date >= $%d::date", f.From.String())
	}
	if f.To != nil {
		add("date <= $%d::date", f.To.String())
	}
	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}
	if f.ClinicianID != nil {
		add("clinician_id = $%d", *f.ClinicianID)
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.RoomID != nil {
		add("room_id = $%d", *f.RoomID)
	}

	if len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	sql += " ORDER BY date ASC, start_time ASC"

	args = append(args, f.Limit)
	sql += fmt.Sprintf(" LIMIT $%d", len(args))
	args = append(args, f.Offset)
	sql += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
