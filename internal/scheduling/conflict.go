package scheduling

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Overlaps reports whether the half-open intervals [s1,e1) and [s2,e2)
// intersect. Back-to-back slots do not overlap.
func Overlaps(s1, e1, s2, e2 TimeOfDay) bool {
	return s1 < e2 && e1 > s2
}

// OverlapQuery asks whether any active appointment on Date sharing RefID
// along Dimension intersects [Start, End), ignoring ExcludeID if set.
type OverlapQuery struct {
	Dimension Dimension
	RefID     uuid.UUID
	Date      Date
	Start     TimeOfDay
	End       TimeOfDay
	ExcludeID *uuid.UUID
}

// ConflictReader is the slice of the store the conflict detector needs.
type ConflictReader interface {
	HasOverlap(ctx context.Context, q OverlapQuery) (bool, error)
}

// ConflictProbe describes a candidate slot. Dimensions left nil are skipped;
// no conflict is possible on an absent dimension.
type ConflictProbe struct {
	Date        Date
	Start       TimeOfDay
	End         TimeOfDay
	ClinicianID *uuid.UUID
	RoomID      *uuid.UUID
	PatientID   *uuid.UUID
	ExcludeID   *uuid.UUID
}

// DetectConflict checks each present dimension in a fixed order
// (clinician, room, patient) and returns a ConflictError naming the first
// dimension already occupied in the probed interval.
func DetectConflict(ctx context.Context, reader ConflictReader, p ConflictProbe) error {
	checks := []struct {
		dim Dimension
		id  *uuid.UUID
	}{
		{DimensionClinician, p.ClinicianID},
		{DimensionRoom, p.RoomID},
		{DimensionPatient, p.PatientID},
	}

	for _, c := range checks {
		if c.id == nil {
			continue
		}
		busy, err := reader.HasOverlap(ctx, OverlapQuery{
			Dimension: c.dim,
			RefID:     *c.id,
			Date:      p.Date,
			Start:     p.Start,
			End:       p.End,
			ExcludeID: p.ExcludeID,
		})
		if err != nil {
			return fmt.Errorf("check %s overlap: %w", c.dim, err)
		}
		if busy {
			return &ConflictError{Dimension: c.dim}
		}
	}

	return nil
}
