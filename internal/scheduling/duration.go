package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ServiceDirectory is the service lookup consumed by the duration resolver.
type ServiceDirectory interface {
	GetServiceByID(ctx context.Context, id uuid.UUID) (*Service, error)
}

// DurationPolicy controls what happens when a slot is booked without a
// resolvable service. The clinic historically fell back to a default
// duration; RequireService turns that into a hard error instead.
type DurationPolicy struct {
	Fallback       time.Duration
	RequireService bool
}

// ResolveEnd computes the end of a slot starting at start, booked against
// serviceID (which may be nil). The end must land on the same calendar day.
func ResolveEnd(ctx context.Context, services ServiceDirectory, policy DurationPolicy, start TimeOfDay, serviceID *uuid.UUID) (TimeOfDay, error) {
	minutes := int(policy.Fallback / time.Minute)

	if serviceID != nil {
		svc, err := services.GetServiceByID(ctx, *serviceID)
		switch {
		case err == nil:
			minutes = svc.DurationMinutes
		case errors.Is(err, ErrServiceNotFound):
			if policy.RequireService {
				return 0, ErrServiceNotFound
			}
		default:
			return 0, fmt.Errorf("load service: %w", err)
		}
	} else if policy.RequireService {
		return 0, ErrServiceNotFound
	}

	end := start.Add(minutes)
	if end <= start {
		return 0, ErrEndBeforeStart
	}
	// "24:00" has no representation; an appointment must end strictly
	// inside its calendar day.
	if !end.Valid() {
		return 0, ErrCrossesMidnight
	}

	return end, nil
}
