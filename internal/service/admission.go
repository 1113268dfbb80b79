package service

import (
	"context"

	"github.com/noah-isme/fleet-presence-api/internal/models"
	appErrors "github.com/noah-isme/fleet-presence-api/pkg/errors"
)

// DayView exposes a subject's prior events for one calendar day, the only
// state admission policies inspect.
type DayView interface {
	// HasSameType reports whether any event of the given type exists today.
	HasSameType(ctx context.Context, eventType models.EventType) (bool, error)
	// HasArrival reports whether any arrival exists today.
	HasArrival(ctx context.Context) (bool, error)
	// Latest returns today's most recent event (occurred_at, then insertion
	// order) or nil when the day is empty.
	Latest(ctx context.Context) (*models.AttendanceEvent, error)
}

// AdmissionPolicy decides whether a new event may join a subject's day.
//
// The kiosk and owner paths apply deliberately different rules for the same
// conceptual constraint; they are kept as separate named policies rather than
// unified. See DESIGN.md before touching either.
type AdmissionPolicy interface {
	Admit(ctx context.Context, view DayView, eventType models.EventType) error
}

// kioskPolicy guards self-service submissions: any same-type repeat today is
// rejected, and a departure needs a prior arrival that day.
type kioskPolicy struct{}

// NewKioskPolicy returns the self-report admission policy.
func NewKioskPolicy() AdmissionPolicy { return kioskPolicy{} }

func (kioskPolicy) Admit(ctx context.Context, view DayView, eventType models.EventType) error {
	duplicate, err := view.HasSameType(ctx, eventType)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check today's events")
	}
	if duplicate {
		if eventType == models.EventTypeArrival {
			return appErrors.Clone(appErrors.ErrDuplicateEvent, "arrival already recorded today")
		}
		return appErrors.Clone(appErrors.ErrDuplicateEvent, "departure already recorded today")
	}
	if eventType == models.EventTypeDeparture {
		arrived, err := view.HasArrival(ctx)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check today's events")
		}
		if !arrived {
			return appErrors.Clone(appErrors.ErrSequence, "an arrival must be recorded before a departure")
		}
	}
	return nil
}

// lastEventPolicy guards the manager one-tap path: only the most recent
// event of the day matters. An arrival is rejected when the latest event is
// already an arrival; a departure when the day is empty or the latest event
// is already a departure.
type lastEventPolicy struct{}

// NewLastEventPolicy returns the owner one-tap admission policy.
func NewLastEventPolicy() AdmissionPolicy { return lastEventPolicy{} }

func (lastEventPolicy) Admit(ctx context.Context, view DayView, eventType models.EventType) error {
	latest, err := view.Latest(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load today's latest event")
	}
	switch eventType {
	case models.EventTypeArrival:
		if latest != nil && latest.Type == models.EventTypeArrival {
			return appErrors.Clone(appErrors.ErrSequence, "driver is already marked present")
		}
	case models.EventTypeDeparture:
		if latest == nil || latest.Type == models.EventTypeDeparture {
			return appErrors.Clone(appErrors.ErrSequence, "driver has no arrival to depart from")
		}
	}
	return nil
}
