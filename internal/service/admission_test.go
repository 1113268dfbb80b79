package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fleet-presence-api/internal/models"
	appErrors "github.com/noah-isme/fleet-presence-api/pkg/errors"
)

type fakeDayView struct {
	sameType bool
	arrival  bool
	latest   *models.AttendanceEvent
	err      error
}

func (f *fakeDayView) HasSameType(context.Context, models.EventType) (bool, error) {
	return f.sameType, f.err
}

func (f *fakeDayView) HasArrival(context.Context) (bool, error) {
	return f.arrival, f.err
}

func (f *fakeDayView) Latest(context.Context) (*models.AttendanceEvent, error) {
	return f.latest, f.err
}

func latestOf(t models.EventType) *models.AttendanceEvent {
	return &models.AttendanceEvent{ID: 1, Type: t}
}

func TestKioskPolicyAdmitsFirstArrival(t *testing.T) {
	policy := NewKioskPolicy()
	err := policy.Admit(context.Background(), &fakeDayView{}, models.EventTypeArrival)
	require.NoError(t, err)
}

func TestKioskPolicyRejectsDuplicateArrival(t *testing.T) {
	policy := NewKioskPolicy()
	err := policy.Admit(context.Background(), &fakeDayView{sameType: true}, models.EventTypeArrival)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrDuplicateEvent.Code, appErrors.FromError(err).Code)
}

func TestKioskPolicyRejectsDuplicateDeparture(t *testing.T) {
	policy := NewKioskPolicy()
	err := policy.Admit(context.Background(), &fakeDayView{sameType: true, arrival: true}, models.EventTypeDeparture)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrDuplicateEvent.Code, appErrors.FromError(err).Code)
}

func TestKioskPolicyRejectsDepartureWithoutArrival(t *testing.T) {
	policy := NewKioskPolicy()
	err := policy.Admit(context.Background(), &fakeDayView{}, models.EventTypeDeparture)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrSequence.Code, appErrors.FromError(err).Code)
}

func TestKioskPolicyAdmitsDepartureAfterArrival(t *testing.T) {
	policy := NewKioskPolicy()
	err := policy.Admit(context.Background(), &fakeDayView{arrival: true}, models.EventTypeDeparture)
	require.NoError(t, err)
}

func TestLastEventPolicyAdmitsArrivalOnEmptyDay(t *testing.T) {
	policy := NewLastEventPolicy()
	err := policy.Admit(context.Background(), &fakeDayView{}, models.EventTypeArrival)
	require.NoError(t, err)
}

func TestLastEventPolicyRejectsArrivalWhenPresent(t *testing.T) {
	policy := NewLastEventPolicy()
	view := &fakeDayView{latest: latestOf(models.EventTypeArrival)}
	err := policy.Admit(context.Background(), view, models.EventTypeArrival)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrSequence.Code, appErrors.FromError(err).Code)
}

func TestLastEventPolicyAdmitsReArrivalAfterDeparture(t *testing.T) {
	policy := NewLastEventPolicy()
	view := &fakeDayView{latest: latestOf(models.EventTypeDeparture)}
	err := policy.Admit(context.Background(), view, models.EventTypeArrival)
	require.NoError(t, err)
}

func TestLastEventPolicyRejectsDepartureOnEmptyDay(t *testing.T) {
	policy := NewLastEventPolicy()
	err := policy.Admit(context.Background(), &fakeDayView{}, models.EventTypeDeparture)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrSequence.Code, appErrors.FromError(err).Code)
}

func TestLastEventPolicyRejectsDepartureAfterDeparture(t *testing.T) {
	policy := NewLastEventPolicy()
	view := &fakeDayView{latest: latestOf(models.EventTypeDeparture)}
	err := policy.Admit(context.Background(), view, models.EventTypeDeparture)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrSequence.Code, appErrors.FromError(err).Code)
}

func TestLastEventPolicyAdmitsDepartureAfterArrival(t *testing.T) {
	policy := NewLastEventPolicy()
	view := &fakeDayView{latest: latestOf(models.EventTypeArrival)}
	err := policy.Admit(context.Background(), view, models.EventTypeDeparture)
	require.NoError(t, err)
}
