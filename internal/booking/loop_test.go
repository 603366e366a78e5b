package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyu4583/realticket-gatling-simulations/internal/client"
	"github.com/kyu4583/realticket-gatling-simulations/internal/client/clienttest"
	"github.com/kyu4583/realticket-gatling-simulations/internal/delay"
	"github.com/kyu4583/realticket-gatling-simulations/internal/model"
	"github.com/kyu4583/realticket-gatling-simulations/internal/seat"
)

type fixedSet model.AvailabilitySet

func (f fixedSet) Refresh(context.Context) model.AvailabilitySet { return model.AvailabilitySet(f) }

// venueTracker re-reads the venue on every refresh, like poll mode.
type venueTracker struct{ v *clienttest.Venue }

func (t venueTracker) Refresh(ctx context.Context) model.AvailabilitySet {
	msg, _ := t.v.Fetch(ctx, 1)
	return seat.ParseMessage(msg, model.BitFlag)
}

func noSleep(context.Context, time.Duration) error { return nil }

func newLoop(tracker Refresher, svc *clienttest.Service, maxRetries int) *Loop {
	return &Loop{
		Tracker:    tracker,
		Claimer:    svc,
		Sampler:    delay.NewSeededSampler(7),
		Pause:      delay.DefaultPacing().BetweenBooking,
		MaxRetries: maxRetries,
		EventID:    1,
		Session:    &model.SessionState{},
		Logger:     zerolog.Nop(),
		Sleep:      noSleep,
	}
}

func TestAcquire_SucceedsFirstAttempt(t *testing.T) {
	svc := &clienttest.Service{}
	l := newLoop(fixedSet{{Section: 0, Seat: 0}}, svc, 50)

	res := l.Acquire(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, model.Coordinate{Section: 0, Seat: 0}, res.Seat)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, Succeeded, res.State)
	assert.Equal(t, []model.Coordinate{{Section: 0, Seat: 0}}, l.Session.Booked)
	assert.Nil(t, l.Session.Selected)
}

func TestAcquire_AlwaysConflictExhaustsExactly(t *testing.T) {
	for _, max := range []int{1, 5, 50} {
		svc := &clienttest.Service{ClaimFunc: func(context.Context, int, model.Coordinate, string) error {
			return &client.StatusError{Op: "claim seat", Status: 409}
		}}
		l := newLoop(fixedSet{{Section: 0, Seat: 0}, {Section: 0, Seat: 1}}, svc, max)

		res := l.Acquire(context.Background())
		assert.ErrorIs(t, res.Err, model.ErrRetryExhausted)
		assert.Equal(t, Aborted, res.State)
		assert.Equal(t, max, res.Attempts)
		assert.Equal(t, max, svc.Count(client.RequestClaim))
		assert.Empty(t, l.Session.Booked)
	}
}

func TestAcquire_ConflictThenSuccess(t *testing.T) {
	calls := 0
	svc := &clienttest.Service{ClaimFunc: func(context.Context, int, model.Coordinate, string) error {
		calls++
		if calls < 3 {
			return model.ErrConflict
		}
		return nil
	}}
	l := newLoop(fixedSet{{Section: 1, Seat: 1}}, svc, 50)

	res := l.Acquire(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Attempts)
}

func TestAcquire_EmptySetAbortsWithoutClaim(t *testing.T) {
	svc := &clienttest.Service{}
	l := newLoop(fixedSet{}, svc, 50)

	res := l.Acquire(context.Background())
	assert.ErrorIs(t, res.Err, model.ErrNoSeatsAvailable)
	assert.Zero(t, res.Attempts)
	assert.Zero(t, svc.Count(client.RequestClaim))
	assert.False(t, Abandons(res.Err))
}

func TestAcquire_FatalErrorIsNotRetried(t *testing.T) {
	svc := &clienttest.Service{ClaimFunc: func(context.Context, int, model.Coordinate, string) error {
		return errors.New("connection refused")
	}}
	l := newLoop(fixedSet{{Section: 0, Seat: 0}}, svc, 50)

	res := l.Acquire(context.Background())
	assert.ErrorIs(t, res.Err, model.ErrFatalTransport)
	assert.Equal(t, 1, res.Attempts)
	assert.True(t, Abandons(res.Err))
}

func TestAcquire_ServerErrorIsFatal(t *testing.T) {
	svc := &clienttest.Service{ClaimFunc: func(context.Context, int, model.Coordinate, string) error {
		return &client.StatusError{Op: "claim seat", Status: 500}
	}}
	l := newLoop(fixedSet{{Section: 0, Seat: 0}}, svc, 50)

	res := l.Acquire(context.Background())
	assert.ErrorIs(t, res.Err, model.ErrFatalTransport)
	assert.Equal(t, 1, svc.Count(client.RequestClaim))
}

func TestAcquire_SendsReservedStatus(t *testing.T) {
	var got string
	var event int
	svc := &clienttest.Service{ClaimFunc: func(_ context.Context, eventID int, _ model.Coordinate, expected string) error {
		got, event = expected, eventID
		return nil
	}}
	l := newLoop(fixedSet{{Section: 0, Seat: 0}}, svc, 50)
	l.EventID = 9

	require.NoError(t, l.Acquire(context.Background()).Err)
	assert.Equal(t, "reserved", got)
	assert.Equal(t, 9, event)
}

func TestAcquire_CancelledDuringPause(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := &clienttest.Service{}
	l := newLoop(fixedSet{{Section: 0, Seat: 0}}, svc, 50)
	l.Sleep = nil

	res := l.Acquire(ctx)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Zero(t, svc.Count(client.RequestClaim))
}

func TestBookAll_DistinctSeatsFromShrinkingVenue(t *testing.T) {
	venue := clienttest.NewVenue(2, 3)
	svc := venue.Bind(&clienttest.Service{})
	l := newLoop(venueTracker{venue}, svc, 50)

	sum := l.BookAll(context.Background(), 3)
	require.NoError(t, sum.Err)
	require.Len(t, sum.Booked, 3)
	assert.Equal(t, 3, venue.Claims())
	assert.Equal(t, 3, sum.Attempts)

	seen := map[model.Coordinate]bool{}
	for _, c := range sum.Booked {
		assert.False(t, seen[c], "seat %s booked twice", c)
		seen[c] = true
	}
	assert.Equal(t, sum.Booked, l.Session.Booked)
}

func TestBookAll_NeverReselectsOwnSeat(t *testing.T) {
	// the set keeps reporting every seat, including the ones already held
	set := fixedSet{{Section: 0, Seat: 0}, {Section: 0, Seat: 1}, {Section: 0, Seat: 2}}
	svc := &clienttest.Service{}
	l := newLoop(set, svc, 50)

	sum := l.BookAll(context.Background(), 3)
	require.NoError(t, sum.Err)
	assert.ElementsMatch(t, []model.Coordinate(set), sum.Booked)

	// nothing left for a fourth unit
	res := l.Acquire(context.Background())
	assert.ErrorIs(t, res.Err, model.ErrNoSeatsAvailable)
}

func TestBookAll_StopsOnNoSeatsButKeepsBooked(t *testing.T) {
	venue := clienttest.NewVenue(1, 2)
	svc := venue.Bind(&clienttest.Service{})
	l := newLoop(venueTracker{venue}, svc, 50)

	sum := l.BookAll(context.Background(), 4)
	assert.ErrorIs(t, sum.Err, model.ErrNoSeatsAvailable)
	assert.Len(t, sum.Booked, 2)
	assert.False(t, Abandons(sum.Err))
}

func TestBookAll_ExhaustionStopsRemainingUnits(t *testing.T) {
	calls := 0
	svc := &clienttest.Service{ClaimFunc: func(context.Context, int, model.Coordinate, string) error {
		calls++
		if calls == 1 {
			return nil
		}
		return model.ErrConflict
	}}
	l := newLoop(fixedSet{{Section: 0, Seat: 0}, {Section: 0, Seat: 1}}, svc, 4)

	sum := l.BookAll(context.Background(), 3)
	assert.ErrorIs(t, sum.Err, model.ErrRetryExhausted)
	assert.Len(t, sum.Booked, 1)
	assert.Equal(t, 5, sum.Attempts)
	assert.True(t, Abandons(sum.Err))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "conflict_retry", ConflictRetry.String())
	assert.Equal(t, "state(42)", State(42).String())
}
