// Package booking runs the optimistic seat-claim loop of one virtual
// user: pause, refresh availability, pick a seat, claim it, and retry on
// conflict until the attempt budget runs out.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kyu4583/realticket-gatling-simulations/internal/client"
	"github.com/kyu4583/realticket-gatling-simulations/internal/delay"
	"github.com/kyu4583/realticket-gatling-simulations/internal/model"
)

// DefaultMaxRetries is the per-seat attempt budget used when none is set.
const DefaultMaxRetries = 50

// State is a step of the per-seat claim state machine.
type State int

const (
	Pausing State = iota
	Refreshing
	Selecting
	Claiming
	Succeeded
	ConflictRetry
	Aborted
)

var stateNames = [...]string{"pausing", "refreshing", "selecting", "claiming", "succeeded", "conflict_retry", "aborted"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Refresher yields the freshest availability snapshot.
type Refresher interface {
	Refresh(ctx context.Context) model.AvailabilitySet
}

// Claimer issues a single claim request.
type Claimer interface {
	ClaimSeat(ctx context.Context, eventID int, seat model.Coordinate, expectedStatus string) error
}

// Loop acquires seats for one user.  It is not safe for concurrent use;
// each virtual user owns its own Loop.
//
// Fields:
//  Tracker    – availability source, usually a transport.Strategy.
//  Claimer    – claim endpoint, usually the user's client.Service.
//  Sampler    – shared random source for pauses and seat picks.
//  Pause      – between-attempt pacing range.
//  MaxRetries – attempt budget per seat (DefaultMaxRetries when <= 0).
//  EventID    – event the seats belong to.
//  Session    – the user's session; successes are appended to Booked.
//  Sleep      – pause function, delay.Sleep when nil.
type Loop struct {
	Tracker    Refresher
	Claimer    Claimer
	Sampler    *delay.Sampler
	Pause      delay.Range
	MaxRetries int
	EventID    int
	Session    *model.SessionState
	Logger     zerolog.Logger
	Sleep      func(ctx context.Context, d time.Duration) error
}

// Result is the outcome of one seat acquisition.
//
// Fields:
//  Seat     – the claimed seat, valid when Err is nil.
//  Attempts – number of claim requests issued.
//  State    – terminal state, Succeeded or Aborted.
//  Err      – nil on success, otherwise wraps one of ErrNoSeatsAvailable,
//             ErrRetryExhausted, ErrFatalTransport or a context error.
type Result struct {
	Seat     model.Coordinate
	Attempts int
	State    State
	Err      error
}

func (l *Loop) maxRetries() int {
	if l.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return l.MaxRetries
}

func (l *Loop) sleep(ctx context.Context, d time.Duration) error {
	if l.Sleep != nil {
		return l.Sleep(ctx, d)
	}
	return delay.Sleep(ctx, d)
}

// candidates drops seats the user already holds.
func (l *Loop) candidates(set model.AvailabilitySet) model.AvailabilitySet {
	if len(l.Session.Booked) == 0 {
		return set
	}
	out := make(model.AvailabilitySet, 0, len(set))
	for _, c := range set {
		if !l.Session.HasBooked(c) {
			out = append(out, c)
		}
	}
	return out
}

// Acquire claims one seat.  A conflict loops back to Pausing with a fresh
// snapshot; an empty snapshot or any non-conflict error ends the chain
// immediately.
func (l *Loop) Acquire(ctx context.Context) Result {
	if l.Session == nil {
		l.Session = &model.SessionState{}
	}
	budget := l.maxRetries()
	var res Result

	for res.Attempts < budget {
		// Pausing
		if err := l.sleep(ctx, l.Sampler.Draw(l.Pause)); err != nil {
			return l.abort(res, err)
		}

		// Refreshing
		set := l.candidates(l.Tracker.Refresh(ctx))
		l.Session.Available = set

		// Selecting
		c, ok := l.Sampler.Pick(set)
		if !ok {
			return l.abort(res, model.ErrNoSeatsAvailable)
		}
		l.Session.Selected = &c

		// Claiming
		res.Attempts++
		attempt := classify(c, l.Claimer.ClaimSeat(ctx, l.EventID, c, client.ExpectedReserved))
		switch attempt.Kind {
		case model.AttemptSuccess:
			l.Session.Booked = append(l.Session.Booked, c)
			l.Session.Selected = nil
			res.Seat, res.State = c, Succeeded
			l.Logger.Debug().Stringer("seat", c).Int("attempts", res.Attempts).Msg("booking: seat claimed")
			return res
		case model.AttemptConflict:
			l.Logger.Debug().Stringer("seat", c).Int("attempt", res.Attempts).Msg("booking: conflict, retrying")
			continue
		default:
			return l.abort(res, attempt.Err)
		}
	}
	return l.abort(res, fmt.Errorf("%w after %d attempts", model.ErrRetryExhausted, res.Attempts))
}

func (l *Loop) abort(res Result, err error) Result {
	l.Session.Selected = nil
	res.State, res.Err = Aborted, err
	return res
}

func classify(c model.Coordinate, err error) model.AttemptResult {
	switch {
	case err == nil:
		return model.AttemptResult{Kind: model.AttemptSuccess, Seat: c}
	case errors.Is(err, model.ErrConflict):
		return model.AttemptResult{Kind: model.AttemptConflict, Seat: c, Err: err}
	case errors.Is(err, model.ErrFatalTransport), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return model.AttemptResult{Kind: model.AttemptFatal, Seat: c, Err: err}
	}
	return model.AttemptResult{Kind: model.AttemptFatal, Seat: c, Err: fmt.Errorf("%w: %v", model.ErrFatalTransport, err)}
}

// Summary aggregates the per-seat results of BookAll.
//
// Fields:
//  Booked   – seats claimed, in claim order.
//  Attempts – claim requests issued across all units.
//  Err      – why booking stopped early, nil when every unit succeeded.
type Summary struct {
	Booked   []model.Coordinate
	Attempts int
	Err      error
}

// BookAll runs Acquire once per unit of amount, sequentially.  Running
// out of seats stops the remaining units but keeps what was booked;
// retry exhaustion and fatal errors are returned for the caller to abort.
func (l *Loop) BookAll(ctx context.Context, amount int) Summary {
	var sum Summary
	for unit := 0; unit < amount; unit++ {
		res := l.Acquire(ctx)
		sum.Attempts += res.Attempts
		if res.Err != nil {
			sum.Err = res.Err
			break
		}
		sum.Booked = append(sum.Booked, res.Seat)
	}
	return sum
}

// Abandons reports whether err ends the whole user rather than only the
// remaining booking units.
func Abandons(err error) bool {
	return err != nil && !errors.Is(err, model.ErrNoSeatsAvailable)
}
