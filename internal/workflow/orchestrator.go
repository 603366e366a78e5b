// Package workflow sequences the lifecycle of one virtual user: staggered
// login, permission check, booking amount, availability subscription,
// the booking loop and the optional reservation confirmation.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kyu4583/realticket-gatling-simulations/internal/booking"
	"github.com/kyu4583/realticket-gatling-simulations/internal/client"
	"github.com/kyu4583/realticket-gatling-simulations/internal/delay"
	"github.com/kyu4583/realticket-gatling-simulations/internal/model"
	"github.com/kyu4583/realticket-gatling-simulations/internal/transport"
)

// Stages are the optional workflow steps.  A zero duration disables the
// corresponding wait.
//
// Fields:
//  StaggerWindow      – total window split around login.
//  WaitBetweenActions – fixed wait after login and before confirmation.
//  WaitAfterSubscribe – fixed wait after the first availability snapshot.
//  Confirm            – submit the reservation after booking.
type Stages struct {
	StaggerWindow      time.Duration
	WaitBetweenActions time.Duration
	WaitAfterSubscribe time.Duration
	Confirm            bool
}

// Options configure every user of a run.
//
// Fields:
//  EventID       – event all users book for.
//  BookingAmount – seats per user; negative draws 1..4 per user.
//  MaxRetries    – claim attempts per seat.
//  Pacing        – think-time ranges.
//  Stages        – optional steps, resolved once.
type Options struct {
	EventID       int
	BookingAmount int
	MaxRetries    int
	Pacing        delay.Pacing
	Stages        Stages
}

// ServiceFactory returns the booking-service client a user talks through.
type ServiceFactory func(user *model.VirtualUser) (client.Service, error)

// Outcome is what a finished user reports to the run.
//
// Fields:
//  UserNum  – the user's number.
//  State    – terminal state reached.
//  Booked   – seats the user holds at the end.
//  Attempts – claim requests issued.
//  Err      – cause of an abort, or why booking stopped early.
//  Started  – when the workflow began.
//  Elapsed  – total time spent in Run.
//  Booking  – time spent in the booking loop.
type Outcome struct {
	UserNum  int
	State    State
	Booked   []model.Coordinate
	Attempts int
	Err      error
	Started  time.Time
	Elapsed  time.Duration
	Booking  time.Duration
}

// Orchestrator runs the workflow for any number of users concurrently.
// It holds only run-wide, read-only settings and the shared sampler.
type Orchestrator struct {
	opts      Options
	sampler   *delay.Sampler
	services  ServiceFactory
	transport transport.Factory
	logger    zerolog.Logger

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(opts Options, sampler *delay.Sampler, services ServiceFactory, tf transport.Factory, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		opts:      opts,
		sampler:   sampler,
		services:  services,
		transport: tf,
		logger:    logger,
		sleep:     delay.Sleep,
	}
}

// NewUser builds user num with its booking amount drawn once.
func (o *Orchestrator) NewUser(num int) *model.VirtualUser {
	return model.NewVirtualUser(num, o.sampler.BookingAmount(o.opts.BookingAmount))
}

// run carries the mutable state of one Run call.
type run struct {
	*Orchestrator
	user   *model.VirtualUser
	svc    client.Service
	logger zerolog.Logger
	out    Outcome
}

func (r *run) enter(s State) {
	r.out.State = s
	r.logger.Debug().Stringer("state", s).Msg("workflow: state")
}

func (r *run) abort(stage string, err error) Outcome {
	r.out.State = Aborted
	r.out.Err = fmt.Errorf("%s: %w", stage, err)
	r.logger.Info().Err(r.out.Err).Msg("workflow: user aborted")
	return r.finish()
}

func (r *run) finish() Outcome {
	r.out.Booked = append([]model.Coordinate(nil), r.user.Session.Booked...)
	r.out.Elapsed = time.Since(r.out.Started)
	return r.out
}

func (r *run) pause(ctx context.Context, rg delay.Range) error {
	return r.sleep(ctx, r.sampler.Draw(rg))
}

// Run executes the whole workflow for user.  Failures end only this
// user; the transport is closed before Run returns.
func (o *Orchestrator) Run(ctx context.Context, user *model.VirtualUser) Outcome {
	if user.Session == nil {
		user.Session = &model.SessionState{}
	}
	r := &run{
		Orchestrator: o,
		user:         user,
		logger:       o.logger.With().Int("user", user.Num).Logger(),
		out:          Outcome{UserNum: user.Num, Started: time.Now()},
	}
	st := o.opts.Stages
	pacing := o.opts.Pacing
	sess := user.Session

	svc, err := o.services(user)
	if err != nil {
		return r.abort("client", err)
	}
	r.svc = svc

	r.enter(StaggeredWait)
	if st.StaggerWindow > 0 {
		sess.PreLoginWait, sess.PostLoginWait = o.sampler.StaggerSplit(st.StaggerWindow)
		if err := o.sleep(ctx, sess.PreLoginWait); err != nil {
			return r.abort("stagger", err)
		}
	}
	if err := svc.Login(ctx, user.LoginID, user.Password); err != nil {
		return r.abort("login", err)
	}
	r.enter(LoggedIn)
	if err := o.sleep(ctx, sess.PostLoginWait); err != nil {
		return r.abort("stagger", err)
	}
	if err := r.pause(ctx, pacing.AfterLogin); err != nil {
		return r.abort("pause", err)
	}
	if err := o.sleep(ctx, st.WaitBetweenActions); err != nil {
		return r.abort("pause", err)
	}

	if err := svc.CheckPermission(ctx, o.opts.EventID); err != nil {
		return r.abort("permission", err)
	}
	r.enter(PermissionChecked)

	if err := r.pause(ctx, pacing.BeforeBookingAmount); err != nil {
		return r.abort("pause", err)
	}
	if err := svc.SetBookingAmount(ctx, user.BookingAmount); err != nil {
		return r.abort("booking amount", err)
	}

	tracker := o.transport(svc, r.logger)
	defer func() {
		if err := tracker.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("workflow: close transport")
		}
	}()
	set, err := tracker.Subscribe(ctx)
	if err != nil {
		return r.abort("subscribe", err)
	}
	sess.Available = set
	r.enter(Subscribed)
	if err := o.sleep(ctx, st.WaitAfterSubscribe); err != nil {
		return r.abort("pause", err)
	}

	r.enter(Booking)
	loop := &booking.Loop{
		Tracker:    tracker,
		Claimer:    svc,
		Sampler:    o.sampler,
		Pause:      pacing.BetweenBooking,
		MaxRetries: o.opts.MaxRetries,
		EventID:    o.opts.EventID,
		Session:    sess,
		Logger:     r.logger,
		Sleep:      o.sleep,
	}
	bookStart := time.Now()
	sum := loop.BookAll(ctx, user.BookingAmount)
	r.out.Booking = time.Since(bookStart)
	r.out.Attempts = sum.Attempts
	if booking.Abandons(sum.Err) {
		return r.abort("booking", sum.Err)
	}
	if sum.Err != nil {
		r.out.Err = sum.Err
		r.logger.Info().Err(sum.Err).Int("booked", len(sess.Booked)).Msg("workflow: booking stopped early")
	}

	payload, err := FinalizePayload(sess.Booked)
	if err != nil {
		return r.abort("finalize", err)
	}
	sess.BookedPayload = payload
	r.enter(BookedSeatsFinalized)

	if err := o.sleep(ctx, st.WaitBetweenActions); err != nil {
		return r.abort("pause", err)
	}
	if !st.Confirm || len(sess.Booked) == 0 {
		r.enter(Skipped)
		return r.finish()
	}
	if err := r.pause(ctx, pacing.BeforeConfirm); err != nil {
		return r.abort("pause", err)
	}
	if err := svc.ConfirmReservation(ctx, o.opts.EventID, sess.Booked); err != nil {
		return r.abort("confirm", err)
	}
	r.enter(Confirmed)
	return r.finish()
}

// FinalizePayload serializes booked seats into the confirmation shape
// [{"sectionIndex":s,"seatIndex":i}, ...].  An empty list encodes as [].
func FinalizePayload(booked []model.Coordinate) ([]byte, error) {
	if booked == nil {
		booked = []model.Coordinate{}
	}
	return json.Marshal(booked)
}
