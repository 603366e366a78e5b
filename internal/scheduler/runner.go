package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kyu4583/realticket-gatling-simulations/internal/delay"
)

// Task runs one virtual user.  It must return when ctx is done.
type Task func(ctx context.Context, num int)

// Runner injects users according to a profile.  Every injected user runs
// in its own goroutine; a user's failure never affects the others.
type Runner struct {
	profile Profile
	counter *UserCounter
	logger  zerolog.Logger
}

func NewRunner(profile Profile, logger zerolog.Logger) *Runner {
	return &Runner{profile: profile, counter: &UserCounter{}, logger: logger}
}

// Run injects every step in order and waits for all injected users.  It
// returns the number of users started and ctx.Err() when injection was
// cut short.
func (r *Runner) Run(ctx context.Context, task Task) (int, error) {
	var g errgroup.Group
	launch := func() {
		num := r.counter.Next()
		g.Go(func() error {
			task(ctx, num)
			return nil
		})
	}

	var injectErr error
	for i, step := range r.profile.Steps {
		r.logger.Info().Int("step", i).Str("kind", string(step.Kind)).Int("users", step.Count()).
			Dur("during", step.During).Msg("scheduler: injecting")
		if injectErr = inject(ctx, step, launch); injectErr != nil {
			r.logger.Warn().Err(injectErr).Int("step", i).Msg("scheduler: injection stopped")
			break
		}
	}
	_ = g.Wait()
	return r.counter.Issued(), injectErr
}

func inject(ctx context.Context, s Step, launch func()) error {
	switch s.Kind {
	case AtOnceUsers:
		for i := 0; i < s.Users; i++ {
			launch()
		}
		return ctx.Err()
	case RampUsers:
		if s.Users == 0 {
			return delay.Sleep(ctx, s.During)
		}
		return paced(ctx, rate.Every(s.During/time.Duration(s.Users)), s.Users, s.During, launch)
	case ConstantUsersPerSec:
		return paced(ctx, rate.Limit(s.Rate), s.Count(), s.During, launch)
	case RampUsersPerSec:
		return rampRate(ctx, s, launch)
	case NothingFor:
		return delay.Sleep(ctx, s.During)
	}
	return nil
}

// paced launches n users at limit and then waits out the rest of the
// step.
func paced(ctx context.Context, limit rate.Limit, n int, during time.Duration, launch func()) error {
	start := time.Now()
	if n > 0 && limit > 0 {
		lim := rate.NewLimiter(limit, 1)
		for i := 0; i < n; i++ {
			if err := lim.Wait(ctx); err != nil {
				return err
			}
			launch()
		}
	}
	return delay.Sleep(ctx, during-time.Since(start))
}

// rampRate moves the arrival rate linearly from s.Rate to s.To over
// s.During.
func rampRate(ctx context.Context, s Step, launch func()) error {
	n := s.Count()
	if n == 0 {
		return delay.Sleep(ctx, s.During)
	}
	start := time.Now()
	lim := rate.NewLimiter(rate.Limit(max(s.Rate, 0.001)), 1)
	for i := 0; i < n; i++ {
		frac := float64(time.Since(start)) / float64(s.During)
		if frac > 1 {
			frac = 1
		}
		lim.SetLimit(rate.Limit(max(s.Rate+(s.To-s.Rate)*frac, 0.001)))
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		launch()
	}
	return delay.Sleep(ctx, s.During-time.Since(start))
}
