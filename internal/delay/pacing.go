package delay

import (
	"context"
	"time"
)

// Pacing groups the pause ranges a virtual user draws from between the
// steps of its workflow.
type Pacing struct {
	AfterLogin          Range `yaml:"afterLogin"`
	BeforeBookingAmount Range `yaml:"beforeBookingAmount"`
	BetweenBooking      Range `yaml:"betweenBooking"`
	BeforeConfirm       Range `yaml:"beforeConfirm"`
}

// DefaultPacing mirrors the think times measured for real users of the
// booking page.
func DefaultPacing() Pacing {
	return Pacing{
		AfterLogin:          Range{Min: 300 * time.Millisecond, Max: 5 * time.Second, Skew: 2.0, BiasLow: true},
		BeforeBookingAmount: Range{Min: 300 * time.Millisecond, Max: 3 * time.Second, Skew: 2.0, BiasLow: true},
		BetweenBooking:      Range{Min: 200 * time.Millisecond, Max: 1500 * time.Millisecond, Skew: 4.0, BiasLow: true},
		BeforeConfirm:       Range{Min: 2 * time.Second, Max: 10 * time.Second, Skew: 2.0, BiasLow: false},
	}
}

// Scaled multiplies every bound by f.  f <= 0 disables all pauses.
func (p Pacing) Scaled(f float64) Pacing {
	scale := func(r Range) Range {
		if f <= 0 {
			return Range{}
		}
		r.Min = time.Duration(float64(r.Min) * f)
		r.Max = time.Duration(float64(r.Max) * f)
		return r
	}
	return Pacing{
		AfterLogin:          scale(p.AfterLogin),
		BeforeBookingAmount: scale(p.BeforeBookingAmount),
		BetweenBooking:      scale(p.BetweenBooking),
		BeforeConfirm:       scale(p.BeforeConfirm),
	}
}

// StaggerSplit divides window into a pre-login and a post-login wait
// using one uniform draw.  pre+post always equals window.
func (s *Sampler) StaggerSplit(window time.Duration) (pre, post time.Duration) {
	if window <= 0 {
		return 0, 0
	}
	pre = s.Draw(Range{Min: 0, Max: window, Skew: 1.0, BiasLow: true})
	return pre, window - pre
}

// Sleep pauses for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
