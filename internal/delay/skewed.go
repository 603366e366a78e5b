// Package delay produces the randomized pauses that pace every virtual
// user.  Delays are drawn from a power-law skew so that most samples land
// near one end of the configured range.
package delay

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/kyu4583/realticket-gatling-simulations/internal/model"
)

// DefaultSkew is the skew factor used when a pacing range does not set
// one.
const DefaultSkew = 2.0

// ErrInvalidRange is returned when min is not strictly below max.
var ErrInvalidRange = errors.New("delay: max must be greater than min")

// Sampler draws skewed durations and uniform integers from one random
// source shared by every virtual user.  All methods are safe for
// concurrent use.
type Sampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSampler returns a Sampler seeded from crypto/rand.
func NewSampler() *Sampler {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		// crypto/rand never fails on supported platforms; fall back to the clock.
		binary.LittleEndian.PutUint64(seed[:], uint64(time.Now().UnixNano()))
	}
	return &Sampler{rng: rand.New(rand.NewChaCha8(seed))}
}

// NewSeededSampler returns a deterministic Sampler for tests and replays.
func NewSeededSampler(seed uint64) *Sampler {
	return &Sampler{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *Sampler) float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// IntN returns a uniform integer in [0, n).  It panics if n <= 0.
func (s *Sampler) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

// Sample returns a duration in [min, max] whose mass is concentrated
// near min when biasLow is set and near max otherwise.  Larger skew
// values tighten the concentration; skew 1.0 is uniform.  Durations are
// truncated to whole milliseconds.
func (s *Sampler) Sample(min, max time.Duration, skew float64, biasLow bool) (time.Duration, error) {
	if min >= max {
		return 0, fmt.Errorf("%w: min=%s max=%s", ErrInvalidRange, min, max)
	}
	if skew <= 0 {
		skew = DefaultSkew
	}
	v := math.Pow(s.float64(), skew)
	if !biasLow {
		v = 1.0 - v
	}
	span := float64((max - min).Milliseconds())
	return min + time.Duration(int64(v*span))*time.Millisecond, nil
}

// Range is a pacing window with its skew settings.
//
// Fields:
//  Min, Max – bounds of the window; Max must exceed Min.
//  Skew     – power applied to the uniform draw (0 means DefaultSkew).
//  BiasLow  – concentrate samples near Min instead of Max.
type Range struct {
	Min     time.Duration `yaml:"min"`
	Max     time.Duration `yaml:"max"`
	Skew    float64       `yaml:"skew"`
	BiasLow bool          `yaml:"biasLow"`
}

// Draw samples the range.  An empty or inverted range yields Min so that
// a disabled pause never fails a user.
func (s *Sampler) Draw(r Range) time.Duration {
	d, err := s.Sample(r.Min, r.Max, r.Skew, r.BiasLow)
	if err != nil {
		return r.Min
	}
	return d
}

// BookingAmount returns fixed when it is non-negative, otherwise a
// uniform draw from 1..4.
func (s *Sampler) BookingAmount(fixed int) int {
	if fixed >= 0 {
		return fixed
	}
	return s.IntN(4) + 1
}

// Pick returns a uniformly chosen seat from set.  ok is false when the
// set is empty.
func (s *Sampler) Pick(set model.AvailabilitySet) (c model.Coordinate, ok bool) {
	if len(set) == 0 {
		return model.Coordinate{}, false
	}
	return set[s.IntN(len(set))], true
}
