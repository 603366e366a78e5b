package scheduler

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Kind names an injection step.  The vocabulary follows the open
// injection model of the booking load tests.
type Kind string

const (
	AtOnceUsers         Kind = "atOnceUsers"
	RampUsers           Kind = "rampUsers"
	ConstantUsersPerSec Kind = "constantUsersPerSec"
	RampUsersPerSec     Kind = "rampUsersPerSec"
	NothingFor          Kind = "nothingFor"
)

// ErrInvalidProfile is returned for profiles that cannot be scheduled.
var ErrInvalidProfile = errors.New("scheduler: invalid load profile")

// Step is one injection step.
//
// Fields:
//  Kind   – which injection shape to apply.
//  Users  – users injected by atOnceUsers and rampUsers.
//  Rate   – arrivals per second (start rate for rampUsersPerSec).
//  To     – end rate for rampUsersPerSec.
//  During – step length; required by every kind except atOnceUsers.
type Step struct {
	Kind   Kind          `yaml:"kind"`
	Users  int           `yaml:"users,omitempty"`
	Rate   float64       `yaml:"rate,omitempty"`
	To     float64       `yaml:"to,omitempty"`
	During time.Duration `yaml:"during,omitempty"`
}

// Profile is an ordered list of steps run back to back.
type Profile struct {
	Steps []Step `yaml:"steps"`
}

// AtOnce is the profile of n users started together.
func AtOnce(n int) Profile {
	return Profile{Steps: []Step{{Kind: AtOnceUsers, Users: n}}}
}

// LoadProfile reads a YAML profile such as
//
//	steps:
//	  - kind: nothingFor
//	    during: 5s
//	  - kind: rampUsers
//	    users: 50
//	    during: 2m
func LoadProfile(path string) (Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read load profile: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate checks every step.
func (p Profile) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidProfile)
	}
	for i, s := range p.Steps {
		if err := s.validate(); err != nil {
			return fmt.Errorf("%w: step %d (%s): %v", ErrInvalidProfile, i, s.Kind, err)
		}
	}
	return nil
}

func (s Step) validate() error {
	if s.Users < 0 || s.Rate < 0 || s.To < 0 || s.During < 0 {
		return errors.New("negative value")
	}
	switch s.Kind {
	case AtOnceUsers:
		return nil
	case RampUsers, ConstantUsersPerSec, RampUsersPerSec, NothingFor:
		if s.During == 0 {
			return errors.New("during is required")
		}
		return nil
	}
	return errors.New("unknown kind")
}

// Count returns how many users the step injects.
func (s Step) Count() int {
	switch s.Kind {
	case AtOnceUsers, RampUsers:
		return s.Users
	case ConstantUsersPerSec:
		return int(math.Round(s.Rate * s.During.Seconds()))
	case RampUsersPerSec:
		return int(math.Round((s.Rate + s.To) / 2 * s.During.Seconds()))
	}
	return 0
}

// Total returns how many users the profile injects.
func (p Profile) Total() int {
	n := 0
	for _, s := range p.Steps {
		n += s.Count()
	}
	return n
}

// Length is the nominal injection time of the profile.
func (p Profile) Length() time.Duration {
	var d time.Duration
	for _, s := range p.Steps {
		d += s.During
	}
	return d
}
