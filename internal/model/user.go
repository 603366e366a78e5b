package model

import (
	"fmt"
	"time"
)

// VirtualUser is one simulated end-user session.  It is created when the
// scheduler injects the user and discarded when its workflow finishes.
// Credentials are derived from the user number so that a pre-seeded
// target can authenticate every injected user.
//
// Fields:
//  Num           – sequential user number handed out by the scheduler.
//  LoginID       – login identifier ("test<Num>").
//  Password      – login password ("testpw<Num>").
//  BookingAmount – number of seats this user tries to book.
//  Session       – mutable per-user state, never shared.
type VirtualUser struct {
	Num           int
	LoginID       string
	Password      string
	BookingAmount int
	Session       *SessionState
}

// NewVirtualUser builds a user with deterministic test credentials and
// an empty session.
func NewVirtualUser(num, bookingAmount int) *VirtualUser {
	return &VirtualUser{
		Num:           num,
		LoginID:       fmt.Sprintf("test%d", num),
		Password:      fmt.Sprintf("testpw%d", num),
		BookingAmount: bookingAmount,
		Session:       &SessionState{},
	}
}

// SessionState is the mutable bag a single virtual user carries through
// its workflow.  It is owned by exactly one goroutine.
//
// Fields:
//  PreLoginWait  – stagger wait spent before login.
//  PostLoginWait – complementary stagger wait spent after login.
//  Available     – latest availability snapshot.
//  Selected      – seat picked by the current booking attempt.
//  Booked        – seats successfully claimed, in claim order.
//  BookedPayload – serialized Booked list sent with the confirmation.
type SessionState struct {
	PreLoginWait  time.Duration
	PostLoginWait time.Duration
	Available     AvailabilitySet
	Selected      *Coordinate
	Booked        []Coordinate
	BookedPayload []byte
}

// HasBooked reports whether the user already holds c.
func (s *SessionState) HasBooked(c Coordinate) bool {
	for _, b := range s.Booked {
		if b == c {
			return true
		}
	}
	return false
}
