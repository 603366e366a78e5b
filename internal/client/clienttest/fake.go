// Package clienttest provides in-memory client.Service and client.Stream
// implementations for tests.
package clienttest

import (
	"context"
	"sync"

	"github.com/kyu4583/realticket-gatling-simulations/internal/client"
	"github.com/kyu4583/realticket-gatling-simulations/internal/model"
)

// Service is a client.Service whose behaviour is set per call through
// the function fields.  Nil functions succeed.  Every call is recorded
// under the client.Request* names.
type Service struct {
	LoginFunc      func(ctx context.Context, loginID, password string) error
	PermissionFunc func(ctx context.Context, eventID int) error
	AmountFunc     func(ctx context.Context, amount int) error
	FetchFunc      func(ctx context.Context, eventID int) ([]byte, error)
	OpenStreamFunc func(ctx context.Context, eventID int) (client.Stream, error)
	ClaimFunc      func(ctx context.Context, eventID int, seat model.Coordinate, expected string) error
	ConfirmFunc    func(ctx context.Context, eventID int, seats []model.Coordinate) error

	mu    sync.Mutex
	calls []string
}

var _ client.Service = (*Service)(nil)

func (s *Service) record(name string) {
	s.mu.Lock()
	s.calls = append(s.calls, name)
	s.mu.Unlock()
}

// Calls returns the recorded call names in order.
func (s *Service) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Count returns how often name was called.
func (s *Service) Count(name string) int {
	n := 0
	for _, c := range s.Calls() {
		if c == name {
			n++
		}
	}
	return n
}

func (s *Service) Login(ctx context.Context, loginID, password string) error {
	s.record(client.RequestLogin)
	if s.LoginFunc != nil {
		return s.LoginFunc(ctx, loginID, password)
	}
	return nil
}

func (s *Service) CheckPermission(ctx context.Context, eventID int) error {
	s.record(client.RequestPermission)
	if s.PermissionFunc != nil {
		return s.PermissionFunc(ctx, eventID)
	}
	return nil
}

func (s *Service) SetBookingAmount(ctx context.Context, amount int) error {
	s.record(client.RequestAmount)
	if s.AmountFunc != nil {
		return s.AmountFunc(ctx, amount)
	}
	return nil
}

func (s *Service) FetchSeatStatus(ctx context.Context, eventID int) ([]byte, error) {
	s.record(client.RequestSeatStatus)
	if s.FetchFunc != nil {
		return s.FetchFunc(ctx, eventID)
	}
	return []byte(`{"data":{"seatStatus":[]}}`), nil
}

func (s *Service) OpenSeatStream(ctx context.Context, eventID int) (client.Stream, error) {
	s.record(client.RequestSeatStream)
	if s.OpenStreamFunc != nil {
		return s.OpenStreamFunc(ctx, eventID)
	}
	return NewStream(), nil
}

func (s *Service) ClaimSeat(ctx context.Context, eventID int, seat model.Coordinate, expected string) error {
	s.record(client.RequestClaim)
	if s.ClaimFunc != nil {
		return s.ClaimFunc(ctx, eventID, seat, expected)
	}
	return nil
}

func (s *Service) ConfirmReservation(ctx context.Context, eventID int, seats []model.Coordinate) error {
	s.record(client.RequestConfirm)
	if s.ConfirmFunc != nil {
		return s.ConfirmFunc(ctx, eventID, seats)
	}
	return nil
}

// Stream is an in-memory client.Stream with a buffer of one message.
type Stream struct {
	mu      sync.Mutex
	pending []byte
	has     bool
	closed  bool
	notify  chan struct{}
}

var _ client.Stream = (*Stream)(nil)

func NewStream() *Stream {
	return &Stream{notify: make(chan struct{}, 1)}
}

// Push buffers msg, replacing any unconsumed message.
func (s *Stream) Push(msg []byte) {
	s.mu.Lock()
	s.pending, s.has = msg, true
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Stream) Latest() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.has {
		return nil, false
	}
	msg := s.pending
	s.pending, s.has = nil, false
	return msg, true
}

func (s *Stream) Next(ctx context.Context) ([]byte, error) {
	for {
		if msg, ok := s.Latest(); ok {
			return msg, nil
		}
		if s.Closed() {
			return nil, client.ErrStreamClosed
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.notify:
		}
	}
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
