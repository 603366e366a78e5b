// Package client talks to the booking service on behalf of one virtual
// user.  Each Service owns its own cookie jar so that the session cookie
// issued at login is replayed on every later request of the same user.
package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kyu4583/realticket-gatling-simulations/internal/model"
)

// ExpectedReserved is the post-claim status sent with every seat claim.
const ExpectedReserved = "reserved"

// Service is the set of booking-service calls a virtual user makes.
type Service interface {
	Login(ctx context.Context, loginID, password string) error
	CheckPermission(ctx context.Context, eventID int) error
	SetBookingAmount(ctx context.Context, amount int) error
	FetchSeatStatus(ctx context.Context, eventID int) ([]byte, error)
	OpenSeatStream(ctx context.Context, eventID int) (Stream, error)
	ClaimSeat(ctx context.Context, eventID int, seat model.Coordinate, expectedStatus string) error
	ConfirmReservation(ctx context.Context, eventID int, seats []model.Coordinate) error
}

// Stream is a long-lived push channel of seat-status messages.
type Stream interface {
	// Next blocks until a message is buffered or ctx is done and returns
	// the newest buffered message.
	Next(ctx context.Context) ([]byte, error)
	// Latest drains the buffer without blocking.  ok is false when no
	// message arrived since the previous call.
	Latest() (msg []byte, ok bool)
	Close() error
}

// StatusError is returned when the service answers with a status code
// the call does not accept.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.Status, e.Body)
}

// Unwrap classifies the status so callers can use errors.Is with the
// model sentinels.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Op == opPermission:
		return model.ErrPermissionDenied
	case e.Status == http.StatusConflict:
		return model.ErrConflict
	}
	return model.ErrFatalTransport
}

const (
	opLogin      = "login"
	opPermission = "permission"
	opAmount     = "booking amount"
	opSeatStatus = "seat status"
	opSeatStream = "seat stream"
	opClaim      = "claim seat"
	opConfirm    = "confirm reservation"
)
