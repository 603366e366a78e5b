package client

import (
	"context"
	"time"

	"github.com/kyu4583/realticket-gatling-simulations/internal/model"
)

// Request names reported to an Observer.
const (
	RequestLogin      = "login"
	RequestPermission = "check_permission"
	RequestAmount     = "set_booking_amount"
	RequestSeatStatus = "fetch_seat_status"
	RequestSeatStream = "open_seat_stream"
	RequestClaim      = "claim_seat"
	RequestConfirm    = "confirm_reservation"
)

// Observer receives the latency and result of every request.
type Observer interface {
	ObserveRequest(name string, elapsed time.Duration, err error)
}

type observed struct {
	next Service
	obs  Observer
}

// WithObserver wraps svc so that each call is timed and reported to obs.
func WithObserver(svc Service, obs Observer) Service {
	if obs == nil {
		return svc
	}
	return &observed{next: svc, obs: obs}
}

func (o *observed) track(name string, start time.Time, err error) {
	o.obs.ObserveRequest(name, time.Since(start), err)
}

func (o *observed) Login(ctx context.Context, loginID, password string) error {
	start := time.Now()
	err := o.next.Login(ctx, loginID, password)
	o.track(RequestLogin, start, err)
	return err
}

func (o *observed) CheckPermission(ctx context.Context, eventID int) error {
	start := time.Now()
	err := o.next.CheckPermission(ctx, eventID)
	o.track(RequestPermission, start, err)
	return err
}

func (o *observed) SetBookingAmount(ctx context.Context, amount int) error {
	start := time.Now()
	err := o.next.SetBookingAmount(ctx, amount)
	o.track(RequestAmount, start, err)
	return err
}

func (o *observed) FetchSeatStatus(ctx context.Context, eventID int) ([]byte, error) {
	start := time.Now()
	msg, err := o.next.FetchSeatStatus(ctx, eventID)
	o.track(RequestSeatStatus, start, err)
	return msg, err
}

func (o *observed) OpenSeatStream(ctx context.Context, eventID int) (Stream, error) {
	start := time.Now()
	st, err := o.next.OpenSeatStream(ctx, eventID)
	o.track(RequestSeatStream, start, err)
	return st, err
}

func (o *observed) ClaimSeat(ctx context.Context, eventID int, seat model.Coordinate, expectedStatus string) error {
	start := time.Now()
	err := o.next.ClaimSeat(ctx, eventID, seat, expectedStatus)
	o.track(RequestClaim, start, err)
	return err
}

func (o *observed) ConfirmReservation(ctx context.Context, eventID int, seats []model.Coordinate) error {
	start := time.Now()
	err := o.next.ConfirmReservation(ctx, eventID, seats)
	o.track(RequestConfirm, start, err)
	return err
}
