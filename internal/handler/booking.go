package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/kyu4583/realticket-gatling-simulations/internal/middleware"
	"github.com/kyu4583/realticket-gatling-simulations/internal/model"
	"github.com/kyu4583/realticket-gatling-simulations/internal/queue"
	"github.com/kyu4583/realticket-gatling-simulations/internal/realtime"
	"github.com/kyu4583/realticket-gatling-simulations/internal/repository"
	"github.com/kyu4583/realticket-gatling-simulations/internal/seat"
)

// EventPublisher sends a message to a broker queue.
type EventPublisher interface {
	Publish(ctx context.Context, queue string, v interface{}) error
}

// BookingHandler serves the booking flow of the sandbox target.  Every
// method runs behind JWTAuth.
type BookingHandler struct {
	Seats    *repository.SeatStore
	Hub      *realtime.Hub
	Encoding model.Encoding
	// Events is optional; nil disables confirmation messages.
	Events EventPublisher
}

func NewBookingHandler(seats *repository.SeatStore, hub *realtime.Hub, enc model.Encoding, events EventPublisher) *BookingHandler {
	return &BookingHandler{Seats: seats, Hub: hub, Encoding: enc, Events: events}
}

func eventParam(raw string) (int, bool) {
	id, err := strconv.Atoi(raw)
	return id, err == nil && id > 0
}

// Permission handles GET /booking/permission/:eventId.
func (h *BookingHandler) Permission(c echo.Context) error {
	eventID, ok := eventParam(c.Param("eventId"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	if _, err := h.Seats.Layout(c.Request().Context(), eventID); err != nil {
		return storeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"eventId": eventID, "granted": true})
}

type amountReq struct {
	BookingAmount int `json:"bookingAmount"`
}

// SetAmount handles POST /booking/count.
func (h *BookingHandler) SetAmount(c echo.Context) error {
	var req amountReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.BookingAmount < 1 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "bookingAmount must be at least 1"})
	}
	if err := h.Seats.SetAmount(c.Request().Context(), middleware.LoginID(c), req.BookingAmount); err != nil {
		return storeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookingAmount": req.BookingAmount})
}

// SeatStatus handles GET /booking/seat/:eventId.
func (h *BookingHandler) SeatStatus(c echo.Context) error {
	eventID, ok := eventParam(c.Param("eventId"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	body, err := h.envelope(c.Request().Context(), eventID)
	if err != nil {
		return storeError(c, err)
	}
	return c.JSONBlob(http.StatusOK, body)
}

func (h *BookingHandler) envelope(ctx context.Context, eventID int) ([]byte, error) {
	grid, err := h.Seats.Grid(ctx, eventID, h.Encoding)
	if err != nil {
		return nil, err
	}
	return seat.Wrap(grid)
}

type claimReq struct {
	EventID        int    `json:"eventId"`
	SectionIndex   int    `json:"sectionIndex"`
	SeatIndex      int    `json:"seatIndex"`
	ExpectedStatus string `json:"expectedStatus"`
}

// Claim handles POST /booking: hold one seat if it is still available.
func (h *BookingHandler) Claim(c echo.Context) error {
	var req claimReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.ExpectedStatus != "reserved" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "expectedStatus must be reserved"})
	}
	if req.EventID < 1 || req.SectionIndex < 0 || req.SeatIndex < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid seat"})
	}
	ctx := c.Request().Context()
	coord := model.Coordinate{Section: req.SectionIndex, Seat: req.SeatIndex}
	if err := h.Seats.Claim(ctx, req.EventID, middleware.LoginID(c), coord); err != nil {
		return storeError(c, err)
	}
	h.broadcast(ctx, req.EventID)
	return c.JSON(http.StatusOK, echo.Map{"eventId": req.EventID, "seat": coord, "status": "reserved"})
}

func (h *BookingHandler) broadcast(ctx context.Context, eventID int) {
	if h.Hub == nil || h.Hub.Subscribers(eventID) == 0 {
		return
	}
	body, err := h.envelope(ctx, eventID)
	if err != nil {
		log.Warn().Err(err).Int("event", eventID).Msg("booking: build broadcast")
		return
	}
	h.Hub.Broadcast(eventID, body)
}

type reserveReq struct {
	EventID int                `json:"eventId"`
	Seats   []model.Coordinate `json:"seats"`
}

// Reserve handles POST /reservation: confirm every listed seat the caller
// holds.
func (h *BookingHandler) Reserve(c echo.Context) error {
	var req reserveReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.EventID < 1 || len(req.Seats) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "eventId and seats required"})
	}
	login := middleware.LoginID(c)
	if err := h.Seats.Confirm(c.Request().Context(), req.EventID, login, req.Seats); err != nil {
		return storeError(c, err)
	}
	h.publishConfirmed(c.Request().Context(), req.EventID, login, req.Seats)
	return c.JSON(http.StatusOK, echo.Map{"eventId": req.EventID, "seats": req.Seats, "status": "confirmed"})
}

// publishConfirmed never fails the request; broker errors are logged.
func (h *BookingHandler) publishConfirmed(ctx context.Context, eventID int, login string, seats []model.Coordinate) {
	if h.Events == nil {
		return
	}
	labels := make([]string, len(seats))
	for i, s := range seats {
		labels[i] = s.String()
	}
	ev := queue.BookingConfirmedEvent{
		EventID:     eventID,
		LoginID:     login,
		Seats:       labels,
		ConfirmedAt: time.Now().UTC().Format(time.RFC3339),
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := h.Events.Publish(ctx, queue.BookingConfirmedQueue, ev); err != nil {
		log.Warn().Err(err).Int("event", eventID).Str("login", login).Msg("booking: publish confirmation")
	}
}

// Stream handles GET /benchmark/seat?eventId=N, the WebSocket seat feed.
func (h *BookingHandler) Stream(c echo.Context) error {
	eventID, ok := eventParam(c.QueryParam("eventId"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	ctx := c.Request().Context()
	if _, err := h.Seats.Layout(ctx, eventID); err != nil {
		return storeError(c, err)
	}
	snapshot := func() ([]byte, error) { return h.envelope(ctx, eventID) }
	if err := h.Hub.Serve(c.Response(), c.Request(), eventID, snapshot); err != nil {
		log.Debug().Err(err).Int("event", eventID).Msg("booking: upgrade seat stream")
	}
	return nil
}

// storeError maps repository sentinels onto status codes.
func storeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrAmountNotSet),
		errors.Is(err, repository.ErrAmountExceeded),
		errors.Is(err, repository.ErrSeatNotHeld):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	log.Error().Err(err).Str("path", c.Path()).Msg("booking: store")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
