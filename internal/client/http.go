package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kyu4583/realticket-gatling-simulations/internal/model"
)

const userAgent = "realticket-loadgen/1.0"

// Options configures an HTTPService.
//
// Fields:
//  BaseURL        – root of the booking API, e.g. http://host:8080.
//  RequestTimeout – per-request timeout for HTTP calls.
//  StreamBuffer   – inbound message buffer capacity of seat streams.
//  Transport      – optional shared round tripper (connection pool).
type Options struct {
	BaseURL        string
	RequestTimeout time.Duration
	StreamBuffer   int
	Transport      http.RoundTripper
}

// HTTPService implements Service over HTTP and WebSocket.
type HTTPService struct {
	base   *url.URL
	http   *http.Client
	dialer *websocket.Dialer
	buffer int
}

// NewHTTPService builds a Service with a fresh cookie jar.
func NewHTTPService(opts Options) (*HTTPService, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", opts.BaseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	buffer := opts.StreamBuffer
	if buffer < 1 {
		buffer = 1
	}
	return &HTTPService{
		base: base,
		http: &http.Client{Jar: jar, Timeout: timeout, Transport: opts.Transport},
		dialer: &websocket.Dialer{
			Jar:              jar,
			HandshakeTimeout: timeout,
		},
		buffer: buffer,
	}, nil
}

func (s *HTTPService) endpoint(path string) string {
	return s.base.String() + path
}

func (s *HTTPService) do(ctx context.Context, op, method, path string, body interface{}, accept ...int) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal body: %w", op, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.endpoint(path), rd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, model.ErrFatalTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, model.ErrFatalTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w: %v", op, model.ErrFatalTransport, err)
	}
	for _, code := range accept {
		if resp.StatusCode == code {
			return data, nil
		}
	}
	return nil, &StatusError{Op: op, Status: resp.StatusCode, Body: truncate(string(data), 256)}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Login posts the user's credentials; the session cookie lands in the jar.
func (s *HTTPService) Login(ctx context.Context, loginID, password string) error {
	body := map[string]string{"loginId": loginID, "loginPassword": password}
	_, err := s.do(ctx, opLogin, http.MethodPost, "/user/login", body, http.StatusOK, http.StatusCreated)
	return err
}

// CheckPermission accepts 200 and 304 as granted; any other status
// unwraps to model.ErrPermissionDenied.
func (s *HTTPService) CheckPermission(ctx context.Context, eventID int) error {
	path := "/booking/permission/" + strconv.Itoa(eventID)
	_, err := s.do(ctx, opPermission, http.MethodGet, path, nil, http.StatusOK, http.StatusNotModified)
	return err
}

func (s *HTTPService) SetBookingAmount(ctx context.Context, amount int) error {
	body := map[string]int{"bookingAmount": amount}
	_, err := s.do(ctx, opAmount, http.MethodPost, "/booking/count", body, http.StatusOK, http.StatusCreated)
	return err
}

// FetchSeatStatus returns the raw envelope {"data":{"seatStatus":...}}.
func (s *HTTPService) FetchSeatStatus(ctx context.Context, eventID int) ([]byte, error) {
	path := "/booking/seat/" + strconv.Itoa(eventID)
	return s.do(ctx, opSeatStatus, http.MethodGet, path, nil, http.StatusOK)
}

type claimRequest struct {
	EventID        int    `json:"eventId"`
	SectionIndex   int    `json:"sectionIndex"`
	SeatIndex      int    `json:"seatIndex"`
	ExpectedStatus string `json:"expectedStatus"`
}

// ClaimSeat returns an error wrapping model.ErrConflict on 409.
func (s *HTTPService) ClaimSeat(ctx context.Context, eventID int, seat model.Coordinate, expectedStatus string) error {
	body := claimRequest{
		EventID:        eventID,
		SectionIndex:   seat.Section,
		SeatIndex:      seat.Seat,
		ExpectedStatus: expectedStatus,
	}
	_, err := s.do(ctx, opClaim, http.MethodPost, "/booking", body, http.StatusOK, http.StatusCreated)
	return err
}

type confirmRequest struct {
	EventID int                `json:"eventId"`
	Seats   []model.Coordinate `json:"seats"`
}

func (s *HTTPService) ConfirmReservation(ctx context.Context, eventID int, seats []model.Coordinate) error {
	body := confirmRequest{EventID: eventID, Seats: seats}
	_, err := s.do(ctx, opConfirm, http.MethodPost, "/reservation", body, http.StatusOK, http.StatusCreated)
	return err
}

// OpenSeatStream dials the seat push channel for eventID.
func (s *HTTPService) OpenSeatStream(ctx context.Context, eventID int) (Stream, error) {
	u := *s.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/benchmark/seat"
	u.RawQuery = url.Values{"eventId": {strconv.Itoa(eventID)}}.Encode()

	header := http.Header{}
	header.Set("User-Agent", userAgent)
	conn, resp, err := s.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, &StatusError{Op: opSeatStream, Status: resp.StatusCode}
		}
		return nil, fmt.Errorf("%s: %w: %v", opSeatStream, model.ErrFatalTransport, err)
	}
	return newWSStream(conn, s.buffer), nil
}
