package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyu4583/realticket-gatling-simulations/internal/client"
	"github.com/kyu4583/realticket-gatling-simulations/internal/config"
	"github.com/kyu4583/realticket-gatling-simulations/internal/delay"
	"github.com/kyu4583/realticket-gatling-simulations/internal/handler"
	"github.com/kyu4583/realticket-gatling-simulations/internal/middleware"
	"github.com/kyu4583/realticket-gatling-simulations/internal/model"
	"github.com/kyu4583/realticket-gatling-simulations/internal/queue"
	"github.com/kyu4583/realticket-gatling-simulations/internal/realtime"
	"github.com/kyu4583/realticket-gatling-simulations/internal/repository"
	"github.com/kyu4583/realticket-gatling-simulations/internal/seat"
	"github.com/kyu4583/realticket-gatling-simulations/internal/transport"
	"github.com/kyu4583/realticket-gatling-simulations/internal/workflow"
)

const secret = "router-test-secret"

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.BookingConfirmedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, q string, v interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if q == queue.BookingConfirmedQueue {
		p.events = append(p.events, v.(queue.BookingConfirmedEvent))
	}
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type target struct {
	srv    *httptest.Server
	seats  *repository.SeatStore
	events *recordingPublisher
}

func newTarget(t *testing.T, enc model.Encoding, layout repository.Layout, users int) *target {
	t.Helper()
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	accounts := repository.NewAccountStore(rdb)
	require.NoError(t, accounts.Seed(ctx, users, 4))
	seats := repository.NewSeatStore(rdb)
	require.NoError(t, seats.Setup(ctx, 1, layout))

	events := &recordingPublisher{}
	e := echo.New()
	RegisterRoutes(e, handler.NewAuthHandler(accounts, secret, 5))
	RegisterBooking(e, handler.NewBookingHandler(seats, realtime.NewHub(8), enc, events), secret,
		middleware.NewTokenBucket(config.RateLimitConfig{}, nil))

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return &target{srv: srv, seats: seats, events: events}
}

func (tg *target) service(t *testing.T) *client.HTTPService {
	t.Helper()
	svc, err := client.NewHTTPService(client.Options{BaseURL: tg.srv.URL, RequestTimeout: 5 * time.Second, StreamBuffer: 4})
	require.NoError(t, err)
	return svc
}

func (tg *target) do(t *testing.T, method, path, body, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, tg.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: token})
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (tg *target) login(t *testing.T, id, pw string) string {
	t.Helper()
	resp := tg.do(t, http.MethodPost, "/user/login", `{"loginId":"`+id+`","loginPassword":"`+pw+`"}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for _, ck := range resp.Cookies() {
		if ck.Name == middleware.SessionCookie {
			return ck.Value
		}
	}
	t.Fatal("no session cookie")
	return ""
}

func TestRoutes_StatusCodes(t *testing.T) {
	tg := newTarget(t, model.BitFlag, repository.Layout{Sections: 1, SeatsPerSection: 2}, 2)

	assert.Equal(t, http.StatusOK, tg.do(t, http.MethodGet, "/healthz", "", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized,
		tg.do(t, http.MethodPost, "/user/login", `{"loginId":"test1","loginPassword":"wrong"}`, "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, tg.do(t, http.MethodPost, "/user/login", `{}`, "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, tg.do(t, http.MethodGet, "/booking/permission/1", "", "").StatusCode)

	tok1 := tg.login(t, "test1", "testpw1")
	tok2 := tg.login(t, "test2", "testpw2")

	assert.Equal(t, http.StatusOK, tg.do(t, http.MethodGet, "/booking/permission/1", "", tok1).StatusCode)
	assert.Equal(t, http.StatusNotFound, tg.do(t, http.MethodGet, "/booking/permission/9", "", tok1).StatusCode)
	assert.Equal(t, http.StatusBadRequest, tg.do(t, http.MethodGet, "/booking/permission/x", "", tok1).StatusCode)

	claim := `{"eventId":1,"sectionIndex":0,"seatIndex":1,"expectedStatus":"reserved"}`
	assert.Equal(t, http.StatusBadRequest, tg.do(t, http.MethodPost, "/booking", claim, tok1).StatusCode, "amount not set")

	assert.Equal(t, http.StatusBadRequest, tg.do(t, http.MethodPost, "/booking/count", `{"bookingAmount":0}`, tok1).StatusCode)
	assert.Equal(t, http.StatusOK, tg.do(t, http.MethodPost, "/booking/count", `{"bookingAmount":1}`, tok1).StatusCode)
	assert.Equal(t, http.StatusOK, tg.do(t, http.MethodPost, "/booking/count", `{"bookingAmount":1}`, tok2).StatusCode)

	assert.Equal(t, http.StatusBadRequest, tg.do(t, http.MethodPost, "/booking",
		`{"eventId":1,"sectionIndex":0,"seatIndex":1,"expectedStatus":"available"}`, tok1).StatusCode)
	assert.Equal(t, http.StatusOK, tg.do(t, http.MethodPost, "/booking", claim, tok1).StatusCode)
	assert.Equal(t, http.StatusConflict, tg.do(t, http.MethodPost, "/booking", claim, tok2).StatusCode)
	assert.Equal(t, http.StatusNotFound, tg.do(t, http.MethodPost, "/booking",
		`{"eventId":1,"sectionIndex":5,"seatIndex":0,"expectedStatus":"reserved"}`, tok2).StatusCode)

	resp := tg.do(t, http.MethodGet, "/booking/seat/1", "", tok2)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var env struct {
		Data struct {
			SeatStatus [][]int `json:"seatStatus"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, [][]int{{1, 0}}, env.Data.SeatStatus)

	reserve := `{"eventId":1,"seats":[{"sectionIndex":0,"seatIndex":1}]}`
	assert.Equal(t, http.StatusBadRequest, tg.do(t, http.MethodPost, "/reservation", reserve, tok2).StatusCode, "not held")
	assert.Equal(t, http.StatusBadRequest, tg.do(t, http.MethodPost, "/reservation", `{"eventId":1,"seats":[]}`, tok1).StatusCode)
	assert.Equal(t, 0, tg.events.count())
	assert.Equal(t, http.StatusOK, tg.do(t, http.MethodPost, "/reservation", reserve, tok1).StatusCode)
	require.Equal(t, 1, tg.events.count())
	assert.Equal(t, "test1", tg.events.events[0].LoginID)
	assert.Equal(t, []string{"0:1"}, tg.events.events[0].Seats)
}

func TestClient_AgainstTarget(t *testing.T) {
	tg := newTarget(t, model.Boolean, repository.Layout{Sections: 2, SeatsPerSection: 3}, 1)
	ctx := context.Background()
	svc := tg.service(t)

	assert.ErrorIs(t, svc.CheckPermission(ctx, 1), model.ErrPermissionDenied, "no session yet")
	require.NoError(t, svc.Login(ctx, "test1", "testpw1"))
	require.NoError(t, svc.CheckPermission(ctx, 1))
	assert.ErrorIs(t, svc.CheckPermission(ctx, 2), model.ErrPermissionDenied)
	require.NoError(t, svc.SetBookingAmount(ctx, 2))

	stream, err := svc.OpenSeatStream(ctx, 1)
	require.NoError(t, err)
	defer stream.Close()

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	first, err := stream.Next(waitCtx)
	require.NoError(t, err)
	assert.Len(t, seat.ParseMessage(first, model.Boolean), 6)

	c := model.Coordinate{Section: 1, Seat: 2}
	require.NoError(t, svc.ClaimSeat(ctx, 1, c, client.ExpectedReserved))
	assert.ErrorIs(t, svc.ClaimSeat(ctx, 1, c, client.ExpectedReserved), model.ErrConflict)

	pushed, err := stream.Next(waitCtx)
	require.NoError(t, err)
	set := seat.ParseMessage(pushed, model.Boolean)
	assert.Len(t, set, 5)
	assert.False(t, set.Contains(c))

	raw, err := svc.FetchSeatStatus(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, set, seat.ParseMessage(raw, model.Boolean))

	require.NoError(t, svc.ConfirmReservation(ctx, 1, []model.Coordinate{c}))
	holder, err := tg.seats.Holder(ctx, 1, c)
	require.NoError(t, err)
	assert.Equal(t, "test1", holder)
}

func runUsers(t *testing.T, tg *target, mode transport.Mode, enc model.Encoding, users, amount int) []workflow.Outcome {
	t.Helper()
	tf, err := transport.NewFactory(mode, transport.Options{EventID: 1, Encoding: enc, ConnectAwait: 2 * time.Second})
	require.NoError(t, err)
	opts := workflow.Options{
		EventID:       1,
		BookingAmount: amount,
		MaxRetries:    30,
		Pacing: delay.Pacing{
			BetweenBooking: delay.Range{Min: 10 * time.Millisecond, Max: 20 * time.Millisecond, Skew: 1, BiasLow: true},
		},
		Stages: workflow.Stages{Confirm: true},
	}
	services := func(*model.VirtualUser) (client.Service, error) {
		return client.NewHTTPService(client.Options{BaseURL: tg.srv.URL, RequestTimeout: 5 * time.Second, StreamBuffer: 4})
	}
	orch := workflow.New(opts, delay.NewSeededSampler(11), services, tf, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	outcomes := make([]workflow.Outcome, users)
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = orch.Run(ctx, orch.NewUser(i+1))
		}(i)
	}
	wg.Wait()
	return outcomes
}

func TestWorkflow_EndToEnd(t *testing.T) {
	for _, mode := range []transport.Mode{transport.ModePoll, transport.ModePush} {
		for _, enc := range []model.Encoding{model.BitFlag, model.Boolean} {
			t.Run(string(mode)+"/"+enc.String(), func(t *testing.T) {
				tg := newTarget(t, enc, repository.Layout{Sections: 2, SeatsPerSection: 10}, 5)
				outcomes := runUsers(t, tg, mode, enc, 5, 2)

				held := map[model.Coordinate]string{}
				for _, o := range outcomes {
					require.NoError(t, o.Err, "user %d", o.UserNum)
					assert.Equal(t, workflow.Confirmed, o.State)
					assert.Len(t, o.Booked, 2)
					for _, c := range o.Booked {
						_, dup := held[c]
						assert.False(t, dup, "seat %s booked twice", c)
						held[c] = "test" + strconv.Itoa(o.UserNum)
					}
				}
				for c, login := range held {
					got, err := tg.seats.Holder(context.Background(), 1, c)
					require.NoError(t, err)
					assert.Equal(t, login, got)
				}
				assert.Equal(t, 5, tg.events.count())
			})
		}
	}
}

func TestWorkflow_SoldOut(t *testing.T) {
	tg := newTarget(t, model.BitFlag, repository.Layout{Sections: 1, SeatsPerSection: 4}, 3)
	outcomes := runUsers(t, tg, transport.ModePoll, model.BitFlag, 3, 2)

	total := 0
	for _, o := range outcomes {
		assert.NotEqual(t, workflow.Aborted, o.State, "user %d: %v", o.UserNum, o.Err)
		if len(o.Booked) < 2 {
			assert.ErrorIs(t, o.Err, model.ErrNoSeatsAvailable)
		}
		total += len(o.Booked)
	}
	assert.Equal(t, 4, total)

	raw, err := tg.seats.Grid(context.Background(), 1, model.BitFlag)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 0, 0, 0}}, raw)
}
