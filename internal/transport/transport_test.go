package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyu4583/realticket-gatling-simulations/internal/client"
	"github.com/kyu4583/realticket-gatling-simulations/internal/client/clienttest"
	"github.com/kyu4583/realticket-gatling-simulations/internal/model"
)

var opts = Options{EventID: 1, Encoding: model.BitFlag, ConnectAwait: 200 * time.Millisecond}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{
		"": ModePoll, "poll": ModePoll, "HTTP": ModePoll,
		"push": ModePush, "ws": ModePush, " WebSocket ": ModePush,
	} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMode("carrier-pigeon")
	assert.Error(t, err)
}

func TestNewFactory(t *testing.T) {
	f, err := NewFactory(ModePoll, opts)
	require.NoError(t, err)
	assert.IsType(t, &Poll{}, f(&clienttest.Service{}, zerolog.Nop()))

	f, err = NewFactory(ModePush, opts)
	require.NoError(t, err)
	assert.IsType(t, &Push{}, f(&clienttest.Service{}, zerolog.Nop()))

	_, err = NewFactory(Mode("smoke"), opts)
	assert.Error(t, err)
}

func TestPoll_RefetchesEveryRefresh(t *testing.T) {
	venue := clienttest.NewVenue(1, 3)
	svc := venue.Bind(&clienttest.Service{})
	p := NewPoll(svc, opts, zerolog.Nop())

	set, err := p.Subscribe(context.Background())
	require.NoError(t, err)
	assert.Len(t, set, 3)

	venue.Take(model.Coordinate{Section: 0, Seat: 1})
	set = p.Refresh(context.Background())
	assert.Equal(t, model.AvailabilitySet{{Section: 0, Seat: 0}, {Section: 0, Seat: 2}}, set)
	assert.Equal(t, 2, svc.Count(client.RequestSeatStatus))
	assert.NoError(t, p.Close())
}

func TestPoll_ErrorsYieldEmptySet(t *testing.T) {
	svc := &clienttest.Service{FetchFunc: func(context.Context, int) ([]byte, error) {
		return nil, errors.New("connection reset")
	}}
	p := NewPoll(svc, opts, zerolog.Nop())

	set, err := p.Subscribe(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, set)
	assert.Empty(t, set)

	svc.FetchFunc = func(context.Context, int) ([]byte, error) {
		return []byte(`{"data":{"seatStatus":"nope"}}`), nil
	}
	set = p.Refresh(context.Background())
	assert.NotNil(t, set)
	assert.Empty(t, set)
}

func TestPush_InitialMessageAndStaleRefresh(t *testing.T) {
	st := clienttest.NewStream()
	st.Push([]byte(`{"data":{"seatStatus":[[1,0,1]]}}`))
	svc := &clienttest.Service{OpenStreamFunc: func(context.Context, int) (client.Stream, error) {
		return st, nil
	}}
	p := NewPush(svc, opts, zerolog.Nop())

	set, err := p.Subscribe(context.Background())
	require.NoError(t, err)
	want := model.AvailabilitySet{{Section: 0, Seat: 0}, {Section: 0, Seat: 2}}
	assert.Equal(t, want, set)

	// nothing new pushed: same content
	assert.Equal(t, want, p.Refresh(context.Background()))
	assert.Equal(t, want, p.Refresh(context.Background()))
	assert.Zero(t, svc.Count(client.RequestSeatStatus))
}

func TestPush_RefreshUsesNewestMessage(t *testing.T) {
	st := clienttest.NewStream()
	st.Push([]byte(`{"data":{"seatStatus":[[1,1]]}}`))
	svc := &clienttest.Service{OpenStreamFunc: func(context.Context, int) (client.Stream, error) {
		return st, nil
	}}
	p := NewPush(svc, opts, zerolog.Nop())
	_, err := p.Subscribe(context.Background())
	require.NoError(t, err)

	st.Push([]byte(`{"data":{"seatStatus":[[0,1]]}}`))
	st.Push([]byte(`{"data":{"seatStatus":[[0,0]]}}`))
	assert.Empty(t, p.Refresh(context.Background()))
}

func TestPush_DecodeFailureKeepsPreviousSnapshot(t *testing.T) {
	st := clienttest.NewStream()
	st.Push([]byte(`{"data":{"seatStatus":[[1]]}}`))
	svc := &clienttest.Service{OpenStreamFunc: func(context.Context, int) (client.Stream, error) {
		return st, nil
	}}
	p := NewPush(svc, opts, zerolog.Nop())
	_, err := p.Subscribe(context.Background())
	require.NoError(t, err)

	st.Push([]byte(`not json`))
	assert.Equal(t, model.AvailabilitySet{{Section: 0, Seat: 0}}, p.Refresh(context.Background()))
}

func TestPush_NoInitialMessageYieldsEmptySet(t *testing.T) {
	svc := &clienttest.Service{}
	p := NewPush(svc, opts, zerolog.Nop())

	set, err := p.Subscribe(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, set)
	assert.Empty(t, set)
}

func TestPush_OpenFailure(t *testing.T) {
	svc := &clienttest.Service{OpenStreamFunc: func(context.Context, int) (client.Stream, error) {
		return nil, &client.StatusError{Op: "seat stream", Status: 502}
	}}
	p := NewPush(svc, opts, zerolog.Nop())

	_, err := p.Subscribe(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrFatalTransport)
	assert.NoError(t, p.Close())
}

func TestPush_CloseIsIdempotent(t *testing.T) {
	st := clienttest.NewStream()
	svc := &clienttest.Service{OpenStreamFunc: func(context.Context, int) (client.Stream, error) {
		return st, nil
	}}
	p := NewPush(svc, Options{ConnectAwait: time.Millisecond}, zerolog.Nop())
	_, err := p.Subscribe(context.Background())
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.True(t, st.Closed())
}
