package realtime

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h *Hub, snapshot func() ([]byte, error)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = h.Serve(w, r, 1, snapshot)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func read(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(msg)
}

func TestHub_SnapshotThenBroadcast(t *testing.T) {
	h := NewHub(4)
	url := serve(t, h, func() ([]byte, error) { return []byte("initial"), nil })

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "initial", read(t, conn))
	require.Eventually(t, func() bool { return h.Subscribers(1) == 1 }, time.Second, 10*time.Millisecond)

	h.Broadcast(1, []byte("update"))
	h.Broadcast(2, []byte("other event"))
	assert.Equal(t, "update", read(t, conn))
}

func TestHub_SnapshotErrorStillStreams(t *testing.T) {
	h := NewHub(1)
	url := serve(t, h, func() ([]byte, error) { return nil, errors.New("boom") })

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.Subscribers(1) == 1 }, time.Second, 10*time.Millisecond)
	h.Broadcast(1, []byte("update"))
	assert.Equal(t, "update", read(t, conn))
}

func TestHub_UnregistersOnClientClose(t *testing.T) {
	h := NewHub(1)
	url := serve(t, h, func() ([]byte, error) { return []byte("x"), nil })

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	read(t, conn)
	require.Eventually(t, func() bool { return h.Subscribers(1) == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return h.Subscribers(1) == 0 }, 2*time.Second, 10*time.Millisecond)
	h.Broadcast(1, []byte("after close"))
}

func TestOffer_DropsOldest(t *testing.T) {
	ch := make(chan []byte, 2)
	offer(ch, []byte("a"))
	offer(ch, []byte("b"))
	offer(ch, []byte("c"))
	require.Len(t, ch, 2)
	assert.Equal(t, "b", string(<-ch))
	assert.Equal(t, "c", string(<-ch))
}

func TestServe_RejectsPlainHTTP(t *testing.T) {
	h := NewHub(1)
	rec := httptest.NewRecorder()
	err := h.Serve(rec, httptest.NewRequest(http.MethodGet, "/", nil), 1, nil)
	assert.Error(t, err)
	assert.Equal(t, 0, h.Subscribers(1))
}
