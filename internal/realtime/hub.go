// Package realtime fans seat-status updates out to WebSocket subscribers
// of the sandbox target.
package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks seat-stream subscribers per event.  Slow subscribers lose
// their oldest queued message; every message is a full grid so only the
// newest matters.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]map[*subscriber]struct{}
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{subs: make(map[int]map[*subscriber]struct{}), buffer: buffer}
}

// Serve upgrades the request, sends the snapshot and then every broadcast
// for eventID until the client goes away.  It blocks for the life of the
// connection.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, eventID int, snapshot func() ([]byte, error)) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	sub := &subscriber{conn: conn, send: make(chan []byte, h.buffer)}
	h.register(eventID, sub)
	defer func() {
		h.unregister(eventID, sub)
		_ = conn.Close()
	}()

	msg, err := snapshot()
	if err != nil {
		log.Warn().Err(err).Int("event", eventID).Msg("realtime: initial snapshot")
	} else {
		h.mu.Lock()
		offer(sub.send, msg)
		h.mu.Unlock()
	}

	go writeLoop(sub)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Int("event", eventID).Msg("realtime: read")
			}
			return nil
		}
	}
}

// Broadcast queues msg for every subscriber of eventID without blocking.
func (h *Hub) Broadcast(eventID int, msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[eventID] {
		offer(sub.send, msg)
	}
}

// Subscribers reports how many streams are open for eventID.
func (h *Hub) Subscribers(eventID int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[eventID])
}

func (h *Hub) register(eventID int, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[eventID]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[eventID] = set
	}
	set[sub] = struct{}{}
}

// unregister closes sub.send under the lock so Broadcast never sends on a
// closed channel.
func (h *Hub) unregister(eventID int, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[eventID]
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, eventID)
	}
	close(sub.send)
}

// offer enqueues msg, dropping the oldest queued message when full.
// Callers hold the hub lock.
func offer(ch chan []byte, msg []byte) {
	for {
		select {
		case ch <- msg:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func writeLoop(sub *subscriber) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = sub.conn.Close()
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = sub.conn.Close()
				return
			}
		}
	}
}
