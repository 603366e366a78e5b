package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kyu4583/realticket-gatling-simulations/internal/model"
)

// ErrStreamClosed is returned by Next once the stream ended and no
// buffered message is left.
var ErrStreamClosed = errors.New("seat stream closed")

// inbox is a bounded buffer of unconsumed inbound messages.  When full
// the oldest message is dropped, so the newest is always retained.
type inbox struct {
	mu     sync.Mutex
	limit  int
	msgs   [][]byte
	notify chan struct{}
	done   chan struct{}
	once   sync.Once
	err    error
}

func newInbox(limit int) *inbox {
	if limit < 1 {
		limit = 1
	}
	return &inbox{
		limit:  limit,
		msgs:   make([][]byte, 0, limit),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (b *inbox) push(msg []byte) {
	b.mu.Lock()
	if len(b.msgs) == b.limit {
		copy(b.msgs, b.msgs[1:])
		b.msgs = b.msgs[:len(b.msgs)-1]
	}
	b.msgs = append(b.msgs, msg)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// drain empties the buffer and returns the most recent message.
func (b *inbox) drain() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.msgs) == 0 {
		return nil, false
	}
	last := b.msgs[len(b.msgs)-1]
	b.msgs = b.msgs[:0]
	return last, true
}

func (b *inbox) fail(err error) {
	b.once.Do(func() {
		b.mu.Lock()
		b.err = err
		b.mu.Unlock()
		close(b.done)
	})
}

func (b *inbox) wait(ctx context.Context) ([]byte, error) {
	for {
		if msg, ok := b.drain(); ok {
			return msg, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.notify:
		case <-b.done:
			if msg, ok := b.drain(); ok {
				return msg, nil
			}
			b.mu.Lock()
			err := b.err
			b.mu.Unlock()
			return nil, fmt.Errorf("%w: %v", ErrStreamClosed, err)
		}
	}
}

type wsStream struct {
	conn      *websocket.Conn
	in        *inbox
	closeOnce sync.Once
	closeErr  error
}

func newWSStream(conn *websocket.Conn, buffer int) *wsStream {
	s := &wsStream{conn: conn, in: newInbox(buffer)}
	go s.readLoop()
	return s
}

func (s *wsStream) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.in.fail(err)
			return
		}
		s.in.push(data)
	}
}

func (s *wsStream) Next(ctx context.Context) ([]byte, error) {
	msg, err := s.in.wait(ctx)
	if err != nil && !errors.Is(err, ctx.Err()) {
		return nil, fmt.Errorf("%s: %w: %v", opSeatStream, model.ErrFatalTransport, err)
	}
	return msg, err
}

func (s *wsStream) Latest() ([]byte, bool) {
	return s.in.drain()
}

// Close sends a close frame and releases the connection.  It is safe to
// call more than once.
func (s *wsStream) Close() error {
	s.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		s.closeErr = s.conn.Close()
		s.in.fail(ErrStreamClosed)
	})
	return s.closeErr
}
