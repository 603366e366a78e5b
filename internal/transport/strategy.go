// Package transport provides the two ways a virtual user learns which
// seats are still available: re-fetching the seat status before every
// attempt (poll) or consuming a live push channel (push).  The mode is
// fixed for a whole run.
package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kyu4583/realticket-gatling-simulations/internal/client"
	"github.com/kyu4583/realticket-gatling-simulations/internal/model"
)

// Mode names a transport strategy.
type Mode string

const (
	ModePoll Mode = "poll"
	ModePush Mode = "push"
)

// ParseMode accepts "poll", "push" and the aliases "http" and "ws".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "poll", "http", "":
		return ModePoll, nil
	case "push", "ws", "websocket":
		return ModePush, nil
	}
	return "", fmt.Errorf("unknown seat transport %q", s)
}

// Strategy tracks availability for one virtual user.
type Strategy interface {
	// Subscribe starts tracking and returns the initial snapshot.  An
	// error means the user cannot track availability at all.
	Subscribe(ctx context.Context) (model.AvailabilitySet, error)
	// Refresh returns the freshest snapshot.  It never fails: transport
	// and decode errors degrade to an empty (poll) or stale (push) set.
	Refresh(ctx context.Context) model.AvailabilitySet
	// Close releases the user's transport resources.
	Close() error
}

// Options are the run-wide transport settings.
//
// Fields:
//  EventID      – event whose seats are tracked.
//  Encoding     – seat-status cell encoding.
//  ConnectAwait – how long push mode waits for the first message.
type Options struct {
	EventID      int
	Encoding     model.Encoding
	ConnectAwait time.Duration
}

// Factory builds a Strategy bound to one user's service.
type Factory func(svc client.Service, logger zerolog.Logger) Strategy

// NewFactory resolves mode once for the run.
func NewFactory(mode Mode, opts Options) (Factory, error) {
	switch mode {
	case ModePoll:
		return func(svc client.Service, logger zerolog.Logger) Strategy {
			return NewPoll(svc, opts, logger)
		}, nil
	case ModePush:
		return func(svc client.Service, logger zerolog.Logger) Strategy {
			return NewPush(svc, opts, logger)
		}, nil
	}
	return nil, fmt.Errorf("unknown seat transport %q", mode)
}
