package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kyu4583/realticket-gatling-simulations/internal/client"
	"github.com/kyu4583/realticket-gatling-simulations/internal/model"
	"github.com/kyu4583/realticket-gatling-simulations/internal/seat"
)

// DefaultConnectAwait bounds the wait for the first pushed snapshot.
const DefaultConnectAwait = 32 * time.Second

// Push keeps a seat stream open and reads the newest buffered message
// on every refresh.  Only the latest message matters because each one is
// a full snapshot.
type Push struct {
	svc    client.Service
	opts   Options
	logger zerolog.Logger

	stream    client.Stream
	last      model.AvailabilitySet
	closeOnce sync.Once
	closeErr  error
}

func NewPush(svc client.Service, opts Options, logger zerolog.Logger) *Push {
	return &Push{svc: svc, opts: opts, logger: logger, last: model.AvailabilitySet{}}
}

// Subscribe opens the stream and parses the first inbound message.  A
// missing or malformed first message leaves an empty snapshot; only a
// failure to open the stream is returned.
func (p *Push) Subscribe(ctx context.Context) (model.AvailabilitySet, error) {
	st, err := p.svc.OpenSeatStream(ctx, p.opts.EventID)
	if err != nil {
		return nil, fmt.Errorf("open seat stream: %w", err)
	}
	p.stream = st
	p.last = p.primeInitial(ctx)
	return p.last, nil
}

func (p *Push) primeInitial(ctx context.Context) model.AvailabilitySet {
	await := p.opts.ConnectAwait
	if await <= 0 {
		await = DefaultConnectAwait
	}
	waitCtx, cancel := context.WithTimeout(ctx, await)
	defer cancel()

	msg, err := p.stream.Next(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			p.logger.Warn().Dur("await", await).Msg("transport: no initial seat status")
		} else {
			p.logger.Warn().Err(err).Msg("transport: read initial seat status")
		}
		return model.AvailabilitySet{}
	}
	set, err := seat.DecodeMessage(msg, p.opts.Encoding)
	if err != nil {
		p.logger.Warn().Err(err).Msg("transport: decode initial seat status")
		return model.AvailabilitySet{}
	}
	return set
}

// Refresh returns the snapshot carried by the newest unconsumed message,
// or the previous snapshot when nothing new arrived or the message could
// not be decoded.
func (p *Push) Refresh(_ context.Context) model.AvailabilitySet {
	if p.stream == nil {
		return p.last
	}
	msg, ok := p.stream.Latest()
	if !ok {
		return p.last
	}
	set, err := seat.DecodeMessage(msg, p.opts.Encoding)
	if err != nil {
		p.logger.Warn().Err(err).Msg("transport: decode pushed seat status")
		return p.last
	}
	p.last = set
	return set
}

// Close closes the stream once; later calls return the first result.
func (p *Push) Close() error {
	p.closeOnce.Do(func() {
		if p.stream != nil {
			p.closeErr = p.stream.Close()
		}
	})
	return p.closeErr
}
