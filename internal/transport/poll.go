package transport

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/kyu4583/realticket-gatling-simulations/internal/client"
	"github.com/kyu4583/realticket-gatling-simulations/internal/model"
	"github.com/kyu4583/realticket-gatling-simulations/internal/seat"
)

// Poll re-fetches the full seat status on every refresh.
type Poll struct {
	svc    client.Service
	opts   Options
	logger zerolog.Logger
}

func NewPoll(svc client.Service, opts Options, logger zerolog.Logger) *Poll {
	return &Poll{svc: svc, opts: opts, logger: logger}
}

// Subscribe performs the initial fetch.  Poll mode has no channel to
// open, so it cannot fail.
func (p *Poll) Subscribe(ctx context.Context) (model.AvailabilitySet, error) {
	return p.Refresh(ctx), nil
}

func (p *Poll) Refresh(ctx context.Context) model.AvailabilitySet {
	msg, err := p.svc.FetchSeatStatus(ctx, p.opts.EventID)
	if err != nil {
		p.logger.Warn().Err(err).Msg("transport: fetch seat status")
		return model.AvailabilitySet{}
	}
	set, err := seat.DecodeMessage(msg, p.opts.Encoding)
	if err != nil {
		p.logger.Warn().Err(err).Msg("transport: decode seat status")
		return model.AvailabilitySet{}
	}
	return set
}

func (p *Poll) Close() error { return nil }
