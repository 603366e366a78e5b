package clienttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/kyu4583/realticket-gatling-simulations/internal/model"
	"github.com/kyu4583/realticket-gatling-simulations/internal/seat"
)

// Venue is an in-memory seat inventory shared by fake services.  Claimed
// seats disappear from later snapshots; claiming a taken seat returns
// model.ErrConflict.
type Venue struct {
	mu    sync.Mutex
	grid  [][]int
	claim int
}

// NewVenue creates sections x seats, all available.
func NewVenue(sections, seats int) *Venue {
	grid := make([][]int, sections)
	for i := range grid {
		grid[i] = make([]int, seats)
		for j := range grid[i] {
			grid[i][j] = 1
		}
	}
	return &Venue{grid: grid}
}

// Take marks c as taken without counting it as a claim.
func (v *Venue) Take(c model.Coordinate) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.grid[c.Section][c.Seat] = 0
}

// Claims returns the number of accepted claims.
func (v *Venue) Claims() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.claim
}

// Envelope renders the current grid as a bit-flag service envelope.
func (v *Venue) Envelope() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	msg, err := seat.Wrap(v.grid)
	if err != nil {
		panic(err)
	}
	return msg
}

// Fetch implements Service.FetchFunc.
func (v *Venue) Fetch(context.Context, int) ([]byte, error) {
	return v.Envelope(), nil
}

// Claim implements Service.ClaimFunc.
func (v *Venue) Claim(_ context.Context, _ int, c model.Coordinate, _ string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if c.Section >= len(v.grid) || c.Seat >= len(v.grid[c.Section]) {
		return fmt.Errorf("%w: no seat %s", model.ErrFatalTransport, c)
	}
	if v.grid[c.Section][c.Seat] != 1 {
		return fmt.Errorf("claim %s: %w", c, model.ErrConflict)
	}
	v.grid[c.Section][c.Seat] = 0
	v.claim++
	return nil
}

// Bind wires the venue into svc's fetch and claim functions.
func (v *Venue) Bind(svc *Service) *Service {
	svc.FetchFunc = v.Fetch
	svc.ClaimFunc = v.Claim
	return svc
}
