package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/kyu4583/realticket-gatling-simulations/internal/model"
)

// Seat cell values stored in the event hash.  Held and confirmed cells
// carry the owner's login id after the prefix.
const (
	cellAvailable = "A"
	cellHeld      = "R:"
	cellConfirmed = "C:"
)

// claimScript atomically moves one seat from available to held.
//
//	KEYS: layout, seats, amount, held
//	ARGV: field, login
//
// Returns 1 claimed, 0 taken, -1 amount exceeded, -2 amount not set,
// -3 unknown event, -4 unknown seat.
var claimScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 0 then return -3 end
	local status = redis.call('HGET', KEYS[2], ARGV[1])
	if not status then return -4 end
	if status ~= 'A' then return 0 end
	local amount = redis.call('HGET', KEYS[3], ARGV[2])
	if not amount then return -2 end
	local held = 0
	local h = redis.call('HGET', KEYS[4], ARGV[2])
	if h then held = tonumber(h) end
	if held >= tonumber(amount) then return -1 end
	redis.call('HSET', KEYS[2], ARGV[1], 'R:' .. ARGV[2])
	redis.call('HINCRBY', KEYS[4], ARGV[2], 1)
	return 1
`)

// confirmScript turns every listed seat held by login into confirmed.
//
//	KEYS: seats
//	ARGV: login, field...
//
// Returns 0 on success or the 1-based position of the first seat the
// user does not hold; nothing is written in that case.
var confirmScript = redis.NewScript(`
	local login = ARGV[1]
	for i = 2, #ARGV do
		local status = redis.call('HGET', KEYS[1], ARGV[i])
		if status ~= 'R:' .. login and status ~= 'C:' .. login then return i - 1 end
	end
	for i = 2, #ARGV do
		redis.call('HSET', KEYS[1], ARGV[i], 'C:' .. login)
	end
	return 0
`)

// SeatStore keeps the seat map of every event in Redis.
type SeatStore struct {
	rdb *redis.Client
}

func NewSeatStore(rdb *redis.Client) *SeatStore { return &SeatStore{rdb: rdb} }

func layoutKey(eventID int) string { return fmt.Sprintf("event:%d:layout", eventID) }
func seatsKey(eventID int) string  { return fmt.Sprintf("event:%d:seats", eventID) }
func heldKey(eventID int) string   { return fmt.Sprintf("event:%d:held", eventID) }

// amountKey holds each login's declared booking amount.  The amount is
// declared without an event id, so it is shared by all events.
const amountKey = "booking:amount"

func seatField(c model.Coordinate) string { return fmt.Sprintf("%d:%d", c.Section, c.Seat) }

func parseSeatField(f string) (model.Coordinate, bool) {
	sec, seat, ok := strings.Cut(f, ":")
	if !ok {
		return model.Coordinate{}, false
	}
	s, err1 := strconv.Atoi(sec)
	i, err2 := strconv.Atoi(seat)
	if err1 != nil || err2 != nil {
		return model.Coordinate{}, false
	}
	return model.Coordinate{Section: s, Seat: i}, true
}

// Layout is the shape of an event's seat map.
type Layout struct {
	Sections        int
	SeatsPerSection int
}

// Setup (re)creates an event with every seat available.
func (s *SeatStore) Setup(ctx context.Context, eventID int, l Layout) error {
	if l.Sections < 1 || l.SeatsPerSection < 1 {
		return fmt.Errorf("setup event %d: empty layout", eventID)
	}
	cells := make(map[string]interface{}, l.Sections*l.SeatsPerSection)
	for sec := 0; sec < l.Sections; sec++ {
		for i := 0; i < l.SeatsPerSection; i++ {
			cells[seatField(model.Coordinate{Section: sec, Seat: i})] = cellAvailable
		}
	}
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, layoutKey(eventID), seatsKey(eventID), amountKey, heldKey(eventID))
		p.HSet(ctx, layoutKey(eventID), "sections", l.Sections, "seats", l.SeatsPerSection)
		p.HSet(ctx, seatsKey(eventID), cells)
		return nil
	})
	return err
}

// Layout returns the event's shape or ErrNotFound.
func (s *SeatStore) Layout(ctx context.Context, eventID int) (Layout, error) {
	vals, err := s.rdb.HMGet(ctx, layoutKey(eventID), "sections", "seats").Result()
	if err != nil {
		return Layout{}, err
	}
	if vals[0] == nil || vals[1] == nil {
		return Layout{}, fmt.Errorf("event %d: %w", eventID, ErrNotFound)
	}
	sec, _ := strconv.Atoi(fmt.Sprint(vals[0]))
	seats, _ := strconv.Atoi(fmt.Sprint(vals[1]))
	return Layout{Sections: sec, SeatsPerSection: seats}, nil
}

// SetAmount records how many seats login intends to book.
func (s *SeatStore) SetAmount(ctx context.Context, login string, amount int) error {
	return s.rdb.HSet(ctx, amountKey, login, amount).Err()
}

// Claim holds seat c for login.
func (s *SeatStore) Claim(ctx context.Context, eventID int, login string, c model.Coordinate) error {
	keys := []string{layoutKey(eventID), seatsKey(eventID), amountKey, heldKey(eventID)}
	code, err := claimScript.Run(ctx, s.rdb, keys, seatField(c), login).Int()
	if err != nil {
		return fmt.Errorf("claim %s: %w", c, err)
	}
	switch code {
	case 1:
		return nil
	case 0:
		return fmt.Errorf("seat %s: %w", c, ErrConflict)
	case -1:
		return ErrAmountExceeded
	case -2:
		return ErrAmountNotSet
	case -3:
		return fmt.Errorf("event %d: %w", eventID, ErrNotFound)
	}
	return fmt.Errorf("seat %s: %w", c, ErrNotFound)
}

// Confirm turns the seats login holds into a reservation.
func (s *SeatStore) Confirm(ctx context.Context, eventID int, login string, seats []model.Coordinate) error {
	if len(seats) == 0 {
		return fmt.Errorf("confirm: %w", ErrSeatNotHeld)
	}
	args := make([]interface{}, 0, len(seats)+1)
	args = append(args, login)
	for _, c := range seats {
		args = append(args, seatField(c))
	}
	pos, err := confirmScript.Run(ctx, s.rdb, []string{seatsKey(eventID)}, args...).Int()
	if err != nil {
		return fmt.Errorf("confirm: %w", err)
	}
	if pos != 0 {
		return fmt.Errorf("seat %s: %w", seats[pos-1], ErrSeatNotHeld)
	}
	return nil
}

// Grid renders the seat map in the requested encoding: [][]int with 1 for
// available seats, or [][]bool.
func (s *SeatStore) Grid(ctx context.Context, eventID int, enc model.Encoding) (interface{}, error) {
	l, err := s.Layout(ctx, eventID)
	if err != nil {
		return nil, err
	}
	cells, err := s.rdb.HGetAll(ctx, seatsKey(eventID)).Result()
	if err != nil {
		return nil, err
	}
	free := make([][]bool, l.Sections)
	for i := range free {
		free[i] = make([]bool, l.SeatsPerSection)
	}
	for f, v := range cells {
		c, ok := parseSeatField(f)
		if !ok || c.Section >= l.Sections || c.Seat >= l.SeatsPerSection {
			continue
		}
		free[c.Section][c.Seat] = v == cellAvailable
	}
	switch enc {
	case model.Boolean:
		return free, nil
	case model.BitFlag:
		flags := make([][]int, len(free))
		for i, row := range free {
			flags[i] = make([]int, len(row))
			for j, ok := range row {
				if ok {
					flags[i][j] = 1
				}
			}
		}
		return flags, nil
	}
	return nil, errors.New("unknown seat encoding")
}

// Holder returns the login holding or owning c, or "" when it is free.
func (s *SeatStore) Holder(ctx context.Context, eventID int, c model.Coordinate) (string, error) {
	v, err := s.rdb.HGet(ctx, seatsKey(eventID), seatField(c)).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("seat %s: %w", c, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	for _, p := range []string{cellHeld, cellConfirmed} {
		if strings.HasPrefix(v, p) {
			return strings.TrimPrefix(v, p), nil
		}
	}
	return "", nil
}
