// Package seat turns the seat-status grid published by the booking
// service into the set of seat coordinates a virtual user may claim.
package seat

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/kyu4583/realticket-gatling-simulations/internal/model"
)

// Decode reads a [section][seat] grid in the given encoding and returns
// the available coordinates in row-major order.
func Decode(raw []byte, enc model.Encoding) (model.AvailabilitySet, error) {
	set := model.AvailabilitySet{}
	switch enc {
	case model.Boolean:
		var grid [][]bool
		if err := json.Unmarshal(raw, &grid); err != nil {
			return set, fmt.Errorf("%w: %v", model.ErrDecode, err)
		}
		for section, row := range grid {
			for idx, free := range row {
				if free {
					set = append(set, model.Coordinate{Section: section, Seat: idx})
				}
			}
		}
	case model.BitFlag:
		var grid [][]int
		if err := json.Unmarshal(raw, &grid); err != nil {
			return set, fmt.Errorf("%w: %v", model.ErrDecode, err)
		}
		for section, row := range grid {
			for idx, flag := range row {
				if flag == 1 {
					set = append(set, model.Coordinate{Section: section, Seat: idx})
				}
			}
		}
	default:
		return set, fmt.Errorf("%w: unknown encoding %s", model.ErrDecode, enc)
	}
	return set, nil
}

// Parse is Decode with local recovery: a malformed grid is logged and
// yields an empty set, so the next selection fails softly and retries.
func Parse(raw []byte, enc model.Encoding) model.AvailabilitySet {
	set, err := Decode(raw, enc)
	if err != nil {
		log.Warn().Err(err).Str("encoding", enc.String()).Msg("seat: parse seat status")
		return model.AvailabilitySet{}
	}
	return set
}
