package seat

import (
	"encoding/json"
	"fmt"

	"github.com/PaesslerAG/jsonpath"
	"github.com/rs/zerolog/log"

	"github.com/kyu4583/realticket-gatling-simulations/internal/model"
)

// StatusPath locates the grid inside a service envelope such as
// {"data":{"seatStatus":[[...]]}}.
const StatusPath = "$.data.seatStatus"

// ExtractSeatStatus returns the raw grid nested in msg.
func ExtractSeatStatus(msg []byte) ([]byte, error) {
	var doc interface{}
	if err := json.Unmarshal(msg, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDecode, err)
	}
	v, err := jsonpath.Get(StatusPath, doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrDecode, StatusPath, err)
	}
	if v == nil {
		return nil, fmt.Errorf("%w: %s is null", model.ErrDecode, StatusPath)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDecode, err)
	}
	return raw, nil
}

// DecodeMessage extracts the grid from an envelope and decodes it.
func DecodeMessage(msg []byte, enc model.Encoding) (model.AvailabilitySet, error) {
	raw, err := ExtractSeatStatus(msg)
	if err != nil {
		return model.AvailabilitySet{}, err
	}
	return Decode(raw, enc)
}

// ParseMessage is DecodeMessage with the same recovery as Parse.
func ParseMessage(msg []byte, enc model.Encoding) model.AvailabilitySet {
	set, err := DecodeMessage(msg, enc)
	if err != nil {
		log.Warn().Err(err).Str("encoding", enc.String()).Msg("seat: parse seat status message")
		return model.AvailabilitySet{}
	}
	return set
}

// Envelope is the JSON shape the booking service wraps seat status in.
type Envelope struct {
	Data struct {
		SeatStatus json.RawMessage `json:"seatStatus"`
	} `json:"data"`
}

// Wrap builds an envelope around an already encoded grid.
func Wrap(grid interface{}) ([]byte, error) {
	raw, err := json.Marshal(grid)
	if err != nil {
		return nil, err
	}
	var env Envelope
	env.Data.SeatStatus = raw
	return json.Marshal(env)
}
