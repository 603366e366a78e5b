package model

import "fmt"

// Coordinate identifies one bookable seat of an event by its section
// index and its seat index within that section.  Both indices are
// zero-based.  Coordinates are compared by value.
//
// Fields:
//  Section – index of the section in the seat-status grid.
//  Seat    – index of the seat inside the section row.
type Coordinate struct {
	Section int `json:"sectionIndex"`
	Seat    int `json:"seatIndex"`
}

// String renders the coordinate as "section:seat".
func (c Coordinate) String() string {
	return fmt.Sprintf("%d:%d", c.Section, c.Seat)
}

// AvailabilitySet is a full snapshot of the seats reported as available
// at the moment the snapshot was received.  It is always replaced as a
// whole and never merged from partial updates.  Entries are unique and
// kept in row-major scan order.
type AvailabilitySet []Coordinate

// Len returns the number of available seats in the snapshot.
func (s AvailabilitySet) Len() int { return len(s) }

// Contains reports whether c is present in the snapshot.
func (s AvailabilitySet) Contains(c Coordinate) bool {
	for _, x := range s {
		if x == c {
			return true
		}
	}
	return false
}

// Encoding selects how a cell of the seat-status grid marks a seat as
// available.  The encoding is a fixed run setting; it is never guessed
// from the payload.
type Encoding int

const (
	// BitFlag cells are integers where 1 means available.
	BitFlag Encoding = iota
	// Boolean cells are true when the seat is available.
	Boolean
)

func (e Encoding) String() string {
	switch e {
	case BitFlag:
		return "bitflag"
	case Boolean:
		return "boolean"
	}
	return fmt.Sprintf("encoding(%d)", int(e))
}

// EncodingFromFlag maps the boolean-seats configuration flag onto an
// Encoding.
func EncodingFromFlag(booleanSeats bool) Encoding {
	if booleanSeats {
		return Boolean
	}
	return BitFlag
}
