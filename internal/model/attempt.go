package model

// AttemptKind tags the outcome of a single seat claim.
type AttemptKind int

const (
	// AttemptSuccess means the service accepted the claim.
	AttemptSuccess AttemptKind = iota
	// AttemptConflict means another user took the seat first.
	AttemptConflict
	// AttemptFatal is any other failure; the user aborts.
	AttemptFatal
)

func (k AttemptKind) String() string {
	switch k {
	case AttemptSuccess:
		return "success"
	case AttemptConflict:
		return "conflict"
	}
	return "fatal"
}

// AttemptResult is the tagged result of one claim request.
//
// Fields:
//  Kind – success, conflict or fatal.
//  Seat – the seat the claim targeted.
//  Err  – the underlying error for conflict and fatal results.
type AttemptResult struct {
	Kind AttemptKind
	Seat Coordinate
	Err  error
}
