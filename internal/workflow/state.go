package workflow

import "fmt"

// State is a step of the per-user workflow.
type State int

const (
	StaggeredWait State = iota
	LoggedIn
	PermissionChecked
	Subscribed
	Booking
	BookedSeatsFinalized
	Confirmed
	Skipped
	Aborted
)

var stateNames = [...]string{
	"staggered_wait",
	"logged_in",
	"permission_checked",
	"subscribed",
	"booking",
	"booked_seats_finalized",
	"confirmed",
	"skipped",
	"aborted",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether s ends a workflow.
func (s State) Terminal() bool {
	return s == Confirmed || s == Skipped || s == Aborted
}
