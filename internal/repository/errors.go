// Package repository holds the persistence layers: the MySQL results
// store of the load generator and the Redis seat store of the sandbox
// target.  The sentinel values let handlers map failures to status codes.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrConflict is returned when a seat is no longer available or a run id
// already exists.  Handlers translate it into HTTP 409.
var ErrConflict = errors.New("conflict")

// ErrNotFound is returned for unknown events and accounts.
var ErrNotFound = errors.New("not found")

// ErrInvalidCredentials is returned when a login does not match the
// stored account.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrAmountNotSet is returned when a user claims before declaring how
// many seats they want.
var ErrAmountNotSet = errors.New("booking amount not set")

// ErrAmountExceeded is returned when a claim would exceed the declared
// booking amount.
var ErrAmountExceeded = errors.New("booking amount exceeded")

// ErrSeatNotHeld is returned when a reservation names a seat the user
// did not claim.
var ErrSeatNotHeld = errors.New("seat not held by user")

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return strings.Contains(err.Error(), "1062")
}
