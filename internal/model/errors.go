// Package model holds the data types shared by the load generator and
// the error values that classify every way a virtual user can fail.
// All failures are local to one user; none of them stop the run.
package model

import "errors"

// ErrDecode marks a seat-status payload that could not be decoded.  It
// is recovered locally by treating availability as empty or stale.
var ErrDecode = errors.New("seat status decode failed")

// ErrConflict is returned by a claim when the seat was already taken.
// The booking loop retries it with a fresh pick.
var ErrConflict = errors.New("seat already taken")

// ErrRetryExhausted is returned when a seat could not be claimed within
// the configured number of attempts.  It aborts the user.
var ErrRetryExhausted = errors.New("booking retries exhausted")

// ErrPermissionDenied is returned when the booking permission check
// fails.  It aborts the user immediately.
var ErrPermissionDenied = errors.New("booking permission denied")

// ErrNoSeatsAvailable is returned when the availability snapshot is
// empty at selection time.  It ends the current booking chain.
var ErrNoSeatsAvailable = errors.New("no available seats")

// ErrFatalTransport wraps any request failure that is not a conflict.
// It aborts the user without retry.
var ErrFatalTransport = errors.New("fatal transport error")
