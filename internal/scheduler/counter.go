// Package scheduler injects virtual users into a run according to a load
// profile and supervises them until they finish.
package scheduler

import "sync/atomic"

// UserCounter hands out sequential user numbers starting at 1.  It is
// owned by one run and safe for concurrent use.
type UserCounter struct {
	n atomic.Int64
}

// Next returns the next unused user number.
func (c *UserCounter) Next() int {
	return int(c.n.Add(1))
}

// Issued returns how many numbers were handed out.
func (c *UserCounter) Issued() int {
	return int(c.n.Load())
}
