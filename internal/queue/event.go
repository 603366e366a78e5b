// Package queue defines the broker messages and the booking log consumer.
package queue

const (
	// BookingConfirmedQueue receives one message per confirmed reservation
	// on the sandbox target.
	BookingConfirmedQueue = "booking.confirmed"
	// RunCompletedQueue receives the summary of each finished load run.
	RunCompletedQueue = "loadgen.run.completed"
)

// BookingConfirmedEvent is published when a reservation is confirmed.
type BookingConfirmedEvent struct {
	EventID     int      `json:"event_id"`
	LoginID     string   `json:"login_id"`
	Seats       []string `json:"seats"`
	ConfirmedAt string   `json:"confirmed_at"`
}

// RunCompletedEvent is published by the load generator at the end of a run.
type RunCompletedEvent struct {
	RunID         string `json:"run_id"`
	Transport     string `json:"transport"`
	EventID       int    `json:"event_id"`
	Users         int    `json:"users"`
	Completed     int    `json:"completed"`
	Aborted       int    `json:"aborted"`
	SeatsBooked   int    `json:"seats_booked"`
	ClaimAttempts int    `json:"claim_attempts"`
	DurationMs    int64  `json:"duration_ms"`
	FinishedAt    string `json:"finished_at"`
}
