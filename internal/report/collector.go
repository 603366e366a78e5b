// Package report aggregates request latencies and user outcomes of a run,
// exports them as Prometheus metrics and renders the end-of-run summary.
package report

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kyu4583/realticket-gatling-simulations/internal/model"
	"github.com/kyu4583/realticket-gatling-simulations/internal/workflow"
)

const namespace = "loadgen"

// Request results used as metric labels.
const (
	ResultOK       = "ok"
	ResultConflict = "conflict"
	ResultError    = "error"
)

type requestStats struct {
	ok, conflicts, failures int
	latencies               []time.Duration
}

// Collector is shared by every virtual user of a run.  It implements
// client.Observer.
type Collector struct {
	runID    string
	started  time.Time
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	users       *prometheus.CounterVec
	activeUsers prometheus.Gauge
	seats       prometheus.Counter
	attempts    prometheus.Counter
	userTime    prometheus.Histogram

	mu          sync.Mutex
	reqs        map[string]*requestStats
	outcomes    map[string]int
	booked      int
	claims      int
	userElapsed []time.Duration
}

func NewCollector(runID string) *Collector {
	c := &Collector{
		runID:    runID,
		started:  time.Now(),
		registry: prometheus.NewRegistry(),
		reqs:     make(map[string]*requestStats),
		outcomes: make(map[string]int),
	}
	c.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Requests sent to the booking service by request name and result",
	}, []string{"request", "result"})
	c.latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_duration_seconds",
		Help:      "Request latency by request name",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"request"})
	c.users = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "users_finished_total",
		Help:      "Virtual users finished by terminal state",
	}, []string{"state"})
	c.activeUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "users_active",
		Help:      "Virtual users currently running",
	})
	c.seats = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "seats_booked_total",
		Help:      "Seats claimed by virtual users",
	})
	c.attempts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "claim_attempts_total",
		Help:      "Seat claim attempts, including conflicts",
	})
	c.userTime = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "user_duration_seconds",
		Help:      "Wall time of one virtual user workflow",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})
	c.registry.MustRegister(c.requests, c.latency, c.users, c.activeUsers, c.seats, c.attempts, c.userTime)
	return c
}

// Registry returns the registry to expose on /metrics.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// RunID identifies the run in summaries and events.
func (c *Collector) RunID() string { return c.runID }

func classify(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, model.ErrConflict):
		return ResultConflict
	}
	return ResultError
}

func (c *Collector) ObserveRequest(name string, elapsed time.Duration, err error) {
	result := classify(err)
	c.requests.WithLabelValues(name, result).Inc()
	c.latency.WithLabelValues(name).Observe(elapsed.Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.reqs[name]
	if !ok {
		st = &requestStats{}
		c.reqs[name] = st
	}
	switch result {
	case ResultOK:
		st.ok++
	case ResultConflict:
		st.conflicts++
	default:
		st.failures++
	}
	st.latencies = append(st.latencies, elapsed)
}

// UserStarted marks one more user as running.
func (c *Collector) UserStarted() { c.activeUsers.Inc() }

// RecordOutcome accounts for a finished user.
func (c *Collector) RecordOutcome(o workflow.Outcome) {
	state := o.State.String()
	c.activeUsers.Dec()
	c.users.WithLabelValues(state).Inc()
	c.seats.Add(float64(len(o.Booked)))
	c.attempts.Add(float64(o.Attempts))
	c.userTime.Observe(o.Elapsed.Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes[state]++
	c.booked += len(o.Booked)
	c.claims += o.Attempts
	c.userElapsed = append(c.userElapsed, o.Elapsed)
}
