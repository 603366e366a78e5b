package report

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyu4583/realticket-gatling-simulations/internal/client"
	"github.com/kyu4583/realticket-gatling-simulations/internal/model"
	"github.com/kyu4583/realticket-gatling-simulations/internal/workflow"
)

var _ client.Observer = (*Collector)(nil)

func TestPercentiles(t *testing.T) {
	var ds []time.Duration
	for i := 100; i >= 1; i-- {
		ds = append(ds, time.Duration(i)*time.Millisecond)
	}
	l := Percentiles(ds)
	assert.Equal(t, time.Millisecond, l.Min)
	assert.Equal(t, 51*time.Millisecond, l.P50)
	assert.Equal(t, 100*time.Millisecond, l.P99)
	assert.Equal(t, 100*time.Millisecond, l.Max)
	assert.Equal(t, 50500*time.Microsecond, l.Avg)
	assert.Equal(t, 100*time.Millisecond, ds[0], "input must not be reordered")

	assert.Equal(t, Latency{}, Percentiles(nil))
}

func TestCollector_Requests(t *testing.T) {
	c := NewCollector("run-1")
	c.ObserveRequest(client.RequestClaim, 10*time.Millisecond, nil)
	c.ObserveRequest(client.RequestClaim, 20*time.Millisecond, fmt.Errorf("claim: %w", model.ErrConflict))
	c.ObserveRequest(client.RequestClaim, 30*time.Millisecond, errors.New("boom"))
	c.ObserveRequest(client.RequestLogin, 5*time.Millisecond, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues(client.RequestClaim, ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues(client.RequestClaim, ResultConflict)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues(client.RequestClaim, ResultError)))
	assert.Equal(t, 2, testutil.CollectAndCount(c.latency))

	s := c.Summary()
	require.Len(t, s.Requests, 2)
	claim := s.Requests[0]
	assert.Equal(t, client.RequestClaim, claim.Name)
	assert.Equal(t, 3, claim.Count)
	assert.Equal(t, 1, claim.OK)
	assert.Equal(t, 1, claim.Conflicts)
	assert.Equal(t, 1, claim.Failures)
	assert.Equal(t, 20*time.Millisecond, claim.Latency.P50)
	assert.Equal(t, client.RequestLogin, s.Requests[1].Name)
}

func TestCollector_Outcomes(t *testing.T) {
	c := NewCollector("run-2")
	for i := 0; i < 3; i++ {
		c.UserStarted()
	}
	c.RecordOutcome(workflow.Outcome{UserNum: 1, State: workflow.Confirmed, Attempts: 4,
		Booked: []model.Coordinate{{Section: 0, Seat: 1}, {Section: 0, Seat: 2}}, Elapsed: time.Second})
	c.RecordOutcome(workflow.Outcome{UserNum: 2, State: workflow.Skipped, Attempts: 1,
		Booked: []model.Coordinate{{Section: 1, Seat: 1}}, Elapsed: 2 * time.Second})
	c.RecordOutcome(workflow.Outcome{UserNum: 3, State: workflow.Aborted, Attempts: 50,
		Err: model.ErrRetryExhausted, Elapsed: 3 * time.Second})

	assert.Equal(t, 0.0, testutil.ToFloat64(c.activeUsers))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.seats))
	assert.Equal(t, 55.0, testutil.ToFloat64(c.attempts))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.users.WithLabelValues("aborted")))

	s := c.Summary()
	assert.Equal(t, "run-2", s.RunID)
	assert.Equal(t, 3, s.Users)
	assert.Equal(t, 2, s.Completed)
	assert.Equal(t, 1, s.Aborted)
	assert.Equal(t, 3, s.SeatsBooked)
	assert.Equal(t, 55, s.ClaimAttempts)
	assert.Equal(t, map[string]int{"confirmed": 1, "skipped": 1, "aborted": 1}, s.ByState)
	assert.Equal(t, 2*time.Second, s.UserLatency.P50)
}

func TestPrint(t *testing.T) {
	c := NewCollector("run-3")
	c.ObserveRequest(client.RequestLogin, 12*time.Millisecond, nil)
	c.RecordOutcome(workflow.Outcome{State: workflow.Confirmed, Elapsed: time.Second})

	var buf bytes.Buffer
	Print(&buf, c.Summary())
	out := buf.String()
	assert.Contains(t, out, "run=run-3")
	assert.Contains(t, out, "Completed:        1 (100.00%)")
	assert.Contains(t, out, client.RequestLogin)
	assert.Contains(t, out, "confirmed:")
}
