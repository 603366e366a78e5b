package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/kyu4583/realticket-gatling-simulations/internal/workflow"
)

// Latency is a latency distribution.
type Latency struct {
	Min time.Duration `json:"min"`
	P50 time.Duration `json:"p50"`
	P75 time.Duration `json:"p75"`
	P90 time.Duration `json:"p90"`
	P95 time.Duration `json:"p95"`
	P99 time.Duration `json:"p99"`
	Max time.Duration `json:"max"`
	Avg time.Duration `json:"avg"`
}

// RequestSummary aggregates one request name.
type RequestSummary struct {
	Name      string  `json:"name"`
	Count     int     `json:"count"`
	OK        int     `json:"ok"`
	Conflicts int     `json:"conflicts"`
	Failures  int     `json:"failures"`
	Latency   Latency `json:"latency"`
}

// Summary is the end-of-run report.
type Summary struct {
	RunID         string           `json:"runId"`
	Started       time.Time        `json:"started"`
	Duration      time.Duration    `json:"duration"`
	Users         int              `json:"users"`
	Completed     int              `json:"completed"`
	Aborted       int              `json:"aborted"`
	ByState       map[string]int   `json:"byState"`
	SeatsBooked   int              `json:"seatsBooked"`
	ClaimAttempts int              `json:"claimAttempts"`
	UserLatency   Latency          `json:"userLatency"`
	Requests      []RequestSummary `json:"requests"`
}

// Percentiles sorts a copy of ds and reads the usual cut points.
func Percentiles(ds []time.Duration) Latency {
	if len(ds) == 0 {
		return Latency{}
	}
	s := append([]time.Duration(nil), ds...)
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
	var sum time.Duration
	for _, d := range s {
		sum += d
	}
	at := func(p int) time.Duration { return s[len(s)*p/100] }
	return Latency{
		Min: s[0],
		P50: at(50),
		P75: at(75),
		P90: at(90),
		P95: at(95),
		P99: at(99),
		Max: s[len(s)-1],
		Avg: sum / time.Duration(len(s)),
	}
}

// Summary snapshots the collected data.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Summary{
		RunID:         c.runID,
		Started:       c.started,
		Duration:      time.Since(c.started),
		ByState:       make(map[string]int, len(c.outcomes)),
		SeatsBooked:   c.booked,
		ClaimAttempts: c.claims,
		UserLatency:   Percentiles(c.userElapsed),
	}
	for state, n := range c.outcomes {
		s.ByState[state] = n
		s.Users += n
		if state == workflow.Aborted.String() {
			s.Aborted += n
		} else {
			s.Completed += n
		}
	}
	for name, st := range c.reqs {
		s.Requests = append(s.Requests, RequestSummary{
			Name:      name,
			Count:     len(st.latencies),
			OK:        st.ok,
			Conflicts: st.conflicts,
			Failures:  st.failures,
			Latency:   Percentiles(st.latencies),
		})
	}
	sort.Slice(s.Requests, func(i, j int) bool { return s.Requests[i].Name < s.Requests[j].Name })
	return s
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// Print writes s in a human-readable form.
func Print(w io.Writer, s Summary) {
	line := strings.Repeat("=", 60)
	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "Load Test Results  run=%s\n", s.RunID)
	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "Duration:           %.2fs\n", s.Duration.Seconds())
	fmt.Fprintf(w, "Users:              %d\n", s.Users)
	fmt.Fprintf(w, "  Completed:        %d (%.2f%%)\n", s.Completed, pct(s.Completed, s.Users))
	fmt.Fprintf(w, "  Aborted:          %d (%.2f%%)\n", s.Aborted, pct(s.Aborted, s.Users))
	states := make([]string, 0, len(s.ByState))
	for st := range s.ByState {
		states = append(states, st)
	}
	sort.Strings(states)
	for _, st := range states {
		fmt.Fprintf(w, "    %-16s %d\n", st+":", s.ByState[st])
	}
	fmt.Fprintf(w, "Seats booked:       %d\n", s.SeatsBooked)
	fmt.Fprintf(w, "Claim attempts:     %d\n", s.ClaimAttempts)
	if s.Users > 0 {
		fmt.Fprintf(w, "User time p50/p95:  %v / %v\n", s.UserLatency.P50, s.UserLatency.P95)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-22s %7s %7s %9s %7s %10s %10s %10s %10s\n",
		"request", "count", "ok", "conflict", "error", "p50", "p95", "p99", "max")
	for _, r := range s.Requests {
		fmt.Fprintf(w, "%-22s %7d %7d %9d %7d %10v %10v %10v %10v\n",
			r.Name, r.Count, r.OK, r.Conflicts, r.Failures,
			r.Latency.P50.Round(time.Millisecond), r.Latency.P95.Round(time.Millisecond),
			r.Latency.P99.Round(time.Millisecond), r.Latency.Max.Round(time.Millisecond))
	}
	fmt.Fprintln(w, line)
}
