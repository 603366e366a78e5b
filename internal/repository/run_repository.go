package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kyu4583/realticket-gatling-simulations/internal/report"
)

// RunRecord is the persisted header of one load run.
type RunRecord struct {
	Transport string
	EventID   int
	Summary   report.Summary
}

// RunRepo stores run summaries in MySQL.
type RunRepo struct{ DB *sql.DB }

func NewRunRepo(db *sql.DB) *RunRepo { return &RunRepo{DB: db} }

// Save writes the run and its per-request rows in one transaction.
func (r *RunRepo) Save(ctx context.Context, rec RunRecord) error {
	s := rec.Summary
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO load_runs
		 (run_id, transport, event_id, started_at, duration_ms, users, completed, aborted,
		  seats_booked, claim_attempts, user_p50_ms, user_p95_ms)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.RunID, rec.Transport, rec.EventID, s.Started.UTC(), s.Duration.Milliseconds(),
		s.Users, s.Completed, s.Aborted, s.SeatsBooked, s.ClaimAttempts,
		s.UserLatency.P50.Milliseconds(), s.UserLatency.P95.Milliseconds())
	if err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("run %s: %w", s.RunID, ErrConflict)
		}
		return fmt.Errorf("insert run: %w", err)
	}

	for _, req := range s.Requests {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO load_run_requests
			 (run_id, name, total, ok, conflicts, failures, p50_ms, p95_ms, p99_ms, max_ms)
			 VALUES (?,?,?,?,?,?,?,?,?,?)`,
			s.RunID, req.Name, req.Count, req.OK, req.Conflicts, req.Failures,
			req.Latency.P50.Milliseconds(), req.Latency.P95.Milliseconds(),
			req.Latency.P99.Milliseconds(), req.Latency.Max.Milliseconds())
		if err != nil {
			return fmt.Errorf("insert request %s: %w", req.Name, err)
		}
	}
	return tx.Commit()
}

// RunRow is a stored run header.
type RunRow struct {
	RunID       string
	Transport   string
	Users       int
	Completed   int
	Aborted     int
	SeatsBooked int
}

// Recent returns the latest runs, newest first.
func (r *RunRepo) Recent(ctx context.Context, limit int) ([]RunRow, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT run_id, transport, users, completed, aborted, seats_booked
		 FROM load_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var row RunRow
		if err := rows.Scan(&row.RunID, &row.Transport, &row.Users, &row.Completed, &row.Aborted, &row.SeatsBooked); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
