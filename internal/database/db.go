// Package database opens the MySQL results store and creates its schema.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/kyu4583/realticket-gatling-simulations/internal/config"
)

// Open connects to MySQL and verifies the connection.
func Open(ctx context.Context, cfg config.DBConfig) (*sql.DB, error) {
	auth := cfg.User
	if cfg.Pass != "" {
		auth = fmt.Sprintf("%s:%s", cfg.User, cfg.Pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, cfg.Host, cfg.Port, cfg.Name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// A run writes once at the end; a small pool is enough.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS load_runs (
		run_id          CHAR(36)     NOT NULL PRIMARY KEY,
		transport       VARCHAR(16)  NOT NULL,
		event_id        INT          NOT NULL,
		started_at      DATETIME(3)  NOT NULL,
		duration_ms     BIGINT       NOT NULL,
		users           INT          NOT NULL,
		completed       INT          NOT NULL,
		aborted         INT          NOT NULL,
		seats_booked    INT          NOT NULL,
		claim_attempts  INT          NOT NULL,
		user_p50_ms     BIGINT       NOT NULL,
		user_p95_ms     BIGINT       NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS load_run_requests (
		run_id     CHAR(36)    NOT NULL,
		name       VARCHAR(64) NOT NULL,
		total      INT         NOT NULL,
		ok         INT         NOT NULL,
		conflicts  INT         NOT NULL,
		failures   INT         NOT NULL,
		p50_ms     BIGINT      NOT NULL,
		p95_ms     BIGINT      NOT NULL,
		p99_ms     BIGINT      NOT NULL,
		max_ms     BIGINT      NOT NULL,
		PRIMARY KEY (run_id, name),
		CONSTRAINT fk_run_requests_run FOREIGN KEY (run_id) REFERENCES load_runs(run_id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the results tables when they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
