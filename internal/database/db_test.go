package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS load_runs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS load_run_requests").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_StopsOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS load_runs").WillReturnError(errors.New("denied"))

	err = Migrate(context.Background(), db)
	assert.ErrorContains(t, err, "denied")
	assert.NoError(t, mock.ExpectationsWereMet())
}
