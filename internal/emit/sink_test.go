package emit

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaplineage/internal/testutil"
)

const insertSQL = "INSERT INTO LINEAGE_TABLE (ETL_SYSTEM, ETL_JOB, SQL_PATH, SQL_NO, SOURCE_DATABASE, SOURCE_TABLE, SOURCE_COLUMN, TARGET_DATABASE, TARGET_TABLE, TARGET_COLUMN) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"

func TestSink_Write(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	sink, err := NewSink(db, "", false, testutil.NewTestLogger(t))
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM LINEAGE_TABLE WHERE ETL_SYSTEM = ? AND ETL_JOB = ?")).
		WithArgs("F-DD", "00001").
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(regexp.QuoteMeta(insertSQL)).
		WithArgs("F-DD", "00001", "F-DD/00001/load.sql", 2, "dw", "orders", "id", "mart", "fact", "order_id").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertSQL)).
		WithArgs("F-DD", "00001", "F-DD/00001/load.sql", 2, nil, "stage", "name", "mart", "fact", "name").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM LINEAGE_TABLE WHERE ETL_SYSTEM IS NULL AND ETL_JOB = ?")).
		WithArgs("adhoc_12345678").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM LINEAGE_TABLE WHERE ETL_SYSTEM = ? AND ETL_JOB = ?")).
		WithArgs("S", "it's").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(insertSQL)).
		WithArgs("S", "it's", "S/it's.sql", 1, "a", "b", "c", "d", "e", "f").
		WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectCommit()

	require.NoError(t, sink.Write(context.Background(), fixtureGroups()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSink_WriteNumberedPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	sink, err := NewSink(db, "lineage", true, nil)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM lineage WHERE ETL_SYSTEM IS NULL AND ETL_JOB = $1")).
		WithArgs("adhoc_12345678").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, sink.Write(context.Background(), fixtureGroups()[1:2]))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSink_WriteRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	sink, err := NewSink(db, "", false, nil)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM LINEAGE_TABLE").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO LINEAGE_TABLE").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = sink.Write(context.Background(), fixtureGroups()[:1])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert lineage of F-DD/00001")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSink_SQLiteReplacesJob(t *testing.T) {
	sink, err := OpenSink(DriverSQLite, ":memory:", "", testutil.NewTestLogger(t))
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	require.NoError(t, sink.EnsureTable(ctx))
	require.NoError(t, sink.EnsureTable(ctx))

	groups := fixtureGroups()
	require.NoError(t, sink.Write(ctx, groups))
	assert.Equal(t, 3, countRows(t, sink, ""))

	var srcDB sql.NullString
	require.NoError(t, sink.db.QueryRowContext(ctx,
		"SELECT SOURCE_DATABASE FROM LINEAGE_TABLE WHERE SOURCE_TABLE = 'stage'").Scan(&srcDB))
	assert.False(t, srcDB.Valid)

	// Re-running a job replaces its rows and leaves other jobs alone.
	groups[0].Records = groups[0].Records[:1]
	require.NoError(t, sink.Write(ctx, groups[:1]))
	assert.Equal(t, 1, countRows(t, sink, "F-DD"))
	assert.Equal(t, 2, countRows(t, sink, ""))
}

func countRows(t *testing.T, sink *Sink, system string) int {
	t.Helper()
	query := "SELECT COUNT(*) FROM LINEAGE_TABLE"
	var args []any
	if system != "" {
		query += " WHERE ETL_SYSTEM = ?"
		args = append(args, system)
	}
	var n int
	require.NoError(t, sink.db.QueryRow(query, args...).Scan(&n))
	return n
}

func TestOpenSink_Errors(t *testing.T) {
	_, err := OpenSink("oracle", "dsn", "", nil)
	assert.ErrorContains(t, err, "unknown sink driver")

	_, err = OpenSink(DriverSQLite, "", "", nil)
	assert.ErrorContains(t, err, "dsn is required")

	_, err = OpenSink(DriverSQLite, ":memory:", "bad name", nil)
	assert.ErrorIs(t, err, ErrInvalidTable)
}

func TestSink_NotOpened(t *testing.T) {
	s := &Sink{}
	assert.EqualError(t, s.Write(context.Background(), nil), "database not opened")
	assert.EqualError(t, s.EnsureTable(context.Background()), "database not opened")
	assert.NoError(t, s.Close())
}
