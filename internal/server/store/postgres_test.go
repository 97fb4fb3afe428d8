package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*Postgres, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return newPostgres(db), mock, db
}

func TestPostgresReplace_WritesRecordsAndQueue(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM records WHERE user_id = \$1 AND table_name = \$2`).
		WithArgs("u1", "documents").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`INSERT INTO records .*`).
		WithArgs("u1", "documents", 0, "a", `{"id":"a"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO records .*`).
		WithArgs("u1", "documents", 1, "", `{"nom":"x"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO sync_queue .*`).
		WithArgs("u1", "documents", "dev", 2, QueuePending).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.Replace(context.Background(), "u1", "documents", "dev", rawList(`{"id":"a"}`, `{"nom":"x"}`))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReplace_RollsBackOnError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM records .*`).
		WithArgs("u1", "documents").
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := repo.Replace(context.Background(), "u1", "documents", "dev", rawList(`{"id":"a"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to clear records")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReplace_InvalidRecordNoQuery(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	err := repo.Replace(context.Background(), "u1", "documents", "dev", rawList(`[]`))
	require.ErrorIs(t, err, ErrInvalidRecord)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoad(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"data"}).
		AddRow([]byte(`{"id":"a"}`)).
		AddRow([]byte(`{"id":"b"}`))
	mock.ExpectQuery(`SELECT data FROM records WHERE user_id = \$1 AND table_name = \$2 ORDER BY position`).
		WithArgs("u1", "membres").
		WillReturnRows(rows)

	got, err := repo.Load(context.Background(), "u1", "membres")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.JSONEq(t, `{"id":"b"}`, string(got[1]))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoad_EmptyIsNotNil(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT data FROM records .*`).
		WithArgs("u1", "membres").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))

	got, err := repo.Load(context.Background(), "u1", "membres")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestPostgresQueue(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE sync_queue SET status = \$1 WHERE user_id = \$2 AND status = \$3`).
		WithArgs(QueueApplied, "u1", QueuePending).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(`DELETE FROM sync_queue WHERE user_id = \$1`).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.ApplyQueue(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = repo.ResetQueue(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRemoveDuplicates_RewritesCollection(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT data FROM records .*`).
		WithArgs("u1", "documents").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).
			AddRow([]byte(`{"id":"a"}`)).
			AddRow([]byte(`{"id":"a"}`)))
	mock.ExpectExec(`DELETE FROM records .*`).
		WithArgs("u1", "documents").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO records .*`).
		WithArgs("u1", "documents", 0, "a", `{"id":"a"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := repo.RemoveDuplicates(context.Background(), "u1", "documents")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFixIDs_NothingToFix(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT data FROM records .*`).
		WithArgs("u1", "documents").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"id":"a"}`)))
	mock.ExpectCommit()

	n, err := repo.FixIDs(context.Background(), "u1", "documents")
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCheckTables(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT table_name, data FROM records WHERE user_id = \$1 ORDER BY table_name, position`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "data"}).
			AddRow("documents", []byte(`{"id":"a"}`)).
			AddRow("documents", []byte(`{"id":"a"}`)).
			AddRow("membres", []byte(`{}`)))

	stats, err := repo.CheckTables(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []TableStat{
		{Table: "documents", Records: 2, Duplicates: 1},
		{Table: "membres", Records: 1, MissingIDs: 1},
	}, stats)
	require.NoError(t, mock.ExpectationsWereMet())
}
