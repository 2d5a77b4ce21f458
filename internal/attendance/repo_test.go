package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartpresence/internal/engine"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db), mock
}

func TestInsertClaimsPair(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`INSERT INTO attendance_records`).
		WithArgs(int64(1), int64(100), sqlmock.AnyArg(), "2024-01-01", "face", 0.93, "evidence/a.jpg").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	rec, claimed, err := repo.Insert(context.Background(), engine.Record{
		StudentID: 1, SessionID: 100, Timestamp: time.Now(),
		Date: "2024-01-01", Method: engine.MethodFace,
		Confidence: 0.93, EvidencePath: "evidence/a.jpg",
	})
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, int64(42), rec.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertConflictReportsUnclaimed(t *testing.T) {
	repo, mock := newMockRepo(t)

	// ON CONFLICT DO NOTHING returns no rows when the pair is taken.
	mock.ExpectQuery(`INSERT INTO attendance_records`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, claimed, err := repo.Insert(context.Background(), engine.Record{
		StudentID: 1, SessionID: 100, Timestamp: time.Now(),
		Date: "2024-01-01", Method: engine.MethodQR,
	})
	require.NoError(t, err)
	assert.False(t, claimed, "a lost claim is an outcome, not an error")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExists(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(int64(1), int64(100)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.Exists(context.Background(), 1, 100)
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListFiltersByClassThroughSessions(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows([]string{"id", "student_id", "session_id", "occurred_at", "date", "method", "confidence_score", "evidence_path"}).
		AddRow(int64(1), int64(1), int64(100), time.Now(), "2024-01-01", "face", 0.9, "evidence/a.jpg")
	mock.ExpectQuery(`JOIN sessions s ON s.id = a.session_id`).
		WithArgs(int64(10), 50, 0).
		WillReturnRows(rows)

	recs, err := repo.List(context.Background(), 0, 10, 50, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, engine.MethodFace, recs[0].Method)
	require.NoError(t, mock.ExpectationsWereMet())
}
