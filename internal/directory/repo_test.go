package directory

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db), mock
}

func TestIdentityByNIMAbsentIsNil(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM students WHERE nim`).
		WithArgs("9999999").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "nim", "class_id", "face_template"}))

	ident, err := repo.IdentityByNIM(context.Background(), "9999999")
	require.NoError(t, err)
	assert.Nil(t, ident)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityByNIMEnrollmentFlag(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM students WHERE nim`).
		WithArgs("2201001").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "nim", "class_id", "face_template"}).
			AddRow(int64(1), "Siti", "2201001", int64(10), []byte("ref")))

	ident, err := repo.IdentityByNIM(context.Background(), "2201001")
	require.NoError(t, err)
	require.NotNil(t, ident)
	assert.True(t, ident.Enrolled)
	assert.Equal(t, []byte("ref"), ident.Template)
}

func TestAddMemberDuplicate(t *testing.T) {
	repo, mock := newMockRepo(t)

	// ON CONFLICT DO NOTHING affects zero rows for an existing membership.
	mock.ExpectExec(`INSERT INTO class_members`).
		WithArgs(int64(10), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AddMember(context.Background(), 10, 1)
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestDeactivateSessionNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE sessions SET is_active = FALSE`).
		WithArgs(int64(404)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeactivateSession(context.Background(), 404)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSessionsFilterComposition(t *testing.T) {
	repo, mock := newMockRepo(t)

	active := true
	mock.ExpectQuery(`FROM sessions WHERE class_id = \$1 AND date = \$2 AND is_active = \$3`).
		WithArgs(int64(10), "2024-01-01", true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "class_id", "date", "start_time", "end_time", "method", "is_active"}).
			AddRow(int64(100), int64(10), "2024-01-01", "09:00", "10:00", "face", true))

	sessions, err := repo.Sessions(context.Background(), SessionFilter{ClassID: 10, Date: "2024-01-01", Active: &active})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, int64(100), sessions[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
