package sqlite

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/devspace/internal/apperror"
	"github.com/sakif/devspace/internal/model"
)

// setupMockDB drives the stores through go-sqlmock to cover driver failures
// that a real SQLite database will not produce on demand.
func setupMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return newWithConn(conn), mock
}

func TestUserCreateErrorTranslation(t *testing.T) {
	insert := regexp.QuoteMeta(`INSERT INTO users`)

	tests := []struct {
		name       string
		dbErr      error
		wantTarget error
	}{
		{
			name:       "unique violation becomes conflict",
			dbErr:      errors.New("constraint failed: UNIQUE constraint failed: users.username (2067)"),
			wantTarget: apperror.ErrConflict,
		},
		{
			name:  "other errors are wrapped",
			dbErr: errors.New("disk I/O error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			mock.ExpectExec(insert).WillReturnError(tt.dbErr)

			err := db.Users().Create(context.Background(), &model.User{Username: "alice", Email: "a@x.io"})
			require.Error(t, err)
			if tt.wantTarget != nil {
				assert.True(t, errors.Is(err, tt.wantTarget), "got %v", err)
			} else {
				assert.True(t, errors.Is(err, tt.dbErr))
				assert.False(t, errors.Is(err, apperror.ErrConflict))
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestToggleStarRollsBackOnError(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM stars`)).
		WithArgs("u1", "s1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO stars`)).
		WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	_, err := db.Stars().ToggleSnippetStar(context.Background(), "u1", "s1")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectRoleQueryError(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT role FROM project_collaborators`)).
		WithArgs("p1", "u1").
		WillReturnError(errors.New("boom"))

	_, err := db.Collaborators().ProjectRole(context.Background(), "p1", "u1")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
