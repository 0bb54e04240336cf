package repository

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sklapp/skl-api/internal/models"
)

func newGradeRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestGradeRepositoryListByStudent(t *testing.T) {
	db, mock, cleanup := newGradeRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	rows := sqlmock.NewRows([]string{"subject_code", "subject_name", "value"}).
		AddRow("BIND", "Bahasa Indonesia", 85.5).
		AddRow("MTK", "Matematika", 90.0)
	mock.ExpectQuery(`JOIN subjects sub ON sub.id = g.subject_id`).
		WithArgs(int64(7)).
		WillReturnRows(rows)

	grades, err := repo.ListByStudent(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, grades, 2)
	assert.Equal(t, "BIND", grades[0].SubjectCode)
	assert.Equal(t, 90.0, grades[1].Value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newGradeRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectExec(`INSERT INTO grades`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	grade := &models.Grade{StudentID: 7, SubjectID: 2, Value: 88}
	require.NoError(t, repo.Upsert(context.Background(), grade))
	assert.False(t, grade.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryBulkUpsert(t *testing.T) {
	db, mock, cleanup := newGradeRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO grades`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO grades`).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	grades := []models.Grade{
		{StudentID: 7, SubjectID: 1, Value: 80},
		{StudentID: 7, SubjectID: 2, Value: 90},
	}
	require.NoError(t, repo.BulkUpsert(context.Background(), grades))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryBulkUpsertEmpty(t *testing.T) {
	db, mock, cleanup := newGradeRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	require.NoError(t, repo.BulkUpsert(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}
