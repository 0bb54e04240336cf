package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sklapp/skl-api/internal/models"
)

func newSettingsRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestSettingsRepositoryGet(t *testing.T) {
	db, mock, cleanup := newSettingsRepoMock(t)
	defer cleanup()
	repo := NewSettingsRepository(db)

	rows := sqlmock.NewRows([]string{"id", "school_name", "school_address", "headmaster_name", "headmaster_nip", "city", "certificate_title", "opening_text", "closing_text", "use_header_image", "header_image_path", "use_digital_signature", "signature_image_path", "updated_by", "updated_at"}).
		AddRow(int64(1), "SMA Negeri 1", "Jl. Merdeka No. 1", "Dra. Ratna Dewi", "196501011990032001", "Bandung", "", "", "", false, "", false, "", nil, time.Now())
	mock.ExpectQuery(`FROM settings WHERE id = 1`).WillReturnRows(rows)

	settings, err := repo.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SMA Negeri 1", settings.SchoolName)
	assert.Equal(t, "Bandung", settings.City)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsRepositoryGetUnconfigured(t *testing.T) {
	db, mock, cleanup := newSettingsRepoMock(t)
	defer cleanup()
	repo := NewSettingsRepository(db)

	mock.ExpectQuery(`FROM settings WHERE id = 1`).WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background())
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newSettingsRepoMock(t)
	defer cleanup()
	repo := NewSettingsRepository(db)

	mock.ExpectExec(`INSERT INTO settings`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	settings := &models.Settings{
		SchoolName:     "SMA Negeri 1",
		HeadmasterName: "Dra. Ratna Dewi",
		City:           "Bandung",
	}
	require.NoError(t, repo.Upsert(context.Background(), settings))
	assert.Equal(t, int64(1), settings.ID)
	assert.False(t, settings.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
