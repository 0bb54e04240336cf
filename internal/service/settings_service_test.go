package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sklapp/skl-api/internal/models"
	appErrors "github.com/sklapp/skl-api/pkg/errors"
)

type stubSettingsRepo struct {
	settings *models.Settings
	upserted *models.Settings
}

func (s *stubSettingsRepo) Get(ctx context.Context) (*models.Settings, error) {
	if s.settings == nil {
		return nil, sql.ErrNoRows
	}
	clone := *s.settings
	return &clone, nil
}

func (s *stubSettingsRepo) Upsert(ctx context.Context, settings *models.Settings) error {
	s.upserted = settings
	s.settings = settings
	return nil
}

type stubCertFlusher struct {
	flushes int
}

func (s *stubCertFlusher) InvalidateAll(ctx context.Context) {
	s.flushes++
}

func validSettingsRequest() UpdateSettingsRequest {
	return UpdateSettingsRequest{
		SchoolName:     "SMA Negeri 1 Bandung",
		SchoolAddress:  "Jl. Ir. H. Juanda No. 93",
		HeadmasterName: "Drs. Hendra Wijaya",
		HeadmasterNIP:  "196512101990031005",
		City:           "Bandung",
	}
}

func TestSettingsGetUnconfigured(t *testing.T) {
	svc := NewSettingsService(&stubSettingsRepo{}, nil, nil, nil, nil, nil)

	_, err := svc.Get(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSettingsMissing.Code, appErrors.FromError(err).Code)
}

func TestSettingsGet(t *testing.T) {
	repo := &stubSettingsRepo{settings: &models.Settings{ID: 1, SchoolName: "SMA Negeri 1 Bandung"}}
	svc := NewSettingsService(repo, nil, nil, nil, nil, nil)

	settings, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SMA Negeri 1 Bandung", settings.SchoolName)
}

func TestSettingsUpdate(t *testing.T) {
	repo := &stubSettingsRepo{}
	audit := &stubAuditLogger{}
	flusher := &stubCertFlusher{}
	svc := NewSettingsService(repo, audit, flusher, nil, nil, nil)

	settings, err := svc.Update(context.Background(), validSettingsRequest(), 1)
	require.NoError(t, err)

	assert.Equal(t, int64(1), settings.ID)
	require.NotNil(t, settings.UpdatedBy)
	assert.Equal(t, int64(1), *settings.UpdatedBy)
	assert.Equal(t, 1, flusher.flushes)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionSettingsUpdate, audit.entries[0].Action)
	assert.NotEmpty(t, audit.entries[0].NewValues)
}

func TestSettingsUpdateKeepsOldValuesInAudit(t *testing.T) {
	repo := &stubSettingsRepo{settings: &models.Settings{ID: 1, SchoolName: "SMA Lama"}}
	audit := &stubAuditLogger{}
	svc := NewSettingsService(repo, audit, nil, nil, nil, nil)

	_, err := svc.Update(context.Background(), validSettingsRequest(), 2)
	require.NoError(t, err)
	require.Len(t, audit.entries, 1)
	assert.Contains(t, string(audit.entries[0].OldValues), "SMA Lama")
}

func TestSettingsUpdateValidation(t *testing.T) {
	svc := NewSettingsService(&stubSettingsRepo{}, nil, nil, nil, nil, nil)

	_, err := svc.Update(context.Background(), UpdateSettingsRequest{SchoolName: "SMA Negeri 1"}, 1)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
