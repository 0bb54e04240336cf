package service

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sklapp/skl-api/internal/dto"
	"github.com/sklapp/skl-api/internal/models"
	appErrors "github.com/sklapp/skl-api/pkg/errors"
	"github.com/sklapp/skl-api/pkg/jobs"
	"github.com/sklapp/skl-api/pkg/storage"
)

func queuedJob(id string, showGrades bool) jobs.Job {
	return jobs.Job{ID: id, Type: "certificate_export", Payload: exportPayload{JobID: id, ShowGrades: showGrades, ActorID: 1}}
}

type stubVerifiedLister struct {
	ids []int64
	err error
}

func (s *stubVerifiedLister) ListVerifiedIDs(ctx context.Context) ([]int64, error) {
	return s.ids, s.err
}

type stubDownloader struct {
	missing map[int64]bool
	failing map[int64]bool
	renders int
}

func (s *stubDownloader) Download(ctx context.Context, studentID int64, opts models.CertificateOptions) (string, []byte, error) {
	if s.missing[studentID] {
		return "", nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not available")
	}
	if s.failing[studentID] {
		return "", nil, appErrors.Clone(appErrors.ErrRender, "renderer exploded")
	}
	s.renders++
	return fmt.Sprintf("SKL_421-%03d-SMA-2025.pdf", studentID), []byte("%PDF " + fmt.Sprint(studentID)), nil
}

func newExportTestService(t *testing.T, lister *stubVerifiedLister, downloader *stubDownloader) *ExportService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	audit := &stubAuditLogger{}
	return NewExportService(lister, downloader, store, signer, audit, nil, nil, ExportQueueConfig{Workers: 1})
}

func createQueuedJob(t *testing.T, svc *ExportService) string {
	t.Helper()
	job := &exportJob{
		id:        "11111111-2222-3333-4444-555555555555",
		status:    dto.ExportStatusQueued,
		createdAt: time.Now().UTC(),
	}
	svc.mu.Lock()
	svc.jobs[job.id] = job
	svc.mu.Unlock()
	return job.id
}

func TestExportHandleBuildsArchive(t *testing.T) {
	lister := &stubVerifiedLister{ids: []int64{3, 7}}
	downloader := &stubDownloader{}
	svc := newExportTestService(t, lister, downloader)
	jobID := createQueuedJob(t, svc)

	err := svc.handle(context.Background(), queuedJob(jobID, true))
	require.NoError(t, err)

	view, err := svc.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, dto.ExportStatusCompleted, view.Status)
	assert.Equal(t, 2, view.Total)
	assert.Equal(t, 2, view.Completed)
	assert.Contains(t, view.DownloadURL, "/exports/download?token=")
	require.NotNil(t, view.ExpiresAt)
	assert.Equal(t, 2, downloader.renders)

	token := strings.TrimPrefix(view.DownloadURL, "/exports/download?token=")
	file, name, err := svc.OpenArchive(context.Background(), token)
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, "SKL_export_11111111.zip", name)

	data, err := io.ReadAll(file)
	require.NoError(t, err)
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, reader.File, 2)
	assert.Equal(t, "SKL_421-003-SMA-2025.pdf", reader.File[0].Name)
	assert.Equal(t, "SKL_421-007-SMA-2025.pdf", reader.File[1].Name)
}

func TestExportHandleSkipsStudentsWithoutCertificate(t *testing.T) {
	lister := &stubVerifiedLister{ids: []int64{3, 7, 9}}
	downloader := &stubDownloader{missing: map[int64]bool{7: true}}
	svc := newExportTestService(t, lister, downloader)
	jobID := createQueuedJob(t, svc)

	err := svc.handle(context.Background(), queuedJob(jobID, false))
	require.NoError(t, err)

	view, err := svc.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, dto.ExportStatusCompleted, view.Status)
	assert.Equal(t, 3, view.Total)
	assert.Equal(t, 2, view.Completed)
}

func TestExportHandleFailsOnRenderError(t *testing.T) {
	lister := &stubVerifiedLister{ids: []int64{3, 7}}
	downloader := &stubDownloader{failing: map[int64]bool{7: true}}
	svc := newExportTestService(t, lister, downloader)
	jobID := createQueuedJob(t, svc)

	err := svc.handle(context.Background(), queuedJob(jobID, false))
	require.Error(t, err)

	view, err := svc.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, dto.ExportStatusFailed, view.Status)
	assert.NotEmpty(t, view.Error)
	assert.Empty(t, view.DownloadURL)
}

func TestExportGetUnknownJob(t *testing.T) {
	svc := newExportTestService(t, &stubVerifiedLister{}, &stubDownloader{})

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExportOpenArchiveRejectsBadToken(t *testing.T) {
	svc := newExportTestService(t, &stubVerifiedLister{}, &stubDownloader{})

	_, _, err := svc.OpenArchive(context.Background(), "bogus-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExportCreateRunsThroughQueue(t *testing.T) {
	lister := &stubVerifiedLister{ids: []int64{3}}
	downloader := &stubDownloader{}
	svc := newExportTestService(t, lister, downloader)
	svc.Start(context.Background())
	defer svc.Stop()

	view, err := svc.Create(context.Background(), dto.CreateExportRequest{ShowGrades: true}, 1)
	require.NoError(t, err)
	assert.Equal(t, dto.ExportStatusQueued, view.Status)

	require.Eventually(t, func() bool {
		current, err := svc.Get(context.Background(), view.ID)
		return err == nil && current.Status == dto.ExportStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
}

// Exercised under the race detector: Create's returned view must be
// snapshotted before a worker starts mutating the job.
func TestExportCreateConcurrentWithWorkers(t *testing.T) {
	lister := &stubVerifiedLister{ids: []int64{3, 7}}
	downloader := &stubDownloader{}
	svc := newExportTestService(t, lister, downloader)
	svc.Start(context.Background())
	defer svc.Stop()

	var ids []string
	for i := 0; i < 8; i++ {
		view, err := svc.Create(context.Background(), dto.CreateExportRequest{ShowGrades: i%2 == 0}, 1)
		require.NoError(t, err)
		assert.Equal(t, dto.ExportStatusQueued, view.Status)
		ids = append(ids, view.ID)
	}

	require.Eventually(t, func() bool {
		for _, id := range ids {
			current, err := svc.Get(context.Background(), id)
			if err != nil || current.Status != dto.ExportStatusCompleted {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)
}
