package service

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sklapp/skl-api/internal/dto"
	"github.com/sklapp/skl-api/internal/models"
	appErrors "github.com/sklapp/skl-api/pkg/errors"
	"github.com/sklapp/skl-api/pkg/jobs"
	"github.com/sklapp/skl-api/pkg/storage"
)

type exportStudentLister interface {
	ListVerifiedIDs(ctx context.Context) ([]int64, error)
}

type certificateDownloader interface {
	Download(ctx context.Context, studentID int64, opts models.CertificateOptions) (string, []byte, error)
}

type exportAuditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type exportPayload struct {
	JobID      string
	ShowGrades bool
	ActorID    int64
}

type exportJob struct {
	id         string
	status     dto.ExportStatus
	showGrades bool
	actorID    int64
	total      int
	completed  int
	archive    string
	token      string
	expiresAt  *time.Time
	failure    string
	createdAt  time.Time
}

// ExportService produces batch certificate archives. Rendering every
// verified student can take minutes, so jobs run on a worker queue and
// clients poll for completion, then download through a signed URL.
type ExportService struct {
	students exportStudentLister
	certs    certificateDownloader
	store    *storage.LocalStorage
	signer   *storage.SignedURLSigner
	audit    exportAuditLogger
	metrics  *MetricsService
	logger   *zap.Logger
	queue    *jobs.Queue

	mu   sync.RWMutex
	jobs map[string]*exportJob

	now func() time.Time
}

// ExportQueueConfig tunes the export worker pool.
type ExportQueueConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// NewExportService constructs the export service and its queue. Call
// Start before accepting requests and Stop on shutdown.
func NewExportService(students exportStudentLister, certs certificateDownloader, store *storage.LocalStorage, signer *storage.SignedURLSigner, audit exportAuditLogger, metrics *MetricsService, logger *zap.Logger, cfg ExportQueueConfig) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ExportService{
		students: students,
		certs:    certs,
		store:    store,
		signer:   signer,
		audit:    audit,
		metrics:  metrics,
		logger:   logger,
		jobs:     make(map[string]*exportJob),
		now:      func() time.Time { return time.Now().UTC() },
	}
	s.queue = jobs.NewQueue("certificate-export", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the export workers.
func (s *ExportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the export workers.
func (s *ExportService) Stop() {
	s.queue.Stop()
}

// Create enqueues a batch export of every verified student's certificate.
func (s *ExportService) Create(ctx context.Context, req dto.CreateExportRequest, actorID int64) (*dto.ExportJobView, error) {
	job := &exportJob{
		id:         uuid.NewString(),
		status:     dto.ExportStatusQueued,
		showGrades: req.ShowGrades,
		actorID:    actorID,
		createdAt:  s.now(),
	}

	// Snapshot the view before Enqueue: once a worker picks the job up it
	// mutates the same struct under the lock.
	s.mu.Lock()
	s.jobs[job.id] = job
	view := s.view(job)
	s.mu.Unlock()

	err := s.queue.Enqueue(jobs.Job{
		ID:      job.id,
		Type:    "certificate_export",
		Payload: exportPayload{JobID: job.id, ShowGrades: req.ShowGrades, ActorID: actorID},
	})
	if err != nil {
		s.mu.Lock()
		delete(s.jobs, job.id)
		s.mu.Unlock()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export")
	}

	return &view, nil
}

// Get returns the current state of an export job.
func (s *ExportService) Get(ctx context.Context, id string) (*dto.ExportJobView, error) {
	s.mu.RLock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.RUnlock()
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	view := s.view(job)
	s.mu.RUnlock()
	return &view, nil
}

// OpenArchive validates a signed download token and opens the archive.
// The caller closes the returned file.
func (s *ExportService) OpenArchive(ctx context.Context, token string) (*os.File, string, error) {
	jobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download link")
	}

	s.mu.RLock()
	job, ok := s.jobs[jobID]
	completed := ok && job.status == dto.ExportStatusCompleted
	s.mu.RUnlock()
	if !completed {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}

	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export archive")
	}
	return file, fmt.Sprintf("SKL_export_%s.zip", jobID[:8]), nil
}

// handle executes one export job on a queue worker.
func (s *ExportService) handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(exportPayload)
	if !ok {
		s.logger.Error("export job carried unexpected payload", zap.String("job_id", job.ID))
		return nil
	}

	ids, err := s.students.ListVerifiedIDs(ctx)
	if err != nil {
		s.fail(payload.JobID, "failed to list verified students")
		s.observe("error")
		return fmt.Errorf("list verified students: %w", err)
	}

	s.transition(payload.JobID, func(j *exportJob) {
		j.status = dto.ExportStatusRunning
		j.total = len(ids)
		j.completed = 0
		j.failure = ""
	})

	buf := &bytes.Buffer{}
	archive := zip.NewWriter(buf)
	for _, id := range ids {
		filename, data, err := s.certs.Download(ctx, id, models.CertificateOptions{ShowGrades: payload.ShowGrades})
		if err != nil {
			// A student slipping out of VERIFIED mid-run is skipped, any
			// other failure aborts the job.
			if appErrors.FromError(err).Code == appErrors.ErrNotFound.Code {
				s.logger.Warn("skipping student during export", zap.Int64("student_id", id), zap.Error(err))
				continue
			}
			s.fail(payload.JobID, fmt.Sprintf("failed to render certificate for student %d", id))
			s.observe("error")
			return fmt.Errorf("render certificate %d: %w", id, err)
		}
		entry, err := archive.Create(filename)
		if err != nil {
			s.fail(payload.JobID, "failed to build archive")
			s.observe("error")
			return fmt.Errorf("create archive entry: %w", err)
		}
		if _, err := entry.Write(data); err != nil {
			s.fail(payload.JobID, "failed to build archive")
			s.observe("error")
			return fmt.Errorf("write archive entry: %w", err)
		}
		s.transition(payload.JobID, func(j *exportJob) { j.completed++ })
	}
	if err := archive.Close(); err != nil {
		s.fail(payload.JobID, "failed to finalise archive")
		s.observe("error")
		return fmt.Errorf("close archive: %w", err)
	}

	archiveName := payload.JobID + ".zip"
	if _, err := s.store.Save(archiveName, buf.Bytes()); err != nil {
		s.fail(payload.JobID, "failed to store archive")
		s.observe("error")
		return fmt.Errorf("store archive: %w", err)
	}

	token, expiresAt, err := s.signer.Generate(payload.JobID, archiveName)
	if err != nil {
		s.fail(payload.JobID, "failed to sign download link")
		s.observe("error")
		return fmt.Errorf("sign download link: %w", err)
	}

	s.transition(payload.JobID, func(j *exportJob) {
		j.status = dto.ExportStatusCompleted
		j.archive = archiveName
		j.token = token
		j.expiresAt = &expiresAt
	})
	s.observe("success")

	if s.audit != nil {
		actorID := payload.ActorID
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actorID,
			Action:     models.AuditActionCertificateExport,
			Resource:   "export",
			ResourceID: &payload.JobID,
		}); err != nil {
			s.logger.Warn("failed to record export audit log", zap.Error(err))
		}
	}
	return nil
}

// CleanupExpired removes stored archives older than the signer TTL.
func (s *ExportService) CleanupExpired(ttl time.Duration) {
	removed, err := s.store.CleanupOlderThan(ttl)
	if err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
		return
	}
	if len(removed) > 0 {
		s.logger.Info("removed expired export archives", zap.Int("count", len(removed)))
	}
}

func (s *ExportService) view(job *exportJob) dto.ExportJobView {
	view := dto.ExportJobView{
		ID:         job.id,
		Status:     job.status,
		ShowGrades: job.showGrades,
		Total:      job.total,
		Completed:  job.completed,
		Error:      job.failure,
		CreatedAt:  job.createdAt,
	}
	if job.status == dto.ExportStatusCompleted && job.token != "" {
		view.DownloadURL = "/exports/download?token=" + job.token
		view.ExpiresAt = job.expiresAt
	}
	return view
}

func (s *ExportService) transition(id string, fn func(*exportJob)) {
	s.mu.Lock()
	if job, ok := s.jobs[id]; ok {
		fn(job)
	}
	s.mu.Unlock()
}

func (s *ExportService) fail(id, reason string) {
	s.transition(id, func(j *exportJob) {
		j.status = dto.ExportStatusFailed
		j.failure = reason
	})
}

func (s *ExportService) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveExportJob(outcome)
	}
}
