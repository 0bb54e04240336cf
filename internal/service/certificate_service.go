package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sklapp/skl-api/internal/models"
	appErrors "github.com/sklapp/skl-api/pkg/errors"
)

type certificateStudentReader interface {
	FindByID(ctx context.Context, id int64) (*models.Student, error)
}

type certificateGradeReader interface {
	ListByStudent(ctx context.Context, studentID int64) ([]models.GradeRow, error)
}

type certificateSettingsReader interface {
	Get(ctx context.Context) (*models.Settings, error)
}

// CertificateRenderer renders the assembled document model into PDF bytes.
type CertificateRenderer interface {
	Render(cert models.CertificateData) ([]byte, error)
}

// certNumberTemplate yields numbers like "421/007/SMA/2025". The scheme
// is deterministic per (student, year): regenerating a certificate in
// the same calendar year reuses the same number.
const certNumberTemplate = "421/%03d/SMA/%d"

// CertificateService assembles the render-ready document model from the
// student, grade and settings rows and drives the PDF renderer. Assembly
// has no persisted side effects, so an aborted request never leaves
// partial state behind.
type CertificateService struct {
	students certificateStudentReader
	grades   certificateGradeReader
	settings certificateSettingsReader
	renderer CertificateRenderer
	cache    *CacheService
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewCertificateService constructs the service.
func NewCertificateService(students certificateStudentReader, grades certificateGradeReader, settings certificateSettingsReader, renderer CertificateRenderer, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *CertificateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CertificateService{
		students: students,
		grades:   grades,
		settings: settings,
		renderer: renderer,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Assemble builds an immutable CertificateData for a verified student.
// Students outside VERIFIED never get a document: callers receive
// NOT_FOUND, indistinguishable from a missing record.
func (s *CertificateService) Assemble(ctx context.Context, studentID int64, opts models.CertificateOptions) (*models.CertificateData, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not available")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Status != models.VerificationVerified {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not available")
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrSettingsMissing, "certificate settings are not configured")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load settings")
	}

	now := s.now()
	cert := &models.CertificateData{
		CertNumber: CertNumber(student.ID, now.Year()),
		IssueDate:  formatIndonesianDate(now),

		StudentName: student.FullName,
		NISN:        student.NISN,
		NIS:         student.NIS,
		BirthPlace:  student.BirthPlace,
		BirthDate:   formatIndonesianDate(student.BirthDate),
		ParentName:  student.ParentName,
		ClassName:   student.ClassName,

		SchoolName:          settings.SchoolName,
		SchoolAddress:       settings.SchoolAddress,
		HeadmasterName:      settings.HeadmasterName,
		HeadmasterNIP:       settings.HeadmasterNIP,
		City:                settings.City,
		Title:               settings.CertificateTitle,
		OpeningText:         settings.OpeningText,
		ClosingText:         settings.ClosingText,
		UseHeaderImage:      settings.UseHeaderImage,
		HeaderImagePath:     settings.HeaderImagePath,
		UseDigitalSignature: settings.UseDigitalSignature,
		SignatureImagePath:  settings.SignatureImagePath,

		ShowGrades: opts.ShowGrades,
	}

	if opts.ShowGrades {
		rows, err := s.grades.ListByStudent(ctx, student.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
		}
		cert.Grades = make([]models.CertificateGrade, 0, len(rows))
		var sum float64
		for _, row := range rows {
			cert.Grades = append(cert.Grades, models.CertificateGrade{SubjectName: row.SubjectName, Value: row.Value})
			sum += row.Value
		}
		if len(rows) > 0 {
			cert.AverageGrade = roundTwoDecimals(sum / float64(len(rows)))
		}
	}

	return cert, nil
}

// Download returns the certificate PDF and its download filename, serving
// from cache when a fresh render for the same (student, options, year)
// already exists.
func (s *CertificateService) Download(ctx context.Context, studentID int64, opts models.CertificateOptions) (string, []byte, error) {
	key := s.cacheKey(studentID, opts)
	if data, hit := s.cache.GetBytes(ctx, key); hit {
		return s.filename(studentID), data, nil
	}

	cert, err := s.Assemble(ctx, studentID, opts)
	if err != nil {
		return "", nil, err
	}

	start := time.Now()
	data, err := s.renderer.Render(*cert)
	s.metrics.ObserveRender(time.Since(start), err)
	if err != nil {
		return "", nil, err
	}

	s.cache.SetBytes(ctx, key, data, 0)
	return s.filename(studentID), data, nil
}

// InvalidateStudent drops cached renders after a verification transition.
func (s *CertificateService) InvalidateStudent(ctx context.Context, studentID int64) {
	s.cache.Invalidate(ctx, fmt.Sprintf("certificate:%d:*", studentID))
}

// InvalidateAll drops every cached render; used after settings updates.
func (s *CertificateService) InvalidateAll(ctx context.Context) {
	s.cache.Invalidate(ctx, "certificate:*")
}

func (s *CertificateService) cacheKey(studentID int64, opts models.CertificateOptions) string {
	return fmt.Sprintf("certificate:%d:grades=%t:%d", studentID, opts.ShowGrades, s.now().Year())
}

func (s *CertificateService) filename(studentID int64) string {
	number := CertNumber(studentID, s.now().Year())
	return fmt.Sprintf("SKL_%s.pdf", strings.ReplaceAll(number, "/", "-"))
}

// CertNumber derives the certificate number for a student and year.
func CertNumber(studentID int64, year int) string {
	return fmt.Sprintf(certNumberTemplate, studentID, year)
}

func roundTwoDecimals(v float64) float64 {
	return math.Round(v*100) / 100
}
