package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sklapp/skl-api/internal/models"
	appErrors "github.com/sklapp/skl-api/pkg/errors"
)

type gradeRepository interface {
	ListByStudent(ctx context.Context, studentID int64) ([]models.GradeRow, error)
	Upsert(ctx context.Context, grade *models.Grade) error
	BulkUpsert(ctx context.Context, grades []models.Grade) error
}

type gradeStudentFinder interface {
	FindByID(ctx context.Context, id int64) (*models.Student, error)
}

type gradeSubjectFinder interface {
	FindByID(ctx context.Context, id int64) (*models.Subject, error)
}

// UpsertGradeRequest is a single grade write.
type UpsertGradeRequest struct {
	SubjectID int64   `json:"subject_id" validate:"required"`
	Value     float64 `json:"value"`
}

// BulkUpsertGradesRequest writes a full grade sheet for one student.
type BulkUpsertGradesRequest struct {
	Grades []UpsertGradeRequest `json:"grades" validate:"required,min=1,dive"`
}

// GradeService manages student grade sheets. Grade writes invalidate
// cached certificates because rendered averages change.
type GradeService struct {
	repo        gradeRepository
	students    gradeStudentFinder
	subjects    gradeSubjectFinder
	invalidator certificateInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewGradeService constructs the grade service.
func NewGradeService(repo gradeRepository, students gradeStudentFinder, subjects gradeSubjectFinder, invalidator certificateInvalidator, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{repo: repo, students: students, subjects: subjects, invalidator: invalidator, validator: validate, logger: logger}
}

// ListByStudent returns the student's grade sheet joined with subjects.
func (s *GradeService) ListByStudent(ctx context.Context, studentID int64) ([]models.GradeRow, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	rows, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	return rows, nil
}

// Upsert writes one grade for a student, replacing any prior value for
// the same subject.
func (s *GradeService) Upsert(ctx context.Context, studentID int64, req UpsertGradeRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if err := validateGradeValue(req.Value); err != nil {
		return err
	}
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if _, err := s.subjects.FindByID(ctx, req.SubjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	grade := &models.Grade{StudentID: studentID, SubjectID: req.SubjectID, Value: req.Value}
	if err := s.repo.Upsert(ctx, grade); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save grade")
	}
	s.invalidateCertificate(ctx, studentID)
	return nil
}

// BulkUpsert replaces grades for multiple subjects in one transaction.
func (s *GradeService) BulkUpsert(ctx context.Context, studentID int64, req BulkUpsertGradesRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	grades := make([]models.Grade, 0, len(req.Grades))
	seen := make(map[int64]bool, len(req.Grades))
	for _, entry := range req.Grades {
		if err := validateGradeValue(entry.Value); err != nil {
			return err
		}
		if seen[entry.SubjectID] {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate subject %d in payload", entry.SubjectID))
		}
		seen[entry.SubjectID] = true
		if _, err := s.subjects.FindByID(ctx, entry.SubjectID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("subject %d not found", entry.SubjectID))
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
		}
		grades = append(grades, models.Grade{StudentID: studentID, SubjectID: entry.SubjectID, Value: entry.Value})
	}

	if err := s.repo.BulkUpsert(ctx, grades); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save grades")
	}
	s.invalidateCertificate(ctx, studentID)
	return nil
}

func (s *GradeService) invalidateCertificate(ctx context.Context, studentID int64) {
	if s.invalidator == nil {
		return
	}
	s.invalidator.InvalidateStudent(ctx, studentID)
}

func validateGradeValue(value float64) error {
	if value < models.GradeMin || value > models.GradeMax {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("grade must be between %.0f and %.0f", models.GradeMin, models.GradeMax))
	}
	return nil
}
