package service

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sklapp/skl-api/internal/models"
	appErrors "github.com/sklapp/skl-api/pkg/errors"
	"github.com/sklapp/skl-api/pkg/export"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id int64) (*models.Student, error)
	ExistsByNISN(ctx context.Context, nisn string, excludeID int64) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Deactivate(ctx context.Context, id int64) error
}

type studentAuditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreateStudentRequest holds payload for creating students.
type CreateStudentRequest struct {
	NISN       string    `json:"nisn" validate:"required"`
	NIS        string    `json:"nis" validate:"required"`
	FullName   string    `json:"full_name" validate:"required"`
	BirthPlace string    `json:"birth_place" validate:"required"`
	BirthDate  time.Time `json:"birth_date" validate:"required"`
	ParentName string    `json:"parent_name"`
	ClassName  string    `json:"class_name" validate:"required"`
}

// UpdateStudentRequest holds payload for updating students.
type UpdateStudentRequest struct {
	NISN       string    `json:"nisn" validate:"required"`
	NIS        string    `json:"nis" validate:"required"`
	FullName   string    `json:"full_name" validate:"required"`
	BirthPlace string    `json:"birth_place" validate:"required"`
	BirthDate  time.Time `json:"birth_date" validate:"required"`
	ParentName string    `json:"parent_name"`
	ClassName  string    `json:"class_name" validate:"required"`
	Active     bool      `json:"active"`
}

// ImportResult summarises a CSV import run.
type ImportResult struct {
	Created int             `json:"created"`
	Skipped int             `json:"skipped"`
	Errors  []ImportFailure `json:"errors,omitempty"`
}

// ImportFailure reports a rejected import row.
type ImportFailure struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// StudentService handles student record use-cases. Verification
// transitions live in VerificationService; this service never touches
// workflow columns.
type StudentService struct {
	repo      studentRepository
	audit     studentAuditLogger
	certs     certificateInvalidator
	validator *validator.Validate
	logger    *zap.Logger
	csv       *export.CSVExporter
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, audit studentAuditLogger, certs certificateInvalidator, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, audit: audit, certs: certs, validator: validate, logger: logger, csv: export.NewCSVExporter()}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return students, pagination, nil
}

// Get returns a single student.
func (s *StudentService) Get(ctx context.Context, id int64) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create registers a new student in PENDING state.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	exists, err := s.repo.ExistsByNISN(ctx, req.NISN, 0)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate nisn")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "nisn already used")
	}
	student := &models.Student{
		NISN:       req.NISN,
		NIS:        req.NIS,
		FullName:   req.FullName,
		BirthPlace: req.BirthPlace,
		BirthDate:  req.BirthDate,
		ParentName: req.ParentName,
		ClassName:  req.ClassName,
		Status:     models.VerificationPending,
		Active:     true,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	return student, nil
}

// Update modifies the identity fields of an existing student record.
func (s *StudentService) Update(ctx context.Context, id int64, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	exists, err := s.repo.ExistsByNISN(ctx, req.NISN, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate nisn")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "nisn already used")
	}
	student.NISN = req.NISN
	student.NIS = req.NIS
	student.FullName = req.FullName
	student.BirthPlace = req.BirthPlace
	student.BirthDate = req.BirthDate
	student.ParentName = req.ParentName
	student.ClassName = req.ClassName
	student.Active = req.Active
	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	s.invalidateCertificate(ctx, student.ID)
	return student, nil
}

// Deactivate marks a student inactive. Records are never hard-deleted.
func (s *StudentService) Deactivate(ctx context.Context, id int64) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate student")
	}
	s.invalidateCertificate(ctx, id)
	return nil
}

// Identity fields feed the rendered certificate, so any change must drop
// cached copies. Same hook verification and grade writes use.
func (s *StudentService) invalidateCertificate(ctx context.Context, studentID int64) {
	if s.certs == nil {
		return
	}
	s.certs.InvalidateStudent(ctx, studentID)
}

// importHeader is the fixed column layout accepted by ImportCSV.
var importHeader = []string{"nisn", "nis", "full_name", "birth_place", "birth_date", "parent_name", "class_name"}

// ImportCSV ingests the admin roster upload. Rows failing validation are
// reported per line; valid rows are created in PENDING state.
func (s *StudentService) ImportCSV(ctx context.Context, r io.Reader, actorID int64) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "empty or unreadable csv")
	}
	if len(header) < len(importHeader) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("csv header must be: %s", strings.Join(importHeader, ",")))
	}

	result := &ImportResult{}
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			result.Errors = append(result.Errors, ImportFailure{Line: line, Reason: "malformed csv row"})
			result.Skipped++
			continue
		}
		if len(record) < len(importHeader) {
			result.Errors = append(result.Errors, ImportFailure{Line: line, Reason: "missing columns"})
			result.Skipped++
			continue
		}

		birthDate, err := time.Parse("2006-01-02", strings.TrimSpace(record[4]))
		if err != nil {
			result.Errors = append(result.Errors, ImportFailure{Line: line, Reason: "birth_date must be YYYY-MM-DD"})
			result.Skipped++
			continue
		}

		req := CreateStudentRequest{
			NISN:       strings.TrimSpace(record[0]),
			NIS:        strings.TrimSpace(record[1]),
			FullName:   strings.TrimSpace(record[2]),
			BirthPlace: strings.TrimSpace(record[3]),
			BirthDate:  birthDate,
			ParentName: strings.TrimSpace(record[5]),
			ClassName:  strings.TrimSpace(record[6]),
		}
		if _, err := s.Create(ctx, req); err != nil {
			result.Errors = append(result.Errors, ImportFailure{Line: line, Reason: appErrors.FromError(err).Message})
			result.Skipped++
			continue
		}
		result.Created++
	}

	if s.audit != nil {
		summary, _ := json.Marshal(result)
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:    &actorID,
			Action:    models.AuditActionStudentImport,
			Resource:  "student",
			NewValues: summary,
		}); err != nil {
			s.logger.Warn("failed to record import audit log", zap.Error(err))
		}
	}

	return result, nil
}

// ExportRosterCSV renders the current roster as CSV for admin download.
func (s *StudentService) ExportRosterCSV(ctx context.Context, filter models.StudentFilter) ([]byte, error) {
	filter.Page = 1
	filter.PageSize = 100
	headers := []string{"nisn", "nis", "full_name", "class_name", "status", "verified_at"}
	dataset := export.Dataset{Headers: headers}

	for {
		students, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
		}
		for _, student := range students {
			verifiedAt := ""
			if student.VerifiedAt != nil {
				verifiedAt = student.VerifiedAt.UTC().Format(time.RFC3339)
			}
			dataset.Rows = append(dataset.Rows, map[string]string{
				"nisn":        student.NISN,
				"nis":         student.NIS,
				"full_name":   student.FullName,
				"class_name":  student.ClassName,
				"status":      string(student.Status),
				"verified_at": verifiedAt,
			})
		}
		if len(dataset.Rows) >= total || len(students) == 0 {
			break
		}
		filter.Page++
	}

	data, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster csv")
	}
	return data, nil
}
