package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sklapp/skl-api/internal/dto"
	"github.com/sklapp/skl-api/internal/models"
	"github.com/sklapp/skl-api/internal/repository"
	appErrors "github.com/sklapp/skl-api/pkg/errors"
)

type verificationStore interface {
	FindByID(ctx context.Context, id int64) (*models.Student, error)
	UpdateVerification(ctx context.Context, params repository.VerificationParams) error
	ResetVerification(ctx context.Context, id int64) error
}

type verificationAuditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type certificateInvalidator interface {
	InvalidateStudent(ctx context.Context, studentID int64)
}

// VerificationService drives the student verification workflow:
// PENDING -> VERIFIED | REJECTED. Decisions are idempotent and may be
// re-issued while the record stays in a decision state; returning to
// PENDING requires the explicit Reopen override.
//
// Callers must already be authorised as ADMIN; the RBAC middleware
// enforces that upstream.
type VerificationService struct {
	repo   verificationStore
	audit  verificationAuditLogger
	certs  certificateInvalidator
	logger *zap.Logger
	now    func() time.Time
}

// NewVerificationService constructs the service.
func NewVerificationService(repo verificationStore, audit verificationAuditLogger, certs certificateInvalidator, logger *zap.Logger) *VerificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VerificationService{
		repo:   repo,
		audit:  audit,
		certs:  certs,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Submit applies an admin decision to a student record. The status,
// verifier and timestamp land in a single update so a reader never
// observes a half-applied decision.
func (s *VerificationService) Submit(ctx context.Context, studentID int64, req dto.SubmitVerificationRequest, verifierID int64) (*models.Student, error) {
	decision := models.VerificationStatus(strings.ToUpper(strings.TrimSpace(req.Decision)))
	if decision != models.VerificationVerified && decision != models.VerificationRejected {
		return nil, appErrors.Clone(appErrors.ErrValidation, "decision must be VERIFIED or REJECTED")
	}

	student, err := s.repo.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	decidedAt := s.now()
	var note *string
	if trimmed := strings.TrimSpace(req.Note); trimmed != "" {
		note = &trimmed
	}

	params := repository.VerificationParams{
		StudentID:  studentID,
		Status:     decision,
		VerifierID: verifierID,
		DecidedAt:  decidedAt,
		Note:       note,
	}
	if err := s.repo.UpdateVerification(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decision")
	}

	if s.certs != nil {
		s.certs.InvalidateStudent(ctx, studentID)
	}
	s.emitAudit(ctx, verifierID, models.AuditActionVerificationSubmit, studentID, []byte(`{"decision":"`+string(decision)+`"}`))

	student.Status = decision
	student.VerifiedBy = &verifierID
	student.VerifiedAt = &decidedAt
	student.VerificationNote = note
	student.UpdatedAt = decidedAt
	return student, nil
}

// Reopen returns a decided student to PENDING. This is the admin override
// for records that were verified or rejected in error.
func (s *VerificationService) Reopen(ctx context.Context, studentID int64, adminID int64) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student is not in a decided state")
	}

	if err := s.repo.ResetVerification(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reopen verification")
	}

	if s.certs != nil {
		s.certs.InvalidateStudent(ctx, studentID)
	}
	s.emitAudit(ctx, adminID, models.AuditActionVerificationReopen, studentID, []byte(`{"previous":"`+string(student.Status)+`"}`))

	student.Status = models.VerificationPending
	student.VerifiedBy = nil
	student.VerifiedAt = nil
	student.VerificationNote = nil
	return student, nil
}

func (s *VerificationService) emitAudit(ctx context.Context, actorID int64, action string, studentID int64, values []byte) {
	if s.audit == nil {
		return
	}
	resourceID := formatID(studentID)
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "student",
		ResourceID: &resourceID,
		NewValues:  values,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record verification audit log", zap.Error(err))
	}
}
