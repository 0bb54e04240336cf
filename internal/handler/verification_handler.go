package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sklapp/skl-api/internal/dto"
	"github.com/sklapp/skl-api/internal/models"
	"github.com/sklapp/skl-api/internal/service"
	appErrors "github.com/sklapp/skl-api/pkg/errors"
	"github.com/sklapp/skl-api/pkg/response"
)

// VerificationHandler exposes the admin verification workflow.
type VerificationHandler struct {
	verification *service.VerificationService
}

// NewVerificationHandler constructs VerificationHandler.
func NewVerificationHandler(verification *service.VerificationService) *VerificationHandler {
	return &VerificationHandler{verification: verification}
}

// Submit godoc
// @Summary Record a verification decision
// @Description Move a student to VERIFIED or REJECTED
// @Tags Verification
// @Accept json
// @Produce json
// @Param id path int true "Student ID"
// @Param payload body dto.SubmitVerificationRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/verification [post]
func (h *VerificationHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id, ok := idParam(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid student id"))
		return
	}
	var req dto.SubmitVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	student, err := h.verification.Submit(c.Request.Context(), id, req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, verificationResult(student), nil)
}

func verificationResult(student *models.Student) dto.VerificationResult {
	result := dto.VerificationResult{
		StudentID: student.ID,
		Status:    string(student.Status),
	}
	if student.VerifiedBy != nil {
		result.VerifiedBy = *student.VerifiedBy
	}
	if student.VerifiedAt != nil {
		result.VerifiedAt = student.VerifiedAt.UTC().Format(time.RFC3339)
	}
	if student.VerificationNote != nil {
		result.Note = *student.VerificationNote
	}
	return result
}

// Reopen godoc
// @Summary Reopen a decided verification
// @Description Move a VERIFIED or REJECTED student back to PENDING
// @Tags Verification
// @Produce json
// @Param id path int true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/verification/reopen [post]
func (h *VerificationHandler) Reopen(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id, ok := idParam(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid student id"))
		return
	}
	student, err := h.verification.Reopen(c.Request.Context(), id, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}
