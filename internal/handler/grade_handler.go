package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sklapp/skl-api/internal/service"
	appErrors "github.com/sklapp/skl-api/pkg/errors"
	"github.com/sklapp/skl-api/pkg/response"
)

// GradeHandler exposes grade sheet endpoints.
type GradeHandler struct {
	grades *service.GradeService
}

// NewGradeHandler constructs GradeHandler.
func NewGradeHandler(grades *service.GradeService) *GradeHandler {
	return &GradeHandler{grades: grades}
}

// ListByStudent godoc
// @Summary List a student's grades
// @Tags Grades
// @Produce json
// @Param id path int true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/grades [get]
func (h *GradeHandler) ListByStudent(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid student id"))
		return
	}
	rows, err := h.grades.ListByStudent(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// Upsert godoc
// @Summary Record one grade
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path int true "Student ID"
// @Param payload body service.UpsertGradeRequest true "Grade payload"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /students/{id}/grades [put]
func (h *GradeHandler) Upsert(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid student id"))
		return
	}
	var req service.UpsertGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.grades.Upsert(c.Request.Context(), id, req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// BulkUpsert godoc
// @Summary Replace a student's grade sheet
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path int true "Student ID"
// @Param payload body service.BulkUpsertGradesRequest true "Grades payload"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /students/{id}/grades/bulk [put]
func (h *GradeHandler) BulkUpsert(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid student id"))
		return
	}
	var req service.BulkUpsertGradesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.grades.BulkUpsert(c.Request.Context(), id, req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
