package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sklapp/skl-api/internal/models"
	"github.com/sklapp/skl-api/internal/service"
	appErrors "github.com/sklapp/skl-api/pkg/errors"
	"github.com/sklapp/skl-api/pkg/response"
)

// CertificateHandler streams rendered SKL documents.
type CertificateHandler struct {
	certs *service.CertificateService
}

// NewCertificateHandler constructs CertificateHandler.
func NewCertificateHandler(certs *service.CertificateService) *CertificateHandler {
	return &CertificateHandler{certs: certs}
}

// Preview godoc
// @Summary Preview certificate data
// @Description Return the assembled document model without rendering
// @Tags Certificates
// @Produce json
// @Param id path int true "Student ID"
// @Param showGrades query bool false "Include the grade table"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/certificate/preview [get]
func (h *CertificateHandler) Preview(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid student id"))
		return
	}
	opts := models.CertificateOptions{ShowGrades: c.Query("showGrades") == "true"}
	cert, err := h.certs.Assemble(c.Request.Context(), id, opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cert, nil)
}

// Download godoc
// @Summary Download certificate PDF
// @Description Render and stream the SKL document for a verified student
// @Tags Certificates
// @Produce application/pdf
// @Param id path int true "Student ID"
// @Param showGrades query bool false "Include the grade table"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/certificate [get]
func (h *CertificateHandler) Download(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid student id"))
		return
	}
	opts := models.CertificateOptions{ShowGrades: c.Query("showGrades") == "true"}
	filename, data, err := h.certs.Download(c.Request.Context(), id, opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/pdf", data)
}
