package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fleet-presence-api/internal/models"
	"github.com/noah-isme/fleet-presence-api/internal/service"
	appErrors "github.com/noah-isme/fleet-presence-api/pkg/errors"
	"github.com/noah-isme/fleet-presence-api/pkg/response"
)

// ExportHandler serves attendance report downloads.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Export godoc
// @Summary Export attendance report
// @Description Render the ledger for a period as CSV or PDF
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Param period query string false "today|week|month|all" default(today)
// @Param format query string false "csv|pdf" default(csv)
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/export [get]
func (h *ExportHandler) Export(c *gin.Context) {
	period := models.ReportPeriod(strings.ToLower(c.DefaultQuery("period", "today")))
	format := models.ReportFormat(strings.ToLower(c.DefaultQuery("format", "csv")))

	result, err := h.exports.Generate(c.Request.Context(), period, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	if result.DownloadToken != "" {
		c.Header("X-Download-Token", result.DownloadToken)
		c.Header("X-Download-Expires", result.ExpiresAt.UTC().Format(http.TimeFormat))
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Data(http.StatusOK, result.ContentType, result.Payload)
}

// Download godoc
// @Summary Download archived export
// @Description Retrieve a previously generated report via its signed token
// @Tags Reports
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/export/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	file, filename, err := h.exports.OpenArchive(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read archive"))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.DataFromReader(http.StatusOK, info.Size(), "application/octet-stream", file, nil)
}
