package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinsync/air-submit-api/internal/dto"
	"github.com/clinsync/air-submit-api/internal/service"
	appErrors "github.com/clinsync/air-submit-api/pkg/errors"
	"github.com/clinsync/air-submit-api/pkg/response"
)

type reportService interface {
	Generate(ctx context.Context, submissionID, format string) (*dto.ReportLinkResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.ReportDownload, error)
}

// ReportHandler serves outcome report generation and download endpoints.
type ReportHandler struct {
	service reportService
}

// NewReportHandler constructs the handler.
func NewReportHandler(service reportService) *ReportHandler {
	return &ReportHandler{service: service}
}

// Generate godoc
// @Summary Generate an outcome report for a finished submission
// @Tags Reports
// @Produce json
// @Param id path string true "Submission ID"
// @Param format query string false "Report format (csv or pdf)" default(csv)
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/report [get]
func (h *ReportHandler) Generate(c *gin.Context) {
	link, err := h.service.Generate(c.Request.Context(), c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link)
}

// Download godoc
// @Summary Download a generated report via signed token
// @Tags Reports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Router /reports/download/{token} [get]
func (h *ReportHandler) Download(c *gin.Context) {
	result, err := h.service.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck

	info, err := result.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "report file unreadable"))
		return
	}

	mimeType := "text/csv"
	if result.Format == service.ReportFormatPDF {
		mimeType = "application/pdf"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), mimeType, result.File, nil)
}
