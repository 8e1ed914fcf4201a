package handler

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/clinsync/air-submit-api/internal/dto"
	"github.com/clinsync/air-submit-api/internal/service"
	appErrors "github.com/clinsync/air-submit-api/pkg/errors"
)

type reportServiceMock struct {
	link        *dto.ReportLinkResponse
	linkErr     error
	download    *service.ReportDownload
	downloadErr error
	lastFormat  string
}

func (m *reportServiceMock) Generate(ctx context.Context, submissionID, format string) (*dto.ReportLinkResponse, error) {
	m.lastFormat = format
	return m.link, m.linkErr
}

func (m *reportServiceMock) ResolveDownload(ctx context.Context, token string) (*service.ReportDownload, error) {
	return m.download, m.downloadErr
}

func TestReportHandlerGenerate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{
		link: &dto.ReportLinkResponse{URL: "/api/v1/reports/download/tok", Format: service.ReportFormatCSV, ExpiresAt: time.Now().Add(time.Hour)},
	}
	handler := NewReportHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/submissions/sub-1/report?format=csv", nil)
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}
	handler.Generate(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "csv", mockSvc.lastFormat)
	require.Contains(t, w.Body.String(), "/reports/download/tok")
}

func TestReportHandlerGenerateStillProcessing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{
		linkErr: appErrors.Clone(appErrors.ErrConflict, "submission is still processing"),
	}
	handler := NewReportHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/submissions/sub-1/report", nil)
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}
	handler.Generate(c)

	require.Equal(t, http.StatusConflict, w.Code)
}

func TestReportHandlerDownloadStreamsFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	file, err := os.CreateTemp("", "outcomes*.csv")
	require.NoError(t, err)
	defer os.Remove(file.Name())
	_, _ = file.WriteString("index,rows,status\n0,1,SUCCESS\n")
	_, _ = file.Seek(0, 0)

	mockSvc := &reportServiceMock{
		download: &service.ReportDownload{
			File:      file,
			Filename:  "sub-1-outcomes.csv",
			Format:    service.ReportFormatCSV,
			ExpiresAt: time.Now().Add(time.Hour),
		},
	}
	handler := NewReportHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/reports/download/tok", nil)
	c.Params = gin.Params{{Key: "token", Value: "tok"}}
	handler.Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Disposition"), "sub-1-outcomes.csv")
	require.Contains(t, w.Body.String(), "SUCCESS")
}

func TestReportHandlerDownloadExpiredToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{downloadErr: appErrors.Clone(appErrors.ErrForbidden, "download link expired")}
	handler := NewReportHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/reports/download/expired", nil)
	c.Params = gin.Params{{Key: "token", Value: "expired"}}
	handler.Download(c)

	require.Equal(t, http.StatusForbidden, w.Code)
}
