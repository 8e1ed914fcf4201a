package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clinsync/air-submit-api/internal/dto"
	"github.com/clinsync/air-submit-api/internal/models"
	appErrors "github.com/clinsync/air-submit-api/pkg/errors"
	"github.com/clinsync/air-submit-api/pkg/export"
	"github.com/clinsync/air-submit-api/pkg/storage"
)

// Report formats accepted by the outcome export endpoint.
const (
	ReportFormatCSV = "csv"
	ReportFormatPDF = "pdf"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ReportConfig tunes outcome report generation.
type ReportConfig struct {
	APIPrefix string
}

// ReportDownload aggregates resolved download data.
type ReportDownload struct {
	File      *os.File
	Filename  string
	Format    string
	ExpiresAt time.Time
}

// ReportService renders per-record outcome reports for a finished submission
// and serves them through signed download links. Register messages appear in
// the report exactly as stored.
type ReportService struct {
	repo    submissionStore
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ReportConfig
}

// NewReportService constructs the report service.
func NewReportService(repo submissionStore, files fileStorage, signer *storage.SignedURLSigner, cfg ReportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ReportService{
		repo:    repo,
		storage: files,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// Generate renders the outcome report and returns a signed download link.
// Reports are only available once a submission has stopped changing.
func (s *ReportService) Generate(ctx context.Context, submissionID, format string) (*dto.ReportLinkResponse, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ReportFormatCSV
	}
	if format != ReportFormatCSV && format != ReportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	sub, err := loadSubmission(ctx, s.repo, submissionID)
	if err != nil {
		return nil, err
	}
	switch sub.Status {
	case models.SubmissionStatusCompleted, models.SubmissionStatusError, models.SubmissionStatusPaused:
	default:
		return nil, appErrors.Clone(appErrors.ErrConflict, "submission is still processing")
	}

	dataset := outcomeDataset(sub)

	var rendered []byte
	switch format {
	case ReportFormatCSV:
		rendered, err = s.csv.Render(dataset)
	case ReportFormatPDF:
		rendered, err = s.pdf.Render(dataset, fmt.Sprintf("Submission %s outcomes", sub.ID))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render outcome report")
	}

	relPath := fmt.Sprintf("%s-outcomes.%s", sub.ID, format)
	if _, err := s.storage.Save(relPath, rendered); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store outcome report")
	}

	token, expiresAt, err := s.signer.Generate(sub.ID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}

	return &dto.ReportLinkResponse{
		URL:       fmt.Sprintf("%s/reports/download/%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token),
		Format:    format,
		ExpiresAt: expiresAt,
	}, nil
}

// ResolveDownload validates a token and opens the stored report file.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	submissionID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	if _, err := loadSubmission(ctx, s.repo, submissionID); err != nil {
		return nil, err
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open report file")
	}
	format := strings.TrimPrefix(filepath.Ext(relPath), ".")
	return &ReportDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		Format:    format,
		ExpiresAt: expiresAt,
	}, nil
}

// outcomeDataset flattens classified results into one row per encounter.
func outcomeDataset(sub *models.Submission) export.Dataset {
	dataset := export.Dataset{
		Headers: []string{"index", "rows", "status", "action", "code", "message", "claim_id", "resolved"},
	}
	for _, result := range sub.Results {
		for _, enc := range result.Encounters {
			rows := make([]string, 0, len(enc.RowNumbers))
			for _, r := range enc.RowNumbers {
				rows = append(rows, strconv.Itoa(r))
			}
			dataset.Rows = append(dataset.Rows, map[string]string{
				"index":    strconv.Itoa(enc.Index),
				"rows":     strings.Join(rows, " "),
				"status":   string(enc.Status),
				"action":   string(enc.Action),
				"code":     enc.Code,
				"message":  enc.Message,
				"claim_id": result.ClaimID,
				"resolved": strconv.FormatBool(enc.Resolved),
			})
		}
	}
	return dataset
}
