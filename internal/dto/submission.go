package dto

import (
	"time"

	"github.com/clinsync/air-submit-api/internal/models"
)

// SubmissionRequest captures POST /submissions payload. The same shape feeds
// POST /submissions/validate.
type SubmissionRequest struct {
	InformationProvider string          `json:"informationProvider" binding:"required"`
	Records             []models.Record `json:"records" binding:"required,min=1"`
}

// ValidationReport is the outcome of a dry-run validation pass.
type ValidationReport struct {
	Valid        bool                     `json:"valid"`
	RecordCount  int                      `json:"recordCount"`
	InvalidRows  int                      `json:"invalidRows"`
	Errors       []models.ValidationError `json:"errors,omitempty"`
	BatchPreview *BatchPreview            `json:"batchPreview,omitempty"`
}

// BatchPreview summarizes how records would be grouped without submitting.
type BatchPreview struct {
	Batches     int `json:"batches"`
	Encounters  int `json:"encounters"`
	Individuals int `json:"individuals"`
}

// SubmissionResponse is returned after enqueueing a submission.
type SubmissionResponse struct {
	ID              string                  `json:"id"`
	Status          models.SubmissionStatus `json:"status"`
	TotalBatches    int                     `json:"totalBatches"`
	TotalEncounters int                     `json:"totalEncounters"`
}

// ProgressResponse exposes submission progress metadata.
type ProgressResponse struct {
	ID                  string                  `json:"id"`
	Status              models.SubmissionStatus `json:"status"`
	TotalBatches        int                     `json:"totalBatches"`
	ProcessedBatches    int                     `json:"processedBatches"`
	TotalEncounters     int                     `json:"totalEncounters"`
	Successful          int                     `json:"successful"`
	Failed              int                     `json:"failed"`
	PendingConfirmation int                     `json:"pendingConfirmation"`
	Results             models.ResultList       `json:"results,omitempty"`
	Error               *string                 `json:"error,omitempty"`
	CreatedAt           time.Time               `json:"createdAt"`
	CompletedAt         *time.Time              `json:"completedAt,omitempty"`
}

// PendingRecord is one encounter awaiting confirmation or correction.
// ClaimID is the opaque register token the confirmation round-trip needs.
type PendingRecord struct {
	Index      int                 `json:"index"`
	RowNumbers []int               `json:"rowNumbers"`
	Status     models.ResultStatus `json:"status"`
	Code       string              `json:"code,omitempty"`
	Message    string              `json:"message,omitempty"`
	ClaimID    string              `json:"claimId,omitempty"`
}

// ConfirmResult is the outcome of one confirm or resubmit round-trip.
type ConfirmResult struct {
	Index      int                   `json:"index"`
	Status     models.ResultStatus   `json:"status"`
	Action     models.FollowUpAction `json:"action"`
	StatusCode string                `json:"statusCode"`
	Message    string                `json:"message"`
	Resolved   bool                  `json:"resolved"`
}

// ConfirmAllResponse aggregates a bulk confirmation pass. Individual failures
// never abort the pass; each outcome is reported independently.
type ConfirmAllResponse struct {
	Confirmed int             `json:"confirmed"`
	Failed    int             `json:"failed"`
	Results   []ConfirmResult `json:"results"`
}

// ResubmitRequest carries a corrected record for one pending encounter.
type ResubmitRequest struct {
	Record models.Record `json:"record" binding:"required"`
}

// ReportLinkResponse is returned when an outcome report is generated.
type ReportLinkResponse struct {
	URL       string    `json:"url"`
	Format    string    `json:"format"`
	ExpiresAt time.Time `json:"expiresAt"`
}
