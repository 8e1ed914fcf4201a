package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SubmissionStatus captures the submission lifecycle. Transitions:
// QUEUED -> RUNNING -> (PAUSED <-> RUNNING) -> COMPLETED | ERROR.
type SubmissionStatus string

const (
	SubmissionStatusQueued    SubmissionStatus = "QUEUED"
	SubmissionStatusRunning   SubmissionStatus = "RUNNING"
	SubmissionStatusPaused    SubmissionStatus = "PAUSED"
	SubmissionStatusCompleted SubmissionStatus = "COMPLETED"
	SubmissionStatusError     SubmissionStatus = "ERROR"
)

// ResultStatus classifies a register response.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "SUCCESS"
	ResultWarning ResultStatus = "WARNING"
	ResultError   ResultStatus = "ERROR"
)

// FollowUpAction is what the caller must do next for a record.
type FollowUpAction string

const (
	ActionNone             FollowUpAction = "NONE"
	ActionConfirmOrCorrect FollowUpAction = "CONFIRM_OR_CORRECT"
)

// PayloadKind distinguishes stored wire payloads.
type PayloadKind string

const (
	PayloadRequest  PayloadKind = "request"
	PayloadResponse PayloadKind = "response"
)

// Submission is a run over one or more batches.
type Submission struct {
	ID                  string           `db:"id" json:"id"`
	Status              SubmissionStatus `db:"status" json:"status"`
	CorrelationID       string           `db:"correlation_id" json:"correlationId"`
	InformationProvider string           `db:"information_provider" json:"informationProvider"`
	Batches             BatchList        `db:"batches" json:"batches"`
	Results             ResultList       `db:"results" json:"results"`
	TotalBatches        int              `db:"total_batches" json:"totalBatches"`
	ProcessedBatches    int              `db:"processed_batches" json:"processedBatches"`
	TotalEncounters     int              `db:"total_encounters" json:"totalEncounters"`
	Successful          int              `db:"successful" json:"successful"`
	Failed              int              `db:"failed" json:"failed"`
	PendingConfirmation int              `db:"pending_confirmation" json:"pendingConfirmation"`
	ErrorMessage        *string          `db:"error_message" json:"errorMessage,omitempty"`
	CreatedBy           string           `db:"created_by" json:"createdBy"`
	CreatedAt           time.Time        `db:"created_at" json:"createdAt"`
	CompletedAt         *time.Time       `db:"completed_at" json:"completedAt,omitempty"`
}

// EpisodeOutcome is one episode's classified result.
type EpisodeOutcome struct {
	EpisodeID int          `json:"episodeId"`
	Status    ResultStatus `json:"status"`
	Code      string       `json:"code,omitempty"`
	Message   string       `json:"message,omitempty"`
}

// EncounterOutcome is one encounter's classified result. Message carries the
// register's text byte-for-byte; it must never be trimmed or re-encoded.
// Index is the encounter's global position within the submission and keys the
// stored request/response payloads. Resolved is set once a confirm or
// resubmit settles the record.
type EncounterOutcome struct {
	EncounterID int              `json:"encounterId"`
	Index       int              `json:"index"`
	RowNumbers  []int            `json:"rowNumbers"`
	Status      ResultStatus     `json:"status"`
	Action      FollowUpAction   `json:"action"`
	Code        string           `json:"code,omitempty"`
	Message     string           `json:"message,omitempty"`
	Episodes    []EpisodeOutcome `json:"episodes,omitempty"`
	Resolved    bool             `json:"resolved,omitempty"`
}

// FieldError is a register-reported error against a request field.
type FieldError struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// RecordResult is the normalized outcome of one register call (one batch, or
// one record on the confirm/resubmit path). Message is verbatim.
type RecordResult struct {
	Status              ResultStatus       `json:"status"`
	Action              FollowUpAction     `json:"action"`
	StatusCode          string             `json:"statusCode"`
	Message             string             `json:"message"`
	ClaimID             string             `json:"claimId,omitempty"`
	ClaimSequenceNumber int                `json:"claimSequenceNumber,omitempty"`
	Encounters          []EncounterOutcome `json:"encounters"`
	Errors              []FieldError       `json:"errors,omitempty"`
}

// BatchList persists grouped batches as JSONB.
type BatchList []Batch

// Value marshals the batch list for persistence.
func (l BatchList) Value() (driver.Value, error) {
	if l == nil {
		l = BatchList{}
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshal batches: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the batch list.
func (l *BatchList) Scan(value interface{}) error {
	return scanJSON(value, l, "BatchList")
}

// ResultList persists per-batch results as JSONB.
type ResultList []RecordResult

// Value marshals the result list for persistence.
func (l ResultList) Value() (driver.Value, error) {
	if l == nil {
		l = ResultList{}
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshal results: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the result list.
func (l *ResultList) Scan(value interface{}) error {
	return scanJSON(value, l, "ResultList")
}

func scanJSON(value, target interface{}, name string) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for %s", value, name)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return nil
}
