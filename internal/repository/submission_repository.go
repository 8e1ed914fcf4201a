package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clinsync/air-submit-api/internal/models"
)

const submissionColumns = `id, status, correlation_id, information_provider, batches, results,
total_batches, processed_batches, total_encounters, successful, failed, pending_confirmation,
error_message, created_by, created_at, completed_at`

// SubmissionRepository persists submissions and their stored wire payloads.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create inserts a new submission row with generated defaults.
func (r *SubmissionRepository) Create(ctx context.Context, sub *models.Submission) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CorrelationID == "" {
		sub.CorrelationID = uuid.NewString()
	}
	if sub.Status == "" {
		sub.Status = models.SubmissionStatusQueued
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO submissions (id, status, correlation_id, information_provider, batches, results,
total_batches, processed_batches, total_encounters, successful, failed, pending_confirmation,
error_message, created_by, created_at, completed_at)
VALUES (:id, :status, :correlation_id, :information_provider, :batches, :results,
:total_batches, :processed_batches, :total_encounters, :successful, :failed, :pending_confirmation,
:error_message, :created_by, :created_at, :completed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, sub); err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// GetByID returns a submission row by its identifier.
func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`
	var sub models.Submission
	if err := r.db.GetContext(ctx, &sub, query, id); err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return &sub, nil
}

// List returns submissions in reverse chronological order.
func (r *SubmissionRepository) List(ctx context.Context, limit, offset int) ([]models.Submission, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + submissionColumns + ` FROM submissions ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	var subs []models.Submission
	if err := r.db.SelectContext(ctx, &subs, query, limit, offset); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return subs, nil
}

// ListUnfinished fetches submissions interrupted mid-flight (used for cold
// start recovery).
func (r *SubmissionRepository) ListUnfinished(ctx context.Context) ([]models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE status IN ('QUEUED', 'RUNNING') ORDER BY created_at ASC`
	var subs []models.Submission
	if err := r.db.SelectContext(ctx, &subs, query); err != nil {
		return nil, fmt.Errorf("list unfinished submissions: %w", err)
	}
	return subs, nil
}

// UpdateSubmissionParams defines the mutable fields.
type UpdateSubmissionParams struct {
	Status              *models.SubmissionStatus
	ProcessedBatches    *int
	Successful          *int
	Failed              *int
	PendingConfirmation *int
	Results             *models.ResultList
	ErrorMessage        *string
	CompletedAt         *time.Time
}

// Update persists the provided changes for a submission row.
func (r *SubmissionRepository) Update(ctx context.Context, id string, params UpdateSubmissionParams) error {
	set := make([]string, 0, 8)
	args := make([]interface{}, 0, 9)
	argPos := 1

	if params.Status != nil {
		set = append(set, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *params.Status)
		argPos++
	}
	if params.ProcessedBatches != nil {
		set = append(set, fmt.Sprintf("processed_batches = $%d", argPos))
		args = append(args, *params.ProcessedBatches)
		argPos++
	}
	if params.Successful != nil {
		set = append(set, fmt.Sprintf("successful = $%d", argPos))
		args = append(args, *params.Successful)
		argPos++
	}
	if params.Failed != nil {
		set = append(set, fmt.Sprintf("failed = $%d", argPos))
		args = append(args, *params.Failed)
		argPos++
	}
	if params.PendingConfirmation != nil {
		set = append(set, fmt.Sprintf("pending_confirmation = $%d", argPos))
		args = append(args, *params.PendingConfirmation)
		argPos++
	}
	if params.Results != nil {
		set = append(set, fmt.Sprintf("results = $%d", argPos))
		args = append(args, *params.Results)
		argPos++
	}
	if params.ErrorMessage != nil {
		set = append(set, fmt.Sprintf("error_message = $%d", argPos))
		args = append(args, *params.ErrorMessage)
		argPos++
	}
	if params.CompletedAt != nil {
		set = append(set, fmt.Sprintf("completed_at = $%d", argPos))
		args = append(args, *params.CompletedAt)
		argPos++
	}

	if len(set) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE submissions SET %s WHERE id = $%d", strings.Join(set, ", "), argPos)
	args = append(args, id)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	return nil
}

// EncounterKey derives the payload key for an encounter by its global
// position within the submission. Zero padding keeps lexical and numeric
// ordering aligned.
func EncounterKey(index int) string {
	return fmt.Sprintf("%04d", index)
}

// SavePayload stores one wire payload (request or response) for an encounter,
// replacing any earlier payload of the same kind.
func (r *SubmissionRepository) SavePayload(ctx context.Context, submissionID string, index int, kind models.PayloadKind, payload []byte) error {
	const query = `INSERT INTO submission_payloads (submission_id, encounter_key, kind, payload, stored_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (submission_id, encounter_key, kind) DO UPDATE SET payload = EXCLUDED.payload, stored_at = EXCLUDED.stored_at`
	if _, err := r.db.ExecContext(ctx, query, submissionID, EncounterKey(index), kind, payload, time.Now().UTC()); err != nil {
		return fmt.Errorf("save %s payload: %w", kind, err)
	}
	return nil
}

// GetPayload returns the stored payload bytes for an encounter, verbatim.
func (r *SubmissionRepository) GetPayload(ctx context.Context, submissionID string, index int, kind models.PayloadKind) ([]byte, error) {
	const query = `SELECT payload FROM submission_payloads WHERE submission_id = $1 AND encounter_key = $2 AND kind = $3`
	var payload []byte
	if err := r.db.GetContext(ctx, &payload, query, submissionID, EncounterKey(index), kind); err != nil {
		return nil, fmt.Errorf("get %s payload: %w", kind, err)
	}
	return payload, nil
}
