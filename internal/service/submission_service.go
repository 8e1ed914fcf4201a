package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/clinsync/air-submit-api/internal/air"
	"github.com/clinsync/air-submit-api/internal/dto"
	"github.com/clinsync/air-submit-api/internal/grouping"
	"github.com/clinsync/air-submit-api/internal/models"
	"github.com/clinsync/air-submit-api/internal/repository"
	"github.com/clinsync/air-submit-api/internal/validation"
	appErrors "github.com/clinsync/air-submit-api/pkg/errors"
	"github.com/clinsync/air-submit-api/pkg/jobs"
)

const submissionJobType = "submission"

type submissionStore interface {
	Create(ctx context.Context, sub *models.Submission) error
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	List(ctx context.Context, limit, offset int) ([]models.Submission, error)
	ListUnfinished(ctx context.Context) ([]models.Submission, error)
	Update(ctx context.Context, id string, params repository.UpdateSubmissionParams) error
	SavePayload(ctx context.Context, submissionID string, index int, kind models.PayloadKind, payload []byte) error
	GetPayload(ctx context.Context, submissionID string, index int, kind models.PayloadKind) ([]byte, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type registryClient interface {
	SubmitEncounter(ctx context.Context, req *air.EncounterRequest, hdr air.RequestHeaders) (*air.EncounterResponse, []byte, error)
}

type progressCache interface {
	GetProgress(ctx context.Context, id string) (*dto.ProgressResponse, bool)
	SetProgress(ctx context.Context, progress *dto.ProgressResponse)
	Invalidate(ctx context.Context, id string)
}

type submissionMetrics interface {
	ObserveSubmission(status models.SubmissionStatus)
	ObserveEncounter(status models.ResultStatus)
}

// SubmissionService owns the submission lifecycle: validation, grouping,
// persistence, background processing against the register, pause and resume.
type SubmissionService struct {
	repo     submissionStore
	queue    jobDispatcher
	registry registryClient
	cache    progressCache
	metrics  submissionMetrics
	validate *validator.Validate
	logger   *zap.Logger

	mu     sync.Mutex
	paused map[string]bool
	active map[string]bool
}

// NewSubmissionService constructs the submission service. Cache and metrics
// may be nil.
func NewSubmissionService(repo submissionStore, queue jobDispatcher, registry registryClient, cache progressCache, metrics submissionMetrics, logger *zap.Logger) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{
		repo:     repo,
		queue:    queue,
		registry: registry,
		cache:    cache,
		metrics:  metrics,
		validate: validator.New(),
		logger:   logger,
		paused:   make(map[string]bool),
		active:   make(map[string]bool),
	}
}

// ValidateRecords runs the full rule set over every record without touching
// the register. A preview of the resulting batches is included when all
// records pass.
func (s *SubmissionService) ValidateRecords(req dto.SubmissionRequest) *dto.ValidationReport {
	report := &dto.ValidationReport{RecordCount: len(req.Records)}

	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				report.Errors = append(report.Errors, models.ValidationError{
					Field:   fe.Field(),
					Code:    validation.CodeFieldRequired,
					Message: fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()),
				})
			}
		}
	}

	if req.InformationProvider != "" && !validation.ValidProviderNumber(req.InformationProvider) {
		report.Errors = append(report.Errors, models.ValidationError{
			Field:   "informationProvider",
			Code:    validation.CodeProviderInvalid,
			Message: "information provider number failed its check digit",
			Value:   req.InformationProvider,
		})
	}

	invalidRows := make(map[int]bool)
	for _, rec := range req.Records {
		errs := validation.Validate(rec)
		if len(errs) > 0 {
			invalidRows[rec.RowNumber] = true
			report.Errors = append(report.Errors, errs...)
		}
	}
	report.InvalidRows = len(invalidRows)
	report.Valid = len(report.Errors) == 0

	if report.Valid {
		batches := grouping.Group(req.Records)
		individuals := make(map[string]bool)
		for _, rec := range req.Records {
			individuals[grouping.IndividualKey(rec)] = true
		}
		encounters := 0
		for _, b := range batches {
			encounters += b.EncounterCount()
		}
		report.BatchPreview = &dto.BatchPreview{
			Batches:     len(batches),
			Encounters:  encounters,
			Individuals: len(individuals),
		}
	}
	return report
}

// Create validates and groups the records, persists the submission and hands
// it to the background queue. Validation failures abort before anything is
// stored; the report carries every error.
func (s *SubmissionService) Create(ctx context.Context, req dto.SubmissionRequest, actorID string) (*dto.SubmissionResponse, *dto.ValidationReport, error) {
	report := s.ValidateRecords(req)
	if !report.Valid {
		return nil, report, appErrors.ErrValidation
	}

	batches := grouping.Group(req.Records)
	encounters := 0
	for _, b := range batches {
		encounters += b.EncounterCount()
	}

	sub := &models.Submission{
		Status:              models.SubmissionStatusQueued,
		InformationProvider: req.InformationProvider,
		Batches:             batches,
		Results:             models.ResultList{},
		TotalBatches:        len(batches),
		TotalEncounters:     encounters,
		CreatedBy:           actorID,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create submission")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: sub.ID, Type: submissionJobType}); err != nil {
		status := models.SubmissionStatusError
		msg := "failed to enqueue submission"
		now := time.Now().UTC()
		_ = s.repo.Update(ctx, sub.ID, repository.UpdateSubmissionParams{
			Status:       &status,
			ErrorMessage: &msg,
			CompletedAt:  &now,
		})
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue submission")
	}

	return &dto.SubmissionResponse{
		ID:              sub.ID,
		Status:          sub.Status,
		TotalBatches:    sub.TotalBatches,
		TotalEncounters: sub.TotalEncounters,
	}, report, nil
}

// Progress reports submission state, serving from the cache when possible.
func (s *SubmissionService) Progress(ctx context.Context, id string) (*dto.ProgressResponse, error) {
	if s.cache != nil {
		if cached, ok := s.cache.GetProgress(ctx, id); ok {
			return cached, nil
		}
	}
	sub, err := s.loadSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	progress := progressFrom(sub)
	if s.cache != nil {
		s.cache.SetProgress(ctx, progress)
	}
	return progress, nil
}

// List returns recent submissions as progress snapshots.
func (s *SubmissionService) List(ctx context.Context, limit, offset int) ([]dto.ProgressResponse, error) {
	subs, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	out := make([]dto.ProgressResponse, 0, len(subs))
	for i := range subs {
		p := progressFrom(&subs[i])
		p.Results = nil
		out = append(out, *p)
	}
	return out, nil
}

// Pause requests a cooperative stop. The worker honours it at the next batch
// boundary; the batch in flight always completes and is persisted first.
func (s *SubmissionService) Pause(ctx context.Context, id string) (*dto.ProgressResponse, error) {
	sub, err := s.loadSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	switch sub.Status {
	case models.SubmissionStatusQueued, models.SubmissionStatusRunning:
	default:
		return nil, appErrors.ErrNotRunning
	}

	s.mu.Lock()
	s.paused[id] = true
	s.mu.Unlock()

	status := models.SubmissionStatusPaused
	if err := s.repo.Update(ctx, id, repository.UpdateSubmissionParams{Status: &status}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to pause submission")
	}
	s.invalidate(ctx, id)

	sub.Status = status
	return progressFrom(sub), nil
}

// Resume clears the pause flag and re-queues the submission. Processing picks
// up at the first unprocessed batch.
func (s *SubmissionService) Resume(ctx context.Context, id string) (*dto.ProgressResponse, error) {
	sub, err := s.loadSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.SubmissionStatusPaused {
		return nil, appErrors.ErrNotPaused
	}

	s.mu.Lock()
	delete(s.paused, id)
	stillActive := s.active[id]
	s.mu.Unlock()

	status := models.SubmissionStatusRunning
	if err := s.repo.Update(ctx, id, repository.UpdateSubmissionParams{Status: &status}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resume submission")
	}
	s.invalidate(ctx, id)

	// A worker that never observed the pause flag keeps going on its own;
	// only enqueue a fresh job when nothing is processing this submission.
	if !stillActive {
		if err := s.queue.Enqueue(jobs.Job{ID: id, Type: submissionJobType}); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue submission")
		}
	}

	sub.Status = status
	return progressFrom(sub), nil
}

// Pending lists the encounters still awaiting confirmation or correction.
func (s *SubmissionService) Pending(ctx context.Context, id string) ([]dto.PendingRecord, error) {
	sub, err := s.loadSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	var pending []dto.PendingRecord
	for _, result := range sub.Results {
		for _, enc := range result.Encounters {
			if enc.Action != models.ActionConfirmOrCorrect || enc.Resolved {
				continue
			}
			pending = append(pending, dto.PendingRecord{
				Index:      enc.Index,
				RowNumbers: enc.RowNumbers,
				Status:     enc.Status,
				Code:       enc.Code,
				Message:    enc.Message,
				ClaimID:    result.ClaimID,
			})
		}
	}
	return pending, nil
}

// RecoverUnfinished re-queues submissions left QUEUED or RUNNING by a prior
// process. Called once on startup, before traffic is accepted.
func (s *SubmissionService) RecoverUnfinished(ctx context.Context) error {
	subs, err := s.repo.ListUnfinished(ctx)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if sub.Status == models.SubmissionStatusRunning {
			status := models.SubmissionStatusQueued
			if err := s.repo.Update(ctx, sub.ID, repository.UpdateSubmissionParams{Status: &status}); err != nil {
				return err
			}
		}
		if err := s.queue.Enqueue(jobs.Job{ID: sub.ID, Type: submissionJobType}); err != nil {
			return err
		}
		s.logger.Sugar().Infow("recovered interrupted submission",
			"submission_id", sub.ID, "processed_batches", sub.ProcessedBatches, "total_batches", sub.TotalBatches)
	}
	return nil
}

// HandleJob is the queue handler: it drives one submission through its
// remaining batches sequentially, persisting after every batch.
func (s *SubmissionService) HandleJob(ctx context.Context, job jobs.Job) error {
	id := job.ID

	s.mu.Lock()
	if s.active[id] {
		s.mu.Unlock()
		s.logger.Sugar().Warnw("submission already being processed", "submission_id", id)
		return nil
	}
	s.active[id] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.active, id)
		s.mu.Unlock()
	}()

	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load submission %s: %w", id, err)
	}
	switch sub.Status {
	case models.SubmissionStatusCompleted, models.SubmissionStatusError:
		return nil
	case models.SubmissionStatusPaused:
		if s.pauseRequested(id) {
			return nil
		}
	}

	status := models.SubmissionStatusRunning
	if err := s.repo.Update(ctx, id, repository.UpdateSubmissionParams{Status: &status}); err != nil {
		return fmt.Errorf("mark submission running: %w", err)
	}
	sub.Status = status

	return s.run(ctx, sub)
}

func (s *SubmissionService) run(ctx context.Context, sub *models.Submission) error {
	results := sub.Results
	successful := sub.Successful
	failed := sub.Failed
	pending := sub.PendingConfirmation
	offset := encounterOffset(sub.Batches, sub.ProcessedBatches)

	for i := sub.ProcessedBatches; i < len(sub.Batches); i++ {
		if s.pauseRequested(sub.ID) {
			state := models.SubmissionStatusPaused
			if err := s.repo.Update(ctx, sub.ID, repository.UpdateSubmissionParams{Status: &state}); err != nil {
				return fmt.Errorf("persist paused state: %w", err)
			}
			s.invalidate(ctx, sub.ID)
			s.logger.Sugar().Infow("submission paused", "submission_id", sub.ID, "processed_batches", i)
			return nil
		}

		batch := sub.Batches[i]
		result, err := s.submitBatch(ctx, sub, batch, offset)
		if err != nil {
			return s.fail(ctx, sub, i, err)
		}

		for _, enc := range result.Encounters {
			switch {
			case enc.Action == models.ActionConfirmOrCorrect:
				pending++
			case enc.Status == models.ResultError:
				failed++
			default:
				successful++
			}
			if s.metrics != nil {
				s.metrics.ObserveEncounter(enc.Status)
			}
		}
		results = append(results, *result)
		offset += batch.EncounterCount()

		processed := i + 1
		if err := s.repo.Update(ctx, sub.ID, repository.UpdateSubmissionParams{
			ProcessedBatches:    &processed,
			Successful:          &successful,
			Failed:              &failed,
			PendingConfirmation: &pending,
			Results:             &results,
		}); err != nil {
			return fmt.Errorf("persist batch result: %w", err)
		}

		sub.ProcessedBatches = processed
		sub.Successful = successful
		sub.Failed = failed
		sub.PendingConfirmation = pending
		sub.Results = results
		s.cacheProgress(ctx, sub)
	}

	// A pause requested during the final batch has nothing left to skip.
	s.clearPause(sub.ID)

	status := models.SubmissionStatusCompleted
	now := time.Now().UTC()
	if err := s.repo.Update(ctx, sub.ID, repository.UpdateSubmissionParams{Status: &status, CompletedAt: &now}); err != nil {
		return fmt.Errorf("complete submission: %w", err)
	}
	sub.Status = status
	sub.CompletedAt = &now
	s.cacheProgress(ctx, sub)
	if s.metrics != nil {
		s.metrics.ObserveSubmission(status)
	}
	s.logger.Sugar().Infow("submission completed",
		"submission_id", sub.ID, "batches", sub.TotalBatches,
		"successful", successful, "failed", failed, "pending_confirmation", pending)
	return nil
}

// submitBatch performs one register round-trip: build the payload, store it,
// call the register, store the verbatim response, classify.
func (s *SubmissionService) submitBatch(ctx context.Context, sub *models.Submission, batch models.Batch, offset int) (*models.RecordResult, error) {
	req, err := air.BuildRequest(batch, sub.InformationProvider)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	subjectDOB, err := air.SubjectDOB(batch.Individual.DateOfBirth)
	if err != nil {
		return nil, fmt.Errorf("subject date of birth: %w", err)
	}

	reqPayload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request payload: %w", err)
	}
	for j := range batch.Encounters {
		if err := s.repo.SavePayload(ctx, sub.ID, offset+j, models.PayloadRequest, reqPayload); err != nil {
			return nil, err
		}
	}

	resp, raw, err := s.registry.SubmitEncounter(ctx, req, air.RequestHeaders{
		CorrelationID: sub.CorrelationID,
		SubjectDOB:    subjectDOB,
	})
	if err != nil {
		return nil, err
	}

	for j := range batch.Encounters {
		if err := s.repo.SavePayload(ctx, sub.ID, offset+j, models.PayloadResponse, raw); err != nil {
			return nil, err
		}
	}

	result := air.Classify(resp, req)
	for j := range result.Encounters {
		result.Encounters[j].Index = offset + j
		if j < len(batch.Encounters) {
			result.Encounters[j].RowNumbers = batch.Encounters[j].RowNumbers
		}
	}
	return &result, nil
}

// fail marks the submission terminally failed. A transport-level failure
// poisons the rest of the run: later batches are never attempted.
func (s *SubmissionService) fail(ctx context.Context, sub *models.Submission, batchIndex int, cause error) error {
	s.clearPause(sub.ID)
	status := models.SubmissionStatusError
	msg := cause.Error()
	now := time.Now().UTC()
	if err := s.repo.Update(ctx, sub.ID, repository.UpdateSubmissionParams{
		Status:       &status,
		ErrorMessage: &msg,
		CompletedAt:  &now,
	}); err != nil {
		s.logger.Sugar().Errorw("failed to persist submission error", "submission_id", sub.ID, "error", err)
	}
	s.invalidate(ctx, sub.ID)
	if s.metrics != nil {
		s.metrics.ObserveSubmission(status)
	}
	s.logger.Sugar().Errorw("submission failed",
		"submission_id", sub.ID, "batch_index", batchIndex, "error", cause)
	return nil
}

func (s *SubmissionService) pauseRequested(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused[id]
}

func (s *SubmissionService) clearPause(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.paused, id)
}

func (s *SubmissionService) loadSubmission(ctx context.Context, id string) (*models.Submission, error) {
	return loadSubmission(ctx, s.repo, id)
}

func loadSubmission(ctx context.Context, repo submissionStore, id string) (*models.Submission, error) {
	sub, err := repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return sub, nil
}

func (s *SubmissionService) cacheProgress(ctx context.Context, sub *models.Submission) {
	if s.cache == nil {
		return
	}
	s.cache.SetProgress(ctx, progressFrom(sub))
}

func (s *SubmissionService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	s.cache.Invalidate(ctx, id)
}

func progressFrom(sub *models.Submission) *dto.ProgressResponse {
	return &dto.ProgressResponse{
		ID:                  sub.ID,
		Status:              sub.Status,
		TotalBatches:        sub.TotalBatches,
		ProcessedBatches:    sub.ProcessedBatches,
		TotalEncounters:     sub.TotalEncounters,
		Successful:          sub.Successful,
		Failed:              sub.Failed,
		PendingConfirmation: sub.PendingConfirmation,
		Results:             sub.Results,
		Error:               sub.ErrorMessage,
		CreatedAt:           sub.CreatedAt,
		CompletedAt:         sub.CompletedAt,
	}
}

func encounterOffset(batches models.BatchList, processed int) int {
	offset := 0
	for i := 0; i < processed && i < len(batches); i++ {
		offset += batches[i].EncounterCount()
	}
	return offset
}
