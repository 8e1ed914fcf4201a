package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/clinsync/air-submit-api/internal/air"
	"github.com/clinsync/air-submit-api/internal/dto"
	"github.com/clinsync/air-submit-api/internal/grouping"
	"github.com/clinsync/air-submit-api/internal/models"
	"github.com/clinsync/air-submit-api/internal/repository"
	"github.com/clinsync/air-submit-api/internal/validation"
	appErrors "github.com/clinsync/air-submit-api/pkg/errors"
)

// ConfirmationService settles records the register flagged for review: either
// confirming them as-is or resubmitting a corrected record. Both paths replay
// the stored wire payloads rather than regrouping from scratch.
type ConfirmationService struct {
	repo     submissionStore
	registry registryClient
	cache    progressCache
	logger   *zap.Logger
}

// NewConfirmationService constructs the confirmation service. Cache may be
// nil.
func NewConfirmationService(repo submissionStore, registry registryClient, cache progressCache, logger *zap.Logger) *ConfirmationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfirmationService{repo: repo, registry: registry, cache: cache, logger: logger}
}

// Confirm re-sends one pending encounter with the accept flag set, using the
// claim tokens from the stored response. Encounters that already succeeded in
// the original round-trip are never re-sent.
func (s *ConfirmationService) Confirm(ctx context.Context, submissionID string, index int) (*dto.ConfirmResult, error) {
	sub, outcome, err := s.locatePending(ctx, submissionID, index)
	if err != nil {
		return nil, err
	}

	storedReq, storedResp, err := s.loadStoredPayloads(ctx, submissionID, index)
	if err != nil {
		return nil, err
	}
	if storedResp.ClaimDetails == nil || storedResp.ClaimDetails.ClaimID == "" {
		// Without claim tokens there is no way to tell which parts of the
		// original request the register accepted. Refuse rather than risk
		// double-recording; the record can still be corrected and resubmitted.
		return nil, appErrors.ErrClaimDetailsMissing
	}

	confirmReq := buildConfirmRequest(storedReq, storedResp, outcome.EncounterID)
	if len(confirmReq.Encounters) == 0 {
		return nil, appErrors.ErrNotConfirmable
	}

	return s.roundTrip(ctx, sub, index, confirmReq)
}

// Resubmit validates a corrected record and sends it as a fresh submission
// for the same encounter slot, without claim tokens.
func (s *ConfirmationService) Resubmit(ctx context.Context, submissionID string, index int, rec models.Record) (*dto.ConfirmResult, []models.ValidationError, error) {
	if errs := validation.Validate(rec); len(errs) > 0 {
		return nil, errs, appErrors.ErrValidation
	}

	sub, _, err := s.locatePending(ctx, submissionID, index)
	if err != nil {
		return nil, nil, err
	}

	batches := grouping.Group([]models.Record{rec})
	if len(batches) != 1 {
		return nil, nil, appErrors.ErrInternal
	}
	req, err := air.BuildRequest(batches[0], sub.InformationProvider)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to build register payload")
	}

	result, err := s.roundTrip(ctx, sub, index, req)
	if err != nil {
		return nil, nil, err
	}
	return result, nil, nil
}

// ConfirmAll walks every pending encounter independently. One failure never
// aborts the pass; each outcome is reported on its own.
func (s *ConfirmationService) ConfirmAll(ctx context.Context, submissionID string) (*dto.ConfirmAllResponse, error) {
	sub, err := s.loadSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	var indexes []int
	for _, result := range sub.Results {
		for _, enc := range result.Encounters {
			if enc.Action == models.ActionConfirmOrCorrect && !enc.Resolved {
				indexes = append(indexes, enc.Index)
			}
		}
	}

	resp := &dto.ConfirmAllResponse{Results: make([]dto.ConfirmResult, 0, len(indexes))}
	for _, index := range indexes {
		result, err := s.Confirm(ctx, submissionID, index)
		if err != nil {
			resp.Failed++
			appErr := appErrors.FromError(err)
			resp.Results = append(resp.Results, dto.ConfirmResult{
				Index:   index,
				Status:  models.ResultError,
				Message: appErr.Message,
			})
			s.logger.Sugar().Warnw("bulk confirmation entry failed",
				"submission_id", submissionID, "index", index, "error", err)
			continue
		}
		if result.Resolved {
			resp.Confirmed++
		} else {
			resp.Failed++
		}
		resp.Results = append(resp.Results, *result)
	}
	return resp, nil
}

// roundTrip submits one confirm or resubmit request, stores both payloads
// under the encounter's key and settles the outcome on success.
func (s *ConfirmationService) roundTrip(ctx context.Context, sub *models.Submission, index int, req *air.EncounterRequest) (*dto.ConfirmResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to marshal register payload")
	}
	if err := s.repo.SavePayload(ctx, sub.ID, index, models.PayloadRequest, payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store register payload")
	}

	resp, raw, err := s.registry.SubmitEncounter(ctx, req, air.RequestHeaders{
		CorrelationID: sub.CorrelationID,
		SubjectDOB:    req.Individual.PersonalDetails.DateOfBirth,
	})
	if err != nil {
		return nil, mapRegistryError(err)
	}
	if err := s.repo.SavePayload(ctx, sub.ID, index, models.PayloadResponse, raw); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store register response")
	}

	classified := air.Classify(resp, req)
	resolved := classified.Status == models.ResultSuccess ||
		(classified.Status == models.ResultWarning && classified.Action == models.ActionNone)

	if resolved {
		if err := s.settle(ctx, sub, index); err != nil {
			return nil, err
		}
	}

	return &dto.ConfirmResult{
		Index:      index,
		Status:     classified.Status,
		Action:     classified.Action,
		StatusCode: classified.StatusCode,
		Message:    classified.Message,
		Resolved:   resolved,
	}, nil
}

// settle marks the encounter outcome resolved and moves it out of the
// pending-confirmation count.
func (s *ConfirmationService) settle(ctx context.Context, sub *models.Submission, index int) error {
	ri, ei, ok := findOutcome(sub, index)
	if !ok {
		return appErrors.ErrNotFound
	}
	sub.Results[ri].Encounters[ei].Resolved = true
	sub.Results[ri].Encounters[ei].Status = models.ResultSuccess
	sub.Results[ri].Encounters[ei].Action = models.ActionNone

	successful := sub.Successful + 1
	pending := sub.PendingConfirmation - 1
	if pending < 0 {
		pending = 0
	}
	sub.Successful = successful
	sub.PendingConfirmation = pending

	if err := s.repo.Update(ctx, sub.ID, repository.UpdateSubmissionParams{
		Successful:          &successful,
		PendingConfirmation: &pending,
		Results:             &sub.Results,
	}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to settle record")
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, sub.ID)
	}
	return nil
}

func (s *ConfirmationService) locatePending(ctx context.Context, submissionID string, index int) (*models.Submission, *models.EncounterOutcome, error) {
	sub, err := s.loadSubmission(ctx, submissionID)
	if err != nil {
		return nil, nil, err
	}
	ri, ei, ok := findOutcome(sub, index)
	if !ok {
		return nil, nil, appErrors.ErrNotFound
	}
	outcome := &sub.Results[ri].Encounters[ei]
	if outcome.Action != models.ActionConfirmOrCorrect || outcome.Resolved {
		return nil, nil, appErrors.ErrNotConfirmable
	}
	return sub, outcome, nil
}

func (s *ConfirmationService) loadSubmission(ctx context.Context, id string) (*models.Submission, error) {
	return loadSubmission(ctx, s.repo, id)
}

func (s *ConfirmationService) loadStoredPayloads(ctx context.Context, submissionID string, index int) (*air.EncounterRequest, *air.EncounterResponse, error) {
	reqBytes, err := s.repo.GetPayload(ctx, submissionID, index, models.PayloadRequest)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrPayloadMissing, "stored request payload not found")
	}
	respBytes, err := s.repo.GetPayload(ctx, submissionID, index, models.PayloadResponse)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrPayloadMissing, "stored response payload not found")
	}

	var req air.EncounterRequest
	if err := json.Unmarshal(reqBytes, &req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored request payload is unreadable")
	}
	var resp air.EncounterResponse
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored response payload is unreadable")
	}
	return &req, &resp, nil
}

// buildConfirmRequest derives the accept-and-confirm request from the stored
// round-trip. Only the target encounter is re-sent, and only when the stored
// response does not show it as already accepted.
func buildConfirmRequest(storedReq *air.EncounterRequest, storedResp *air.EncounterResponse, encounterID int) *air.EncounterRequest {
	succeeded := make(map[int]bool)
	for _, enc := range storedResp.ClaimDetails.Encounters {
		if enc.Information.Status == air.EncounterStatusSuccess {
			succeeded[enc.ID] = true
		}
	}

	confirm := &air.EncounterRequest{
		Individual:          storedReq.Individual,
		InformationProvider: storedReq.InformationProvider,
		ClaimID:             storedResp.ClaimDetails.ClaimID,
		ClaimSequenceNumber: storedResp.ClaimDetails.ClaimSequenceNumber,
	}
	for _, enc := range storedReq.Encounters {
		if enc.ID != encounterID || succeeded[enc.ID] {
			continue
		}
		enc.AcceptAndConfirm = true
		confirm.Encounters = append(confirm.Encounters, enc)
	}
	return confirm
}

func findOutcome(sub *models.Submission, index int) (resultIdx, encounterIdx int, ok bool) {
	for ri := range sub.Results {
		for ei := range sub.Results[ri].Encounters {
			if sub.Results[ri].Encounters[ei].Index == index {
				return ri, ei, true
			}
		}
	}
	return 0, 0, false
}

func mapRegistryError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, air.ErrCredentialRejected):
		return appErrors.Clone(appErrors.ErrCredentialRejected, "")
	default:
		return appErrors.Wrap(err, appErrors.ErrRegistryUnavailable.Code, appErrors.ErrRegistryUnavailable.Status, fmt.Sprintf("register call failed: %v", err))
	}
}
