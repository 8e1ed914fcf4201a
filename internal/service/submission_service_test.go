package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clinsync/air-submit-api/internal/air"
	"github.com/clinsync/air-submit-api/internal/dto"
	"github.com/clinsync/air-submit-api/internal/models"
	"github.com/clinsync/air-submit-api/internal/repository"
	"github.com/clinsync/air-submit-api/internal/validation"
	appErrors "github.com/clinsync/air-submit-api/pkg/errors"
	"github.com/clinsync/air-submit-api/pkg/jobs"
)

type submissionStoreStub struct {
	subs     map[string]*models.Submission
	payloads map[string][]byte
	updates  []repository.UpdateSubmissionParams
}

func newSubmissionStoreStub() *submissionStoreStub {
	return &submissionStoreStub{
		subs:     map[string]*models.Submission{},
		payloads: map[string][]byte{},
	}
}

func (r *submissionStoreStub) Create(ctx context.Context, sub *models.Submission) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CorrelationID == "" {
		sub.CorrelationID = uuid.NewString()
	}
	cp := *sub
	r.subs[sub.ID] = &cp
	return nil
}

func (r *submissionStoreStub) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	sub, ok := r.subs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *sub
	return &cp, nil
}

func (r *submissionStoreStub) List(ctx context.Context, limit, offset int) ([]models.Submission, error) {
	var out []models.Submission
	for _, sub := range r.subs {
		out = append(out, *sub)
	}
	return out, nil
}

func (r *submissionStoreStub) ListUnfinished(ctx context.Context) ([]models.Submission, error) {
	var out []models.Submission
	for _, sub := range r.subs {
		if sub.Status == models.SubmissionStatusQueued || sub.Status == models.SubmissionStatusRunning {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (r *submissionStoreStub) Update(ctx context.Context, id string, params repository.UpdateSubmissionParams) error {
	sub, ok := r.subs[id]
	if !ok {
		return errors.New("not found")
	}
	r.updates = append(r.updates, params)
	if params.Status != nil {
		sub.Status = *params.Status
	}
	if params.ProcessedBatches != nil {
		sub.ProcessedBatches = *params.ProcessedBatches
	}
	if params.Successful != nil {
		sub.Successful = *params.Successful
	}
	if params.Failed != nil {
		sub.Failed = *params.Failed
	}
	if params.PendingConfirmation != nil {
		sub.PendingConfirmation = *params.PendingConfirmation
	}
	if params.Results != nil {
		sub.Results = append(models.ResultList{}, (*params.Results)...)
	}
	if params.ErrorMessage != nil {
		sub.ErrorMessage = params.ErrorMessage
	}
	if params.CompletedAt != nil {
		sub.CompletedAt = params.CompletedAt
	}
	return nil
}

func payloadKey(submissionID string, index int, kind models.PayloadKind) string {
	return fmt.Sprintf("%s/%s/%s", submissionID, repository.EncounterKey(index), kind)
}

func (r *submissionStoreStub) SavePayload(ctx context.Context, submissionID string, index int, kind models.PayloadKind, payload []byte) error {
	r.payloads[payloadKey(submissionID, index, kind)] = payload
	return nil
}

func (r *submissionStoreStub) GetPayload(ctx context.Context, submissionID string, index int, kind models.PayloadKind) ([]byte, error) {
	payload, ok := r.payloads[payloadKey(submissionID, index, kind)]
	if !ok {
		return nil, errors.New("not found")
	}
	return payload, nil
}

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type registryStub struct {
	responses []*air.EncounterResponse
	errs      []error
	requests  []*air.EncounterRequest
	headers   []air.RequestHeaders
}

func (r *registryStub) SubmitEncounter(ctx context.Context, req *air.EncounterRequest, hdr air.RequestHeaders) (*air.EncounterResponse, []byte, error) {
	call := len(r.requests)
	r.requests = append(r.requests, req)
	r.headers = append(r.headers, hdr)
	if call < len(r.errs) && r.errs[call] != nil {
		return nil, nil, r.errs[call]
	}
	resp := r.responses[len(r.responses)-1]
	if call < len(r.responses) {
		resp = r.responses[call]
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, nil, err
	}
	return resp, raw, nil
}

func successResponse() *air.EncounterResponse {
	return &air.EncounterResponse{
		StatusCode: air.StatusSuccess,
		Message:    "The request has been processed successfully.",
		ClaimDetails: &air.ClaimDetails{
			ClaimID: "WC1",
			Encounters: []air.EncounterResult{
				{ID: 1, Information: air.ResultInformation{Status: air.EncounterStatusSuccess}},
			},
		},
	}
}

func pendedResponse() *air.EncounterResponse {
	return &air.EncounterResponse{
		StatusCode: air.StatusWarningEncounterPend,
		Message:    "Encounter has been pended.",
		ClaimDetails: &air.ClaimDetails{
			ClaimID: "WC2",
			Encounters: []air.EncounterResult{
				{ID: 1, Information: air.ResultInformation{Status: air.EncounterStatusPended, Code: "AIR-W-1059", Text: "pended for review"}},
			},
		},
	}
}

func errorResponse() *air.EncounterResponse {
	return &air.EncounterResponse{
		StatusCode: "AIR-E-1005",
		Message:    "Individual could not  be identified",
	}
}

func submissionRequest(rows int) dto.SubmissionRequest {
	req := dto.SubmissionRequest{InformationProvider: "2438961W"}
	for i := 1; i <= rows; i++ {
		req.Records = append(req.Records, models.Record{
			RowNumber:         i,
			MedicareNumber:    "2123456701",
			MedicareReference: "1",
			FirstName:         "Jane",
			LastName:          "Citizen",
			DateOfBirth:       "05/03/2018",
			Gender:            models.GenderFemale,
			ServiceDate:       fmt.Sprintf("%02d/07/2025", i),
			VaccineCode:       "COMIRN",
			Dose:              "1",
		})
	}
	return req
}

func newSubmissionServiceForTest() (*SubmissionService, *submissionStoreStub, *queueStub, *registryStub) {
	repo := newSubmissionStoreStub()
	queue := &queueStub{}
	registry := &registryStub{responses: []*air.EncounterResponse{successResponse()}}
	svc := NewSubmissionService(repo, queue, registry, nil, nil, zap.NewNop())
	return svc, repo, queue, registry
}

func TestValidateRecordsReportsEveryError(t *testing.T) {
	svc, _, _, _ := newSubmissionServiceForTest()

	req := submissionRequest(2)
	req.Records[0].DateOfBirth = "bad"
	req.Records[1].Dose = "99"
	req.InformationProvider = "2438961K"

	report := svc.ValidateRecords(req)
	require.False(t, report.Valid)
	require.Equal(t, 2, report.RecordCount)
	require.Equal(t, 2, report.InvalidRows)
	require.Nil(t, report.BatchPreview)

	fields := map[string]bool{}
	for _, e := range report.Errors {
		fields[e.Field] = true
	}
	require.True(t, fields["informationProvider"])
	require.True(t, fields["dateOfBirth"])
	require.True(t, fields["dose"])
}

func TestValidateRecordsRejectsEmptyRequest(t *testing.T) {
	svc, _, _, _ := newSubmissionServiceForTest()

	report := svc.ValidateRecords(dto.SubmissionRequest{})
	require.False(t, report.Valid)

	codes := map[string]bool{}
	for _, e := range report.Errors {
		codes[e.Code] = true
	}
	require.True(t, codes[validation.CodeFieldRequired])
}

func TestValidateRecordsPreviewsBatches(t *testing.T) {
	svc, _, _, _ := newSubmissionServiceForTest()

	report := svc.ValidateRecords(submissionRequest(3))
	require.True(t, report.Valid)
	require.NotNil(t, report.BatchPreview)
	require.Equal(t, 1, report.BatchPreview.Batches)
	require.Equal(t, 3, report.BatchPreview.Encounters)
	require.Equal(t, 1, report.BatchPreview.Individuals)
}

func TestCreateRejectsInvalidRecords(t *testing.T) {
	svc, repo, queue, _ := newSubmissionServiceForTest()

	req := submissionRequest(1)
	req.Records[0].VaccineCode = ""
	resp, report, err := svc.Create(context.Background(), req, "user-1")

	require.ErrorIs(t, err, appErrors.ErrValidation)
	require.Nil(t, resp)
	require.NotNil(t, report)
	require.Empty(t, repo.subs)
	require.Empty(t, queue.jobs)
}

func TestCreatePersistsAndEnqueues(t *testing.T) {
	svc, repo, queue, _ := newSubmissionServiceForTest()

	resp, report, err := svc.Create(context.Background(), submissionRequest(3), "user-1")
	require.NoError(t, err)
	require.True(t, report.Valid)
	require.Equal(t, models.SubmissionStatusQueued, resp.Status)
	require.Equal(t, 1, resp.TotalBatches)
	require.Equal(t, 3, resp.TotalEncounters)

	require.Len(t, queue.jobs, 1)
	require.Equal(t, resp.ID, queue.jobs[0].ID)

	stored := repo.subs[resp.ID]
	require.NotNil(t, stored)
	require.NotEmpty(t, stored.CorrelationID)
	require.Len(t, stored.Batches, 1)
}

func TestCreateMarksErrorWhenEnqueueFails(t *testing.T) {
	svc, repo, queue, _ := newSubmissionServiceForTest()
	queue.err = errors.New("queue closed")

	_, _, err := svc.Create(context.Background(), submissionRequest(1), "user-1")
	require.Error(t, err)

	require.Len(t, repo.subs, 1)
	for _, sub := range repo.subs {
		require.Equal(t, models.SubmissionStatusError, sub.Status)
		require.NotNil(t, sub.CompletedAt)
	}
}

func TestHandleJobProcessesAllBatchesAndStoresPayloads(t *testing.T) {
	svc, repo, queue, registry := newSubmissionServiceForTest()

	resp, _, err := svc.Create(context.Background(), submissionRequest(2), "user-1")
	require.NoError(t, err)

	require.NoError(t, svc.HandleJob(context.Background(), queue.jobs[0]))

	sub := repo.subs[resp.ID]
	require.Equal(t, models.SubmissionStatusCompleted, sub.Status)
	require.Equal(t, sub.TotalBatches, sub.ProcessedBatches)
	require.Equal(t, 2, sub.Successful)
	require.Zero(t, sub.Failed)
	require.Zero(t, sub.PendingConfirmation)
	require.NotNil(t, sub.CompletedAt)

	// One request per batch, correlation id held stable across calls.
	require.Len(t, registry.requests, 1)
	require.Equal(t, sub.CorrelationID, registry.headers[0].CorrelationID)
	require.Equal(t, "05032018", registry.headers[0].SubjectDOB)

	// Request and response payloads stored for every encounter.
	for index := 0; index < sub.TotalEncounters; index++ {
		_, err := repo.GetPayload(context.Background(), resp.ID, index, models.PayloadRequest)
		require.NoError(t, err)
		raw, err := repo.GetPayload(context.Background(), resp.ID, index, models.PayloadResponse)
		require.NoError(t, err)
		require.Contains(t, string(raw), air.StatusSuccess)
	}
}

func TestHandleJobAssignsGlobalEncounterIndexes(t *testing.T) {
	svc, repo, queue, registry := newSubmissionServiceForTest()
	registry.responses = []*air.EncounterResponse{pendedResponse()}

	resp, _, err := svc.Create(context.Background(), submissionRequest(3), "user-1")
	require.NoError(t, err)
	require.NoError(t, svc.HandleJob(context.Background(), queue.jobs[0]))

	sub := repo.subs[resp.ID]
	require.Len(t, sub.Results, 1)
	outcomes := sub.Results[0].Encounters
	require.Len(t, outcomes, 3)
	for i, enc := range outcomes {
		require.Equal(t, i, enc.Index)
		require.Equal(t, []int{i + 1}, enc.RowNumbers)
	}
	// Only encounter 1 carries per-encounter detail; the rest inherit the
	// top-level warning.
	require.Equal(t, models.ResultWarning, outcomes[0].Status)
	require.Equal(t, models.ActionConfirmOrCorrect, outcomes[0].Action)
	require.Equal(t, 3, sub.PendingConfirmation)
}

func TestHandleJobTransportFailureIsTerminal(t *testing.T) {
	svc, repo, queue, registry := newSubmissionServiceForTest()
	registry.errs = []error{air.ErrUnavailable}

	resp, _, err := svc.Create(context.Background(), submissionRequest(2), "user-1")
	require.NoError(t, err)
	require.NoError(t, svc.HandleJob(context.Background(), queue.jobs[0]))

	sub := repo.subs[resp.ID]
	require.Equal(t, models.SubmissionStatusError, sub.Status)
	require.NotNil(t, sub.ErrorMessage)
	require.Zero(t, sub.ProcessedBatches)
	// No further batches attempted after the failure.
	require.Len(t, registry.requests, 1)
}

func TestHandleJobBusinessRejectionFailsBatchOnly(t *testing.T) {
	svc, repo, queue, registry := newSubmissionServiceForTest()
	registry.responses = []*air.EncounterResponse{errorResponse(), successResponse()}

	// 11 same-individual service dates make 11 encounters across 2 batches.
	resp, _, err := svc.Create(context.Background(), submissionRequest(11), "user-1")
	require.NoError(t, err)
	require.NoError(t, svc.HandleJob(context.Background(), queue.jobs[0]))

	sub := repo.subs[resp.ID]
	require.Equal(t, 2, sub.TotalBatches)
	// A rejected batch never stops the run; the second batch is attempted.
	require.Len(t, registry.requests, 2)
	require.Equal(t, models.SubmissionStatusCompleted, sub.Status)
	require.Equal(t, 2, sub.ProcessedBatches)
	require.Equal(t, 10, sub.Failed)
	require.Equal(t, 1, sub.Successful)
	require.Zero(t, sub.PendingConfirmation)
	require.Nil(t, sub.ErrorMessage)

	require.Len(t, sub.Results, 2)
	for _, enc := range sub.Results[0].Encounters {
		require.Equal(t, models.ResultError, enc.Status)
		require.Equal(t, "AIR-E-1005", enc.Code)
		require.Equal(t, "Individual could not  be identified", enc.Message)
	}
}

// pausingRegistry requests a pause while a register call is in flight,
// after the batch loop's boundary check has already passed.
type pausingRegistry struct {
	inner *registryStub
	svc   *SubmissionService
	id    string
}

func (r *pausingRegistry) SubmitEncounter(ctx context.Context, req *air.EncounterRequest, hdr air.RequestHeaders) (*air.EncounterResponse, []byte, error) {
	r.svc.mu.Lock()
	r.svc.paused[r.id] = true
	r.svc.mu.Unlock()
	return r.inner.SubmitEncounter(ctx, req, hdr)
}

func TestPauseDuringFinalBatchCompletesAndClearsFlag(t *testing.T) {
	repo := newSubmissionStoreStub()
	queue := &queueStub{}
	registry := &pausingRegistry{inner: &registryStub{responses: []*air.EncounterResponse{successResponse()}}}
	svc := NewSubmissionService(repo, queue, registry, nil, nil, zap.NewNop())
	registry.svc = svc

	resp, _, err := svc.Create(context.Background(), submissionRequest(1), "user-1")
	require.NoError(t, err)
	registry.id = resp.ID

	require.NoError(t, svc.HandleJob(context.Background(), queue.jobs[0]))

	sub := repo.subs[resp.ID]
	require.Equal(t, models.SubmissionStatusCompleted, sub.Status)
	require.False(t, svc.pauseRequested(resp.ID))
}

func TestPauseStopsAtBatchBoundaryAndResumeContinues(t *testing.T) {
	svc, repo, queue, registry := newSubmissionServiceForTest()

	// Two individuals give two batches.
	req := submissionRequest(1)
	second := req.Records[0]
	second.RowNumber = 2
	second.MedicareNumber = "3123456722"
	req.Records = append(req.Records, second)

	resp, _, err := svc.Create(context.Background(), req, "user-1")
	require.NoError(t, err)

	// Pause before the worker picks the job up.
	progress, err := svc.Pause(context.Background(), resp.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusPaused, progress.Status)

	require.NoError(t, svc.HandleJob(context.Background(), queue.jobs[0]))
	require.Empty(t, registry.requests)
	require.Equal(t, models.SubmissionStatusPaused, repo.subs[resp.ID].Status)

	// Resume re-queues and the run finishes.
	progress, err = svc.Resume(context.Background(), resp.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusRunning, progress.Status)
	require.Len(t, queue.jobs, 2)

	require.NoError(t, svc.HandleJob(context.Background(), queue.jobs[1]))
	sub := repo.subs[resp.ID]
	require.Equal(t, models.SubmissionStatusCompleted, sub.Status)
	require.Equal(t, 2, sub.ProcessedBatches)
	require.Len(t, registry.requests, 2)
}

func TestPauseRequiresActiveSubmission(t *testing.T) {
	svc, repo, _, _ := newSubmissionServiceForTest()

	sub := &models.Submission{Status: models.SubmissionStatusCompleted}
	require.NoError(t, repo.Create(context.Background(), sub))

	_, err := svc.Pause(context.Background(), sub.ID)
	require.ErrorIs(t, err, appErrors.ErrNotRunning)
}

func TestResumeRequiresPausedSubmission(t *testing.T) {
	svc, repo, _, _ := newSubmissionServiceForTest()

	sub := &models.Submission{Status: models.SubmissionStatusRunning}
	require.NoError(t, repo.Create(context.Background(), sub))

	_, err := svc.Resume(context.Background(), sub.ID)
	require.ErrorIs(t, err, appErrors.ErrNotPaused)
}

func TestPendingListsUnresolvedConfirmables(t *testing.T) {
	svc, repo, queue, registry := newSubmissionServiceForTest()
	registry.responses = []*air.EncounterResponse{pendedResponse()}

	resp, _, err := svc.Create(context.Background(), submissionRequest(1), "user-1")
	require.NoError(t, err)
	require.NoError(t, svc.HandleJob(context.Background(), queue.jobs[0]))

	pending, err := svc.Pending(context.Background(), resp.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, 0, pending[0].Index)
	require.Equal(t, "AIR-W-1059", pending[0].Code)
	require.Equal(t, "pended for review", pending[0].Message)
	require.Equal(t, "WC2", pending[0].ClaimID)

	// Resolve it and the list empties.
	sub := repo.subs[resp.ID]
	sub.Results[0].Encounters[0].Resolved = true
	pending, err = svc.Pending(context.Background(), resp.ID)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestRecoverUnfinishedRequeuesInterruptedWork(t *testing.T) {
	svc, repo, queue, _ := newSubmissionServiceForTest()

	running := &models.Submission{Status: models.SubmissionStatusRunning, ProcessedBatches: 1, TotalBatches: 3}
	queued := &models.Submission{Status: models.SubmissionStatusQueued}
	done := &models.Submission{Status: models.SubmissionStatusCompleted}
	require.NoError(t, repo.Create(context.Background(), running))
	require.NoError(t, repo.Create(context.Background(), queued))
	require.NoError(t, repo.Create(context.Background(), done))

	require.NoError(t, svc.RecoverUnfinished(context.Background()))
	require.Len(t, queue.jobs, 2)
	require.Equal(t, models.SubmissionStatusQueued, repo.subs[running.ID].Status)
}

func TestProgressServesFromStore(t *testing.T) {
	svc, repo, _, _ := newSubmissionServiceForTest()

	sub := &models.Submission{
		Status:           models.SubmissionStatusRunning,
		TotalBatches:     4,
		ProcessedBatches: 2,
		TotalEncounters:  8,
		Successful:       5,
	}
	require.NoError(t, repo.Create(context.Background(), sub))

	progress, err := svc.Progress(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Equal(t, sub.ID, progress.ID)
	require.Equal(t, 2, progress.ProcessedBatches)
	require.Equal(t, 5, progress.Successful)

	_, err = svc.Progress(context.Background(), "missing")
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}
