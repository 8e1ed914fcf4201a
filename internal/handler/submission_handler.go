package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/clinsync/air-submit-api/internal/dto"
	"github.com/clinsync/air-submit-api/internal/models"
	appErrors "github.com/clinsync/air-submit-api/pkg/errors"
	"github.com/clinsync/air-submit-api/pkg/response"
)

type submissionOrchestrator interface {
	ValidateRecords(req dto.SubmissionRequest) *dto.ValidationReport
	Create(ctx context.Context, req dto.SubmissionRequest, actorID string) (*dto.SubmissionResponse, *dto.ValidationReport, error)
	Progress(ctx context.Context, id string) (*dto.ProgressResponse, error)
	List(ctx context.Context, limit, offset int) ([]dto.ProgressResponse, error)
	Pause(ctx context.Context, id string) (*dto.ProgressResponse, error)
	Resume(ctx context.Context, id string) (*dto.ProgressResponse, error)
	Pending(ctx context.Context, id string) ([]dto.PendingRecord, error)
}

type confirmationWorkflow interface {
	Confirm(ctx context.Context, submissionID string, index int) (*dto.ConfirmResult, error)
	Resubmit(ctx context.Context, submissionID string, index int, rec models.Record) (*dto.ConfirmResult, []models.ValidationError, error)
	ConfirmAll(ctx context.Context, submissionID string) (*dto.ConfirmAllResponse, error)
}

// SubmissionHandler exposes the submission pipeline endpoints.
type SubmissionHandler struct {
	submissions  submissionOrchestrator
	confirmation confirmationWorkflow
}

// NewSubmissionHandler constructs the handler.
func NewSubmissionHandler(submissions submissionOrchestrator, confirmation confirmationWorkflow) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions, confirmation: confirmation}
}

// Validate godoc
// @Summary Dry-run validation of vaccination records
// @Tags Submissions
// @Accept json
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /submissions/validate [post]
func (h *SubmissionHandler) Validate(c *gin.Context) {
	var req dto.SubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	response.JSON(c, http.StatusOK, h.submissions.ValidateRecords(req))
}

// Create godoc
// @Summary Create and enqueue a submission
// @Tags Submissions
// @Accept json
// @Produce json
// @Success 202 {object} response.Envelope
// @Router /submissions [post]
func (h *SubmissionHandler) Create(c *gin.Context) {
	var req dto.SubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}

	actorID := ""
	if claims := claimsFromContext(c); claims != nil {
		actorID = claims.UserID
	}

	result, report, err := h.submissions.Create(c.Request.Context(), req, actorID)
	if err != nil {
		if report != nil && !report.Valid {
			c.Header("Cache-Control", "no-store")
			c.JSON(http.StatusBadRequest, response.Envelope{
				Data:  report,
				Error: appErrors.FromError(err),
			})
			return
		}
		response.Error(c, err)
		return
	}
	response.Accepted(c, result)
}

// List godoc
// @Summary List submissions
// @Tags Submissions
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /submissions [get]
func (h *SubmissionHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	items, err := h.submissions.List(c.Request.Context(), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, map[string]interface{}{"limit": limit, "offset": offset})
}

// Get godoc
// @Summary Submission progress and results
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) Get(c *gin.Context) {
	progress, err := h.submissions.Progress(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress)
}

// Pause godoc
// @Summary Pause a running submission at the next batch boundary
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/pause [post]
func (h *SubmissionHandler) Pause(c *gin.Context) {
	progress, err := h.submissions.Pause(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress)
}

// Resume godoc
// @Summary Resume a paused submission
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/resume [post]
func (h *SubmissionHandler) Resume(c *gin.Context) {
	progress, err := h.submissions.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress)
}

// Pending godoc
// @Summary Records awaiting confirmation or correction
// @Tags Confirmation
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/pending [get]
func (h *SubmissionHandler) Pending(c *gin.Context) {
	pending, err := h.submissions.Pending(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if pending == nil {
		pending = []dto.PendingRecord{}
	}
	response.JSON(c, http.StatusOK, pending)
}

// Confirm godoc
// @Summary Accept-and-confirm one pending encounter
// @Tags Confirmation
// @Produce json
// @Param id path string true "Submission ID"
// @Param index path int true "Encounter index"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/encounters/{index}/confirm [post]
func (h *SubmissionHandler) Confirm(c *gin.Context) {
	index, err := encounterIndex(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.confirmation.Confirm(c.Request.Context(), c.Param("id"), index)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Resubmit godoc
// @Summary Resubmit a corrected record for one pending encounter
// @Tags Confirmation
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param index path int true "Encounter index"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/encounters/{index}/resubmit [post]
func (h *SubmissionHandler) Resubmit(c *gin.Context) {
	index, err := encounterIndex(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.ResubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	result, verrs, err := h.confirmation.Resubmit(c.Request.Context(), c.Param("id"), index, req.Record)
	if err != nil {
		if len(verrs) > 0 {
			c.Header("Cache-Control", "no-store")
			c.JSON(http.StatusBadRequest, response.Envelope{
				Data:  gin.H{"errors": verrs},
				Error: appErrors.FromError(err),
			})
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// ConfirmAll godoc
// @Summary Accept-and-confirm every pending encounter
// @Tags Confirmation
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/confirm-all [post]
func (h *SubmissionHandler) ConfirmAll(c *gin.Context) {
	result, err := h.confirmation.ConfirmAll(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

func encounterIndex(c *gin.Context) (int, error) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "encounter index must be a non-negative integer")
	}
	return index, nil
}
