package air

import (
	"strings"

	"github.com/clinsync/air-submit-api/internal/models"
)

// Classify maps a raw register response onto a normalized result. It is a
// pure function: classifying the same response twice yields identical
// results, and every message field is copied byte-for-byte from the source.
// Unrecognized or missing status codes classify as errors; ambiguous input
// never passes as success.
func Classify(resp *EncounterResponse, req *EncounterRequest) models.RecordResult {
	result := models.RecordResult{
		StatusCode: resp.StatusCode,
		Message:    resp.Message,
	}
	for _, e := range resp.Errors {
		result.Errors = append(result.Errors, models.FieldError{
			Code:    e.Code,
			Field:   e.Field,
			Message: e.Message,
		})
	}
	if resp.ClaimDetails != nil {
		result.ClaimID = resp.ClaimDetails.ClaimID
		result.ClaimSequenceNumber = resp.ClaimDetails.ClaimSequenceNumber
	}

	switch {
	case resp.StatusCode == StatusSuccess:
		result.Status = models.ResultSuccess
		result.Action = models.ActionNone
	case isWarningCode(resp.StatusCode):
		result.Status = models.ResultWarning
		result.Action = models.ActionConfirmOrCorrect
		if allEncountersSucceeded(resp.ClaimDetails) {
			// The warning concerned nothing actionable: every encounter
			// individually succeeded, so there is nothing to confirm.
			result.Action = models.ActionNone
		}
	default:
		result.Status = models.ResultError
		result.Action = models.ActionNone
	}

	result.Encounters = classifyEncounters(resp, req, result)
	return result
}

// IsErrorCode reports whether a status code belongs to the register's error
// class.
func IsErrorCode(code string) bool {
	return strings.HasPrefix(code, errorPrefix)
}

func isWarningCode(code string) bool {
	switch code {
	case StatusWarningAmbiguousMatch, StatusWarningEncounterPend, StatusWarningAssessment:
		return true
	default:
		return false
	}
}

func allEncountersSucceeded(details *ClaimDetails) bool {
	if details == nil || len(details.Encounters) == 0 {
		return false
	}
	for _, enc := range details.Encounters {
		if enc.Information.Status != EncounterStatusSuccess {
			return false
		}
	}
	return true
}

// classifyEncounters produces one outcome per request encounter. When the
// response carries per-encounter detail it wins; otherwise every encounter
// inherits the top-level classification.
func classifyEncounters(resp *EncounterResponse, req *EncounterRequest, top models.RecordResult) []models.EncounterOutcome {
	detailByID := make(map[int]EncounterResult)
	if resp.ClaimDetails != nil {
		for _, enc := range resp.ClaimDetails.Encounters {
			detailByID[enc.ID] = enc
		}
	}

	var outcomes []models.EncounterOutcome
	for _, reqEnc := range req.Encounters {
		outcome := models.EncounterOutcome{
			EncounterID: reqEnc.ID,
			Status:      top.Status,
			Action:      top.Action,
			Code:        top.StatusCode,
			Message:     top.Message,
		}
		if detail, ok := detailByID[reqEnc.ID]; ok {
			outcome.Status, outcome.Action = encounterStatus(detail.Information, top)
			if detail.Information.Code != "" {
				outcome.Code = detail.Information.Code
			}
			if detail.Information.Text != "" {
				outcome.Message = detail.Information.Text
			}
			for _, ep := range detail.Episodes {
				outcome.Episodes = append(outcome.Episodes, models.EpisodeOutcome{
					EpisodeID: ep.ID,
					Status:    episodeStatus(ep.Information),
					Code:      ep.Information.Code,
					Message:   ep.Information.Text,
				})
			}
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func encounterStatus(info ResultInformation, top models.RecordResult) (models.ResultStatus, models.FollowUpAction) {
	switch info.Status {
	case EncounterStatusSuccess:
		return models.ResultSuccess, models.ActionNone
	case EncounterStatusPended:
		return models.ResultWarning, models.ActionConfirmOrCorrect
	case EncounterStatusRejected:
		return models.ResultError, models.ActionNone
	default:
		// Unknown per-encounter status: inherit the top-level result
		// rather than inventing one.
		return top.Status, top.Action
	}
}

func episodeStatus(info ResultInformation) models.ResultStatus {
	switch info.Status {
	case EncounterStatusSuccess:
		return models.ResultSuccess
	case EncounterStatusPended:
		return models.ResultWarning
	default:
		return models.ResultError
	}
}
