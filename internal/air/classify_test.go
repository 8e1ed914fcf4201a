package air

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clinsync/air-submit-api/internal/models"
)

func twoEncounterRequest() *EncounterRequest {
	return &EncounterRequest{
		Encounters: []EncounterBlock{
			{ID: 1, DateOfService: "01072025"},
			{ID: 2, DateOfService: "01072025"},
		},
	}
}

func TestClassifySuccess(t *testing.T) {
	resp := &EncounterResponse{
		StatusCode: StatusSuccess,
		Message:    "The request has been processed successfully.",
		ClaimDetails: &ClaimDetails{
			ClaimID:             "WC12345",
			ClaimSequenceNumber: 1,
		},
	}

	result := Classify(resp, twoEncounterRequest())

	require.Equal(t, models.ResultSuccess, result.Status)
	require.Equal(t, models.ActionNone, result.Action)
	require.Equal(t, "WC12345", result.ClaimID)
	require.Equal(t, 1, result.ClaimSequenceNumber)
	require.Len(t, result.Encounters, 2)
	for _, enc := range result.Encounters {
		require.Equal(t, models.ResultSuccess, enc.Status)
		require.Equal(t, models.ActionNone, enc.Action)
	}
}

func TestClassifyWarningNeedsConfirmation(t *testing.T) {
	for _, code := range []string{StatusWarningAmbiguousMatch, StatusWarningEncounterPend, StatusWarningAssessment} {
		t.Run(code, func(t *testing.T) {
			resp := &EncounterResponse{StatusCode: code, Message: "review required"}
			result := Classify(resp, twoEncounterRequest())
			require.Equal(t, models.ResultWarning, result.Status)
			require.Equal(t, models.ActionConfirmOrCorrect, result.Action)
		})
	}
}

func TestClassifyWarningWithAllEncountersAcceptedNeedsNothing(t *testing.T) {
	resp := &EncounterResponse{
		StatusCode: StatusWarningEncounterPend,
		Message:    "some encounters pended",
		ClaimDetails: &ClaimDetails{
			ClaimID: "WC1",
			Encounters: []EncounterResult{
				{ID: 1, Information: ResultInformation{Status: EncounterStatusSuccess}},
				{ID: 2, Information: ResultInformation{Status: EncounterStatusSuccess}},
			},
		},
	}

	result := Classify(resp, twoEncounterRequest())

	require.Equal(t, models.ResultWarning, result.Status)
	require.Equal(t, models.ActionNone, result.Action)
}

func TestClassifyErrorAndUnknownCodesFailClosed(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"error code", "AIR-E-1005"},
		{"unknown code", "AIR-Z-9999"},
		{"empty code", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &EncounterResponse{StatusCode: tt.code, Message: "?"}
			result := Classify(resp, twoEncounterRequest())
			require.Equal(t, models.ResultError, result.Status)
			require.Equal(t, models.ActionNone, result.Action)
		})
	}
}

func TestClassifyPreservesMessageVerbatim(t *testing.T) {
	// Messages pass through byte-for-byte, including leading and trailing
	// whitespace, control characters and non-ASCII text.
	msg := "  Individual not found \t\r\n – vérifiez les détails  "
	resp := &EncounterResponse{
		StatusCode: "AIR-E-1005",
		Message:    msg,
		Errors: []FieldError{
			{Code: "AIR-E-0042", Field: "individual.personalDetails", Message: " bad value here "},
		},
	}

	result := Classify(resp, twoEncounterRequest())

	require.Equal(t, msg, result.Message)
	require.Equal(t, " bad value here ", result.Errors[0].Message)
	for _, enc := range result.Encounters {
		require.Equal(t, msg, enc.Message)
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	resp := &EncounterResponse{
		StatusCode: StatusWarningEncounterPend,
		Message:    "pended",
		ClaimDetails: &ClaimDetails{
			ClaimID: "WC2",
			Encounters: []EncounterResult{
				{ID: 1, Information: ResultInformation{Status: EncounterStatusSuccess}},
				{ID: 2, Information: ResultInformation{Status: EncounterStatusPended, Code: "AIR-W-1059", Text: "pended for review"}},
			},
		},
	}
	req := twoEncounterRequest()

	first := Classify(resp, req)
	second := Classify(resp, req)
	require.Equal(t, first, second)
}

func TestClassifyPerEncounterDetailWins(t *testing.T) {
	resp := &EncounterResponse{
		StatusCode: StatusWarningEncounterPend,
		Message:    "top-level warning",
		ClaimDetails: &ClaimDetails{
			ClaimID: "WC3",
			Encounters: []EncounterResult{
				{ID: 1, Information: ResultInformation{Status: EncounterStatusSuccess}},
				{
					ID:          2,
					Information: ResultInformation{Status: EncounterStatusPended, Code: "AIR-W-1059", Text: "encounter pended"},
					Episodes: []EpisodeResult{
						{ID: 1, Information: ResultInformation{Status: EncounterStatusSuccess}},
						{ID: 2, Information: ResultInformation{Status: EncounterStatusPended, Code: "AIR-W-1059", Text: "dose out of sequence"}},
					},
				},
			},
		},
	}

	result := Classify(resp, twoEncounterRequest())

	require.Len(t, result.Encounters, 2)

	first := result.Encounters[0]
	require.Equal(t, models.ResultSuccess, first.Status)
	require.Equal(t, models.ActionNone, first.Action)

	second := result.Encounters[1]
	require.Equal(t, models.ResultWarning, second.Status)
	require.Equal(t, models.ActionConfirmOrCorrect, second.Action)
	require.Equal(t, "AIR-W-1059", second.Code)
	require.Equal(t, "encounter pended", second.Message)
	require.Len(t, second.Episodes, 2)
	require.Equal(t, models.ResultSuccess, second.Episodes[0].Status)
	require.Equal(t, models.ResultWarning, second.Episodes[1].Status)
	require.Equal(t, "dose out of sequence", second.Episodes[1].Message)
}

func TestClassifyRejectedEncounter(t *testing.T) {
	resp := &EncounterResponse{
		StatusCode: StatusWarningEncounterPend,
		Message:    "partial failure",
		ClaimDetails: &ClaimDetails{
			ClaimID: "WC4",
			Encounters: []EncounterResult{
				{ID: 1, Information: ResultInformation{Status: EncounterStatusRejected, Code: "AIR-E-1013", Text: "encounter rejected"}},
				{ID: 2, Information: ResultInformation{Status: EncounterStatusSuccess}},
			},
		},
	}

	result := Classify(resp, twoEncounterRequest())

	require.Equal(t, models.ResultError, result.Encounters[0].Status)
	require.Equal(t, models.ActionNone, result.Encounters[0].Action)
	require.Equal(t, models.ResultSuccess, result.Encounters[1].Status)
}

func TestIsErrorCode(t *testing.T) {
	require.True(t, IsErrorCode("AIR-E-1005"))
	require.False(t, IsErrorCode(StatusSuccess))
	require.False(t, IsErrorCode(StatusWarningAmbiguousMatch))
	require.False(t, IsErrorCode(""))
}
