package air

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clinsync/air-submit-api/internal/models"
)

func TestBuildRequestMedicareIdentity(t *testing.T) {
	batch := models.Batch{
		Individual: models.Individual{
			MedicareNumber:    "2123456701",
			MedicareReference: "1",
			FirstName:         "Jane",
			LastName:          "Citizen",
			DateOfBirth:       "05/03/2018",
			Gender:            models.GenderFemale,
		},
		Encounters: []models.Encounter{
			{
				ID:             1,
				ServiceDate:    "14/07/2025",
				ProviderNumber: "2438961W",
				Episodes: []models.Episode{
					{ID: 1, VaccineCode: "COMIRN", Dose: "1", VaccineBatch: "FJ1234", VaccineType: "NIP", Route: "IM"},
				},
				RowNumbers: []int{1},
			},
		},
	}

	req, err := BuildRequest(batch, "2438961W")
	require.NoError(t, err)

	require.NotNil(t, req.Individual.Medicare)
	require.Equal(t, "2123456701", req.Individual.Medicare.MedicareCardNumber)
	require.Equal(t, "1", req.Individual.Medicare.MedicareIRN)
	require.Empty(t, req.Individual.IHINumber)
	require.Equal(t, "05032018", req.Individual.PersonalDetails.DateOfBirth)
	require.Equal(t, "F", req.Individual.PersonalDetails.Gender)
	require.Equal(t, "2438961W", req.InformationProvider.ProviderNumber)

	require.Len(t, req.Encounters, 1)
	enc := req.Encounters[0]
	require.Equal(t, 1, enc.ID)
	require.Equal(t, "14072025", enc.DateOfService)
	require.Len(t, enc.Episodes, 1)
	require.Equal(t, "COMIRN", enc.Episodes[0].VaccineCode)
	require.Equal(t, "1", enc.Episodes[0].VaccineDose)

	require.Empty(t, req.ClaimID)
}

func TestBuildRequestIHIIdentity(t *testing.T) {
	batch := models.Batch{
		Individual: models.Individual{
			IHINumber:   "8003608666701594",
			DateOfBirth: "01/01/1990",
			Gender:      models.GenderMale,
		},
		Encounters: []models.Encounter{
			{ID: 1, ServiceDate: "01/07/2025", Episodes: []models.Episode{{ID: 1, VaccineCode: "FLUVAX", Dose: "1"}}},
		},
	}

	req, err := BuildRequest(batch, "2438961W")
	require.NoError(t, err)
	require.Nil(t, req.Individual.Medicare)
	require.Equal(t, "8003608666701594", req.Individual.IHINumber)
	require.Nil(t, req.Individual.Address)
}

func TestBuildRequestDemographicIdentity(t *testing.T) {
	batch := models.Batch{
		Individual: models.Individual{
			FirstName:   "Tom",
			LastName:    "O'Brien",
			DateOfBirth: "29/02/2016",
			Gender:      models.GenderIndeterminate,
			Postcode:    "4000",
		},
		Encounters: []models.Encounter{
			{ID: 1, ServiceDate: "01/07/2025", Overseas: true, CountryCode: "NZ",
				Episodes: []models.Episode{{ID: 1, VaccineCode: "MMR", Dose: "2"}}},
		},
	}

	req, err := BuildRequest(batch, "2438961W")
	require.NoError(t, err)
	require.Nil(t, req.Individual.Medicare)
	require.Empty(t, req.Individual.IHINumber)
	require.NotNil(t, req.Individual.Address)
	require.Equal(t, "4000", req.Individual.Address.PostCode)
	require.Equal(t, "29022016", req.Individual.PersonalDetails.DateOfBirth)
	require.True(t, req.Encounters[0].AdministeredOverseas)
	require.Equal(t, "NZ", req.Encounters[0].CountryCode)
}

func TestBuildRequestRejectsMalformedDates(t *testing.T) {
	batch := models.Batch{
		Individual: models.Individual{DateOfBirth: "2018-03-05", Gender: models.GenderFemale},
	}
	_, err := BuildRequest(batch, "2438961W")
	require.Error(t, err)

	batch = models.Batch{
		Individual: models.Individual{DateOfBirth: "05/03/2018", Gender: models.GenderFemale},
		Encounters: []models.Encounter{{ID: 1, ServiceDate: "31/02/2025"}},
	}
	_, err = BuildRequest(batch, "2438961W")
	require.Error(t, err)
}

func TestSubjectDOB(t *testing.T) {
	got, err := SubjectDOB("05/03/2018")
	require.NoError(t, err)
	require.Equal(t, "05032018", got)

	_, err = SubjectDOB("not-a-date")
	require.Error(t, err)
}
