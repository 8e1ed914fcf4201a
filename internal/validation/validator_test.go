package validation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clinsync/air-submit-api/internal/models"
)

func validRecord() models.Record {
	return models.Record{
		RowNumber:         1,
		MedicareNumber:    "2123456701",
		MedicareReference: "1",
		FirstName:         "Jane",
		LastName:          "Citizen",
		DateOfBirth:       "05/03/2018",
		Gender:            models.GenderFemale,
		ServiceDate:       "14/07/2025",
		ProviderNumber:    "2438961W",
		VaccineCode:       "COMIRN",
		Dose:              "1",
		VaccineBatch:      "FJ1234",
		VaccineType:       "NIP",
		Route:             "IM",
	}
}

func codes(errs []models.ValidationError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Code)
	}
	return out
}

func TestValidateAcceptsCompleteRecord(t *testing.T) {
	require.Empty(t, Validate(validRecord()))
}

func TestValidateAccumulatesAllErrors(t *testing.T) {
	rec := models.Record{RowNumber: 7}
	errs := Validate(rec)

	got := codes(errs)
	require.Contains(t, got, CodeDOBRequired)
	require.Contains(t, got, CodeIdentInsufficient)
	require.Contains(t, got, CodeGenderRequired)
	require.Contains(t, got, CodeServiceDateRequired)
	require.Contains(t, got, CodeVaccineCodeRequired)
	require.Contains(t, got, CodeDoseRequired)
	for _, e := range errs {
		require.Equal(t, 7, e.RowNumber)
	}
}

func TestValidateDateOfBirth(t *testing.T) {
	tests := []struct {
		name string
		dob  string
		code string
	}{
		{"wrong format", "2018-03-05", CodeDOBInvalid},
		{"impossible date", "31/02/2018", CodeDOBInvalid},
		{"future", "01/01/2090", CodeDOBFuture},
		{"older than any living person", "01/01/1850", CodeDOBTooOld},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validRecord()
			rec.DateOfBirth = tt.dob
			require.Contains(t, codes(Validate(rec)), tt.code)
		})
	}
}

func TestValidateIdentificationScenarios(t *testing.T) {
	t.Run("medicare needs valid IRN", func(t *testing.T) {
		rec := validRecord()
		rec.MedicareReference = "0"
		require.Contains(t, codes(Validate(rec)), CodeIdentInsufficient)
	})

	t.Run("failed medicare checksum falls through", func(t *testing.T) {
		rec := validRecord()
		rec.MedicareNumber = "2123456711"
		require.Contains(t, codes(Validate(rec)), CodeIdentInsufficient)
	})

	t.Run("ihi alone suffices", func(t *testing.T) {
		rec := validRecord()
		rec.MedicareNumber = ""
		rec.MedicareReference = ""
		rec.IHINumber = "8003608666701594"
		require.Empty(t, Validate(rec))
	})

	t.Run("ihi must be sixteen digits", func(t *testing.T) {
		rec := validRecord()
		rec.MedicareNumber = ""
		rec.MedicareReference = ""
		rec.IHINumber = "80036086667015"
		require.Contains(t, codes(Validate(rec)), CodeIdentInsufficient)
	})

	t.Run("demographics need postcode", func(t *testing.T) {
		rec := validRecord()
		rec.MedicareNumber = ""
		rec.MedicareReference = ""
		require.Contains(t, codes(Validate(rec)), CodeIdentInsufficient)

		rec.Postcode = "4000"
		require.Empty(t, Validate(rec))
	})

	t.Run("identity scenarios depend on dob and gender", func(t *testing.T) {
		rec := validRecord()
		rec.Gender = "U"
		got := codes(Validate(rec))
		require.Contains(t, got, CodeGenderInvalid)
		require.Contains(t, got, CodeIdentInsufficient)
	})
}

func TestValidateNames(t *testing.T) {
	tests := []struct {
		name  string
		value string
		code  string
	}{
		{"too long", "Abcdefghijabcdefghijabcdefghijabcdefghijk", CodeNameTooLong},
		{"illegal character", "Jane*", CodeNameCharset},
		{"space before hyphen", "Jane -Doe", CodeNameSpacing},
		{"space after apostrophe", "O' Brien", CodeNameSpacing},
		{"no letters", "1234", CodeNameNoLetter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validRecord()
			rec.FirstName = tt.value
			require.Contains(t, codes(Validate(rec)), tt.code)
		})
	}

	t.Run("hyphenated and apostrophe names pass", func(t *testing.T) {
		rec := validRecord()
		rec.FirstName = "Mary-Jane"
		rec.LastName = "O'Brien"
		require.Empty(t, Validate(rec))
	})
}

func TestValidateServiceDate(t *testing.T) {
	tests := []struct {
		name string
		date string
		code string
	}{
		{"unparsable", "14.07.2025", CodeServiceDateInvalid},
		{"future", "01/01/2090", CodeServiceDateFuture},
		{"before register existed", "31/12/1995", CodeServiceDateTooEarly},
		{"before birth", "01/01/2017", CodeServiceDateBeforeDOB},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validRecord()
			rec.ServiceDate = tt.date
			require.Contains(t, codes(Validate(rec)), tt.code)
		})
	}
}

func TestValidateProviderAndOverseas(t *testing.T) {
	rec := validRecord()
	rec.ProviderNumber = "2438961K"
	require.Contains(t, codes(Validate(rec)), CodeProviderInvalid)

	rec = validRecord()
	rec.ProviderNumber = ""
	require.Empty(t, Validate(rec))

	rec = validRecord()
	rec.Overseas = true
	require.Contains(t, codes(Validate(rec)), CodeCountryRequired)
	rec.CountryCode = "NZ"
	require.Empty(t, Validate(rec))
}

func TestValidateEpisodeFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.Record)
		code   string
	}{
		{"vaccine code too short", func(r *models.Record) { r.VaccineCode = "A" }, CodeVaccineCodeInvalid},
		{"vaccine code illegal char", func(r *models.Record) { r.VaccineCode = "COM-IRN" }, CodeVaccineCodeInvalid},
		{"dose zero", func(r *models.Record) { r.Dose = "0" }, CodeDoseInvalid},
		{"dose over limit", func(r *models.Record) { r.Dose = "21" }, CodeDoseInvalid},
		{"dose garbage", func(r *models.Record) { r.Dose = "first" }, CodeDoseInvalid},
		{"unknown vaccine type", func(r *models.Record) { r.VaccineType = "FREE" }, CodeVaccineTypeInvalid},
		{"unknown route", func(r *models.Record) { r.Route = "IV" }, CodeRouteInvalid},
		{"batch too long", func(r *models.Record) { r.VaccineBatch = "ABCDEFGHIJKLMNOP" }, CodeBatchTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validRecord()
			tt.mutate(&rec)
			require.Contains(t, codes(Validate(rec)), tt.code)
		})
	}

	t.Run("booster dose and lowercase route pass", func(t *testing.T) {
		rec := validRecord()
		rec.Dose = "B"
		rec.Route = "im"
		rec.VaccineType = "prv"
		require.Empty(t, Validate(rec))
	})
}
