package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/clinsync/air-submit-api/internal/models"
)

var (
	nameCharsPattern   = regexp.MustCompile(`^[A-Za-z0-9' -]+$`)
	letterPattern      = regexp.MustCompile(`[A-Za-z]`)
	vaccineCodePattern = regexp.MustCompile(`^[A-Za-z0-9]{2,10}$`)
	digitsPattern      = regexp.MustCompile(`^[0-9]+$`)
)

// Validate applies the register's business rules to a single record. All
// checks run and errors accumulate; nothing short-circuits. The function has
// no side effects and is safe for concurrent use.
func Validate(rec models.Record) []models.ValidationError {
	var errs []models.ValidationError
	add := func(field, code, message, value string) {
		errs = append(errs, models.ValidationError{
			RowNumber: rec.RowNumber,
			Field:     field,
			Code:      code,
			Message:   message,
			Value:     value,
		})
	}

	dob, dobOK := checkDateOfBirth(rec, add)
	genderOK := checkGender(rec, add)
	checkIdentification(rec, dobOK, genderOK, add)
	checkName("firstName", rec.FirstName, add)
	checkName("lastName", rec.LastName, add)
	checkServiceDate(rec, dob, dobOK, add)
	checkProvider(rec, add)
	checkOverseas(rec, add)
	checkEpisodeFields(rec, add)

	return errs
}

func checkDateOfBirth(rec models.Record, add func(field, code, message, value string)) (time.Time, bool) {
	if rec.DateOfBirth == "" {
		add("dateOfBirth", CodeDOBRequired, "date of birth is required", "")
		return time.Time{}, false
	}
	dob, err := time.Parse(dateLayout, rec.DateOfBirth)
	if err != nil {
		add("dateOfBirth", CodeDOBInvalid, "date of birth is not a valid date", rec.DateOfBirth)
		return time.Time{}, false
	}
	now := time.Now().UTC()
	if dob.After(now) {
		add("dateOfBirth", CodeDOBFuture, "date of birth cannot be in the future", rec.DateOfBirth)
		return dob, false
	}
	if dob.Before(now.AddDate(-maxPersonAge, 0, 0)) {
		add("dateOfBirth", CodeDOBTooOld, fmt.Sprintf("date of birth cannot be more than %d years ago", maxPersonAge), rec.DateOfBirth)
		return dob, false
	}
	return dob, true
}

func checkGender(rec models.Record, add func(field, code, message, value string)) bool {
	if rec.Gender == "" {
		add("gender", CodeGenderRequired, "gender is required", "")
		return false
	}
	switch rec.Gender {
	case models.GenderMale, models.GenderFemale, models.GenderIndeterminate:
		return true
	default:
		add("gender", CodeGenderInvalid, "gender must be one of M, F, X", string(rec.Gender))
		return false
	}
}

// checkIdentification verifies that at least one of the three identification
// scenarios is satisfiable: Medicare card, IHI number, or demographic
// details. A single error is emitted when none is.
func checkIdentification(rec models.Record, dobOK, genderOK bool, add func(field, code, message, value string)) {
	if medicareScenario(rec, dobOK, genderOK) ||
		ihiScenario(rec, dobOK, genderOK) ||
		demographicScenario(rec, dobOK, genderOK) {
		return
	}
	add("identification", CodeIdentInsufficient,
		"insufficient identification: provide a valid Medicare card, an IHI number, or full demographic details",
		"")
}

func medicareScenario(rec models.Record, dobOK, genderOK bool) bool {
	if rec.MedicareNumber == "" || rec.MedicareReference == "" || !dobOK || !genderOK {
		return false
	}
	if len(rec.MedicareReference) != 1 || rec.MedicareReference[0] < '1' || rec.MedicareReference[0] > '9' {
		return false
	}
	return ValidMedicareNumber(rec.MedicareNumber)
}

func ihiScenario(rec models.Record, dobOK, genderOK bool) bool {
	if !dobOK || !genderOK {
		return false
	}
	return len(rec.IHINumber) == ihiLength && digitsPattern.MatchString(rec.IHINumber)
}

func demographicScenario(rec models.Record, dobOK, genderOK bool) bool {
	if rec.FirstName == "" || rec.LastName == "" || !dobOK || !genderOK {
		return false
	}
	return len(rec.Postcode) == postcodeLength && digitsPattern.MatchString(rec.Postcode)
}

func checkName(field, name string, add func(field, code, message, value string)) {
	if name == "" {
		return
	}
	if len(name) > maxNameLength {
		add(field, CodeNameTooLong, fmt.Sprintf("%s must be at most %d characters", field, maxNameLength), name)
	}
	if !nameCharsPattern.MatchString(name) {
		add(field, CodeNameCharset, field+" may only contain letters, digits, apostrophes, spaces and hyphens", name)
		return
	}
	if strings.Contains(name, " '") || strings.Contains(name, "' ") ||
		strings.Contains(name, " -") || strings.Contains(name, "- ") {
		add(field, CodeNameSpacing, field+" must not contain a space next to an apostrophe or hyphen", name)
	}
	if !letterPattern.MatchString(name) {
		add(field, CodeNameNoLetter, field+" must contain at least one letter", name)
	}
}

func checkServiceDate(rec models.Record, dob time.Time, dobOK bool, add func(field, code, message, value string)) {
	if rec.ServiceDate == "" {
		add("serviceDate", CodeServiceDateRequired, "date of service is required", "")
		return
	}
	serviceDate, err := time.Parse(dateLayout, rec.ServiceDate)
	if err != nil {
		add("serviceDate", CodeServiceDateInvalid, "date of service is not a valid date", rec.ServiceDate)
		return
	}
	if serviceDate.After(time.Now().UTC()) {
		add("serviceDate", CodeServiceDateFuture, "date of service cannot be in the future", rec.ServiceDate)
	}
	if serviceDate.Before(earliestServiceDate) {
		add("serviceDate", CodeServiceDateTooEarly, "date of service predates the register", rec.ServiceDate)
	}
	if dobOK && serviceDate.Before(dob) {
		add("serviceDate", CodeServiceDateBeforeDOB, "date of service cannot be before date of birth", rec.ServiceDate)
	}
}

func checkProvider(rec models.Record, add func(field, code, message, value string)) {
	if rec.ProviderNumber == "" {
		return
	}
	if !ValidProviderNumber(rec.ProviderNumber) {
		add("providerNumber", CodeProviderInvalid, "administering provider number failed its check digit", rec.ProviderNumber)
	}
}

func checkOverseas(rec models.Record, add func(field, code, message, value string)) {
	if rec.Overseas && rec.CountryCode == "" {
		add("countryCode", CodeCountryRequired, "country code is required for overseas administration", "")
	}
}

func checkEpisodeFields(rec models.Record, add func(field, code, message, value string)) {
	if rec.VaccineCode == "" {
		add("vaccineCode", CodeVaccineCodeRequired, "vaccine code is required", "")
	} else if !vaccineCodePattern.MatchString(rec.VaccineCode) {
		add("vaccineCode", CodeVaccineCodeInvalid, "vaccine code must be 2-10 letters or digits", rec.VaccineCode)
	}

	if rec.Dose == "" {
		add("dose", CodeDoseRequired, "dose is required", "")
	} else if !validDose(rec.Dose) {
		add("dose", CodeDoseInvalid, "dose must be 1-20 or B for booster", rec.Dose)
	}

	if rec.VaccineType != "" {
		if _, ok := validVaccineTypes[strings.ToUpper(rec.VaccineType)]; !ok {
			add("vaccineType", CodeVaccineTypeInvalid, "unknown vaccine type", rec.VaccineType)
		}
	}

	if rec.Route != "" {
		if _, ok := validRoutes[strings.ToUpper(rec.Route)]; !ok {
			add("route", CodeRouteInvalid, "unknown route of administration", rec.Route)
		}
	}

	if len(rec.VaccineBatch) > 15 {
		add("vaccineBatch", CodeBatchTooLong, "batch number must be at most 15 characters", rec.VaccineBatch)
	}
}

func validDose(dose string) bool {
	if strings.EqualFold(dose, "B") {
		return true
	}
	n, err := strconv.Atoi(dose)
	if err != nil {
		return false
	}
	return n >= 1 && n <= 20
}
