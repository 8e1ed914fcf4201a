package validation

import "time"

// Field and rule constants for the register's business validation.
const (
	maxNameLength  = 40
	maxPersonAge   = 130 // years
	dateLayout     = "02/01/2006"
	ihiLength      = 16
	postcodeLength = 4
)

// earliestServiceDate is the register's historical cutoff: encounters before
// the register existed are rejected upstream, so they are rejected here too.
var earliestServiceDate = time.Date(1996, time.January, 1, 0, 0, 0, 0, time.UTC)

// validRoutes enumerates accepted routes of administration.
var validRoutes = map[string]struct{}{
	"IM": {}, // intramuscular
	"SC": {}, // subcutaneous
	"ID": {}, // intradermal
	"IN": {}, // intranasal
	"PO": {}, // oral
}

// validVaccineTypes enumerates accepted vaccine funding/program types.
var validVaccineTypes = map[string]struct{}{
	"NIP": {}, // national immunisation program
	"PRV": {}, // privately funded
	"CTR": {}, // clinical trial
	"OTH": {}, // other
}

// Stable validation error codes. These form part of the API contract and are
// never renumbered.
const (
	CodeFieldRequired        = "FIELD_REQUIRED"
	CodeIdentInsufficient    = "IDENT_INSUFFICIENT"
	CodeDOBRequired          = "DOB_REQUIRED"
	CodeDOBInvalid           = "DOB_INVALID"
	CodeDOBFuture            = "DOB_FUTURE"
	CodeDOBTooOld            = "DOB_TOO_OLD"
	CodeGenderRequired       = "GENDER_REQUIRED"
	CodeGenderInvalid        = "GENDER_INVALID"
	CodeNameTooLong          = "NAME_TOO_LONG"
	CodeNameCharset          = "NAME_CHARSET"
	CodeNameSpacing          = "NAME_SPACING"
	CodeNameNoLetter         = "NAME_NO_LETTER"
	CodeServiceDateRequired  = "SERVICE_DATE_REQUIRED"
	CodeServiceDateInvalid   = "SERVICE_DATE_INVALID"
	CodeServiceDateFuture    = "SERVICE_DATE_FUTURE"
	CodeServiceDateTooEarly  = "SERVICE_DATE_TOO_EARLY"
	CodeServiceDateBeforeDOB = "SERVICE_DATE_BEFORE_DOB"
	CodeProviderInvalid      = "PROVIDER_INVALID"
	CodeCountryRequired      = "COUNTRY_REQUIRED"
	CodeVaccineCodeRequired  = "VACCINE_CODE_REQUIRED"
	CodeVaccineCodeInvalid   = "VACCINE_CODE_INVALID"
	CodeDoseRequired         = "DOSE_REQUIRED"
	CodeDoseInvalid          = "DOSE_INVALID"
	CodeVaccineTypeInvalid   = "VACCINE_TYPE_INVALID"
	CodeRouteInvalid         = "ROUTE_INVALID"
	CodeBatchTooLong         = "BATCH_TOO_LONG"
)
