package air

// Wire contract for the register's record-encounter endpoint. Field names
// mirror the upstream API exactly; do not rename them.

// Top-level status codes returned by the register.
const (
	StatusSuccess               = "AIR-I-1000"
	StatusWarningAmbiguousMatch = "AIR-W-1004"
	StatusWarningEncounterPend  = "AIR-W-1059"
	StatusWarningAssessment     = "AIR-W-2012"

	errorPrefix = "AIR-E-"
)

// Per-encounter and per-episode information statuses.
const (
	EncounterStatusSuccess  = "SUCCESS"
	EncounterStatusPended   = "PENDED"
	EncounterStatusRejected = "REJECTED"
)

// MedicareBlock identifies an individual by Medicare card.
type MedicareBlock struct {
	MedicareCardNumber string `json:"medicareCardNumber"`
	MedicareIRN        string `json:"medicareIRN"`
}

// PersonalDetails carries name, date of birth and gender.
type PersonalDetails struct {
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	DateOfBirth string `json:"dateOfBirth"`
	Gender      string `json:"gender"`
}

// AddressBlock carries the demographic postcode.
type AddressBlock struct {
	PostCode string `json:"postCode"`
}

// IndividualBlock is the identity section of a request.
type IndividualBlock struct {
	Medicare        *MedicareBlock  `json:"medicare,omitempty"`
	IHINumber       string          `json:"ihiNumber,omitempty"`
	PersonalDetails PersonalDetails `json:"personalDetails"`
	Address         *AddressBlock   `json:"address,omitempty"`
}

// EpisodeBlock is one vaccine administration within an encounter.
type EpisodeBlock struct {
	ID           int    `json:"id"`
	VaccineCode  string `json:"vaccineCode"`
	VaccineDose  string `json:"vaccineDose"`
	VaccineBatch string `json:"vaccineBatch,omitempty"`
	VaccineType  string `json:"vaccineFundingType,omitempty"`
	Route        string `json:"routeOfAdministration,omitempty"`
}

// EncounterBlock is one clinical visit within a request.
type EncounterBlock struct {
	ID                   int            `json:"id"`
	DateOfService        string         `json:"dateOfService"`
	Episodes             []EpisodeBlock `json:"episodes"`
	AdministeredOverseas bool           `json:"administeredOverseas,omitempty"`
	CountryCode          string         `json:"countryCode,omitempty"`
	SchoolID             string         `json:"schoolId,omitempty"`
	AntenatalIndicator   bool           `json:"antenatalIndicator,omitempty"`
	AcceptAndConfirm     bool           `json:"acceptAndConfirm,omitempty"`
}

// InformationProviderBlock identifies the organisation submitting on the
// individual's behalf.
type InformationProviderBlock struct {
	ProviderNumber string `json:"providerNumber"`
}

// EncounterRequest is the request body for the record-encounter endpoint.
// ClaimID and ClaimSequenceNumber are attached only on the confirmation path.
type EncounterRequest struct {
	Individual          IndividualBlock          `json:"individual"`
	Encounters          []EncounterBlock         `json:"encounters"`
	InformationProvider InformationProviderBlock `json:"informationProvider"`
	ClaimID             string                   `json:"claimId,omitempty"`
	ClaimSequenceNumber int                      `json:"claimSequenceNum,omitempty"`
}

// ResultInformation is the register's status/code/text triple. Text is
// preserved verbatim everywhere it is surfaced.
type ResultInformation struct {
	Status string `json:"status"`
	Code   string `json:"code,omitempty"`
	Text   string `json:"text,omitempty"`
}

// EpisodeResult is the per-episode outcome inside claim details.
type EpisodeResult struct {
	ID          int               `json:"id"`
	Information ResultInformation `json:"information"`
}

// EncounterResult is the per-encounter outcome inside claim details.
type EncounterResult struct {
	ID          int               `json:"id"`
	Information ResultInformation `json:"information"`
	Episodes    []EpisodeResult   `json:"episodes,omitempty"`
}

// ClaimDetails carries the opaque claim tokens needed to confirm or correct
// a prior submission, plus per-encounter results.
type ClaimDetails struct {
	ClaimID             string            `json:"claimId"`
	ClaimSequenceNumber int               `json:"claimSeqNum,omitempty"`
	Encounters          []EncounterResult `json:"encounters,omitempty"`
}

// FieldError is a register-reported error against a request field.
type FieldError struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// EncounterResponse is the response body for the record-encounter endpoint.
type EncounterResponse struct {
	StatusCode   string        `json:"statusCode"`
	Message      string        `json:"message"`
	ClaimDetails *ClaimDetails `json:"claimDetails,omitempty"`
	Errors       []FieldError  `json:"errors,omitempty"`
}
