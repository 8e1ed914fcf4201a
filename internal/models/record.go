package models

// Gender is the fixed three-value enumeration accepted by the register.
type Gender string

const (
	GenderMale          Gender = "M"
	GenderFemale        Gender = "F"
	GenderIndeterminate Gender = "X"
)

// Record is one flat row of user-supplied vaccination data. RowNumber is the
// 1-based position in the original upload and is carried through grouping and
// submission for traceability. Records are never mutated once parsed.
type Record struct {
	RowNumber int `json:"rowNumber"`

	MedicareNumber    string `json:"medicareNumber,omitempty"`
	MedicareReference string `json:"medicareReference,omitempty"`
	IHINumber         string `json:"ihiNumber,omitempty"`
	FirstName         string `json:"firstName,omitempty"`
	LastName          string `json:"lastName,omitempty"`
	DateOfBirth       string `json:"dateOfBirth"`
	Gender            Gender `json:"gender"`
	Postcode          string `json:"postcode,omitempty"`

	ServiceDate    string `json:"serviceDate"`
	ProviderNumber string `json:"providerNumber,omitempty"`
	Overseas       bool   `json:"overseas,omitempty"`
	CountryCode    string `json:"countryCode,omitempty"`
	SchoolID       string `json:"schoolId,omitempty"`
	Antenatal      bool   `json:"antenatal,omitempty"`

	VaccineCode  string `json:"vaccineCode"`
	Dose         string `json:"dose"`
	VaccineBatch string `json:"vaccineBatch,omitempty"`
	VaccineType  string `json:"vaccineType,omitempty"`
	Route        string `json:"route,omitempty"`
}

// ValidationError describes one business-rule failure on one record field.
// Value holds the offending raw input for audit purposes, not for display.
type ValidationError struct {
	RowNumber int    `json:"rowNumber"`
	Field     string `json:"field"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Value     string `json:"value,omitempty"`
}
