package models

// Individual is the identity block shared by every record in a batch.
// Exactly one identification scenario is populated: Medicare card, IHI
// number, or demographic details.
type Individual struct {
	MedicareNumber    string `json:"medicareNumber,omitempty"`
	MedicareReference string `json:"medicareReference,omitempty"`
	IHINumber         string `json:"ihiNumber,omitempty"`
	FirstName         string `json:"firstName,omitempty"`
	LastName          string `json:"lastName,omitempty"`
	DateOfBirth       string `json:"dateOfBirth"`
	Gender            Gender `json:"gender"`
	Postcode          string `json:"postcode,omitempty"`
}

// Episode is one vaccine administration event within an encounter.
// ID is 1-based and unique within its encounter.
type Episode struct {
	ID           int    `json:"id"`
	VaccineCode  string `json:"vaccineCode"`
	Dose         string `json:"dose"`
	VaccineBatch string `json:"vaccineBatch,omitempty"`
	VaccineType  string `json:"vaccineType,omitempty"`
	Route        string `json:"route,omitempty"`
}

// Encounter is one clinical visit on one date, holding at most five episodes.
// ID is 1-based and unique within its batch. RowNumbers references the source
// rows that contributed episodes.
type Encounter struct {
	ID             int       `json:"id"`
	ServiceDate    string    `json:"serviceDate"`
	ProviderNumber string    `json:"providerNumber,omitempty"`
	Overseas       bool      `json:"overseas,omitempty"`
	CountryCode    string    `json:"countryCode,omitempty"`
	SchoolID       string    `json:"schoolId,omitempty"`
	Antenatal      bool      `json:"antenatal,omitempty"`
	Episodes       []Episode `json:"episodes"`
	RowNumbers     []int     `json:"rowNumbers"`
}

// Batch is the unit submitted to the register in one HTTP call: one
// individual with at most ten encounters. Created by grouping, consumed
// exactly once by the submission pipeline, never mutated afterwards.
type Batch struct {
	Individual Individual  `json:"individual"`
	Encounters []Encounter `json:"encounters"`
	RowNumbers []int       `json:"rowNumbers"`
}

// EncounterCount reports the number of encounters in the batch.
func (b Batch) EncounterCount() int {
	return len(b.Encounters)
}
