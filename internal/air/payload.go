package air

import (
	"fmt"
	"time"

	"github.com/clinsync/air-submit-api/internal/models"
)

const (
	inputDateLayout = "02/01/2006"
	wireDateLayout  = "02012006"
)

// BuildRequest converts a grouped batch into the register's request shape.
func BuildRequest(batch models.Batch, informationProvider string) (*EncounterRequest, error) {
	individual, err := buildIndividual(batch.Individual)
	if err != nil {
		return nil, err
	}

	req := &EncounterRequest{
		Individual:          *individual,
		InformationProvider: InformationProviderBlock{ProviderNumber: informationProvider},
	}
	for _, enc := range batch.Encounters {
		block, err := buildEncounter(enc)
		if err != nil {
			return nil, err
		}
		req.Encounters = append(req.Encounters, *block)
	}
	return req, nil
}

func buildIndividual(ind models.Individual) (*IndividualBlock, error) {
	dob, err := toWireDate(ind.DateOfBirth)
	if err != nil {
		return nil, fmt.Errorf("individual date of birth: %w", err)
	}
	block := &IndividualBlock{
		PersonalDetails: PersonalDetails{
			FirstName:   ind.FirstName,
			LastName:    ind.LastName,
			DateOfBirth: dob,
			Gender:      string(ind.Gender),
		},
	}
	switch {
	case ind.MedicareNumber != "":
		block.Medicare = &MedicareBlock{
			MedicareCardNumber: ind.MedicareNumber,
			MedicareIRN:        ind.MedicareReference,
		}
	case ind.IHINumber != "":
		block.IHINumber = ind.IHINumber
	}
	if ind.Postcode != "" {
		block.Address = &AddressBlock{PostCode: ind.Postcode}
	}
	return block, nil
}

func buildEncounter(enc models.Encounter) (*EncounterBlock, error) {
	date, err := toWireDate(enc.ServiceDate)
	if err != nil {
		return nil, fmt.Errorf("encounter %d date of service: %w", enc.ID, err)
	}
	block := &EncounterBlock{
		ID:                   enc.ID,
		DateOfService:        date,
		AdministeredOverseas: enc.Overseas,
		CountryCode:          enc.CountryCode,
		SchoolID:             enc.SchoolID,
		AntenatalIndicator:   enc.Antenatal,
	}
	for _, ep := range enc.Episodes {
		block.Episodes = append(block.Episodes, EpisodeBlock{
			ID:           ep.ID,
			VaccineCode:  ep.VaccineCode,
			VaccineDose:  ep.Dose,
			VaccineBatch: ep.VaccineBatch,
			VaccineType:  ep.VaccineType,
			Route:        ep.Route,
		})
	}
	return block, nil
}

// SubjectDOB reformats a dd/mm/yyyy date of birth into the day-month-year
// digit form required by the subject header.
func SubjectDOB(dateOfBirth string) (string, error) {
	return toWireDate(dateOfBirth)
}

func toWireDate(value string) (string, error) {
	t, err := time.Parse(inputDateLayout, value)
	if err != nil {
		return "", fmt.Errorf("parse date %q: %w", value, err)
	}
	return t.Format(wireDateLayout), nil
}
