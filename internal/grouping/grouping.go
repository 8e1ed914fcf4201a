package grouping

import (
	"fmt"
	"strings"

	"github.com/clinsync/air-submit-api/internal/models"
)

// Limits imposed by the register's wire contract.
const (
	MaxEpisodesPerEncounter = 5
	MaxEncountersPerBatch   = 10
)

// Group buckets records into individuals, splits each individual's records
// into per-date encounters of at most five episodes, and chunks the flattened
// encounter list into batches of at most ten. The function is pure and
// deterministic: individuals appear in first-seen order, encounters in
// per-individual date order, and episodes in input order. Grouping and
// batching are independent passes, so one individual's encounters may span
// batch boundaries.
func Group(records []models.Record) []models.Batch {
	type individualGroup struct {
		individual models.Individual
		records    []models.Record
	}

	groups := make(map[string]*individualGroup)
	order := make([]string, 0)

	for _, rec := range records {
		key := IndividualKey(rec)
		g, ok := groups[key]
		if !ok {
			g = &individualGroup{individual: individualFrom(rec)}
			groups[key] = g
			order = append(order, key)
		}
		g.records = append(g.records, rec)
	}

	var encounters []encounterWithIdentity
	for _, key := range order {
		g := groups[key]
		for _, enc := range buildEncounters(g.records) {
			encounters = append(encounters, encounterWithIdentity{individual: g.individual, encounter: enc})
		}
	}

	return buildBatches(encounters)
}

// IndividualKey derives the identity bucket for a record. Priority order:
// Medicare card, IHI number, demographic details. Records sharing a key are
// the same individual regardless of input order.
func IndividualKey(rec models.Record) string {
	if rec.MedicareNumber != "" && rec.MedicareReference != "" {
		return fmt.Sprintf("medicare:%s:%s:%s:%s", rec.MedicareNumber, rec.MedicareReference, rec.DateOfBirth, rec.Gender)
	}
	if rec.IHINumber != "" {
		return fmt.Sprintf("ihi:%s:%s:%s", rec.IHINumber, rec.DateOfBirth, rec.Gender)
	}
	return fmt.Sprintf("demo:%s:%s:%s:%s:%s",
		strings.ToUpper(rec.FirstName), strings.ToUpper(rec.LastName), rec.DateOfBirth, rec.Gender, rec.Postcode)
}

type encounterWithIdentity struct {
	individual models.Individual
	encounter  models.Encounter
}

func individualFrom(rec models.Record) models.Individual {
	return models.Individual{
		MedicareNumber:    rec.MedicareNumber,
		MedicareReference: rec.MedicareReference,
		IHINumber:         rec.IHINumber,
		FirstName:         rec.FirstName,
		LastName:          rec.LastName,
		DateOfBirth:       rec.DateOfBirth,
		Gender:            rec.Gender,
		Postcode:          rec.Postcode,
	}
}

// buildEncounters sub-groups one individual's records by exact service date
// and splits each date group into chunks of at most five episodes.
// Encounter-level attributes come from the first record of the first chunk
// for that date: the source data model does not vary visit metadata per
// vaccine.
func buildEncounters(records []models.Record) []models.Encounter {
	byDate := make(map[string][]models.Record)
	dateOrder := make([]string, 0)
	for _, rec := range records {
		if _, ok := byDate[rec.ServiceDate]; !ok {
			dateOrder = append(dateOrder, rec.ServiceDate)
		}
		byDate[rec.ServiceDate] = append(byDate[rec.ServiceDate], rec)
	}

	var encounters []models.Encounter
	for _, date := range dateOrder {
		dateRecords := byDate[date]
		first := dateRecords[0]
		for start := 0; start < len(dateRecords); start += MaxEpisodesPerEncounter {
			end := start + MaxEpisodesPerEncounter
			if end > len(dateRecords) {
				end = len(dateRecords)
			}
			chunk := dateRecords[start:end]
			enc := models.Encounter{
				ServiceDate:    date,
				ProviderNumber: first.ProviderNumber,
				Overseas:       first.Overseas,
				CountryCode:    first.CountryCode,
				SchoolID:       first.SchoolID,
				Antenatal:      first.Antenatal,
			}
			for i, rec := range chunk {
				enc.Episodes = append(enc.Episodes, models.Episode{
					ID:           i + 1,
					VaccineCode:  rec.VaccineCode,
					Dose:         rec.Dose,
					VaccineBatch: rec.VaccineBatch,
					VaccineType:  rec.VaccineType,
					Route:        rec.Route,
				})
				enc.RowNumbers = append(enc.RowNumbers, rec.RowNumber)
			}
			encounters = append(encounters, enc)
		}
	}
	return encounters
}

// buildBatches chunks the flattened encounter list into batches of at most
// ten encounters, reassigning encounter ids 1..N within each batch. A batch
// carries a single individual, so a chunk is additionally split whenever the
// individual changes within it.
func buildBatches(encounters []encounterWithIdentity) []models.Batch {
	var batches []models.Batch
	var current *models.Batch

	flush := func() {
		current = nil
	}

	for _, item := range encounters {
		if current != nil && (current.Individual != item.individual || len(current.Encounters) >= MaxEncountersPerBatch) {
			flush()
		}
		if current == nil {
			batches = append(batches, models.Batch{Individual: item.individual})
			current = &batches[len(batches)-1]
		}
		enc := item.encounter
		enc.ID = len(current.Encounters) + 1
		current.Encounters = append(current.Encounters, enc)
		current.RowNumbers = append(current.RowNumbers, enc.RowNumbers...)
	}

	return batches
}
