package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/catalog"
	"github.com/hms/hms/internal/domain/cds"
	"github.com/hms/hms/internal/domain/chart"
	"github.com/hms/hms/internal/platform/db"
)

func ptrF(f float64) *float64 { return &f }
func ptrS(s string) *string   { return &s }

var sampleFormulary = []catalog.ItemInput{
	{ItemType: "Medication", Name: "Warfarin 5mg Tablet", GenericName: ptrS("warfarin"), Code: ptrS("RX-WARF-5"),
		MinDose: ptrF(1), MaxDose: ptrF(10), DefaultDoseUnit: ptrS("mg")},
	{ItemType: "Medication", Name: "Aspirin 81mg Tablet", GenericName: ptrS("aspirin"), Code: ptrS("RX-ASA-81"),
		MinDose: ptrF(81), MaxDose: ptrF(325), DefaultDoseUnit: ptrS("mg")},
	{ItemType: "Medication", Name: "Lisinopril 10mg Tablet", GenericName: ptrS("lisinopril"), Code: ptrS("RX-LISI-10"),
		MinDose: ptrF(2.5), MaxDose: ptrF(40), DefaultDoseUnit: ptrS("mg")},
	{ItemType: "Medication", Name: "Spironolactone 25mg Tablet", GenericName: ptrS("spironolactone"), Code: ptrS("RX-SPIR-25"),
		MinDose: ptrF(12.5), MaxDose: ptrF(100), DefaultDoseUnit: ptrS("mg")},
	{ItemType: "Medication", Name: "Amoxicillin 500mg Capsule", GenericName: ptrS("amoxicillin"), Code: ptrS("RX-AMOX-500"),
		MinDose: ptrF(250), MaxDose: ptrF(1000), DefaultDoseUnit: ptrS("mg")},
	{ItemType: "LabTest", Name: "Complete Blood Count", Code: ptrS("LAB-CBC")},
	{ItemType: "LabTest", Name: "Basic Metabolic Panel", Code: ptrS("LAB-BMP")},
	{ItemType: "ImagingStudy", Name: "Chest X-Ray PA and Lateral", Code: ptrS("IMG-CXR")},
	{ItemType: "Consult", Name: "Cardiology Consult", Code: ptrS("CON-CARD")},
}

var sampleInteractionRule = cds.RuleInput{
	RuleName:    "Core drug-drug interactions",
	Description: ptrS("Common high-risk pairs reviewed by pharmacy."),
	RuleType:    string(cds.RuleDrugInteraction),
	RuleLogic:   json.RawMessage(`{"interactions": [["warfarin", "aspirin"], ["lisinopril", "spironolactone"]]}`),
}

// demoPatientID is fixed so repeated seeding finds the existing record.
var demoPatientID = uuid.MustParse("6f1c2b8e-4d3a-4c59-9a7e-0d2f5b8c1a01")

type seeder struct {
	tx        *db.TxManager
	catalog   *catalog.Service
	rules     *cds.Service
	patients  chart.PatientRepository
	allergies chart.AllergyRepository
	meds      chart.MedicationRepository
	logger    zerolog.Logger
}

func newSeeder(pool *pgxpool.Pool, logger zerolog.Logger) *seeder {
	return &seeder{
		tx:        db.NewTxManager(pool),
		catalog:   catalog.NewService(catalog.NewRepoPG(pool), logger),
		rules:     cds.NewService(cds.NewRuleRepoPG(pool), nil, nil, nil, logger),
		patients:  chart.NewPatientRepoPG(pool),
		allergies: chart.NewAllergyRepoPG(pool),
		meds:      chart.NewMedicationRepoPG(pool),
		logger:    logger.With().Str("component", "seed").Logger(),
	}
}

// Run loads the sample data in one transaction. Existing rows are left alone.
func (s *seeder) Run(ctx context.Context, demoPatient bool) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		created := 0
		byName := make(map[string]*catalog.OrderableItem)
		for i := range sampleFormulary {
			in := sampleFormulary[i]
			item, isNew, err := s.ensureItem(ctx, &in)
			if err != nil {
				return err
			}
			byName[item.Name] = item
			if isNew {
				created++
			}
		}
		s.logger.Info().Int("created", created).Int("total", len(sampleFormulary)).Msg("formulary seeded")

		if err := s.ensureRule(ctx, sampleInteractionRule); err != nil {
			return err
		}

		if demoPatient {
			return s.ensureDemoPatient(ctx, byName["Warfarin 5mg Tablet"])
		}
		return nil
	})
}

func (s *seeder) ensureItem(ctx context.Context, in *catalog.ItemInput) (*catalog.OrderableItem, bool, error) {
	existing, _, err := s.catalog.ListItems(ctx, catalog.ListFilter{Query: in.Name, ItemType: catalog.ItemType(in.ItemType)}, 100, 0)
	if err != nil {
		return nil, false, err
	}
	for _, item := range existing {
		if item.Name == in.Name {
			return item, false, nil
		}
	}
	item, err := s.catalog.CreateItem(ctx, in)
	if err != nil {
		return nil, false, fmt.Errorf("seed %s: %w", in.Name, err)
	}
	return item, true, nil
}

// ensureRule looks the rule up by name first; a unique violation would abort
// the surrounding transaction.
func (s *seeder) ensureRule(ctx context.Context, in cds.RuleInput) error {
	existing, _, err := s.rules.ListRules(ctx, cds.RuleType(in.RuleType), 100, 0)
	if err != nil {
		return err
	}
	for _, r := range existing {
		if r.RuleName == in.RuleName {
			s.logger.Info().Str("rule", in.RuleName).Msg("interaction rule already present")
			return nil
		}
	}
	if _, err := s.rules.CreateRule(ctx, &in); err != nil {
		return fmt.Errorf("seed rule %s: %w", in.RuleName, err)
	}
	return nil
}

func (s *seeder) ensureDemoPatient(ctx context.Context, warfarin *catalog.OrderableItem) error {
	if _, err := s.patients.GetByID(ctx, demoPatientID); err == nil {
		s.logger.Info().Str("patient_id", demoPatientID.String()).Msg("demo patient already present")
		return nil
	} else if !errors.Is(err, chart.ErrPatientNotFound) {
		return err
	}

	p := &chart.Patient{
		ID:          demoPatientID,
		MRN:         "DEMO-0001",
		FirstName:   "Jordan",
		LastName:    "Rivera",
		DateOfBirth: time.Date(1958, 4, 12, 0, 0, 0, 0, time.UTC),
	}
	if err := s.patients.Create(ctx, p); err != nil {
		return fmt.Errorf("seed demo patient: %w", err)
	}
	if err := s.allergies.Create(ctx, &chart.PatientAllergy{
		PatientID:           p.ID,
		AllergenName:        "Penicillin",
		ReactionDescription: ptrS("Hives"),
		Severity:            "Moderate",
		IsActive:            true,
		RecordedBy:          ptrS("seed"),
	}); err != nil {
		return fmt.Errorf("seed demo allergy: %w", err)
	}

	med := &chart.PatientMedication{
		PatientID:      p.ID,
		MedicationName: "Warfarin 5mg Tablet",
		MedType:        chart.MedInpatientActive,
		Status:         chart.MedStatusActive,
		Dose:           ptrS("5 mg"),
		Route:          ptrS("PO"),
		Frequency:      ptrS("daily"),
	}
	if warfarin != nil {
		med.OrderableItemID = &warfarin.ID
	}
	if err := s.meds.Create(ctx, med); err != nil {
		return fmt.Errorf("seed demo medication: %w", err)
	}
	s.logger.Info().Str("patient_id", p.ID.String()).Str("mrn", p.MRN).Msg("demo patient seeded")
	return nil
}
