package chart

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrPatientNotFound = errors.New("patient not found")

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
}

type AllergyRepository interface {
	Create(ctx context.Context, a *PatientAllergy) error
	ListActiveAllergies(ctx context.Context, patientID uuid.UUID) ([]*PatientAllergy, error)
}

type MedicationRepository interface {
	Create(ctx context.Context, m *PatientMedication) error
	// ListActiveInpatientMedications returns medications with status Active
	// and type INPATIENT_ACTIVE.
	ListActiveInpatientMedications(ctx context.Context, patientID uuid.UUID) ([]*PatientMedication, error)
}
