// Package chart holds the patient-chart records the order-safety checks read:
// patients, documented allergies and the medication list.
package chart

import (
	"time"

	"github.com/google/uuid"
)

type Patient struct {
	ID          uuid.UUID `db:"id" json:"id"`
	MRN         string    `db:"mrn" json:"mrn"`
	FirstName   string    `db:"first_name" json:"first_name"`
	LastName    string    `db:"last_name" json:"last_name"`
	DateOfBirth time.Time `db:"date_of_birth" json:"date_of_birth"`
	Gender      *string   `db:"gender" json:"gender,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

type PatientAllergy struct {
	ID                  uuid.UUID `db:"id" json:"id"`
	PatientID           uuid.UUID `db:"patient_id" json:"patient_id"`
	AllergenName        string    `db:"allergen_name" json:"allergen_name"`
	ReactionDescription *string   `db:"reaction_description" json:"reaction_description,omitempty"`
	Severity            string    `db:"severity" json:"severity"`
	IsActive            bool      `db:"is_active" json:"is_active"`
	RecordedBy          *string   `db:"recorded_by" json:"recorded_by,omitempty"`
	RecordedAt          time.Time `db:"recorded_at" json:"recorded_at"`
}

type MedicationType string

const (
	MedInpatientActive MedicationType = "INPATIENT_ACTIVE"
	MedHome            MedicationType = "HOME_MED"
	MedDischarge       MedicationType = "DISCHARGE_MED"
)

const MedStatusActive = "Active"

// PatientMedication is one line of the medication list. When it references a
// catalog item, MedicationName carries the catalog name.
type PatientMedication struct {
	ID              uuid.UUID      `db:"id" json:"id"`
	PatientID       uuid.UUID      `db:"patient_id" json:"patient_id"`
	OrderableItemID *uuid.UUID     `db:"orderable_item_id" json:"orderable_item_id,omitempty"`
	MedicationName  string         `db:"medication_name" json:"medication_name"`
	MedType         MedicationType `db:"med_type" json:"med_type"`
	Status          string         `db:"status" json:"status"`
	Dose            *string        `db:"dose" json:"dose,omitempty"`
	Route           *string        `db:"route" json:"route,omitempty"`
	Frequency       *string        `db:"frequency" json:"frequency,omitempty"`
	SourceOrderID   *uuid.UUID     `db:"source_order_id" json:"source_order_id,omitempty"`
	RecordedAt      time.Time      `db:"recorded_at" json:"recorded_at"`
}

// IsActiveInpatient reports whether the medication is currently being given
// on the ward.
func (m *PatientMedication) IsActiveInpatient() bool {
	return m.Status == MedStatusActive && m.MedType == MedInpatientActive
}
