package catalog

import (
	"time"

	"github.com/google/uuid"
)

type ItemType string

const (
	ItemMedication   ItemType = "Medication"
	ItemLabTest      ItemType = "LabTest"
	ItemImagingStudy ItemType = "ImagingStudy"
	ItemConsult      ItemType = "Consult"
)

func (t ItemType) Valid() bool {
	switch t {
	case ItemMedication, ItemLabTest, ItemImagingStudy, ItemConsult:
		return true
	}
	return false
}

// OrderableItem maps to the orderable_item table. Items are deactivated,
// never deleted, so historical orders keep their reference.
type OrderableItem struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	ItemType        ItemType   `db:"item_type" json:"item_type"`
	Name            string     `db:"name" json:"name"`
	GenericName     *string    `db:"generic_name" json:"generic_name,omitempty"`
	Code            *string    `db:"code" json:"code,omitempty"`
	IsActive        bool       `db:"is_active" json:"is_active"`
	MinDose         *float64   `db:"min_dose" json:"min_dose,omitempty"`
	MaxDose         *float64   `db:"max_dose" json:"max_dose,omitempty"`
	DefaultDoseUnit *string    `db:"default_dose_unit" json:"default_dose_unit,omitempty"`
	ParentID        *uuid.UUID `db:"parent_id" json:"parent_id,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

func (i *OrderableItem) IsMedication() bool {
	return i.ItemType == ItemMedication
}

// HasDoseRange reports whether dose-range checking applies: only medications
// with an upper bound are checked.
func (i *OrderableItem) HasDoseRange() bool {
	return i.IsMedication() && i.MaxDose != nil
}

// ItemInput is the create/update payload for catalog administration.
type ItemInput struct {
	ItemType        string     `json:"item_type" validate:"required,oneof=Medication LabTest ImagingStudy Consult"`
	Name            string     `json:"name" validate:"required,max=255"`
	GenericName     *string    `json:"generic_name" validate:"omitempty,max=255"`
	Code            *string    `json:"code" validate:"omitempty,max=50"`
	MinDose         *float64   `json:"min_dose" validate:"omitempty,gte=0"`
	MaxDose         *float64   `json:"max_dose" validate:"omitempty,gt=0"`
	DefaultDoseUnit *string    `json:"default_dose_unit" validate:"omitempty,max=50"`
	ParentID        *uuid.UUID `json:"parent_id"`
	IsActive        *bool      `json:"is_active"`
}

// ListFilter narrows a catalog listing. Only active items are ever listed.
type ListFilter struct {
	Query    string
	ItemType ItemType
}
