// Package cds is the clinical decision support engine: it evaluates a
// candidate order against the patient's chart and the configured rules and
// reports safety alerts.
package cds

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Severity string

const (
	SeverityWarning  Severity = "Warning"
	SeverityCritical Severity = "Critical"
)

type AlertType string

const (
	AlertDuplicateOrder   AlertType = "DUPLICATE_ORDER"
	AlertAllergy          AlertType = "ALLERGY_ALERT"
	AlertDrugInteraction  AlertType = "DRUG_INTERACTION"
	AlertDoseRange        AlertType = "DOSE_RANGE_ALERT"
	AlertDoseUnitMismatch AlertType = "DOSE_UNIT_MISMATCH"
)

// Alert is produced per evaluation and never persisted.
type Alert struct {
	Type     AlertType `json:"type"`
	Message  string    `json:"message"`
	Severity Severity  `json:"severity"`
}

// HasCritical reports whether any alert must block the order.
func HasCritical(alerts []Alert) bool {
	for _, a := range alerts {
		if a.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

type RuleType string

const RuleDrugInteraction RuleType = "DrugInteraction"

// CDSRule maps to the cds_rule table. RuleLogic is interpreted per RuleType;
// see DecodeLogic.
type CDSRule struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	RuleName    string          `db:"rule_name" json:"rule_name"`
	Description *string         `db:"description" json:"description,omitempty"`
	RuleType    RuleType        `db:"rule_type" json:"rule_type"`
	RuleLogic   json.RawMessage `db:"rule_logic" json:"rule_logic"`
	IsActive    bool            `db:"is_active" json:"is_active"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Logic decodes the rule payload.
func (r *CDSRule) Logic() (RuleLogic, error) {
	return DecodeLogic(r.RuleType, r.RuleLogic)
}

type RuleInput struct {
	RuleName    string          `json:"rule_name" validate:"required,max=255"`
	Description *string         `json:"description"`
	RuleType    string          `json:"rule_type" validate:"required,max=100"`
	RuleLogic   json.RawMessage `json:"rule_logic" validate:"required"`
	IsActive    *bool           `json:"is_active"`
}

// CheckRequest is the body of a standalone check run.
type CheckRequest struct {
	PatientID       string                 `json:"patient_id"`
	OrderableItemID string                 `json:"orderable_item_id"`
	OrderDetails    map[string]interface{} `json:"order_details"`
}
