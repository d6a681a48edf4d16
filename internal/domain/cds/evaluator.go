package cds

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/catalog"
	"github.com/hms/hms/internal/domain/chart"
	"github.com/hms/hms/internal/platform/metrics"
)

// OrderHistory finds an Active order for the same patient and item.
type OrderHistory interface {
	FindActiveOrder(ctx context.Context, patientID, itemID uuid.UUID) (uuid.UUID, bool, error)
}

type AllergySource interface {
	ListActiveAllergies(ctx context.Context, patientID uuid.UUID) ([]*chart.PatientAllergy, error)
}

type MedicationSource interface {
	ListActiveInpatientMedications(ctx context.Context, patientID uuid.UUID) ([]*chart.PatientMedication, error)
}

type RuleSource interface {
	ListActiveByType(ctx context.Context, t RuleType) ([]*CDSRule, error)
}

// Evaluator runs the order-safety checks. It only reads; the caller decides
// what to do with the alerts and owns the transaction.
type Evaluator struct {
	orders    OrderHistory
	allergies AllergySource
	meds      MedicationSource
	rules     RuleSource
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

func NewEvaluator(orders OrderHistory, allergies AllergySource, meds MedicationSource, rules RuleSource,
	logger zerolog.Logger, m *metrics.Metrics) *Evaluator {
	return &Evaluator{
		orders:    orders,
		allergies: allergies,
		meds:      meds,
		rules:     rules,
		logger:    logger.With().Str("component", "cds").Logger(),
		metrics:   m,
	}
}

// Evaluate runs the duplicate, allergy, interaction and dose checks in that
// order and concatenates their alerts. An error means a source could not be
// read; missing or malformed order details never produce one.
func (e *Evaluator) Evaluate(ctx context.Context, patient *chart.Patient, item *catalog.OrderableItem,
	details map[string]interface{}) ([]Alert, error) {
	start := time.Now()
	alerts := []Alert{}

	existing, found, err := e.orders.FindActiveOrder(ctx, patient.ID, item.ID)
	if err != nil {
		return nil, fmt.Errorf("duplicate order check: %w", err)
	}
	if found {
		alerts = append(alerts, duplicateAlerts(item, existing)...)
	}

	if item.IsMedication() {
		allergies, err := e.allergies.ListActiveAllergies(ctx, patient.ID)
		if err != nil {
			return nil, fmt.Errorf("allergy check: %w", err)
		}
		alerts = append(alerts, allergyAlerts(item, allergies)...)

		interactions, err := e.interactionAlerts(ctx, patient, item)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, interactions...)
	}

	alerts = append(alerts, doseAlerts(item, details)...)

	e.metrics.ObserveEvaluation(time.Since(start))
	for _, a := range alerts {
		e.metrics.AlertRaised(string(a.Type), string(a.Severity))
	}
	e.logger.Info().
		Str("patient_id", patient.ID.String()).
		Str("item_id", item.ID.String()).
		Int("alerts", len(alerts)).
		Bool("critical", HasCritical(alerts)).
		Msg("cds evaluation complete")

	return alerts, nil
}

func (e *Evaluator) interactionAlerts(ctx context.Context, patient *chart.Patient, item *catalog.OrderableItem) ([]Alert, error) {
	rules, err := e.rules.ListActiveByType(ctx, RuleDrugInteraction)
	if err != nil {
		return nil, fmt.Errorf("interaction check: load rules: %w", err)
	}
	if len(rules) == 0 {
		return nil, nil
	}

	logic := make([]InteractionLogic, 0, len(rules))
	for _, r := range rules {
		decoded, err := r.Logic()
		if err != nil {
			e.logger.Warn().Err(err).Str("rule", r.RuleName).Msg("skipping rule with malformed logic")
			continue
		}
		if il, ok := decoded.(InteractionLogic); ok {
			logic = append(logic, il)
		}
	}
	if len(logic) == 0 {
		return nil, nil
	}

	meds, err := e.meds.ListActiveInpatientMedications(ctx, patient.ID)
	if err != nil {
		return nil, fmt.Errorf("interaction check: load medications: %w", err)
	}
	return interactionAlerts(item, logic, meds), nil
}
