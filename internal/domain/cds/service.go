package cds

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/catalog"
	"github.com/hms/hms/internal/domain/chart"
	"github.com/hms/hms/internal/platform/apperr"
)

type PatientLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*chart.Patient, error)
}

type ItemLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*catalog.OrderableItem, error)
}

// Service manages the rule store and runs checks outside of order entry.
type Service struct {
	rules     RuleRepository
	evaluator *Evaluator
	patients  PatientLookup
	items     ItemLookup
	logger    zerolog.Logger
}

func NewService(rules RuleRepository, evaluator *Evaluator, patients PatientLookup, items ItemLookup, logger zerolog.Logger) *Service {
	return &Service{
		rules:     rules,
		evaluator: evaluator,
		patients:  patients,
		items:     items,
		logger:    logger.With().Str("component", "cds-rules").Logger(),
	}
}

// ExecuteChecks evaluates a hypothetical order without writing anything.
func (s *Service) ExecuteChecks(ctx context.Context, patientID, itemID uuid.UUID, details map[string]interface{}) ([]Alert, error) {
	patient, err := s.patients.GetByID(ctx, patientID)
	if errors.Is(err, chart.ErrPatientNotFound) {
		return nil, apperr.NotFound("patient", patientID.String())
	}
	if err != nil {
		return nil, apperr.Storage("load patient", err)
	}

	item, err := s.items.GetByID(ctx, itemID)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, apperr.NotFound("orderable item", itemID.String())
	}
	if err != nil {
		return nil, apperr.Storage("load orderable item", err)
	}

	alerts, err := s.evaluator.Evaluate(ctx, patient, item, details)
	if err != nil {
		return nil, apperr.Storage("evaluate cds checks", err)
	}
	return alerts, nil
}

func validateRule(in *RuleInput) error {
	if err := apperr.ValidateStruct(in); err != nil {
		return err
	}
	if strings.TrimSpace(in.RuleName) == "" {
		return apperr.Validation("rule_name is required")
	}
	if _, err := DecodeLogic(RuleType(in.RuleType), in.RuleLogic); err != nil {
		return apperr.Validation("%v", err)
	}
	return nil
}

func applyRuleInput(r *CDSRule, in *RuleInput) {
	r.RuleName = strings.TrimSpace(in.RuleName)
	r.Description = in.Description
	r.RuleType = RuleType(in.RuleType)
	r.RuleLogic = json.RawMessage(in.RuleLogic)
	if in.IsActive != nil {
		r.IsActive = *in.IsActive
	}
}

func (s *Service) mapRuleErr(op string, id uuid.UUID, err error) error {
	switch {
	case errors.Is(err, ErrRuleNotFound):
		return apperr.NotFound("cds rule", id.String())
	case errors.Is(err, ErrDuplicateRuleName):
		return apperr.Validation("a rule with this rule_name already exists")
	default:
		return apperr.Storage(op, err)
	}
}

func (s *Service) CreateRule(ctx context.Context, in *RuleInput) (*CDSRule, error) {
	if err := validateRule(in); err != nil {
		return nil, err
	}
	rule := &CDSRule{IsActive: true}
	applyRuleInput(rule, in)
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, s.mapRuleErr("create cds rule", rule.ID, err)
	}
	s.logger.Info().Str("rule_id", rule.ID.String()).Str("rule_type", string(rule.RuleType)).Msg("cds rule created")
	return rule, nil
}

func (s *Service) GetRule(ctx context.Context, id uuid.UUID) (*CDSRule, error) {
	rule, err := s.rules.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapRuleErr("get cds rule", id, err)
	}
	return rule, nil
}

func (s *Service) UpdateRule(ctx context.Context, id uuid.UUID, in *RuleInput) (*CDSRule, error) {
	if err := validateRule(in); err != nil {
		return nil, err
	}
	rule, err := s.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	applyRuleInput(rule, in)
	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, s.mapRuleErr("update cds rule", id, err)
	}
	s.logger.Info().Str("rule_id", id.String()).Bool("active", rule.IsActive).Msg("cds rule updated")
	return rule, nil
}

func (s *Service) DeleteRule(ctx context.Context, id uuid.UUID) error {
	if err := s.rules.Delete(ctx, id); err != nil {
		return s.mapRuleErr("delete cds rule", id, err)
	}
	s.logger.Info().Str("rule_id", id.String()).Msg("cds rule deleted")
	return nil
}

func (s *Service) ListRules(ctx context.Context, ruleType RuleType, limit, offset int) ([]*CDSRule, int, error) {
	rules, total, err := s.rules.List(ctx, ruleType, limit, offset)
	if err != nil {
		return nil, 0, apperr.Storage("list cds rules", err)
	}
	return rules, total, nil
}
