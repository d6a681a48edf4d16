package cds

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrRuleNotFound      = errors.New("cds rule not found")
	ErrDuplicateRuleName = errors.New("cds rule name already exists")
)

type RuleRepository interface {
	Create(ctx context.Context, r *CDSRule) error
	GetByID(ctx context.Context, id uuid.UUID) (*CDSRule, error)
	Update(ctx context.Context, r *CDSRule) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, ruleType RuleType, limit, offset int) ([]*CDSRule, int, error)
	ListActiveByType(ctx context.Context, t RuleType) ([]*CDSRule, error)
}
