package cds

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
)

const uniqueViolation = "23505"

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type ruleRepoPG struct{ pool *pgxpool.Pool }

func NewRuleRepoPG(pool *pgxpool.Pool) RuleRepository {
	return &ruleRepoPG{pool: pool}
}

func (r *ruleRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const ruleCols = `id, rule_name, description, rule_type, rule_logic, is_active, created_at, updated_at`

func scanRule(row pgx.Row) (*CDSRule, error) {
	var r CDSRule
	var logic []byte
	err := row.Scan(&r.ID, &r.RuleName, &r.Description, &r.RuleType, &logic, &r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, err
	}
	r.RuleLogic = logic
	return &r, nil
}

func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateRuleName
	}
	return err
}

func (r *ruleRepoPG) Create(ctx context.Context, rule *CDSRule) error {
	rule.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO cds_rule (id, rule_name, description, rule_type, rule_logic, is_active)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		rule.ID, rule.RuleName, rule.Description, rule.RuleType, []byte(rule.RuleLogic), rule.IsActive,
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
	return mapWriteErr(err)
}

func (r *ruleRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*CDSRule, error) {
	return scanRule(r.conn(ctx).QueryRow(ctx, `SELECT `+ruleCols+` FROM cds_rule WHERE id = $1`, id))
}

func (r *ruleRepoPG) Update(ctx context.Context, rule *CDSRule) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE cds_rule SET rule_name=$2, description=$3, rule_type=$4, rule_logic=$5,
			is_active=$6, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		rule.ID, rule.RuleName, rule.Description, rule.RuleType, []byte(rule.RuleLogic), rule.IsActive,
	).Scan(&rule.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrRuleNotFound
	}
	return mapWriteErr(err)
}

func (r *ruleRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM cds_rule WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (r *ruleRepoPG) List(ctx context.Context, ruleType RuleType, limit, offset int) ([]*CDSRule, int, error) {
	where := ""
	var args []interface{}
	idx := 1
	if ruleType != "" {
		where = fmt.Sprintf(` WHERE rule_type = $%d`, idx)
		args = append(args, string(ruleType))
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM cds_rule`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + ruleCols + ` FROM cds_rule` + where +
		fmt.Sprintf(` ORDER BY rule_name ASC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*CDSRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rule)
	}
	return out, total, rows.Err()
}

func (r *ruleRepoPG) ListActiveByType(ctx context.Context, t RuleType) ([]*CDSRule, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+ruleCols+` FROM cds_rule
		WHERE is_active = TRUE AND rule_type = $1
		ORDER BY rule_name`, string(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*CDSRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}
