package catalog

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

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type itemRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &itemRepoPG{pool: pool}
}

func (r *itemRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const itemCols = `id, item_type, name, generic_name, code, is_active,
	min_dose, max_dose, default_dose_unit, parent_id, created_at, updated_at`

func scanItem(row pgx.Row) (*OrderableItem, error) {
	var i OrderableItem
	err := row.Scan(&i.ID, &i.ItemType, &i.Name, &i.GenericName, &i.Code, &i.IsActive,
		&i.MinDose, &i.MaxDose, &i.DefaultDoseUnit, &i.ParentID, &i.CreatedAt, &i.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (r *itemRepoPG) Create(ctx context.Context, i *OrderableItem) error {
	i.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO orderable_item (id, item_type, name, generic_name, code, is_active,
			min_dose, max_dose, default_dose_unit, parent_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		i.ID, i.ItemType, i.Name, i.GenericName, i.Code, i.IsActive,
		i.MinDose, i.MaxDose, i.DefaultDoseUnit, i.ParentID,
	).Scan(&i.CreatedAt, &i.UpdatedAt)
}

func (r *itemRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*OrderableItem, error) {
	return scanItem(r.conn(ctx).QueryRow(ctx, `SELECT `+itemCols+` FROM orderable_item WHERE id = $1`, id))
}

func (r *itemRepoPG) Update(ctx context.Context, i *OrderableItem) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE orderable_item SET item_type=$2, name=$3, generic_name=$4, code=$5, is_active=$6,
			min_dose=$7, max_dose=$8, default_dose_unit=$9, parent_id=$10, updated_at=NOW()
		WHERE id = $1`,
		i.ID, i.ItemType, i.Name, i.GenericName, i.Code, i.IsActive,
		i.MinDose, i.MaxDose, i.DefaultDoseUnit, i.ParentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *itemRepoPG) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE orderable_item SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *itemRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*OrderableItem, int, error) {
	where := ` WHERE is_active = TRUE`
	var args []interface{}
	idx := 1

	if f.Query != "" {
		where += fmt.Sprintf(` AND name ILIKE $%d`, idx)
		args = append(args, "%"+f.Query+"%")
		idx++
	}
	if f.ItemType != "" {
		where += fmt.Sprintf(` AND item_type = $%d`, idx)
		args = append(args, f.ItemType)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM orderable_item`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + itemCols + ` FROM orderable_item` + where +
		fmt.Sprintf(` ORDER BY name ASC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*OrderableItem
	for rows.Next() {
		i, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, i)
	}
	return items, total, rows.Err()
}
