package cpoe

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

type orderRepoPG struct{ pool *pgxpool.Pool }

func NewOrderRepoPG(pool *pgxpool.Pool) OrderRepository {
	return &orderRepoPG{pool: pool}
}

func (r *orderRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const orderSelect = `SELECT o.id, o.patient_id, o.orderable_item_id, COALESCE(oi.name, ''),
	o.order_details, o.priority, o.status, o.ordering_physician_id, o.order_placed_at,
	o.signed_at, o.signed_by, o.discontinued_at, o.discontinued_by, o.discontinuation_reason, o.updated_at
	FROM clinical_order o
	LEFT JOIN orderable_item oi ON oi.id = o.orderable_item_id`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.PatientID, &o.OrderableItemID, &o.OrderableItemName,
		&o.OrderDetails, &o.Priority, &o.Status, &o.OrderingPhysicianID, &o.OrderPlacedAt,
		&o.SignedAt, &o.SignedBy, &o.DiscontinuedAt, &o.DiscontinuedBy, &o.DiscontinuationReason, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if o.OrderDetails == nil {
		o.OrderDetails = map[string]interface{}{}
	}
	return &o, nil
}

func (r *orderRepoPG) Create(ctx context.Context, o *Order) error {
	o.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO clinical_order (id, patient_id, orderable_item_id, order_details, priority,
			status, ordering_physician_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING order_placed_at, updated_at`,
		o.ID, o.PatientID, o.OrderableItemID, o.OrderDetails, o.Priority, o.Status, o.OrderingPhysicianID,
	).Scan(&o.OrderPlacedAt, &o.UpdatedAt)
}

func (r *orderRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return scanOrder(r.conn(ctx).QueryRow(ctx, orderSelect+` WHERE o.id = $1`, id))
}

func (r *orderRepoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Order, error) {
	return scanOrder(r.conn(ctx).QueryRow(ctx, orderSelect+` WHERE o.id = $1 FOR UPDATE OF o`, id))
}

func (r *orderRepoPG) UpdateStatus(ctx context.Context, o *Order) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE clinical_order SET status=$2, signed_at=$3, signed_by=$4,
			discontinued_at=$5, discontinued_by=$6, discontinuation_reason=$7, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		o.ID, o.Status, o.SignedAt, o.SignedBy, o.DiscontinuedAt, o.DiscontinuedBy, o.DiscontinuationReason,
	).Scan(&o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrOrderNotFound
	}
	return err
}

func (r *orderRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, status OrderStatus, limit, offset int) ([]*Order, int, error) {
	where := ` WHERE o.patient_id = $1`
	args := []interface{}{patientID}
	idx := 2
	if status != "" {
		where += fmt.Sprintf(` AND o.status = $%d`, idx)
		args = append(args, string(status))
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM clinical_order o`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := orderSelect + where + fmt.Sprintf(` ORDER BY o.order_placed_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

// FindActiveOrder reports the most recent Active order for the patient and
// item. It takes no lock; two concurrent submissions may both miss each other.
func (r *orderRepoPG) FindActiveOrder(ctx context.Context, patientID, itemID uuid.UUID) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id FROM clinical_order
		WHERE patient_id = $1 AND orderable_item_id = $2 AND status = $3
		ORDER BY order_placed_at DESC LIMIT 1`,
		patientID, itemID, string(StatusActive),
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

func (r *orderRepoPG) RecordStatusChange(ctx context.Context, c *StatusChange) error {
	c.ID = uuid.New()
	var from *string
	if c.FromStatus != nil {
		s := string(*c.FromStatus)
		from = &s
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO order_status_history (id, order_id, from_status, to_status, changed_by, reason)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING changed_at`,
		c.ID, c.OrderID, from, string(c.ToStatus), c.ChangedBy, c.Reason,
	).Scan(&c.ChangedAt)
}

func (r *orderRepoPG) ListStatusHistory(ctx context.Context, orderID uuid.UUID) ([]*StatusChange, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, order_id, from_status, to_status, changed_by, reason, changed_at
		FROM order_status_history WHERE order_id = $1
		ORDER BY changed_at ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*StatusChange
	for rows.Next() {
		var c StatusChange
		var from *string
		var to string
		if err := rows.Scan(&c.ID, &c.OrderID, &from, &to, &c.ChangedBy, &c.Reason, &c.ChangedAt); err != nil {
			return nil, err
		}
		if from != nil {
			fs := OrderStatus(*from)
			c.FromStatus = &fs
		}
		c.ToStatus = OrderStatus(to)
		out = append(out, &c)
	}
	return out, rows.Err()
}
