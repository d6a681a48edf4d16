package cpoe

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrOrderNotFound = errors.New("order not found")

type OrderRepository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	// GetByIDForUpdate locks the row for the rest of the transaction.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Order, error)
	UpdateStatus(ctx context.Context, o *Order) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, status OrderStatus, limit, offset int) ([]*Order, int, error)
	FindActiveOrder(ctx context.Context, patientID, itemID uuid.UUID) (uuid.UUID, bool, error)
	RecordStatusChange(ctx context.Context, c *StatusChange) error
	ListStatusHistory(ctx context.Context, orderID uuid.UUID) ([]*StatusChange, error)
}
