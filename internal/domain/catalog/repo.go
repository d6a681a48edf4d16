package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("orderable item not found")

type Repository interface {
	Create(ctx context.Context, item *OrderableItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*OrderableItem, error)
	Update(ctx context.Context, item *OrderableItem) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]*OrderableItem, int, error)
}
