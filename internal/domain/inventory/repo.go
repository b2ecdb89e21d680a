package inventory

import (
	"context"

	"github.com/google/uuid"
)

type ItemRepository interface {
	Create(ctx context.Context, item *Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*Item, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Item, error)
	ListByUnit(ctx context.Context, unitID uuid.UUID, limit, offset int) ([]*Item, int, error)
	Update(ctx context.Context, item *Item) error
	// AdjustStock adds delta to the item's current units, clamping the
	// result at zero. Returns the new stock level.
	AdjustStock(ctx context.Context, id uuid.UUID, delta int) (int, error)
}
