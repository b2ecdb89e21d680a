package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Service struct {
	items ItemRepository
}

func NewService(items ItemRepository) *Service {
	return &Service{items: items}
}

func (s *Service) CreateItem(ctx context.Context, item *Item) error {
	if item.UnitID == uuid.Nil {
		return fmt.Errorf("unit_id is required")
	}
	if item.Name == "" {
		return fmt.Errorf("name is required")
	}
	if item.CurrentUnits < 0 {
		return fmt.Errorf("current_units must not be negative")
	}
	return s.items.Create(ctx, item)
}

func (s *Service) GetItem(ctx context.Context, id uuid.UUID) (*Item, error) {
	return s.items.GetByID(ctx, id)
}

func (s *Service) GetItems(ctx context.Context, ids []uuid.UUID) ([]*Item, error) {
	return s.items.GetByIDs(ctx, ids)
}

func (s *Service) ListItems(ctx context.Context, unitID uuid.UUID, limit, offset int) ([]*Item, int, error) {
	if unitID == uuid.Nil {
		return nil, 0, fmt.Errorf("unit_id is required")
	}
	return s.items.ListByUnit(ctx, unitID, limit, offset)
}

func (s *Service) UpdateItem(ctx context.Context, item *Item) error {
	if item.ID == uuid.Nil {
		return fmt.Errorf("id is required")
	}
	if item.Name == "" {
		return fmt.Errorf("name is required")
	}
	return s.items.Update(ctx, item)
}

// Deduct removes qty units from stock. Stock never goes below zero even
// when usage exceeds what is on the shelf.
func (s *Service) Deduct(ctx context.Context, id uuid.UUID, qty int) (int, error) {
	if qty < 0 {
		return 0, fmt.Errorf("quantity must not be negative")
	}
	return s.items.AdjustStock(ctx, id, -qty)
}

// Restore returns qty units to stock, typically when a commit is rolled back.
func (s *Service) Restore(ctx context.Context, id uuid.UUID, qty int) (int, error) {
	if qty < 0 {
		return 0, fmt.Errorf("quantity must not be negative")
	}
	return s.items.AdjustStock(ctx, id, qty)
}
