package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/apperr"
)

type Service struct {
	items  Repository
	logger zerolog.Logger
}

func NewService(items Repository, logger zerolog.Logger) *Service {
	return &Service{items: items, logger: logger.With().Str("component", "catalog").Logger()}
}

func validateInput(in *ItemInput) error {
	if err := apperr.ValidateStruct(in); err != nil {
		return err
	}
	hasDose := in.MinDose != nil || in.MaxDose != nil || (in.DefaultDoseUnit != nil && *in.DefaultDoseUnit != "")
	if hasDose && ItemType(in.ItemType) != ItemMedication {
		return apperr.Validation("dose bounds apply only to Medication items")
	}
	if in.MinDose != nil && in.MaxDose != nil && *in.MinDose > *in.MaxDose {
		return apperr.Validation("min_dose must not exceed max_dose")
	}
	return nil
}

func applyInput(item *OrderableItem, in *ItemInput) {
	item.ItemType = ItemType(in.ItemType)
	item.Name = in.Name
	item.GenericName = in.GenericName
	item.Code = in.Code
	item.MinDose = in.MinDose
	item.MaxDose = in.MaxDose
	item.DefaultDoseUnit = in.DefaultDoseUnit
	item.ParentID = in.ParentID
	if in.IsActive != nil {
		item.IsActive = *in.IsActive
	}
}

func (s *Service) CreateItem(ctx context.Context, in *ItemInput) (*OrderableItem, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if in.ParentID != nil {
		if _, err := s.GetItem(ctx, *in.ParentID); err != nil {
			return nil, err
		}
	}

	item := &OrderableItem{IsActive: true}
	applyInput(item, in)
	if err := s.items.Create(ctx, item); err != nil {
		return nil, apperr.Storage("create orderable item", err)
	}
	s.logger.Info().Str("item_id", item.ID.String()).Str("name", item.Name).Msg("orderable item created")
	return item, nil
}

// GetItem returns the item regardless of its active flag.
func (s *Service) GetItem(ctx context.Context, id uuid.UUID) (*OrderableItem, error) {
	item, err := s.items.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("orderable item", id.String())
	}
	if err != nil {
		return nil, apperr.Storage("get orderable item", err)
	}
	return item, nil
}

func (s *Service) UpdateItem(ctx context.Context, id uuid.UUID, in *ItemInput) (*OrderableItem, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if in.ParentID != nil && *in.ParentID == id {
		return nil, apperr.Validation("an item cannot be its own parent")
	}

	item, err := s.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	applyInput(item, in)
	if err := s.items.Update(ctx, item); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("orderable item", id.String())
		}
		return nil, apperr.Storage("update orderable item", err)
	}
	return item, nil
}

func (s *Service) DeactivateItem(ctx context.Context, id uuid.UUID) error {
	err := s.items.Deactivate(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("orderable item", id.String())
	}
	if err != nil {
		return apperr.Storage("deactivate orderable item", err)
	}
	s.logger.Info().Str("item_id", id.String()).Msg("orderable item deactivated")
	return nil
}

func (s *Service) ListItems(ctx context.Context, f ListFilter, limit, offset int) ([]*OrderableItem, int, error) {
	if f.ItemType != "" && !f.ItemType.Valid() {
		return nil, 0, apperr.Validation("invalid item type: %s", f.ItemType)
	}
	items, total, err := s.items.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, apperr.Storage("list orderable items", err)
	}
	return items, total, nil
}
