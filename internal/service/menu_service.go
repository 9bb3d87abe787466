package service

import (
	"context"
	"errors"

	"github.com/platepay/platepay-api/internal/cache"
	"github.com/platepay/platepay-api/internal/models"
	"github.com/platepay/platepay-api/internal/repository"
	apperrors "github.com/platepay/platepay-api/pkg/errors"
	"github.com/platepay/platepay-api/pkg/logger"
)

// MenuService handles menu item management and the cached public listing
type MenuService struct {
	menuRepo *repository.MenuRepository
	cache    *cache.MenuCache
	logger   logger.Logger
}

// NewMenuService creates a new MenuService. The cache is optional; without
// it every read goes to the database.
func NewMenuService(menuRepo *repository.MenuRepository, cache *cache.MenuCache, logger logger.Logger) *MenuService {
	return &MenuService{
		menuRepo: menuRepo,
		cache:    cache,
		logger:   logger,
	}
}

// MenuItemInput carries the writable fields of a menu item
type MenuItemInput struct {
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Image       *string `json:"image,omitempty"`
}

// CreateItem adds a menu item and invalidates the listing cache
func (s *MenuService) CreateItem(ctx context.Context, input MenuItemInput) (*models.MenuItem, error) {
	if input.Name == "" {
		return nil, apperrors.NewInvalidInputError("menu item name is required")
	}

	if input.Price <= 0 {
		return nil, apperrors.NewInvalidInputError("menu item price must be positive")
	}

	item := models.NewMenuItem(input.Name, input.Price, input.Category, input.Description, input.Image)

	if err := s.menuRepo.Create(ctx, item); err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.Info("Menu item created", "itemID", item.ID, "name", item.Name)
	return item, nil
}

// GetItem retrieves a single menu item
func (s *MenuService) GetItem(ctx context.Context, id string) (*models.MenuItem, error) {
	item, err := s.menuRepo.GetByID(ctx, id)

	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFoundError("Menu item not found")
		}
		return nil, err
	}

	return item, nil
}

// ListItems returns the menu, optionally filtered by category, served from
// cache when possible.
func (s *MenuService) ListItems(ctx context.Context, category string) ([]*models.MenuItem, error) {
	if s.cache != nil {
		if items, ok := s.cache.Get(ctx, category); ok {
			return items, nil
		}
	}

	items, err := s.menuRepo.GetAll(ctx, category)

	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, category, items)
	}

	return items, nil
}

// UpdateItem applies a full update to a menu item
func (s *MenuService) UpdateItem(ctx context.Context, id string, input MenuItemInput) (*models.MenuItem, error) {
	item, err := s.GetItem(ctx, id)

	if err != nil {
		return nil, err
	}

	if input.Name != "" {
		item.Name = input.Name
	}

	if input.Price > 0 {
		item.Price = input.Price
	}

	if input.Category != "" {
		item.Category = input.Category
	}

	if input.Description != "" {
		item.Description = input.Description
	}

	if input.Image != nil {
		item.Image = input.Image
	}

	item.UpdatedAt = models.GetCurrentTime()

	if err := s.menuRepo.Update(ctx, item); err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	return item, nil
}

// DeleteItem removes a menu item
func (s *MenuService) DeleteItem(ctx context.Context, id string) error {
	if err := s.menuRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFoundError("Menu item not found")
		}
		return err
	}

	s.invalidate(ctx)
	s.logger.Info("Menu item deleted", "itemID", id)
	return nil
}

func (s *MenuService) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}
