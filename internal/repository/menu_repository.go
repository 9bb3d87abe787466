package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platepay/platepay-api/internal/database"
	"github.com/platepay/platepay-api/internal/models"
	"github.com/platepay/platepay-api/pkg/logger"
)

// MenuRepository handles database operations for menu items
type MenuRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewMenuRepository creates a new MenuRepository
func NewMenuRepository(db *database.Database, logger logger.Logger) *MenuRepository {
	return &MenuRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new menu item
func (r *MenuRepository) Create(ctx context.Context, item *models.MenuItem) error {
	query := `
		INSERT INTO menu_items (id, name, price, category, image, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.DB.ExecContext(
		ctx,
		query,
		item.ID,
		item.Name,
		item.Price,
		item.Category,
		item.Image,
		item.Description,
		item.CreatedAt,
		item.UpdatedAt,
	)

	if err != nil {
		r.logger.Error("Failed to create menu item", "error", err, "itemID", item.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// GetByID retrieves a menu item by its ID
func (r *MenuRepository) GetByID(ctx context.Context, id string) (*models.MenuItem, error) {
	query := `
		SELECT id, name, price, category, image, description, created_at, updated_at
		FROM menu_items WHERE id = $1
	`

	var item models.MenuItem
	err := r.db.DB.GetContext(ctx, &item, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get menu item", "error", err, "itemID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &item, nil
}

// GetAll lists menu items, optionally filtered by category
// (case-insensitive exact match).
func (r *MenuRepository) GetAll(ctx context.Context, category string) ([]*models.MenuItem, error) {
	query := `
		SELECT id, name, price, category, image, description, created_at, updated_at
		FROM menu_items
	`
	args := []interface{}{}

	if category != "" {
		query += ` WHERE LOWER(category) = LOWER($1)`
		args = append(args, category)
	}

	query += ` ORDER BY name ASC`

	var items []*models.MenuItem
	err := r.db.DB.SelectContext(ctx, &items, query, args...)

	if err != nil {
		r.logger.Error("Failed to list menu items", "error", err, "category", category)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return items, nil
}

// Update updates an existing menu item
func (r *MenuRepository) Update(ctx context.Context, item *models.MenuItem) error {
	query := `
		UPDATE menu_items
		SET name = $1, price = $2, category = $3, image = $4, description = $5, updated_at = $6
		WHERE id = $7
	`

	result, err := r.db.DB.ExecContext(
		ctx,
		query,
		item.Name,
		item.Price,
		item.Category,
		item.Image,
		item.Description,
		models.GetCurrentTime(),
		item.ID,
	)

	if err != nil {
		r.logger.Error("Failed to update menu item", "error", err, "itemID", item.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return checkAffected(result)
}

// Delete removes a menu item by its ID
func (r *MenuRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.DB.ExecContext(ctx, `DELETE FROM menu_items WHERE id = $1`, id)

	if err != nil {
		r.logger.Error("Failed to delete menu item", "error", err, "itemID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return checkAffected(result)
}
