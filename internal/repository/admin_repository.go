package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/platepay/platepay-api/internal/database"
	"github.com/platepay/platepay-api/internal/models"
	"github.com/platepay/platepay-api/pkg/logger"
)

// AdminRepository handles database operations for admin accounts
type AdminRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewAdminRepository creates a new AdminRepository
func NewAdminRepository(db *database.Database, logger logger.Logger) *AdminRepository {
	return &AdminRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new admin account. A duplicate email maps to ErrDuplicate.
func (r *AdminRepository) Create(ctx context.Context, admin *models.Admin) error {
	query := `
		INSERT INTO admins (id, full_name, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.DB.ExecContext(
		ctx,
		query,
		admin.ID,
		admin.FullName,
		admin.Email,
		admin.PasswordHash,
		admin.CreatedAt,
	)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return fmt.Errorf("%w: email %q", ErrDuplicate, admin.Email)
		}
		r.logger.Error("Failed to create admin", "error", err, "adminID", admin.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// GetByEmail retrieves an admin by email
func (r *AdminRepository) GetByEmail(ctx context.Context, email string) (*models.Admin, error) {
	query := `
		SELECT id, full_name, email, password_hash, created_at
		FROM admins WHERE email = $1
	`

	var admin models.Admin
	err := r.db.DB.GetContext(ctx, &admin, query, email)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get admin by email", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &admin, nil
}
