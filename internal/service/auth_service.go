package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/platepay/platepay-api/internal/config"
	"github.com/platepay/platepay-api/internal/models"
	"github.com/platepay/platepay-api/internal/repository"
	apperrors "github.com/platepay/platepay-api/pkg/errors"
	"github.com/platepay/platepay-api/pkg/logger"
)

// AdminClaims is the JWT payload issued to console admins
type AdminClaims struct {
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService issues and validates admin console credentials
type AuthService struct {
	adminRepo *repository.AdminRepository
	jwtSecret []byte
	tokenTTL  time.Duration
	logger    logger.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(adminRepo *repository.AdminRepository, cfg config.AuthConfig, logger logger.Logger) (*AuthService, error) {
	ttl, err := time.ParseDuration(cfg.TokenTTL)

	if err != nil {
		return nil, fmt.Errorf("invalid token TTL %q: %w", cfg.TokenTTL, err)
	}

	return &AuthService{
		adminRepo: adminRepo,
		jwtSecret: []byte(cfg.JWTSecret),
		tokenTTL:  ttl,
		logger:    logger,
	}, nil
}

// Signup registers a new admin account
func (s *AuthService) Signup(ctx context.Context, fullName, email, password string) (*models.Admin, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if fullName == "" || email == "" {
		return nil, apperrors.NewInvalidInputError("full name and email are required")
	}

	if len(password) < 8 {
		return nil, apperrors.NewInvalidInputError("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	admin := models.NewAdmin(fullName, email, string(hash))

	if err := s.adminRepo.Create(ctx, admin); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflictError("an admin with this email already exists")
		}
		return nil, err
	}

	s.logger.Info("Admin account created", "adminID", admin.ID, "email", admin.Email)
	return admin, nil
}

// Login verifies credentials and issues a signed token
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *models.Admin, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	admin, err := s.adminRepo.GetByEmail(ctx, email)

	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, apperrors.NewUnauthorizedError("invalid email or password")
		}
		return "", nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return "", nil, apperrors.NewUnauthorizedError("invalid email or password")
	}

	now := time.Now().UTC()

	claims := AdminClaims{
		FullName: admin.FullName,
		Role:     "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   admin.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)

	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}

	s.logger.Info("Admin logged in", "adminID", admin.ID)
	return token, admin, nil
}

// ValidateToken parses and verifies an admin token
func (s *AuthService) ValidateToken(tokenString string) (*AdminClaims, error) {
	claims := &AdminClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})

	if err != nil || !token.Valid {
		return nil, apperrors.NewUnauthorizedError("invalid or expired token")
	}

	return claims, nil
}
