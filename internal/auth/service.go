package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"ms-storefront/internal/apperr"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/utils"
)

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"full_name" validate:"required,max=200"`
	Phone    string `json:"phone" validate:"omitempty,min=8,max=20"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

type Service struct {
	DB          *bun.DB
	Tokens      *Tokens
	Revocations Revocations
	Logger      *logger.Logger
}

func NewService(db *bun.DB, tokens *Tokens, revocations Revocations, log *logger.Logger) *Service {
	return &Service{DB: db, Tokens: tokens, Revocations: revocations, Logger: log}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a customer account and signs it in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	req.Email = normalizeEmail(req.Email)
	if err := utils.Validate(req); err != nil {
		return nil, err
	}
	email := req.Email

	exists, err := s.DB.NewSelect().Model((*models.User)(nil)).Where("email = ?", email).Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, apperr.Conflict("EMAIL_TAKEN", "an account with this email already exists")
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		ID:           utils.GenerateID(),
		Email:        email,
		FullName:     strings.TrimSpace(req.FullName),
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: hash,
		Role:         models.RoleCustomer,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := s.DB.NewInsert().Model(user).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	s.Logger.Info("AUTH", fmt.Sprintf("Registered user %s", user.ID))
	return s.issue(user)
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	req.Email = normalizeEmail(req.Email)
	if err := utils.Validate(req); err != nil {
		return nil, err
	}

	var user models.User
	err := s.DB.NewSelect().Model(&user).Where("email = ?", req.Email).Limit(1).Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if err != nil || !CheckPassword(user.PasswordHash, req.Password) {
		s.Logger.LogSecurity("LOGIN_FAILED", req.Email)
		return nil, apperr.Unauthorized("invalid email or password")
	}
	return s.issue(&user)
}

func (s *Service) issue(user *models.User) (*Session, error) {
	token, claims, err := s.Tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: claims.ExpiresAt.Time, User: user}, nil
}

// Logout revokes the token until it would have expired anyway.
func (s *Service) Logout(ctx context.Context, raw string) error {
	claims, err := s.Tokens.Parse(raw)
	if err != nil {
		return apperr.Unauthorized("session is invalid or expired")
	}
	return s.Revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}

func (s *Service) Me(ctx context.Context, p Principal) (*models.User, error) {
	var user models.User
	err := s.DB.NewSelect().Model(&user).Where("id = ?", p.UserID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &user, nil
}
