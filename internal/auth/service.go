// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/pulsetrader/internal/logging"
	"github.com/tomtom215/pulsetrader/internal/models"
	"github.com/tomtom215/pulsetrader/internal/users"
)

var (
	// ErrUserExists is returned by Register for a taken email.
	ErrUserExists = errors.New("user already exists")

	// ErrInvalidCredentials is returned by Login for an unknown email or a
	// wrong password. The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// RegisterInput is the register request after validation.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// ServiceConfig configures Service.
type ServiceConfig struct {
	BcryptCost int

	// AdminEmails receive the admin role at registration.
	AdminEmails []string
}

// Service registers and logs in local accounts.
type Service struct {
	users  users.Store
	jwt    *JWTManager
	cost   int
	admins map[string]bool
	now    func() time.Time
}

// NewService creates an account service.
func NewService(store users.Store, jwtManager *JWTManager, cfg ServiceConfig) *Service {
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	admins := make(map[string]bool, len(cfg.AdminEmails))
	for _, e := range cfg.AdminEmails {
		admins[users.NormalizeEmail(e)] = true
	}
	return &Service{users: store, jwt: jwtManager, cost: cost, admins: admins, now: time.Now}
}

// JWT returns the token manager shared with the live channel.
func (s *Service) JWT() *JWTManager {
	return s.jwt
}

// Register creates an account and returns it with a fresh token.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, string, error) {
	email := strings.TrimSpace(in.Email)
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, "", ErrUserExists
	} else if !errors.Is(err, users.ErrNotFound) {
		return nil, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	role := models.RoleUser
	if s.admins[users.NormalizeEmail(email)] {
		role = models.RoleAdmin
	}
	u := &models.User{
		ID:           uuid.NewString(),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		Settings:     models.UserSettings{EmailNotifications: true},
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, users.ErrEmailTaken) {
			return nil, "", ErrUserExists
		}
		return nil, "", err
	}

	token, err := s.jwt.GenerateToken(u)
	if err != nil {
		return nil, "", err
	}
	logging.Ctx(ctx).Info().Str("user_id", u.ID).Str("role", role).Msg("User registered")
	return u, token, nil
}

// Login checks credentials and returns the user with a fresh token.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, users.ErrNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		logging.Ctx(ctx).Debug().Str("user_id", u.ID).Msg("Login rejected")
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.jwt.GenerateToken(u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// Me returns the account for userID.
func (s *Service) Me(ctx context.Context, userID string) (*models.User, error) {
	return s.users.Get(ctx, userID)
}

// UpdateSettings replaces the user's preferences.
func (s *Service) UpdateSettings(ctx context.Context, userID string, settings models.UserSettings) (*models.User, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.Settings = settings
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
