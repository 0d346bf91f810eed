// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/pulsetrader/internal/auth"
	"github.com/tomtom215/pulsetrader/internal/models"
	"github.com/tomtom215/pulsetrader/internal/users"
)

type registerRequest struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,min=6,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type settingsRequest struct {
	EmailNotifications *bool `json:"emailNotifications" validate:"required"`
}

// Register handles POST /api/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, token, err := h.deps.Auth.Register(r.Context(), auth.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if errors.Is(err, auth.ErrUserExists) {
		respondError(w, http.StatusBadRequest, CodeDuplicate, "User already exists", nil)
		return
	}
	if err != nil {
		respondInternal(w, r, err)
		return
	}

	respondData(w, http.StatusCreated, models.AuthResponse{
		Message: "User created successfully",
		Token:   token,
		User:    user.Public(),
	})
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, token, err := h.deps.Auth.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		respondError(w, http.StatusBadRequest, CodeAuthentication, "Invalid credentials", nil)
		return
	}
	if err != nil {
		respondInternal(w, r, err)
		return
	}

	respondData(w, http.StatusOK, models.AuthResponse{
		Message: "Login successful",
		Token:   token,
		User:    user.Public(),
	})
}

// Me handles GET /api/users/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	user, err := h.deps.Auth.Me(r.Context(), claims.UserID)
	if errors.Is(err, users.ErrNotFound) {
		respondError(w, http.StatusNotFound, CodeNotFound, "User not found", nil)
		return
	}
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	respondData(w, http.StatusOK, user.Public())
}

// UpdateSettings handles PUT /api/users/me/settings.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	claims, _ := auth.ClaimsFromContext(r.Context())
	user, err := h.deps.Auth.UpdateSettings(r.Context(), claims.UserID, models.UserSettings{
		EmailNotifications: *req.EmailNotifications,
	})
	if errors.Is(err, users.ErrNotFound) {
		respondError(w, http.StatusNotFound, CodeNotFound, "User not found", nil)
		return
	}
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	respondData(w, http.StatusOK, user.Public())
}
