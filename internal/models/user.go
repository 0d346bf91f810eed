// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package models

import "time"

// Roles attached to JWT claims and checked by the authorizer.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// UserSettings are per-user delivery preferences.
type UserSettings struct {
	EmailNotifications bool `json:"emailNotifications"`
}

// User is a registered account. PasswordHash never leaves the server.
type User struct {
	ID           string       `json:"id"`
	FirstName    string       `json:"firstName"`
	LastName     string       `json:"lastName"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"passwordHash"`
	Role         string       `json:"role"`
	Settings     UserSettings `json:"settings"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// PublicUser is the API view of a User.
type PublicUser struct {
	ID        string       `json:"id"`
	FirstName string       `json:"firstName"`
	LastName  string       `json:"lastName"`
	Email     string       `json:"email"`
	Role      string       `json:"role"`
	Settings  UserSettings `json:"settings"`
}

// Public strips secrets from u.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Role:      u.Role,
		Settings:  u.Settings,
	}
}
