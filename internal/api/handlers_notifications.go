// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/pulsetrader/internal/auth"
	"github.com/tomtom215/pulsetrader/internal/models"
	"github.com/tomtom215/pulsetrader/internal/notification"
)

// ListNotifications handles GET /api/notifications. Metadata carries the
// total and unread counts.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	list, err := h.deps.Notifications.List(r.Context(), claims.UserID)
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	if list == nil {
		list = []models.Notification{}
	}

	count, unread := len(list), 0
	for i := range list {
		if !list[i].Read {
			unread++
		}
	}
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status:   "success",
		Data:     list,
		Metadata: models.Metadata{Timestamp: timeNow(), Count: &count, Unread: &unread},
	})
}

// MarkNotificationRead handles PUT /api/notifications/{id}/read.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	err := h.deps.Notifications.MarkRead(r.Context(), claims.UserID, chi.URLParam(r, "id"))
	if errors.Is(err, notification.ErrNotFound) {
		respondError(w, http.StatusNotFound, CodeNotFound, "Notification not found", nil)
		return
	}
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	respondData(w, http.StatusOK, map[string]string{"message": "Notification marked as read"})
}

// DeleteNotification handles DELETE /api/notifications/{id}.
func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	err := h.deps.Notifications.Delete(r.Context(), claims.UserID, chi.URLParam(r, "id"))
	if errors.Is(err, notification.ErrNotFound) {
		respondError(w, http.StatusNotFound, CodeNotFound, "Notification not found", nil)
		return
	}
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	respondData(w, http.StatusOK, map[string]string{"message": "Notification deleted"})
}
