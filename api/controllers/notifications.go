package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/restaurant-backend/api/responses"
	"github.com/angelmondragon/restaurant-backend/api/validators"
	"github.com/angelmondragon/restaurant-backend/internal/notifications"
	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
	"github.com/angelmondragon/restaurant-backend/pkg/pagination"
)

// inbox adapts a notification handler that needs the caller's id and returns
// its payload; any error is written as the response.
func inbox(svc notifications.Service, logg *logger.Logger, fn func(r *http.Request, userID uuid.UUID) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload, err := fn(r, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payload)
	}
}

// ListNotifications returns the caller's notifications, newest first.
// ?unreadOnly=true hides the ones already read.
func ListNotifications(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return inbox(svc, logg, func(r *http.Request, userID uuid.UUID) (any, error) {
		page, err := validators.ParsePage(r, pagination.DefaultLimit)
		if err != nil {
			return nil, err
		}
		unreadOnly, err := validators.ParseQueryBool(r, "unreadOnly")
		if err != nil {
			return nil, err
		}
		return svc.List(r.Context(), notifications.ListParams{UserID: userID, Page: page, UnreadOnly: unreadOnly})
	})
}

func MarkNotificationRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return inbox(svc, logg, func(r *http.Request, userID uuid.UUID) (any, error) {
		id, err := validators.ParseUUIDParam(r, "notificationId")
		if err != nil {
			return nil, err
		}
		if err := svc.MarkRead(r.Context(), userID, id); err != nil {
			return nil, err
		}
		return map[string]any{"id": id, "read": true}, nil
	})
}

func MarkAllNotificationsRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return inbox(svc, logg, func(r *http.Request, userID uuid.UUID) (any, error) {
		updated, err := svc.MarkAllRead(r.Context(), userID)
		if err != nil {
			return nil, err
		}
		return map[string]int64{"updated": updated}, nil
	})
}
