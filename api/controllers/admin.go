package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/internal/dashboard"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/notify"
)

type DashboardStats interface {
	Stats(ctx context.Context) (dashboard.Stats, error)
}

type NotificationFeed interface {
	Recent() []notify.Message
}

func AdminDashboard(svc DashboardStats, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Stats(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

// Notifications lists the retained notices, oldest first.
func Notifications(feed NotificationFeed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msgs := feed.Recent()
		if msgs == nil {
			msgs = []notify.Message{}
		}
		responses.WriteSuccess(w, msgs)
	}
}
