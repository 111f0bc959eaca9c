package middleware

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/internal/session"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

type sessionState interface {
	State() session.State
}

// RequireSession rejects requests while nobody is signed in and carries the user into the
// request context.
func RequireSession(store sessionState, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st := store.State()
			if !st.Authenticated() {
				rejectAnonymous(w, r, st, logg)
				return
			}
			next.ServeHTTP(w, r.WithContext(sessionContext(r, st, logg)))
		})
	}
}

// RequireAdmin admits only a resolved admin. A pending or failed role check counts as
// non-admin, and so does any state still loading.
func RequireAdmin(store sessionState, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st := store.State()
			if !st.Authenticated() {
				rejectAnonymous(w, r, st, logg)
				return
			}
			ctx := sessionContext(r, st, logg)
			if st.Loading || !st.IsAdmin {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required"))
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func rejectAnonymous(w http.ResponseWriter, r *http.Request, st session.State, logg *logger.Logger) {
	msg := "sign in required"
	if st.Phase == session.PhaseUnresolved {
		msg = "session is still loading"
	}
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeAuthentication, msg))
}

func sessionContext(r *http.Request, st session.State, logg *logger.Logger) context.Context {
	ctx := WithUserID(r.Context(), st.User.ID)
	ctx = WithAdmin(ctx, st.IsAdmin && !st.Loading)
	if logg != nil {
		ctx = logg.WithUserID(ctx, st.User.ID.String())
	}
	return ctx
}
