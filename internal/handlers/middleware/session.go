package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/nkiryanov/eazynet/internal/handlers/render"
	"github.com/nkiryanov/eazynet/internal/handlers/sessionctx"
	"github.com/nkiryanov/eazynet/internal/models"
	"github.com/nkiryanov/eazynet/internal/service/authstate"
	"github.com/nkiryanov/eazynet/internal/service/oauth"
)

type warnLogger interface {
	Warn(msg string, args ...any)
}

// Renews provider tokens of the OAuth session
type Refresher interface {
	Refresh(ctx context.Context, s models.OAuthSession) (models.OAuthSession, error)
}

// SessionMiddleware builds the visitor's session for the request and puts it into the context
func SessionMiddleware(build func(w http.ResponseWriter, r *http.Request) *sessionctx.Session) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := build(w, r)
			ctx := sessionctx.New(r.Context(), s)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Mount resolves who is signed in. Provider tokens about to expire are renewed on the way.
// Refresher may be nil if no provider is configured.
func Mount(ctx context.Context, s *sessionctx.Session, refresher Refresher, l warnLogger) authstate.Identity {
	id := s.Auth.Mount(ctx)

	if refresher == nil || id.OAuth == nil || !oauth.NeedsRefresh(*id.OAuth, time.Now()) {
		return id
	}

	renewed, err := refresher.Refresh(ctx, *id.OAuth)
	if err != nil {
		l.Warn("Failed to renew provider tokens", "provider", id.OAuth.Provider, "error", err)
		return id
	}

	id, err = s.Auth.HandleEvent(ctx, authstate.EventTokenRefreshed{Session: renewed})
	if err != nil {
		l.Warn("Failed to store renewed provider tokens", "error", err)
	}
	return id
}

// GuardMiddleware mounts the session and redirects page requests the visitor may not see:
// signed in visitors away from sign in pages and anonymous ones away from account pages.
func GuardMiddleware(refresher Refresher, l warnLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := sessionctx.FromContext(r.Context())
			if !ok {
				render.ServiceError(w, "Session is not initialized", http.StatusInternalServerError)
				return
			}

			Mount(r.Context(), s, refresher, l)

			if target, ok := s.Auth.Redirect(r.URL.Path); ok {
				defer s.Auth.RedirectDone()
				http.Redirect(w, r, target, http.StatusSeeOther)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
