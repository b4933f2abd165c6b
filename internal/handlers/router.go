package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/nkiryanov/eazynet/internal/cache"
	"github.com/nkiryanov/eazynet/internal/handlers/middleware"
	"github.com/nkiryanov/eazynet/internal/handlers/render"
	"github.com/nkiryanov/eazynet/internal/handlers/sessionctx"
	"github.com/nkiryanov/eazynet/internal/logger"
	"github.com/nkiryanov/eazynet/internal/models"
	"github.com/nkiryanov/eazynet/internal/repository"
	"github.com/nkiryanov/eazynet/internal/service/authstate"
	"github.com/nkiryanov/eazynet/internal/service/oauth"
	"github.com/nkiryanov/eazynet/internal/service/session"
	"github.com/nkiryanov/eazynet/internal/tokenstore"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

// Google sign in as the handlers use it
type oauthProvider interface {
	AuthCodeURL(state string, verifier string, nonce string) string
	Exchange(ctx context.Context, code string, verifier string, nonce string) (models.OAuthSession, error)
	Refresh(ctx context.Context, s models.OAuthSession) (models.OAuthSession, error)
}

type Deps struct {
	// Identity backend client settings shared by every request
	Session session.Config

	// Subscription cache shared by every request
	Cache cache.Cache

	OAuthSessions repository.OAuthSessionRepo

	// Google sign in, nil if not configured
	Google oauthProvider

	// Mark cookies 'Secure'
	SecureCookies bool

	// Optional, default client with session timeout is used otherwise
	HTTPClient *http.Client

	Logger logger.Logger
}

func NewRouter(deps Deps) (http.Handler, error) {
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewMemory(time.Now)
	}

	// Fail early on bad client config instead of on every request
	probe, err := session.New(deps.Session, tokenstore.NewMemory(models.TokenPair{}))
	if err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = probe.HTTPClient()
	}

	// Keep the interface nil if no provider so the middleware skips renewal
	var refresher middleware.Refresher
	if deps.Google != nil {
		refresher = deps.Google
	}

	sessions := middleware.SessionMiddleware(newSessionBuilder(deps))
	guard := middleware.GuardMiddleware(refresher, deps.Logger)

	authHandler := &AuthHandler{google: deps.Google, secure: deps.SecureCookies, logger: deps.Logger}
	accountHandler := &AccountHandler{refresher: refresher, logger: deps.Logger}
	pagesHandler := &PagesHandler{logger: deps.Logger}

	api := http.NewServeMux()
	api.HandleFunc("POST /login", authHandler.login)
	api.HandleFunc("POST /register", authHandler.register)
	api.HandleFunc("POST /forgot-password", authHandler.forgotPassword)
	api.HandleFunc("POST /logout", authHandler.logout)
	api.HandleFunc("GET /oauth/google", authHandler.googleStart)
	api.HandleFunc("GET /oauth/google/callback", authHandler.googleCallback)

	api.HandleFunc("GET /me", accountHandler.me)
	api.HandleFunc("GET /profile", accountHandler.getProfile)
	api.HandleFunc("PUT /profile", accountHandler.updateProfile)
	api.HandleFunc("POST /profile/password", accountHandler.changePassword)
	api.HandleFunc("PATCH /profile/interested-in-pro", accountHandler.interestedInPro)
	api.HandleFunc("GET /subscription", accountHandler.getSubscription)
	api.HandleFunc("POST /subscription/trial", accountHandler.startTrial)

	root := http.NewServeMux()
	root.Handle("/api/account/", http.StripPrefix("/api/account", api))
	root.Handle("GET /dashboard", guard(http.HandlerFunc(pagesHandler.dashboard)))
	root.Handle("GET /profile", guard(http.HandlerFunc(pagesHandler.profile)))
	root.Handle("GET /subscription", guard(http.HandlerFunc(pagesHandler.subscription)))
	root.Handle("GET /auth", guard(http.HandlerFunc(pagesHandler.auth)))
	root.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		render.Message(w, "ok")
	})

	handler := chain(root,
		middleware.LoggerMiddleware(deps.Logger),
		sessions,
	)

	return handler, nil
}

// Session of the visitor: tokens come from cookies or headers and are written back to both
func newSessionBuilder(deps Deps) func(w http.ResponseWriter, r *http.Request) *sessionctx.Session {
	return func(w http.ResponseWriter, r *http.Request) *sessionctx.Session {
		store := tokenstore.Mirror(
			tokenstore.NewHeaders(w, r),
			tokenstore.NewCookies(w, r, tokenstore.WithSecure(deps.SecureCookies)),
		)

		// Config is checked by NewRouter, store is never nil
		client, _ := session.New(deps.Session, store,
			session.WithHTTPClient(deps.HTTPClient),
			session.WithCache(deps.Cache),
			session.WithLogger(deps.Logger),
		)

		var source authstate.OAuthSource
		if deps.OAuthSessions != nil {
			source = oauth.NewCookieSource(deps.OAuthSessions, w, r, deps.SecureCookies)
		}

		return &sessionctx.Session{
			Client: client,
			Auth:   authstate.New(client, source, authstate.WithLogger(deps.Logger)),
		}
	}
}
