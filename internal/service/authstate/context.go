// Package authstate decides who is signed in by reconciling the identity backend session
// with the OAuth provider session, and decides where a page request has to be redirected.
package authstate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nkiryanov/eazynet/internal/apperrors"
	"github.com/nkiryanov/eazynet/internal/logger"
	"github.com/nkiryanov/eazynet/internal/models"
)

// Part of the session client the auth context relies on
type SessionClient interface {
	IsAuthenticated() bool
	Tokens() models.TokenPair
	RefreshAuthToken(ctx context.Context) error
	UserFromToken() (models.User, bool)
	GetProfile(ctx context.Context) (models.User, error)
	OAuthLogin(ctx context.Context, provider string, accessToken string, idToken string) (models.User, error)
	Logout(ctx context.Context) error
}

// Holder of the OAuth provider session for the current visitor
type OAuthSource interface {
	// Current session or nil if there is none
	Current(ctx context.Context) (*models.OAuthSession, error)

	// Keep a freshly signed in session as the current one
	Store(ctx context.Context, s models.OAuthSession) (models.OAuthSession, error)

	// Replace tokens of the current session
	Refresh(ctx context.Context, s models.OAuthSession) error

	SignOut(ctx context.Context) error
}

// Events emitted by the OAuth provider
type Event interface {
	event()
}

type EventSignedIn struct {
	Session models.OAuthSession
}

type EventSignedOut struct{}

type EventTokenRefreshed struct {
	Session models.OAuthSession
}

func (EventSignedIn) event()       {}
func (EventSignedOut) event()      {}
func (EventTokenRefreshed) event() {}

type Context struct {
	client SessionClient
	oauth  OAuthSource
	logger logger.Logger

	mu       sync.RWMutex
	identity Identity

	// Set while a redirect is in flight
	redirecting atomic.Bool
}

type Option func(*Context)

func WithLogger(l logger.Logger) Option {
	return func(c *Context) { c.logger = l }
}

// New auth context in the Unknown state. OAuth source may be nil if no provider is configured
func New(client SessionClient, oauth OAuthSource, opts ...Option) *Context {
	c := &Context{
		client: client,
		oauth:  oauth,
		logger: logger.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mount resolves the identity: backend token first, then the OAuth provider session
func (c *Context) Mount(ctx context.Context) Identity {
	backendUser := c.backendUser(ctx)

	var oauth *models.OAuthSession
	if c.oauth != nil {
		s, err := c.oauth.Current(ctx)
		if err != nil {
			c.logger.Warn("Failed to read oauth session", "error", err)
		}
		oauth = s
	}

	id := Reconcile(backendUser, oauth)
	c.set(id)

	c.logger.Debug("Identity resolved", "kind", id.Kind.String())
	return id
}

// User of the backend session or nil.
// Stale access token is refreshed once; profile fetch failure keeps the user decoded from the token.
func (c *Context) backendUser(ctx context.Context) *models.User {
	if !c.client.IsAuthenticated() && c.client.Tokens().Refresh != "" {
		if err := c.client.RefreshAuthToken(ctx); err != nil {
			c.logger.Info("Backend session expired", "error", err)
		}
	}
	if !c.client.IsAuthenticated() {
		return nil
	}

	optimistic, hasOptimistic := c.client.UserFromToken()

	profile, err := c.client.GetProfile(ctx)
	switch {
	case err == nil:
		return &profile
	case errors.Is(err, apperrors.ErrNotAuthenticated) || !c.client.IsAuthenticated():
		c.logger.Info("Backend rejected session", "error", err)
		return nil
	case hasOptimistic:
		c.logger.Warn("Profile fetch failed, keeping user from token", "error", err)
		return &optimistic
	default:
		c.logger.Warn("Profile fetch failed and token has no user", "error", err)
		return nil
	}
}

// HandleEvent applies the OAuth provider event and returns the new identity.
// State is updated even if some of the side calls fail; the failures are returned joined.
func (c *Context) HandleEvent(ctx context.Context, ev Event) (Identity, error) {
	switch e := ev.(type) {
	case EventSignedIn:
		return c.signedIn(ctx, e.Session)
	case EventSignedOut:
		return c.signOut(ctx)
	case EventTokenRefreshed:
		return c.tokenRefreshed(ctx, e.Session)
	default:
		return c.Identity(), fmt.Errorf("unknown auth event %T", ev)
	}
}

// Exchange provider tokens for a backend session. Exchange failure falls back to the provider session
func (c *Context) signedIn(ctx context.Context, s models.OAuthSession) (Identity, error) {
	if c.oauth != nil {
		stored, err := c.oauth.Store(ctx, s)
		if err != nil {
			return c.Identity(), fmt.Errorf("failed to store oauth session: %w", err)
		}
		s = stored
	}

	var backendUser *models.User
	u, err := c.client.OAuthLogin(ctx, s.Provider, s.AccessToken, s.IDToken)
	if err != nil {
		c.logger.Warn("Backend exchange failed, using provider session", "provider", s.Provider, "error", err)
	} else {
		backendUser = &u
	}

	id := Reconcile(backendUser, &s)
	c.set(id)
	return id, nil
}

// Sign out of both sources whichever one started it
func (c *Context) signOut(ctx context.Context) (Identity, error) {
	var errs []error
	if err := c.client.Logout(ctx); err != nil {
		errs = append(errs, fmt.Errorf("backend logout: %w", err))
	}
	if c.oauth != nil {
		if err := c.oauth.SignOut(ctx); err != nil {
			errs = append(errs, fmt.Errorf("oauth sign out: %w", err))
		}
	}

	id := Identity{Kind: KindUnauthenticated}
	c.set(id)
	return id, errors.Join(errs...)
}

func (c *Context) tokenRefreshed(ctx context.Context, s models.OAuthSession) (Identity, error) {
	if c.oauth == nil {
		return c.Identity(), nil
	}
	if err := c.oauth.Refresh(ctx, s); err != nil {
		return c.Identity(), fmt.Errorf("failed to refresh oauth session: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity.OAuth != nil {
		c.identity.OAuth = &s
		if c.identity.Kind == KindOAuthPassthrough {
			u := s.User.AsUser()
			c.identity.User = &u
		}
	}
	return c.identity, nil
}

func (c *Context) set(id Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = id
}

func (c *Context) Identity() Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// Signed in user or nil
func (c *Context) User() *models.User {
	return c.Identity().User
}

func (c *Context) IsAuthenticated() bool {
	return c.Identity().Authenticated()
}

// Loading reports whether the page has to wait for an auth decision
func (c *Context) Loading(path string) bool {
	return c.Identity().Kind == KindUnknown && Classify(path) != RoutePublic
}

// Redirect returns where the visitor of path has to be sent.
// Only one redirect is issued until RedirectDone is called.
func (c *Context) Redirect(path string) (string, bool) {
	id := c.Identity()
	if id.Kind == KindUnknown {
		return "", false
	}

	var target string
	switch Classify(path) {
	case RouteGuestOnly:
		if id.Authenticated() {
			target = PathDashboard
		}
	case RouteProtected:
		if !id.Authenticated() {
			target = PathAuth
		}
	}

	if target == "" || target == path {
		return "", false
	}
	if !c.redirecting.CompareAndSwap(false, true) {
		return "", false
	}
	return target, true
}

func (c *Context) RedirectDone() {
	c.redirecting.Store(false)
}
