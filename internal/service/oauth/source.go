package oauth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/nkiryanov/eazynet/internal/apperrors"
	"github.com/nkiryanov/eazynet/internal/models"
	"github.com/nkiryanov/eazynet/internal/repository"
)

const (
	// Opaque id of the provider session kept server side
	CookieSession = "eazynet_oauth_session"

	// State, PKCE verifier and nonce of a sign in in progress
	CookieFlow = "eazynet_oauth_flow"

	FlowTTL = 10 * time.Minute

	// Session without provider expiry lives this long
	DefaultSessionTTL = 24 * time.Hour

	// Provider tokens are refreshed when they expire sooner than this
	RefreshWindow = 5 * time.Minute
)

// Flow carries values that must survive the round trip through the provider
type Flow struct {
	State    string
	Verifier string
	Nonce    string
}

func NewFlow() Flow {
	return Flow{
		State:    rand.Text(),
		Verifier: oauth2.GenerateVerifier(),
		Nonce:    rand.Text(),
	}
}

func (f Flow) Cookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieFlow,
		Value:    f.State + "." + f.Verifier + "." + f.Nonce,
		Path:     "/",
		MaxAge:   int(FlowTTL.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// FlowFromRequest returns the flow started by this browser if state matches
func FlowFromRequest(r *http.Request, state string) (Flow, error) {
	cookie, err := r.Cookie(CookieFlow)
	if err != nil {
		return Flow{}, fmt.Errorf("%w: no flow cookie", apperrors.ErrOAuthStateMismatch)
	}

	parts := strings.Split(cookie.Value, ".")
	if len(parts) != 3 || parts[0] == "" || parts[0] != state {
		return Flow{}, apperrors.ErrOAuthStateMismatch
	}
	return Flow{State: parts[0], Verifier: parts[1], Nonce: parts[2]}, nil
}

// Cookie removing the flow cookie once the callback is handled
func ExpiredFlowCookie() *http.Cookie {
	return &http.Cookie{Name: CookieFlow, Value: "", Path: "/", MaxAge: -1, HttpOnly: true}
}

// NeedsRefresh reports whether provider tokens expire soon and can be refreshed
func NeedsRefresh(s models.OAuthSession, now time.Time) bool {
	return s.RefreshToken != "" && !s.ExpiresAt.IsZero() && s.ExpiresAt.Sub(now) < RefreshWindow
}

// CookieSource keeps the provider session in the repository and its id in a cookie.
// It is bound to a single request/response pair.
type CookieSource struct {
	repo   repository.OAuthSessionRepo
	w      http.ResponseWriter
	secure bool
	now    func() time.Time

	id string
}

func NewCookieSource(repo repository.OAuthSessionRepo, w http.ResponseWriter, r *http.Request, secure bool) *CookieSource {
	s := &CookieSource{repo: repo, w: w, secure: secure, now: time.Now}
	if cookie, err := r.Cookie(CookieSession); err == nil {
		s.id = cookie.Value
	}
	return s
}

func (s *CookieSource) Current(ctx context.Context) (*models.OAuthSession, error) {
	if s.id == "" {
		return nil, nil
	}

	session, err := s.repo.Get(ctx, s.id)
	switch {
	case errors.Is(err, apperrors.ErrOAuthSessionNotFound):
		s.forget()
		return nil, nil
	case err != nil:
		return nil, err
	default:
		return &session, nil
	}
}

func (s *CookieSource) Store(ctx context.Context, session models.OAuthSession) (models.OAuthSession, error) {
	now := s.now()
	session.ID = uuid.NewString()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.ExpiresAt.IsZero() {
		session.ExpiresAt = now.Add(DefaultSessionTTL)
	}

	saved, err := s.repo.Save(ctx, session)
	if err != nil {
		return session, err
	}

	// Replaces previous session of this browser, if any
	if s.id != "" {
		_ = s.repo.Delete(ctx, s.id)
	}
	s.id = saved.ID
	s.setCookie(saved.ID, saved.ExpiresAt)
	return saved, nil
}

func (s *CookieSource) Refresh(ctx context.Context, session models.OAuthSession) error {
	if s.id == "" {
		return apperrors.ErrOAuthSessionNotFound
	}
	session.ID = s.id

	if err := s.repo.UpdateTokens(ctx, session); err != nil {
		return err
	}
	s.setCookie(session.ID, session.ExpiresAt)
	return nil
}

func (s *CookieSource) SignOut(ctx context.Context) error {
	if s.id == "" {
		return nil
	}
	err := s.repo.Delete(ctx, s.id)
	s.forget()
	return err
}

func (s *CookieSource) forget() {
	s.id = ""
	http.SetCookie(s.w, &http.Cookie{
		Name:     CookieSession,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Cookie lives as long as the provider session
func (s *CookieSource) setCookie(id string, expiresAt time.Time) {
	http.SetCookie(s.w, &http.Cookie{
		Name:     CookieSession,
		Value:    id,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   max(int(expiresAt.Sub(s.now()).Seconds()), 1),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
