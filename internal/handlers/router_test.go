package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/eazynet/internal/models"
	"github.com/nkiryanov/eazynet/internal/repository/memory"
	"github.com/nkiryanov/eazynet/internal/service/session"
	"github.com/nkiryanov/eazynet/internal/testutil"
	"github.com/nkiryanov/eazynet/internal/tokenstore"
)

// Google stand-in: the code is the provider access token it exchanges to
type fakeGoogle struct {
	mu        sync.Mutex
	failWith  error
	refreshed int
}

func (g *fakeGoogle) AuthCodeURL(state string, verifier string, nonce string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (g *fakeGoogle) Exchange(ctx context.Context, code string, verifier string, nonce string) (models.OAuthSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failWith != nil {
		return models.OAuthSession{}, g.failWith
	}
	return models.OAuthSession{
		Provider:     models.ProviderGoogle,
		AccessToken:  code,
		RefreshToken: "google-refresh",
		IDToken:      "google-id-token",
		User:         models.OAuthUser{Provider: models.ProviderGoogle, Subject: "g-" + code, Email: code + "@gmail.example.com", Name: "Grace"},
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil
}

func (g *fakeGoogle) Refresh(ctx context.Context, s models.OAuthSession) (models.OAuthSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.refreshed++
	s.AccessToken += "-renewed"
	s.ExpiresAt = time.Now().Add(time.Hour)
	return s, nil
}

func (g *fakeGoogle) fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failWith = err
}

type testApp struct {
	handler http.Handler
	backend *testutil.FakeIdentityBackend
	google  *fakeGoogle
	repo    *memory.OAuthSessionRepo
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	app := &testApp{
		backend: testutil.StartFakeIdentityBackend(t),
		google:  &fakeGoogle{},
		repo:    memory.NewOAuthSessionRepo(nil),
	}

	h, err := NewRouter(Deps{
		Session:       session.Config{BaseURL: app.backend.URL(), Timeout: 5 * time.Second, SubscriptionTTL: time.Minute},
		OAuthSessions: app.repo,
		Google:        app.google,
	})
	require.NoError(t, err)
	app.handler = h

	return app
}

// Send request the way a browser would. Redirects are not followed
func (a *testApp) do(t *testing.T, method string, target string, body string, cookies ...*http.Cookie) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec.Result()
}

// Backend session cookies for the account, as left by a previous login
func (a *testApp) signedIn(t *testing.T, email string) []*http.Cookie {
	t.Helper()

	pair := a.backend.Issue(email)
	return []*http.Cookie{
		{Name: tokenstore.CookieAccess, Value: pair.Access},
		{Name: tokenstore.CookieRefresh, Value: pair.Refresh},
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	defer resp.Body.Close() // nolint:errcheck
	return string(body)
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	body := readBody(t, resp)
	require.NoErrorf(t, json.Unmarshal([]byte(body), &v), "body: %s", body)
	return v
}

func responseCookie(resp *http.Response, name string) *http.Cookie {
	var found *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == name {
			found = c
		}
	}
	return found
}

func TestNewRouter(t *testing.T) {
	t.Run("invalid session config", func(t *testing.T) {
		_, err := NewRouter(Deps{Session: session.Config{}})
		require.Error(t, err)
	})

	t.Run("healthz", func(t *testing.T) {
		app := newTestApp(t)

		resp := app.do(t, http.MethodGet, "/healthz", "")

		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.JSONEq(t, `{"message": "ok"}`, readBody(t, resp))
	})

	t.Run("works without provider and oauth storage", func(t *testing.T) {
		backend := testutil.StartFakeIdentityBackend(t)
		backend.AddUser("ada@example.com", "Sup3rSecret!", "Ada")

		h, err := NewRouter(Deps{Session: session.Config{BaseURL: backend.URL()}})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/account/oauth/google", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNotFound, rec.Code)

		req = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, "/auth", rec.Header().Get("Location"))
	})
}
