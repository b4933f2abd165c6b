package oauth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/eazynet/internal/apperrors"
	"github.com/nkiryanov/eazynet/internal/models"
	"github.com/nkiryanov/eazynet/internal/repository/memory"
)

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	var found *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == CookieSession {
			found = c
		}
	}
	return found
}

func testSession() models.OAuthSession {
	return models.OAuthSession{
		Provider:     models.ProviderGoogle,
		AccessToken:  "provider-access",
		RefreshToken: "provider-refresh",
		User:         models.OAuthUser{Subject: "g-1", Email: "linus@example.com", Provider: models.ProviderGoogle},
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

func TestCookieSource(t *testing.T) {
	repo := memory.NewOAuthSessionRepo(nil)

	t.Run("no cookie no session", func(t *testing.T) {
		src := NewCookieSource(repo, httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), false)

		s, err := src.Current(t.Context())
		require.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("store sets cookie and current reads it back", func(t *testing.T) {
		rec := httptest.NewRecorder()
		src := NewCookieSource(repo, rec, httptest.NewRequest(http.MethodGet, "/", nil), true)

		stored, err := src.Store(t.Context(), testSession())
		require.NoError(t, err)
		require.NotEmpty(t, stored.ID)

		cookie := sessionCookie(rec)
		require.NotNil(t, cookie)
		assert.Equal(t, stored.ID, cookie.Value)
		assert.True(t, cookie.HttpOnly)
		assert.True(t, cookie.Secure)
		assert.Positive(t, cookie.MaxAge)

		// Next request of the same browser
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(cookie)
		next := NewCookieSource(repo, httptest.NewRecorder(), req, true)

		current, err := next.Current(t.Context())
		require.NoError(t, err)
		require.NotNil(t, current)
		assert.Equal(t, "linus@example.com", current.User.Email)
	})

	t.Run("unknown id forgets cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: CookieSession, Value: "gone"})
		src := NewCookieSource(repo, rec, req, false)

		s, err := src.Current(t.Context())
		require.NoError(t, err)
		assert.Nil(t, s)

		cookie := sessionCookie(rec)
		require.NotNil(t, cookie)
		assert.Negative(t, cookie.MaxAge)
	})

	t.Run("refresh updates tokens", func(t *testing.T) {
		src := NewCookieSource(repo, httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), false)
		stored, err := src.Store(t.Context(), testSession())
		require.NoError(t, err)

		refreshed := stored
		refreshed.AccessToken = "provider-access-2"
		refreshed.ExpiresAt = time.Now().Add(2 * time.Hour)
		require.NoError(t, src.Refresh(t.Context(), refreshed))

		got, err := repo.Get(t.Context(), stored.ID)
		require.NoError(t, err)
		assert.Equal(t, "provider-access-2", got.AccessToken)
	})

	t.Run("refresh without session", func(t *testing.T) {
		src := NewCookieSource(repo, httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), false)

		err := src.Refresh(t.Context(), testSession())
		require.ErrorIs(t, err, apperrors.ErrOAuthSessionNotFound)
	})

	t.Run("sign out deletes session", func(t *testing.T) {
		rec := httptest.NewRecorder()
		src := NewCookieSource(repo, rec, httptest.NewRequest(http.MethodGet, "/", nil), false)
		stored, err := src.Store(t.Context(), testSession())
		require.NoError(t, err)

		require.NoError(t, src.SignOut(t.Context()))

		_, err = repo.Get(t.Context(), stored.ID)
		require.ErrorIs(t, err, apperrors.ErrOAuthSessionNotFound)

		current, err := src.Current(t.Context())
		require.NoError(t, err)
		assert.Nil(t, current)
		assert.Negative(t, sessionCookie(rec).MaxAge, "last cookie written expires it")
	})

	t.Run("store replaces previous session", func(t *testing.T) {
		src := NewCookieSource(repo, httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), false)
		first, err := src.Store(t.Context(), testSession())
		require.NoError(t, err)

		second, err := src.Store(t.Context(), testSession())
		require.NoError(t, err)

		assert.NotEqual(t, first.ID, second.ID)
		_, err = repo.Get(t.Context(), first.ID)
		require.ErrorIs(t, err, apperrors.ErrOAuthSessionNotFound)
	})

	t.Run("default expiry", func(t *testing.T) {
		src := NewCookieSource(repo, httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), false)
		s := testSession()
		s.ExpiresAt = time.Time{}

		stored, err := src.Store(t.Context(), s)
		require.NoError(t, err)

		assert.WithinDuration(t, time.Now().Add(DefaultSessionTTL), stored.ExpiresAt, time.Minute)
	})
}

func TestFlow(t *testing.T) {
	flow := NewFlow()
	cookie := flow.Cookie(false)

	t.Run("round trip", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/callback", nil)
		req.AddCookie(cookie)

		got, err := FlowFromRequest(req, flow.State)
		require.NoError(t, err)
		assert.Equal(t, flow, got)
	})

	t.Run("state mismatch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/callback", nil)
		req.AddCookie(cookie)

		_, err := FlowFromRequest(req, "forged")
		require.ErrorIs(t, err, apperrors.ErrOAuthStateMismatch)
	})

	t.Run("no cookie", func(t *testing.T) {
		_, err := FlowFromRequest(httptest.NewRequest(http.MethodGet, "/callback", nil), flow.State)
		require.ErrorIs(t, err, apperrors.ErrOAuthStateMismatch)
	})

	t.Run("values are unique", func(t *testing.T) {
		other := NewFlow()
		assert.NotEqual(t, flow.State, other.State)
		assert.NotEqual(t, flow.Verifier, other.Verifier)
	})
}

func TestNeedsRefresh(t *testing.T) {
	now := time.Now()

	assert.True(t, NeedsRefresh(models.OAuthSession{RefreshToken: "r", ExpiresAt: now.Add(time.Minute)}, now))
	assert.False(t, NeedsRefresh(models.OAuthSession{RefreshToken: "r", ExpiresAt: now.Add(time.Hour)}, now))
	assert.False(t, NeedsRefresh(models.OAuthSession{ExpiresAt: now.Add(time.Minute)}, now), "nothing to refresh with")
	assert.False(t, NeedsRefresh(models.OAuthSession{RefreshToken: "r"}, now), "no expiry")
}
