package oauth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/nkiryanov/eazynet/internal/apperrors"
	"github.com/nkiryanov/eazynet/internal/models"
)

const (
	testIssuer   = "https://accounts.example.com"
	testClientID = "eazynet-web"
)

// Token endpoint of a fake provider signing ID tokens with its own RSA key
type fakeProvider struct {
	t   *testing.T
	key *rsa.PrivateKey
	srv *httptest.Server

	mu       sync.Mutex
	verifier string // expected PKCE verifier
	nonce    string // nonce put into the next ID token
	form     url.Values
}

func startFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p := &fakeProvider{t: t, key: key}
	p.srv = httptest.NewServer(http.HandlerFunc(p.token))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakeProvider) idToken(claims jwt.MapClaims) string {
	p.t.Helper()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(p.key)
	require.NoError(p.t, err)
	return signed
}

func (p *fakeProvider) token(w http.ResponseWriter, r *http.Request) {
	require.NoError(p.t, r.ParseForm())

	p.mu.Lock()
	defer p.mu.Unlock()
	p.form = r.PostForm

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		if r.PostForm.Get("code") != "auth-code" || r.PostForm.Get("code_verifier") != p.verifier {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
	case "refresh_token":
		if r.PostForm.Get("refresh_token") != "provider-refresh" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
	}

	claims := jwt.MapClaims{
		"iss":     testIssuer,
		"aud":     testClientID,
		"sub":     "10769150350006150715113082367",
		"email":   "linus@example.com",
		"name":    "Linus",
		"picture": "https://example.com/linus.png",
		"iat":     time.Now().Unix(),
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
	if p.nonce != "" {
		claims["nonce"] = p.nonce
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  "provider-access",
		"token_type":    "Bearer",
		"expires_in":    3600,
		"refresh_token": "provider-refresh",
		"id_token":      p.idToken(claims),
	})
}

// PKCE verifier the provider expects and nonce it puts into ID tokens
func (p *fakeProvider) expect(verifier string, nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verifier, p.nonce = verifier, nonce
}

func (p *fakeProvider) lastForm() url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.form
}

func (p *fakeProvider) google() *Google {
	endpoint := oauth2.Endpoint{
		AuthURL:   testIssuer + "/o/oauth2/v2/auth",
		TokenURL:  p.srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	keys := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&p.key.PublicKey}}
	verifier := oidc.NewVerifier(testIssuer, keys, &oidc.Config{ClientID: testClientID})

	cfg := GoogleConfig{ClientID: testClientID, ClientSecret: "secret", RedirectURL: "http://localhost:8080/api/account/oauth/google/callback"}
	return newGoogle(cfg, endpoint, verifier)
}

func TestGoogle_AuthCodeURL(t *testing.T) {
	g := startFakeProvider(t).google()
	flow := NewFlow()

	raw := g.AuthCodeURL(flow.State, flow.Verifier, flow.Nonce)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()

	assert.Equal(t, testIssuer+"/o/oauth2/v2/auth", u.Scheme+"://"+u.Host+u.Path)
	assert.Equal(t, flow.State, q.Get("state"))
	assert.Equal(t, oauth2.S256ChallengeFromVerifier(flow.Verifier), q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, flow.Nonce, q.Get("nonce"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, testClientID, q.Get("client_id"))
	assert.Contains(t, q.Get("scope"), "openid")
	assert.Empty(t, q.Get("code_verifier"), "verifier never leaves the server")
}

func TestGoogle_Exchange(t *testing.T) {
	t.Run("verified session", func(t *testing.T) {
		p := startFakeProvider(t)
		g := p.google()
		flow := NewFlow()
		p.expect(flow.Verifier, flow.Nonce)

		s, err := g.Exchange(t.Context(), "auth-code", flow.Verifier, flow.Nonce)
		require.NoError(t, err)

		assert.Equal(t, models.ProviderGoogle, s.Provider)
		assert.Equal(t, "provider-access", s.AccessToken)
		assert.Equal(t, "provider-refresh", s.RefreshToken)
		assert.NotEmpty(t, s.IDToken)
		assert.Equal(t, "10769150350006150715113082367", s.User.Subject)
		assert.Equal(t, "linus@example.com", s.User.Email)
		assert.Equal(t, "Linus", s.User.Name)
		assert.Equal(t, "https://example.com/linus.png", s.User.Picture)
		assert.WithinDuration(t, time.Now().Add(time.Hour), s.ExpiresAt, time.Minute)
	})

	t.Run("wrong verifier", func(t *testing.T) {
		p := startFakeProvider(t)
		g := p.google()
		flow := NewFlow()
		p.expect(flow.Verifier, flow.Nonce)

		_, err := g.Exchange(t.Context(), "auth-code", oauth2.GenerateVerifier(), flow.Nonce)
		require.Error(t, err)
	})

	t.Run("nonce mismatch", func(t *testing.T) {
		p := startFakeProvider(t)
		g := p.google()
		flow := NewFlow()
		p.expect(flow.Verifier, "replayed-nonce")

		_, err := g.Exchange(t.Context(), "auth-code", flow.Verifier, flow.Nonce)
		require.ErrorIs(t, err, apperrors.ErrOAuthStateMismatch)
	})

	t.Run("id token signed by other key", func(t *testing.T) {
		p := startFakeProvider(t)
		other := startFakeProvider(t)
		flow := NewFlow()
		other.expect(flow.Verifier, flow.Nonce)

		// Token endpoint of other provider, keys of the first one
		g := p.google()
		g.config.Endpoint.TokenURL = other.srv.URL + "/token"

		_, err := g.Exchange(t.Context(), "auth-code", flow.Verifier, flow.Nonce)
		require.ErrorContains(t, err, "id token verification failed")
	})
}

func TestGoogle_Refresh(t *testing.T) {
	t.Run("refresh tokens", func(t *testing.T) {
		p := startFakeProvider(t)
		g := p.google()
		old := models.OAuthSession{ID: "s1", Provider: models.ProviderGoogle, AccessToken: "old", RefreshToken: "provider-refresh"}

		s, err := g.Refresh(t.Context(), old)
		require.NoError(t, err)

		assert.Equal(t, "s1", s.ID)
		assert.Equal(t, "provider-access", s.AccessToken)
		assert.Equal(t, "linus@example.com", s.User.Email)
		assert.Equal(t, "refresh_token", p.lastForm().Get("grant_type"))
	})

	t.Run("no refresh token", func(t *testing.T) {
		g := startFakeProvider(t).google()

		_, err := g.Refresh(t.Context(), models.OAuthSession{AccessToken: "old"})
		require.Error(t, err)
	})

	t.Run("refresh token rejected", func(t *testing.T) {
		g := startFakeProvider(t).google()

		_, err := g.Refresh(t.Context(), models.OAuthSession{RefreshToken: "revoked"})
		require.Error(t, err)
	})
}

func TestNewGoogle(t *testing.T) {
	t.Run("requires client id", func(t *testing.T) {
		_, err := NewGoogle(t.Context(), GoogleConfig{RedirectURL: "http://localhost/cb"})
		require.Error(t, err)
	})

	t.Run("discovery", func(t *testing.T) {
		var srv *httptest.Server
		srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"issuer":                 srv.URL,
				"authorization_endpoint": srv.URL + "/auth",
				"token_endpoint":         srv.URL + "/token",
				"jwks_uri":               srv.URL + "/certs",
			})
		}))
		t.Cleanup(srv.Close)

		g, err := NewGoogle(t.Context(), GoogleConfig{ClientID: testClientID, RedirectURL: "http://localhost/cb", Issuer: srv.URL})
		require.NoError(t, err)

		assert.Equal(t, srv.URL+"/token", g.config.Endpoint.TokenURL)
	})
}
