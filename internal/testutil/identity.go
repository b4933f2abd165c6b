package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/eazynet/internal/models"
)

const (
	DefaultAccessTTL = 15 * time.Minute

	// Key the fake backend signs tokens with. Clients never check signatures
	fakeSigningKey = "fake-identity-backend-key"
)

// Mint HS256 JWT the way the identity backend does. Negative ttl gives an expired token
func MintToken(t *testing.T, user models.User, ttl time.Duration) string {
	t.Helper()
	return MintTokenWithKey(t, user, ttl, []byte(fakeSigningKey))
}

// Same as MintToken but signed with the given key, so the fake backend never knows the token
func MintTokenWithKey(t *testing.T, user models.User, ttl time.Duration, key []byte) string {
	t.Helper()

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"name":  user.Name,
		"jti":   uuid.NewString(),
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	if user.IsPro {
		claims["isPro"] = "True"
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("failed to mint token: %v", err)
	}
	return token
}

type fakeAccount struct {
	user     models.User
	password string
}

// FakeIdentityBackend is an in-process identity backend serving the endpoints the session client calls
type FakeIdentityBackend struct {
	Server *httptest.Server

	t  *testing.T
	mu sync.Mutex

	accounts     map[string]*fakeAccount // by email
	access       map[string]string       // access token -> user id
	refresh      map[string]string       // refresh token -> user id
	oauthTokens  map[string]string       // provider access token -> email
	subscription map[string]models.Subscription
	calls        map[string]int

	rejectRefresh bool
	logoutStatus  int
}

func StartFakeIdentityBackend(t *testing.T) *FakeIdentityBackend {
	t.Helper()

	b := &FakeIdentityBackend{
		t:            t,
		accounts:     make(map[string]*fakeAccount),
		access:       make(map[string]string),
		refresh:      make(map[string]string),
		oauthTokens:  make(map[string]string),
		subscription: make(map[string]models.Subscription),
		calls:        make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/Auth/login", b.login)
	mux.HandleFunc("POST /api/Auth/register", b.register)
	mux.HandleFunc("POST /api/Auth/oauth-login", b.oauthLogin)
	mux.HandleFunc("POST /api/Auth/refresh", b.refreshPair)
	mux.HandleFunc("POST /api/Auth/logout", b.logout)
	mux.HandleFunc("GET /api/User/profile", b.authorized(b.getProfile))
	mux.HandleFunc("PUT /api/User/profile", b.authorized(b.updateProfile))
	mux.HandleFunc("POST /api/auth/change-password", b.authorized(b.changePassword))
	mux.HandleFunc("POST /api/auth/forgot-password", b.forgotPassword)
	mux.HandleFunc("GET /api/User/subscription", b.authorized(b.getSubscription))
	mux.HandleFunc("POST /api/User/start-trial", b.authorized(b.startTrial))
	mux.HandleFunc("PATCH /api/User/profile/interested-in-pro", b.authorized(b.interestedInPro))

	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.calls[r.Method+" "+r.URL.Path]++
		b.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(b.Server.Close)

	return b
}

func (b *FakeIdentityBackend) URL() string {
	return b.Server.URL
}

// Register account directly, returns the stored user
func (b *FakeIdentityBackend) AddUser(email string, password string, name string) models.User {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.addUserLocked(email, password, name)
}

// Issue a valid pair for the account as if the user just logged in
func (b *FakeIdentityBackend) Issue(email string) models.TokenPair {
	b.mu.Lock()
	defer b.mu.Unlock()

	acc, ok := b.accounts[email]
	if !ok {
		b.t.Fatalf("fake backend: no account %q", email)
	}
	return b.issueLocked(acc.user)
}

// Accept provider access token in oauth-login for the email
func (b *FakeIdentityBackend) AllowOAuthToken(accessToken string, email string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.oauthTokens[accessToken] = email
}

// Forget every issued access token: next authorized call gets 401 until refreshed
func (b *FakeIdentityBackend) RevokeAccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.access)
}

func (b *FakeIdentityBackend) RejectRefresh(reject bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejectRefresh = reject
}

// Respond to logout with the status instead of 204
func (b *FakeIdentityBackend) FailLogout(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logoutStatus = status
}

func (b *FakeIdentityBackend) SetSubscription(email string, sub models.Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscription[b.accounts[email].user.ID] = sub
}

func (b *FakeIdentityBackend) User(email string) models.User {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accounts[email].user
}

// Number of calls to the endpoint, like "POST /api/Auth/refresh"
func (b *FakeIdentityBackend) Calls(endpoint string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[endpoint]
}

// Whether refresh token is still accepted by the backend
func (b *FakeIdentityBackend) RefreshValid(token string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.refresh[token]
	return ok
}

func (b *FakeIdentityBackend) addUserLocked(email string, password string, name string) models.User {
	now := time.Now().UTC().Truncate(time.Second)
	u := models.User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	b.accounts[email] = &fakeAccount{user: u, password: password}
	return u
}

func (b *FakeIdentityBackend) issueLocked(u models.User) models.TokenPair {
	pair := models.TokenPair{
		Access:  MintToken(b.t, u, DefaultAccessTTL),
		Refresh: uuid.NewString(),
	}
	b.access[pair.Access] = u.ID
	b.refresh[pair.Refresh] = u.ID
	return pair
}

func (b *FakeIdentityBackend) accountByIDLocked(id string) *fakeAccount {
	for _, acc := range b.accounts {
		if acc.user.ID == id {
			return acc
		}
	}
	return nil
}

func (b *FakeIdentityBackend) writeAuth(w http.ResponseWriter, u models.User, pair models.TokenPair) {
	writeJSON(w, http.StatusOK, map[string]any{
		"token":        pair.Access,
		"refreshToken": pair.Refresh,
		"user":         u,
	})
}

func (b *FakeIdentityBackend) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	acc, ok := b.accounts[req.Email]
	if !ok || acc.password != req.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid email or password"})
		return
	}
	b.writeAuth(w, acc.user, b.issueLocked(acc.user))
}

func (b *FakeIdentityBackend) register(w http.ResponseWriter, r *http.Request) {
	var req models.Registration
	if !decodeJSON(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.accounts[req.Email]; exists {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"errors": map[string][]string{"Email": {"Email is already taken"}},
		})
		return
	}
	u := b.addUserLocked(req.Email, req.Password, req.Name)
	b.writeAuth(w, u, b.issueLocked(u))
}

func (b *FakeIdentityBackend) oauthLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Provider    string `json:"provider"`
		AccessToken string `json:"accessToken"`
		IDToken     string `json:"idToken"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	email, ok := b.oauthTokens[req.AccessToken]
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid provider token"})
		return
	}
	acc, ok := b.accounts[email]
	if !ok {
		b.addUserLocked(email, "", "")
		acc = b.accounts[email]
	}
	b.writeAuth(w, acc.user, b.issueLocked(acc.user))
}

func (b *FakeIdentityBackend) refreshPair(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	userID, ok := b.refresh[req.RefreshToken]
	if !ok || b.rejectRefresh {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid refresh token"})
		return
	}
	delete(b.refresh, req.RefreshToken)

	pair := b.issueLocked(b.accountByIDLocked(userID).user)
	writeJSON(w, http.StatusOK, map[string]string{"token": pair.Access, "refreshToken": pair.Refresh})
}

func (b *FakeIdentityBackend) logout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.logoutStatus != 0 {
		writeJSON(w, b.logoutStatus, map[string]string{"message": "Logout failed"})
		return
	}
	delete(b.refresh, req.RefreshToken)
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		delete(b.access, token)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *FakeIdentityBackend) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "If the account exists, an email was sent"})
}

type authorizedHandler func(w http.ResponseWriter, r *http.Request, acc *fakeAccount)

// Resolve bearer token into account; called handlers run under the lock
func (b *FakeIdentityBackend) authorized(next authorizedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")

		b.mu.Lock()
		defer b.mu.Unlock()

		userID, ok := b.access[token]
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r, b.accountByIDLocked(userID))
	}
}

func (b *FakeIdentityBackend) getProfile(w http.ResponseWriter, r *http.Request, acc *fakeAccount) {
	writeJSON(w, http.StatusOK, acc.user)
}

func (b *FakeIdentityBackend) updateProfile(w http.ResponseWriter, r *http.Request, acc *fakeAccount) {
	var req models.ProfileUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name != "" {
		acc.user.Name = req.Name
	}
	if req.Email != "" && req.Email != acc.user.Email {
		delete(b.accounts, acc.user.Email)
		acc.user.Email = req.Email
		b.accounts[req.Email] = acc
	}
	acc.user.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	writeJSON(w, http.StatusOK, acc.user)
}

func (b *FakeIdentityBackend) changePassword(w http.ResponseWriter, r *http.Request, acc *fakeAccount) {
	var req models.PasswordChange
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CurrentPassword != acc.password {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Current password is incorrect"})
		return
	}
	acc.password = req.NewPassword
	w.WriteHeader(http.StatusNoContent)
}

func (b *FakeIdentityBackend) getSubscription(w http.ResponseWriter, r *http.Request, acc *fakeAccount) {
	writeJSON(w, http.StatusOK, b.subscription[acc.user.ID])
}

func (b *FakeIdentityBackend) startTrial(w http.ResponseWriter, r *http.Request, acc *fakeAccount) {
	sub := b.subscription[acc.user.ID]
	if sub.IsTrialActive || sub.HasActiveSubscription || sub.Status == models.SubscriptionExpired {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Trial is not available"})
		return
	}

	ends := time.Now().UTC().Add(7 * 24 * time.Hour).Truncate(time.Second)
	sub = models.Subscription{IsTrialActive: true, TrialEndsAt: &ends, Status: models.SubscriptionTrial}
	b.subscription[acc.user.ID] = sub

	acc.user.IsTrial = true
	acc.user.TrialEndsAt = &ends
	acc.user.SubscriptionStatus = models.SubscriptionTrial
	writeJSON(w, http.StatusOK, sub)
}

func (b *FakeIdentityBackend) interestedInPro(w http.ResponseWriter, r *http.Request, acc *fakeAccount) {
	var req struct {
		InterestedInPro bool `json:"interestedInPro"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	acc.user.InterestedInPro = req.InterestedInPro
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Malformed request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
