// Package session is a client for the EazyNet identity backend.
//
// Client keeps the access/refresh token pair in a tokenstore.Store and retries a request once
// after refreshing the pair when the backend answers 401.
package session

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nkiryanov/eazynet/internal/apperrors"
	"github.com/nkiryanov/eazynet/internal/cache"
	"github.com/nkiryanov/eazynet/internal/logger"
	"github.com/nkiryanov/eazynet/internal/models"
	"github.com/nkiryanov/eazynet/internal/tokenstore"
)

const (
	defaultTimeout         = 10 * time.Second
	defaultSubscriptionTTL = 5 * time.Minute
)

// Endpoints of the identity backend
const (
	pathLogin          = "/api/Auth/login"
	pathRegister       = "/api/Auth/register"
	pathOAuthLogin     = "/api/Auth/oauth-login"
	pathRefresh        = "/api/Auth/refresh"
	pathLogout         = "/api/Auth/logout"
	pathProfile        = "/api/User/profile"
	pathChangePassword = "/api/auth/change-password"
	pathForgotPassword = "/api/auth/forgot-password"
	pathSubscription   = "/api/User/subscription"
	pathStartTrial     = "/api/User/start-trial"
	pathInterestedPro  = "/api/User/profile/interested-in-pro"
)

type Config struct {
	// Identity backend base URL, like https://api.eazynet.app
	// Required to be set
	BaseURL string

	// Whole request timeout including body read
	// If not set than default is used
	Timeout time.Duration

	// How long subscription summary is served from cache
	// If not set than default is used
	SubscriptionTTL time.Duration
}

type Client struct {
	baseURL         string
	subscriptionTTL time.Duration

	http   *http.Client
	store  tokenstore.Store
	cache  cache.Cache
	now    func() time.Time
	logger logger.Logger

	// Concurrent 401s share one refresh call
	refreshes singleflight.Group
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) { client.http = c }
}

func WithLogger(l logger.Logger) Option {
	return func(client *Client) { client.logger = l }
}

// Cache for subscription summaries. In-memory cache is used if not set
func WithCache(c cache.Cache) Option {
	return func(client *Client) { client.cache = c }
}

func WithClock(now func() time.Time) Option {
	return func(client *Client) { client.now = now }
}

func New(cfg Config, store tokenstore.Store, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("identity backend base url must not be empty")
	}
	if store == nil {
		return nil, errors.New("token store must not be nil")
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.Timeout, defaultTimeout)
	setDefaultDuration(&cfg.SubscriptionTTL, defaultSubscriptionTTL)

	c := &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		subscriptionTTL: cfg.SubscriptionTTL,
		store:           store,
		now:             time.Now,
		logger:          logger.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		c.http = &http.Client{Timeout: cfg.Timeout}
	}
	if c.cache == nil {
		c.cache = cache.NewMemory(c.now)
	}

	return c, nil
}

// Body of login, register, oauth-login and refresh responses
type authResponse struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
	User         models.User `json:"user"`
}

func (c *Client) Login(ctx context.Context, email string, password string) (models.User, error) {
	body := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{Email: email, Password: password}

	return c.authenticate(ctx, pathLogin, body)
}

func (c *Client) Register(ctx context.Context, reg models.Registration) (models.User, error) {
	if err := ValidatePassword(reg.Password); err != nil {
		return models.User{}, err
	}

	return c.authenticate(ctx, pathRegister, reg)
}

// Exchange identity provider tokens for a backend session
// idToken is optional
func (c *Client) OAuthLogin(ctx context.Context, provider string, accessToken string, idToken string) (models.User, error) {
	body := struct {
		Provider    string `json:"provider"`
		AccessToken string `json:"accessToken"`
		IDToken     string `json:"idToken,omitempty"`
	}{Provider: provider, AccessToken: accessToken, IDToken: idToken}

	return c.authenticate(ctx, pathOAuthLogin, body)
}

// Post credentials, store issued pair and return user from response body
func (c *Client) authenticate(ctx context.Context, endpoint string, body any) (models.User, error) {
	var resp authResponse
	if err := c.doAnonymous(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
		return models.User{}, err
	}
	if resp.Token == "" || resp.RefreshToken == "" {
		return models.User{}, fmt.Errorf("backend response for %s has no tokens", endpoint)
	}

	if err := c.store.Save(models.TokenPair{Access: resp.Token, Refresh: resp.RefreshToken}); err != nil {
		return models.User{}, fmt.Errorf("error while saving tokens. Err: %w", err)
	}

	c.logger.Info("Signed in", "endpoint", endpoint, "user_id", resp.User.ID)
	return resp.User, nil
}

// RefreshAuthToken exchanges refresh token for a new pair.
// Any failure clears both tokens: the user has to sign in again.
func (c *Client) RefreshAuthToken(ctx context.Context) error {
	_, err, shared := c.refreshes.Do("refresh", func() (any, error) {
		return nil, c.refresh(ctx)
	})
	if shared {
		c.logger.Debug("Refresh result shared between concurrent requests")
	}
	return err
}

func (c *Client) refresh(ctx context.Context) error {
	pair, err := c.store.Load()
	if err != nil {
		return fmt.Errorf("error while loading tokens. Err: %w", err)
	}
	if pair.Refresh == "" {
		c.clearTokens()
		return apperrors.ErrNoRefreshToken
	}

	body := struct {
		RefreshToken string `json:"refreshToken"`
	}{RefreshToken: pair.Refresh}

	var resp authResponse
	err = c.doAnonymous(ctx, http.MethodPost, pathRefresh, body, &resp)
	if err == nil && resp.Token == "" {
		err = errors.New("backend response has no access token")
	}
	if err != nil {
		c.logger.Warn("Refresh failed, clearing tokens", "error", err)
		c.clearTokens()
		return fmt.Errorf("%w: %w", apperrors.ErrRefreshFailed, err)
	}

	// Backend may keep the refresh token as is
	if resp.RefreshToken == "" {
		resp.RefreshToken = pair.Refresh
	}
	if err := c.store.Save(models.TokenPair{Access: resp.Token, Refresh: resp.RefreshToken}); err != nil {
		return fmt.Errorf("error while saving tokens. Err: %w", err)
	}

	c.logger.Debug("Tokens refreshed")
	return nil
}

// Logout tells the backend to revoke the refresh token and always clears local state.
// Backend failure is logged only: the user is signed out locally anyway.
func (c *Client) Logout(ctx context.Context) error {
	pair, err := c.store.Load()
	if err != nil {
		c.logger.Warn("Failed to load tokens on logout", "error", err)
	}

	if pair.Access != "" || pair.Refresh != "" {
		body := struct {
			RefreshToken string `json:"refreshToken,omitempty"`
		}{RefreshToken: pair.Refresh}

		resp, _, err := c.send(ctx, http.MethodPost, pathLogout, body, true)
		if err == nil {
			err = c.read(resp, nil)
		}
		if err != nil {
			c.logger.Warn("Backend logout failed", "error", err)
		}
	}

	c.forgetSubscription(ctx, pair.Access)

	if err := c.store.Clear(); err != nil {
		return fmt.Errorf("error while clearing tokens. Err: %w", err)
	}
	return nil
}

func (c *Client) GetProfile(ctx context.Context) (models.User, error) {
	var u models.User
	err := c.do(ctx, http.MethodGet, pathProfile, nil, &u)
	return u, err
}

func (c *Client) UpdateProfile(ctx context.Context, update models.ProfileUpdate) (models.User, error) {
	var u models.User
	err := c.do(ctx, http.MethodPut, pathProfile, update, &u)
	return u, err
}

func (c *Client) ChangePassword(ctx context.Context, change models.PasswordChange) error {
	if err := ValidatePassword(change.NewPassword); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, pathChangePassword, change, nil)
}

func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	body := struct {
		Email string `json:"email"`
	}{Email: email}

	return c.doAnonymous(ctx, http.MethodPost, pathForgotPassword, body, nil)
}

// GetSubscription returns subscription summary, cached for SubscriptionTTL.
// Entries are keyed on the exact access token the backend accepted, so a cached summary
// is only served back to the holder of that token.
func (c *Client) GetSubscription(ctx context.Context) (models.Subscription, error) {
	var sub models.Subscription

	pair, _ := c.store.Load()
	if pair.Access != "" {
		if cached, ok := c.cachedSubscription(ctx, pair.Access); ok {
			return cached, nil
		}
	}

	if err := c.do(ctx, http.MethodGet, pathSubscription, nil, &sub); err != nil {
		return sub, err
	}

	// Pair could be refreshed by do
	pair, _ = c.store.Load()
	if pair.Access != "" {
		c.cacheSubscription(ctx, pair.Access, sub)
	}
	return sub, nil
}

func (c *Client) StartTrial(ctx context.Context) (models.Subscription, error) {
	var sub models.Subscription
	if err := c.do(ctx, http.MethodPost, pathStartTrial, nil, &sub); err != nil {
		return sub, err
	}

	pair, _ := c.store.Load()
	c.forgetSubscription(ctx, pair.Access)
	return sub, nil
}

func (c *Client) MarkInterestedInPro(ctx context.Context, interested bool) error {
	body := struct {
		InterestedInPro bool `json:"interestedInPro"`
	}{InterestedInPro: interested}

	return c.do(ctx, http.MethodPatch, pathInterestedPro, body, nil)
}

// IsAuthenticated reports whether the access token is structurally usable: 3 segments and not expired.
// Unusable access token is dropped from the store; refresh token stays for a later refresh.
func (c *Client) IsAuthenticated() bool {
	pair, err := c.store.Load()
	if err != nil || pair.Access == "" {
		return false
	}

	if err := checkToken(pair.Access, c.now()); err != nil {
		c.logger.Debug("Access token is not usable, dropping it", "error", err)
		if err := c.store.ClearAccess(); err != nil {
			c.logger.Warn("Failed to drop access token", "error", err)
		}
		return false
	}
	return true
}

// UserFromToken decodes the access token payload for display before the profile arrives.
// It is never used for authorization decisions.
func (c *Client) UserFromToken() (models.User, bool) {
	pair, err := c.store.Load()
	if err != nil || pair.Access == "" {
		return models.User{}, false
	}

	claims, err := parseUnverified(pair.Access)
	if err != nil {
		c.logger.Debug("Failed to decode access token", "error", err)
		return models.User{}, false
	}
	return userFromClaims(claims)
}

// HTTP client used to call the backend. Safe to share between clients
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Current token pair
func (c *Client) Tokens() models.TokenPair {
	pair, _ := c.store.Load()
	return pair
}

// do sends authorized request. On 401 it refreshes the pair once and retries once
func (c *Client) do(ctx context.Context, method string, endpoint string, body any, out any) error {
	resp, usedToken, err := c.send(ctx, method, endpoint, body, true)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return c.read(resp, out)
	}

	pair, _ := c.store.Load()
	if pair.Refresh == "" {
		return c.read(resp, out)
	}
	discard(resp)

	// Other request could have refreshed the pair while this one was in flight
	if pair.Access == "" || pair.Access == usedToken {
		c.logger.Debug("Access token rejected, refreshing", "endpoint", endpoint)
		if err := c.RefreshAuthToken(ctx); err != nil {
			return err
		}
	}

	resp, _, err = c.send(ctx, method, endpoint, body, true)
	if err != nil {
		return err
	}
	return c.read(resp, out)
}

func (c *Client) doAnonymous(ctx context.Context, method string, endpoint string, body any, out any) error {
	resp, _, err := c.send(ctx, method, endpoint, body, false)
	if err != nil {
		return err
	}
	return c.read(resp, out)
}

// Single attempt. Returns response with unread body and access token it was sent with
func (c *Client) send(ctx context.Context, method string, endpoint string, body any, withAuth bool) (*http.Response, string, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	var token string
	if withAuth {
		pair, _ := c.store.Load()
		token = pair.Access
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("Identity backend unreachable", "method", method, "endpoint", endpoint, "error", err)
		return nil, token, fmt.Errorf("%w: %w", apperrors.ErrNetwork, err)
	}
	return resp, token, nil
}

// Decode successful response into out or turn failed response into APIError
func (c *Client) read(resp *http.Response, out any) error {
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newAPIError(resp)
		c.logger.Debug("Identity backend error", "status_code", resp.StatusCode, "message", apiErr.Message)
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) clearTokens() {
	if err := c.store.Clear(); err != nil {
		c.logger.Error("Failed to clear tokens", "error", err)
	}
}

// Cache key of the subscription fetched with the access token.
// Token claims are not verified here, so they never take part in the key
func subscriptionKey(access string) string {
	sum := sha256.Sum256([]byte(access))
	return "subscription:" + hex.EncodeToString(sum[:])
}

func (c *Client) cachedSubscription(ctx context.Context, access string) (models.Subscription, bool) {
	var sub models.Subscription

	raw, ok, err := c.cache.Get(ctx, subscriptionKey(access))
	if err != nil {
		c.logger.Warn("Subscription cache read failed", "error", err)
		return sub, false
	}
	if !ok {
		return sub, false
	}
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		return sub, false
	}
	return sub, true
}

func (c *Client) cacheSubscription(ctx context.Context, access string, sub models.Subscription) {
	b, err := json.Marshal(sub)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, subscriptionKey(access), string(b), c.subscriptionTTL); err != nil {
		c.logger.Warn("Subscription cache write failed", "error", err)
	}
}

func (c *Client) forgetSubscription(ctx context.Context, access string) {
	if access == "" {
		return
	}
	if err := c.cache.Delete(ctx, subscriptionKey(access)); err != nil {
		c.logger.Warn("Subscription cache invalidation failed", "error", err)
	}
}

// Drain body so the connection can be reused
func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
