// Package oauth signs visitors in with Google and keeps the resulting provider session
// behind an opaque cookie.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/nkiryanov/eazynet/internal/apperrors"
	"github.com/nkiryanov/eazynet/internal/models"
)

const GoogleIssuer = "https://accounts.google.com"

type GoogleConfig struct {
	ClientID     string
	ClientSecret string

	// Callback URL registered in Google console
	RedirectURL string

	// OIDC issuer. Google is used if not set
	Issuer string
}

// Verifier checks ID token signature, issuer, audience and expiry
type Verifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

type Google struct {
	config   *oauth2.Config
	verifier Verifier
	now      func() time.Time
}

// NewGoogle discovers provider endpoints and keys from the issuer
func NewGoogle(ctx context.Context, cfg GoogleConfig) (*Google, error) {
	if cfg.ClientID == "" || cfg.RedirectURL == "" {
		return nil, errors.New("google client id and redirect url must be set")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = GoogleIssuer
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return newGoogle(cfg, provider.Endpoint(), verifier), nil
}

func newGoogle(cfg GoogleConfig, endpoint oauth2.Endpoint, verifier Verifier) *Google {
	return &Google{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: verifier,
		now:      time.Now,
	}
}

// AuthCodeURL returns the consent page URL. Code challenge is derived from verifier with S256
func (g *Google) AuthCodeURL(state string, verifier string, nonce string) string {
	return g.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
		oidc.Nonce(nonce),
	)
}

// Exchange authorization code for provider tokens and verify the ID token
func (g *Google) Exchange(ctx context.Context, code string, verifier string, nonce string) (models.OAuthSession, error) {
	token, err := g.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return models.OAuthSession{}, fmt.Errorf("token exchange failed: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return models.OAuthSession{}, errors.New("no id token in provider response")
	}

	user, err := g.verify(ctx, rawIDToken, nonce)
	if err != nil {
		return models.OAuthSession{}, err
	}

	return models.OAuthSession{
		Provider:     models.ProviderGoogle,
		AccessToken:  token.AccessToken,
		IDToken:      rawIDToken,
		RefreshToken: token.RefreshToken,
		User:         user,
		CreatedAt:    g.now(),
		ExpiresAt:    token.Expiry,
	}, nil
}

// Refresh provider tokens with the session refresh token
func (g *Google) Refresh(ctx context.Context, s models.OAuthSession) (models.OAuthSession, error) {
	if s.RefreshToken == "" {
		return s, errors.New("oauth session has no refresh token")
	}

	token, err := g.config.TokenSource(ctx, &oauth2.Token{RefreshToken: s.RefreshToken}).Token()
	if err != nil {
		return s, fmt.Errorf("token refresh failed: %w", err)
	}

	s.AccessToken = token.AccessToken
	s.ExpiresAt = token.Expiry
	if token.RefreshToken != "" {
		s.RefreshToken = token.RefreshToken
	}
	if rawIDToken, ok := token.Extra("id_token").(string); ok && rawIDToken != "" {
		user, err := g.verify(ctx, rawIDToken, "")
		if err != nil {
			return s, err
		}
		s.IDToken = rawIDToken
		s.User = user
	}
	return s, nil
}

// Empty nonce skips the nonce check: refreshed ID tokens carry none
func (g *Google) verify(ctx context.Context, rawIDToken string, nonce string) (models.OAuthUser, error) {
	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return models.OAuthUser{}, fmt.Errorf("id token verification failed: %w", err)
	}

	var claims struct {
		Nonce   string `json:"nonce"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return models.OAuthUser{}, fmt.Errorf("failed to extract claims: %w", err)
	}
	if nonce != "" && claims.Nonce != nonce {
		return models.OAuthUser{}, fmt.Errorf("%w: nonce", apperrors.ErrOAuthStateMismatch)
	}

	return models.OAuthUser{
		Subject:  idToken.Subject,
		Email:    claims.Email,
		Name:     claims.Name,
		Picture:  claims.Picture,
		Provider: models.ProviderGoogle,
	}, nil
}
