package models

import (
	"time"
)

const ProviderGoogle = "google"

// User as a third-party identity provider shapes it
type OAuthUser struct {
	Subject  string `json:"sub"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Picture  string `json:"picture,omitempty"`
	Provider string `json:"provider"`
}

// Project provider user onto the backend user shape
// Subscription fields stay zero: the provider knows nothing about them
func (u OAuthUser) AsUser() User {
	return User{
		ID:    u.Provider + ":" + u.Subject,
		Email: u.Email,
		Name:  u.Name,
	}
}

// Session established directly with the identity provider
type OAuthSession struct {
	ID           string
	Provider     string
	AccessToken  string
	IDToken      string
	RefreshToken string
	User         OAuthUser
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

func (s OAuthSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !s.ExpiresAt.After(now)
}
