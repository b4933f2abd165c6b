package repository

import (
	"context"

	"github.com/nkiryanov/eazynet/internal/models"
)

// OAuthSession repository interface
type OAuthSessionRepo interface {
	// Save new session
	// If session with the same id exists has to return apperrors.ErrOAuthSessionExists
	Save(ctx context.Context, s models.OAuthSession) (models.OAuthSession, error)

	// Replace provider tokens and expiry of existing session
	// If session not found has to return apperrors.ErrOAuthSessionNotFound
	UpdateTokens(ctx context.Context, s models.OAuthSession) error

	// Return session if it exists and not expired
	// Otherwise has to return apperrors.ErrOAuthSessionNotFound
	Get(ctx context.Context, id string) (models.OAuthSession, error)

	// Delete session. Deleting missing session is not an error
	Delete(ctx context.Context, id string) error

	// Remove expired sessions, return number of removed
	DeleteExpired(ctx context.Context) (int64, error)
}
