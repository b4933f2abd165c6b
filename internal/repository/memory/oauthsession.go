package memory

import (
	"context"
	"sync"
	"time"

	"github.com/nkiryanov/eazynet/internal/apperrors"
	"github.com/nkiryanov/eazynet/internal/models"
	"github.com/nkiryanov/eazynet/internal/repository"
)

// In-memory OAuth session repo, used when no database configured
type OAuthSessionRepo struct {
	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]models.OAuthSession
}

var _ repository.OAuthSessionRepo = (*OAuthSessionRepo)(nil)

func NewOAuthSessionRepo(now func() time.Time) *OAuthSessionRepo {
	if now == nil {
		now = time.Now
	}
	return &OAuthSessionRepo{
		now:      now,
		sessions: make(map[string]models.OAuthSession),
	}
}

func (r *OAuthSessionRepo) Save(_ context.Context, s models.OAuthSession) (models.OAuthSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.ID]; ok {
		return s, apperrors.ErrOAuthSessionExists
	}
	r.sessions[s.ID] = s
	return s, nil
}

func (r *OAuthSessionRepo) UpdateTokens(_ context.Context, s models.OAuthSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.sessions[s.ID]
	if !ok {
		return apperrors.ErrOAuthSessionNotFound
	}
	stored.AccessToken = s.AccessToken
	stored.IDToken = s.IDToken
	stored.RefreshToken = s.RefreshToken
	stored.ExpiresAt = s.ExpiresAt
	r.sessions[s.ID] = stored
	return nil
}

func (r *OAuthSessionRepo) Get(_ context.Context, id string) (models.OAuthSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok || s.Expired(r.now()) {
		return models.OAuthSession{}, apperrors.ErrOAuthSessionNotFound
	}
	return s, nil
}

func (r *OAuthSessionRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	return nil
}

func (r *OAuthSessionRepo) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	now := r.now()
	for id, s := range r.sessions {
		if s.Expired(now) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed, nil
}
