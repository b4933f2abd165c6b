package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/eazynet/internal/apperrors"
	"github.com/nkiryanov/eazynet/internal/models"
)

func TestOAuthSessionRepo(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	current := now
	clock := func() time.Time { return current }

	session := models.OAuthSession{
		ID:          "3f1c9d8e-0000-4000-8000-000000000001",
		Provider:    models.ProviderGoogle,
		AccessToken: "provider-access",
		User:        models.OAuthUser{Subject: "123", Email: "nk@example.com", Provider: models.ProviderGoogle},
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
	}

	t.Run("save and get", func(t *testing.T) {
		repo := NewOAuthSessionRepo(clock)

		_, err := repo.Save(t.Context(), session)
		require.NoError(t, err)

		got, err := repo.Get(t.Context(), session.ID)
		require.NoError(t, err)
		require.Equal(t, session, got)
	})

	t.Run("save twice fails", func(t *testing.T) {
		repo := NewOAuthSessionRepo(clock)
		_, err := repo.Save(t.Context(), session)
		require.NoError(t, err)

		_, err = repo.Save(t.Context(), session)

		require.ErrorIs(t, err, apperrors.ErrOAuthSessionExists)
	})

	t.Run("expired not found", func(t *testing.T) {
		repo := NewOAuthSessionRepo(clock)
		_, err := repo.Save(t.Context(), session)
		require.NoError(t, err)

		current = now.Add(2 * time.Hour)
		t.Cleanup(func() { current = now })

		_, err = repo.Get(t.Context(), session.ID)
		require.ErrorIs(t, err, apperrors.ErrOAuthSessionNotFound)

		removed, err := repo.DeleteExpired(t.Context())
		require.NoError(t, err)
		require.EqualValues(t, 1, removed)
	})

	t.Run("update tokens", func(t *testing.T) {
		repo := NewOAuthSessionRepo(clock)
		_, err := repo.Save(t.Context(), session)
		require.NoError(t, err)

		updated := session
		updated.AccessToken = "provider-access-2"
		updated.ExpiresAt = now.Add(3 * time.Hour)
		updated.User.Email = "ignored@example.com"
		require.NoError(t, repo.UpdateTokens(t.Context(), updated))

		got, err := repo.Get(t.Context(), session.ID)
		require.NoError(t, err)
		require.Equal(t, "provider-access-2", got.AccessToken)
		require.Equal(t, now.Add(3*time.Hour), got.ExpiresAt)
		require.Equal(t, "nk@example.com", got.User.Email, "user is not touched by token update")
	})

	t.Run("update missing", func(t *testing.T) {
		repo := NewOAuthSessionRepo(clock)

		err := repo.UpdateTokens(t.Context(), session)

		require.ErrorIs(t, err, apperrors.ErrOAuthSessionNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		repo := NewOAuthSessionRepo(clock)
		_, err := repo.Save(t.Context(), session)
		require.NoError(t, err)

		require.NoError(t, repo.Delete(t.Context(), session.ID))
		require.NoError(t, repo.Delete(t.Context(), session.ID), "second delete is not an error")

		_, err = repo.Get(t.Context(), session.ID)
		require.ErrorIs(t, err, apperrors.ErrOAuthSessionNotFound)
	})
}
