package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/eazynet/internal/apperrors"
	"github.com/nkiryanov/eazynet/internal/models"
	"github.com/nkiryanov/eazynet/internal/repository"
)

type OAuthSessionRepo struct {
	DB DBTX
}

var _ repository.OAuthSessionRepo = (*OAuthSessionRepo)(nil)

const saveSession = `-- name: Save OAuth session
INSERT INTO oauth_sessions (id, provider, subject, email, name, picture, access_token, id_token, refresh_token, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id, provider, subject, email, name, picture, access_token, id_token, refresh_token, created_at, expires_at
`

func (r *OAuthSessionRepo) Save(ctx context.Context, s models.OAuthSession) (models.OAuthSession, error) {
	id, err := uuid.Parse(s.ID)
	if err != nil {
		return s, fmt.Errorf("session id must be uuid. Err: %w", err)
	}

	rows, _ := r.DB.Query(ctx, saveSession,
		id, s.Provider, s.User.Subject, s.User.Email, s.User.Name, s.User.Picture,
		s.AccessToken, s.IDToken, s.RefreshToken, s.CreatedAt, s.ExpiresAt,
	)
	saved, err := pgx.CollectOneRow(rows, rowToSession)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return s, fmt.Errorf("repo error: %w", apperrors.ErrOAuthSessionExists)
		}
		return s, fmt.Errorf("db error: %w", err)
	}

	return saved, nil
}

const updateTokens = `-- name: Update provider tokens
UPDATE oauth_sessions
SET access_token = $2, id_token = $3, refresh_token = $4, expires_at = $5
WHERE id = $1
`

func (r *OAuthSessionRepo) UpdateTokens(ctx context.Context, s models.OAuthSession) error {
	id, err := uuid.Parse(s.ID)
	if err != nil {
		return fmt.Errorf("repo error: %w", apperrors.ErrOAuthSessionNotFound)
	}

	tag, err := r.DB.Exec(ctx, updateTokens, id, s.AccessToken, s.IDToken, s.RefreshToken, s.ExpiresAt)
	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return fmt.Errorf("repo error: %w", apperrors.ErrOAuthSessionNotFound)
	default:
		return nil
	}
}

const getSession = `-- name: Get not expired session
SELECT id, provider, subject, email, name, picture, access_token, id_token, refresh_token, created_at, expires_at
FROM oauth_sessions
WHERE id = $1 AND expires_at > $2
`

func (r *OAuthSessionRepo) Get(ctx context.Context, id string) (models.OAuthSession, error) {
	sessionID, err := uuid.Parse(id)
	if err != nil {
		return models.OAuthSession{}, fmt.Errorf("repo error: %w", apperrors.ErrOAuthSessionNotFound)
	}

	rows, _ := r.DB.Query(ctx, getSession, sessionID, time.Now())
	s, err := pgx.CollectOneRow(rows, rowToSession)

	switch {
	case err == nil:
		return s, nil
	case errors.Is(err, pgx.ErrNoRows):
		return s, fmt.Errorf("repo error: %w", apperrors.ErrOAuthSessionNotFound)
	default:
		return s, fmt.Errorf("db error: %w", err)
	}
}

const deleteSession = `-- name: Delete session
DELETE FROM oauth_sessions WHERE id = $1
`

func (r *OAuthSessionRepo) Delete(ctx context.Context, id string) error {
	sessionID, err := uuid.Parse(id)
	if err != nil {
		return nil // nothing could be stored under such id
	}

	if _, err := r.DB.Exec(ctx, deleteSession, sessionID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const deleteExpired = `-- name: Delete expired sessions
DELETE FROM oauth_sessions WHERE expires_at <= $1
`

func (r *OAuthSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteExpired, time.Now())
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

func rowToSession(row pgx.CollectableRow) (models.OAuthSession, error) {
	var (
		s  models.OAuthSession
		id uuid.UUID
	)
	err := row.Scan(
		&id, &s.Provider, &s.User.Subject, &s.User.Email, &s.User.Name, &s.User.Picture,
		&s.AccessToken, &s.IDToken, &s.RefreshToken, &s.CreatedAt, &s.ExpiresAt,
	)
	s.ID = id.String()
	s.User.Provider = s.Provider
	return s, err
}
