package apperrors

import (
	"errors"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNetwork          = errors.New("network error")

	ErrNoRefreshToken = errors.New("refresh token not found")
	ErrRefreshFailed  = errors.New("refresh token rejected")

	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenExpired   = errors.New("token is expired")

	ErrWeakPassword = errors.New("password is too weak")

	ErrOAuthSessionNotFound = errors.New("oauth session not found")
	ErrOAuthSessionExists   = errors.New("oauth session already exists")
	ErrOAuthStateMismatch   = errors.New("oauth state mismatch")
)
