package session

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nkiryanov/eazynet/internal/apperrors"
	"github.com/nkiryanov/eazynet/internal/models"
)

// Claim names the backend may use for the same field
var (
	idClaims    = []string{"sub", "nameid", "userId", "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/nameidentifier"}
	emailClaims = []string{"email", "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress"}
	nameClaims  = []string{"name", "unique_name", "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/name"}
)

// Decode token payload without checking the signature.
// Signature is the backend's business; the client only needs claims for staleness and display.
func parseUnverified(token string) (jwt.MapClaims, error) {
	if strings.Count(token, ".") != 2 {
		return nil, fmt.Errorf("%w: expected 3 segments", apperrors.ErrTokenMalformed)
	}

	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrTokenMalformed, err)
	}
	return claims, nil
}

// Structural check: 3 segments and 'exp' claim in the future
func checkToken(token string, now time.Time) error {
	claims, err := parseUnverified(token)
	if err != nil {
		return err
	}

	exp, err := claims.GetExpirationTime()
	switch {
	case err != nil:
		return fmt.Errorf("%w: %w", apperrors.ErrTokenMalformed, err)
	case exp == nil:
		return fmt.Errorf("%w: no exp claim", apperrors.ErrTokenMalformed)
	case !exp.After(now):
		return apperrors.ErrTokenExpired
	default:
		return nil
	}
}

// Optimistic user from token claims
func userFromClaims(claims jwt.MapClaims) (models.User, bool) {
	u := models.User{
		ID:    firstString(claims, idClaims...),
		Email: firstString(claims, emailClaims...),
		Name:  firstString(claims, nameClaims...),
	}
	if u.ID == "" && u.Email == "" {
		return models.User{}, false
	}

	u.IsPro = claimBool(claims["isPro"])
	u.IsTrial = claimBool(claims["isTrial"])
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		u.CreatedAt = iat.Time
	}
	return u, true
}

func firstString(claims jwt.MapClaims, names ...string) string {
	for _, name := range names {
		switch v := claims[name].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// Claims issued by the backend come either as JSON booleans or as "True"/"False" strings
func claimBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(b)
		return err == nil && parsed
	default:
		return false
	}
}
