package session

import (
	"fmt"
	"unicode"

	"github.com/nkiryanov/eazynet/internal/apperrors"
)

const MinPasswordLength = 8

// ValidatePassword checks complexity before the password is sent anywhere.
// The backend enforces its own rules too; this only saves a round trip.
func ValidatePassword(password string) error {
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}

	switch {
	case len([]rune(password)) < MinPasswordLength:
		return fmt.Errorf("%w: must be at least %d characters", apperrors.ErrWeakPassword, MinPasswordLength)
	case !upper:
		return fmt.Errorf("%w: must contain an uppercase letter", apperrors.ErrWeakPassword)
	case !lower:
		return fmt.Errorf("%w: must contain a lowercase letter", apperrors.ErrWeakPassword)
	case !digit:
		return fmt.Errorf("%w: must contain a digit", apperrors.ErrWeakPassword)
	default:
		return nil
	}
}
