package session

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/eazynet/internal/apperrors"
)

func TestNewAPIError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"error field", 400, `{"error":"Trial already used","message":"ignored"}`, "Trial already used"},
		{"message field", 400, `{"message":"Invalid email or password"}`, "Invalid email or password"},
		{"errors map", 400, `{"errors":{"Password":["Too short","No digit"],"Email":"Invalid"}}`, "Email: Invalid; Password: Too short, No digit"},
		{"empty error falls to message", 400, `{"error":"","message":"Fallback"}`, "Fallback"},
		{"non string error", 400, `{"error":{"code":1}}`, "request failed with status 400"},
		{"plain text", 409, `Conflict happened`, "Conflict happened"},
		{"html page", 502, `<html><body>Bad Gateway</body></html>`, "request failed with status 502"},
		{"too long text", 500, strings.Repeat("x", maxTextMessage+1), "request failed with status 500"},
		{"empty body", 404, ``, "request failed with status 404"},
		{"json without known fields", 500, `{"detail":"boom"}`, "request failed with status 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status, Body: io.NopCloser(strings.NewReader(tt.body))}

			apiErr := newAPIError(resp)

			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.message, apiErr.Error())
		})
	}

	t.Run("fields kept with message", func(t *testing.T) {
		resp := &http.Response{
			StatusCode: 400,
			Body:       io.NopCloser(strings.NewReader(`{"message":"Validation failed","errors":{"Name":["Required"]}}`)),
		}

		apiErr := newAPIError(resp)

		assert.Equal(t, "Validation failed", apiErr.Message)
		assert.Equal(t, map[string][]string{"Name": {"Required"}}, apiErr.Fields)
	})
}

func TestAPIError_Unwrap(t *testing.T) {
	t.Run("401 is not authenticated", func(t *testing.T) {
		var err error = &APIError{StatusCode: http.StatusUnauthorized, Message: "nope"}
		require.ErrorIs(t, err, apperrors.ErrNotAuthenticated)
	})

	t.Run("others are not", func(t *testing.T) {
		var err error = &APIError{StatusCode: http.StatusForbidden, Message: "nope"}
		require.NotErrorIs(t, err, apperrors.ErrNotAuthenticated)
	})
}
