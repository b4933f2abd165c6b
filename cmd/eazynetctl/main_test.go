package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/eazynet/internal/apperrors"
	"github.com/nkiryanov/eazynet/internal/models"
	"github.com/nkiryanov/eazynet/internal/testutil"
	"github.com/nkiryanov/eazynet/internal/tokenstore"
)

func Test_run(t *testing.T) {
	backend := testutil.StartFakeIdentityBackend(t)
	backend.AddUser("ada@example.com", "Sup3rSecret!", "Ada")

	env := func(values map[string]string) func(string) string {
		return func(key string) string { return values[key] }
	}

	// Run the command against the fake backend with the session file in path
	ctl := func(t *testing.T, path string, args ...string) (string, error) {
		t.Helper()

		var stdout, stderr bytes.Buffer
		full := append([]string{"--api", backend.URL(), "--store", path}, args...)
		err := run(t.Context(), full, env(nil), &stdout, &stderr)
		return stdout.String(), err
	}

	t.Run("login whoami logout", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")

		out, err := ctl(t, path, "login", "--email", "ada@example.com", "--password", "Sup3rSecret!")
		require.NoError(t, err)
		var user models.User
		require.NoError(t, json.Unmarshal([]byte(out), &user))
		assert.Equal(t, "ada@example.com", user.Email)

		store, err := tokenstore.NewFile(path)
		require.NoError(t, err)
		pair, err := store.Load()
		require.NoError(t, err)
		assert.NotEmpty(t, pair.Access, "session should be kept between runs")

		out, err = ctl(t, path, "whoami")
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal([]byte(out), &user))
		assert.Equal(t, "Ada", user.Name)

		out, err = ctl(t, path, "logout")
		require.NoError(t, err)
		assert.JSONEq(t, `{"signedOut": true}`, out)

		_, err = ctl(t, path, "whoami")
		require.ErrorIs(t, err, apperrors.ErrNotAuthenticated)
	})

	t.Run("password from environment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		var stdout, stderr bytes.Buffer

		err := run(t.Context(),
			[]string{"--api", backend.URL(), "--store", path, "login", "-e", "ada@example.com"},
			env(map[string]string{"EAZYNET_PASSWORD": "Sup3rSecret!"}),
			&stdout, &stderr,
		)

		require.NoError(t, err)
		assert.Contains(t, stdout.String(), "ada@example.com")
	})

	t.Run("api url from environment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		var stdout, stderr bytes.Buffer

		err := run(t.Context(),
			[]string{"--store", path, "login", "--email", "ada@example.com", "--password", "Sup3rSecret!"},
			env(map[string]string{"NEXT_PUBLIC_EAZYNET_API_URL": backend.URL()}),
			&stdout, &stderr,
		)

		require.NoError(t, err)
	})

	t.Run("subscription and trial", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		_, err := ctl(t, path, "login", "--email", "ada@example.com", "--password", "Sup3rSecret!")
		require.NoError(t, err)

		out, err := ctl(t, path, "subscription")
		require.NoError(t, err)
		var got subscriptionOutput
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Equal(t, models.TierFree, got.Tier)

		out, err = ctl(t, path, "trial")
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Equal(t, models.TierTrial, got.Tier)
		assert.Equal(t, 7, got.TrialDaysLeft)
	})

	t.Run("whoami refreshes expired session", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		store, err := tokenstore.NewFile(path)
		require.NoError(t, err)

		pair := backend.Issue("ada@example.com")
		pair.Access = testutil.MintToken(t, backend.User("ada@example.com"), -time.Minute)
		require.NoError(t, store.Save(pair))

		out, err := ctl(t, path, "whoami")

		require.NoError(t, err)
		assert.Contains(t, out, "ada@example.com")
		assert.False(t, backend.RefreshValid(pair.Refresh), "refresh token rotated")
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name string
			args []string
		}{
			{"no command", nil},
			{"unknown command", []string{"dance"}},
			{"login without email", []string{"login", "--password", "Sup3rSecret!"}},
			{"wrong password", []string{"login", "--email", "ada@example.com", "--password", "Wr0ngPassword"}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := ctl(t, filepath.Join(t.TempDir(), "session.json"), tt.args...)
				require.Error(t, err)
			})
		}
	})

	t.Run("api url required", func(t *testing.T) {
		var stdout, stderr bytes.Buffer

		err := run(t.Context(), []string{"--store", filepath.Join(t.TempDir(), "s.json"), "whoami"}, env(nil), &stdout, &stderr)

		require.ErrorContains(t, err, "identity backend URL is required")
	})
}
