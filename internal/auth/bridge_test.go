package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"runxchat/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.AutoMigrate())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func authServer(t *testing.T, status int, body map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Contains(t, creds, "email")
		assert.Contains(t, creds, "password")

		w.WriteHeader(status)
		if body != nil {
			_ = json.NewEncoder(w).Encode(body)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func okBody() map[string]any {
	return map[string]any{
		"profile": map[string]any{"id": "ext-42", "name": "Alice"},
		"token":   "tok-abc",
	}
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("first login creates exactly one user with provider api", func(t *testing.T) {
		st := newTestStore(t)
		srv := authServer(t, http.StatusCreated, okBody())
		bridge := New(srv.URL, st, time.Second, zap.NewNop())

		user := bridge.Authenticate(ctx, "alice@example.com", "pw")
		require.NotNil(t, user)
		assert.Equal(t, "alice@example.com", user.Identifier)
		assert.Equal(t, "api", user.Metadata["provider"])
		assert.Equal(t, "ext-42", user.Metadata["id"])
		assert.Equal(t, "tok-abc", user.Metadata["token"])
		assert.Equal(t, "Alice", user.Metadata["name"])

		row, err := st.GetUserByIdentifier(ctx, "alice@example.com")
		require.NoError(t, err)
		require.NotNil(t, row)

		// A second login reuses the row instead of duplicating it.
		again := bridge.Authenticate(ctx, "alice@example.com", "pw")
		require.NotNil(t, again)
		rowAgain, err := st.GetUserByIdentifier(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, row.ID, rowAgain.ID)
	})

	t.Run("non-201 status denies and creates no row", func(t *testing.T) {
		st := newTestStore(t)
		srv := authServer(t, http.StatusUnauthorized, nil)
		bridge := New(srv.URL, st, time.Second, zap.NewNop())

		user := bridge.Authenticate(ctx, "alice@example.com", "bad-pw")
		assert.Nil(t, user)

		row, err := st.GetUserByIdentifier(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Nil(t, row)
	})

	t.Run("200 is not success either", func(t *testing.T) {
		st := newTestStore(t)
		srv := authServer(t, http.StatusOK, okBody())
		bridge := New(srv.URL, st, time.Second, zap.NewNop())
		assert.Nil(t, bridge.Authenticate(ctx, "alice@example.com", "pw"))
	})

	t.Run("transport failure denies and creates no row", func(t *testing.T) {
		st := newTestStore(t)
		srv := authServer(t, http.StatusCreated, okBody())
		srv.Close() // connection refused from here on
		bridge := New(srv.URL, st, time.Second, zap.NewNop())

		user := bridge.Authenticate(ctx, "alice@example.com", "pw")
		assert.Nil(t, user)

		row, err := st.GetUserByIdentifier(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Nil(t, row)
	})

	t.Run("missing endpoint URL denies", func(t *testing.T) {
		bridge := New("", newTestStore(t), time.Second, zap.NewNop())
		assert.Nil(t, bridge.Authenticate(ctx, "alice@example.com", "pw"))
	})

	t.Run("existing user with string metadata is normalized", func(t *testing.T) {
		st := newTestStore(t)
		require.NoError(t, st.CreateUser(ctx, &store.User{
			Identifier: "bob@example.com",
			Metadata:   datatypes.JSON(`"{\"name\":\"Bob\",\"provider\":\"api\"}"`),
		}))
		srv := authServer(t, http.StatusCreated, okBody())
		bridge := New(srv.URL, st, time.Second, zap.NewNop())

		user := bridge.Authenticate(ctx, "bob@example.com", "pw")
		require.NotNil(t, user)
		assert.Equal(t, "Bob", user.Metadata["name"])
	})

	t.Run("existing user with broken metadata still logs in", func(t *testing.T) {
		st := newTestStore(t)
		require.NoError(t, st.CreateUser(ctx, &store.User{
			Identifier: "carol@example.com",
			Metadata:   datatypes.JSON(`"definitely not json"`),
		}))
		srv := authServer(t, http.StatusCreated, okBody())
		bridge := New(srv.URL, st, time.Second, zap.NewNop())

		user := bridge.Authenticate(ctx, "carol@example.com", "pw")
		require.NotNil(t, user)
		assert.Empty(t, user.Metadata)
	})
}
