package postgrest

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/bananagen/internal/apperror"
	"github.com/sakif/bananagen/internal/model"
)

var caller = model.Identity{ID: "0b7c-user", AccessToken: "user-jwt"}

// newTestClient points a Client at handler.
func newTestClient(t *testing.T, serviceRole string, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "anon-key", serviceRole, srv.Client())
}

func TestSpend(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		want     *int64
		wantErr  bool
		upstream bool
	}{
		{name: "remaining balance", status: http.StatusOK, body: "8", want: ptr(8)},
		{name: "null means insufficient", status: http.StatusOK, body: "null", want: nil},
		{name: "rpc error is upstream", status: http.StatusBadRequest, body: `{"message":"cost must be positive"}`, wantErr: true, upstream: true},
		{name: "garbage body", status: http.StatusOK, body: `"eight"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got spendArgs
			c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/rest/v1/rpc/spend_points", r.URL.Path)
				assert.Equal(t, "anon-key", r.Header.Get("apikey"))
				assert.Equal(t, "Bearer user-jwt", r.Header.Get("Authorization"))
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			remaining, err := c.Spend(context.Background(), caller, 1, "gen:basic",
				map[string]any{"requestId": "req-1", "model": "nano-banana"})

			assert.Equal(t, int64(1), got.Cost)
			assert.Equal(t, "gen:basic", got.Reason)
			assert.Equal(t, "req-1", got.Meta["requestId"])

			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.upstream, errors.Is(err, apperror.ErrUpstream))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, remaining)
		})
	}
}

func TestBalance(t *testing.T) {
	t.Run("existing row", func(t *testing.T) {
		c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/rest/v1/user_points", r.URL.Path)
			assert.Equal(t, "points", r.URL.Query().Get("select"))
			assert.Equal(t, "eq.0b7c-user", r.URL.Query().Get("user_id"))
			w.Write([]byte(`[{"points":42}]`))
		})

		points, err := c.Balance(context.Background(), caller)
		require.NoError(t, err)
		assert.Equal(t, int64(42), points)
	})

	t.Run("no row reads as zero", func(t *testing.T) {
		c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[]`))
		})

		points, err := c.Balance(context.Background(), caller)
		require.NoError(t, err)
		assert.Zero(t, points)
	})

	t.Run("server error", func(t *testing.T) {
		c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})

		_, err := c.Balance(context.Background(), caller)
		assert.True(t, errors.Is(err, apperror.ErrUpstream))
	})
}

func TestHistory(t *testing.T) {
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/rest/v1/user_points_ledger", r.URL.Path)
		assert.Equal(t, "created_at.desc", q.Get("order"))
		assert.Equal(t, "100", q.Get("limit"))
		w.Write([]byte(`[
			{"id":"b","user_id":"0b7c-user","delta":-5,"reason":"gen:pro","meta":{"model":"nano-banana-pro"},"created_at":"2026-10-19T10:00:00.123456+00:00"},
			{"id":"a","user_id":"0b7c-user","delta":10,"reason":"signup","meta":{},"created_at":"2026-10-18T09:00:00+00:00"}
		]`))
	})

	entries, err := c.History(context.Background(), caller, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, int64(-5), entries[0].Delta)
	assert.Equal(t, "gen:pro", entries[0].Reason)
	assert.Equal(t, "nano-banana-pro", entries[0].Meta["model"])
	assert.True(t, entries[0].CreatedAt.After(entries[1].CreatedAt))
}

func TestGrant(t *testing.T) {
	t.Run("without service role", func(t *testing.T) {
		c := New("http://unused", "anon-key", "", nil)
		assert.False(t, c.CanGrant())

		_, err := c.Grant(context.Background(), "u", 5, "refund:gen:pro", nil)
		assert.ErrorIs(t, err, ErrNoServiceRole)
	})

	t.Run("uses the service role key", func(t *testing.T) {
		c := newTestClient(t, "service-key", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/rest/v1/rpc/grant_points", r.URL.Path)
			assert.Equal(t, "service-key", r.Header.Get("apikey"))
			assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))

			var args grantArgs
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&args))
			assert.Equal(t, "0b7c-user", args.UserID)
			assert.Equal(t, int64(5), args.Amount)
			w.Write([]byte("8"))
		})

		balance, err := c.Grant(context.Background(), "0b7c-user", 5, "refund:gen:pro", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(8), balance)
	})
}

func TestMigrationsEmbedded(t *testing.T) {
	ups, err := fs.Glob(Migrations, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(Migrations, "migrations/*.down.sql")
	require.NoError(t, err)

	assert.Len(t, ups, 2)
	assert.Len(t, downs, len(ups), "every up migration needs a down")
}

func ptr(v int64) *int64 { return &v }
