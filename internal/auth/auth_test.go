package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testAccessToken = "open-sesame"

func newTestService(t *testing.T, ttl time.Duration) *Service {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testAccessToken), bcrypt.MinCost)
	require.NoError(t, err)

	svc, err := NewService(Config{
		Enabled:   true,
		TokenHash: string(hash),
		JWTSecret: "test-secret",
		TokenTTL:  ttl,
	})
	require.NoError(t, err)
	return svc
}

func TestNewService(t *testing.T) {
	t.Run("enabled requires token hash", func(t *testing.T) {
		_, err := NewService(Config{Enabled: true, JWTSecret: "s"})
		require.Error(t, err)
	})

	t.Run("enabled requires jwt secret", func(t *testing.T) {
		_, err := NewService(Config{Enabled: true, TokenHash: "h"})
		require.Error(t, err)
	})

	t.Run("disabled needs nothing", func(t *testing.T) {
		svc, err := NewService(Config{})
		require.NoError(t, err)
		assert.False(t, svc.Enabled())
	})
}

func TestIssueToken(t *testing.T) {
	svc := newTestService(t, time.Hour)

	t.Run("mints a token for the right credentials", func(t *testing.T) {
		signed, expires, err := svc.IssueToken(testAccessToken, "user-1")
		require.NoError(t, err)
		require.NotEmpty(t, signed)
		assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

		claims, err := svc.ValidateToken(signed)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.UserID)
		assert.Equal(t, "mentat", claims.Issuer)
	})

	t.Run("rejects the wrong access token", func(t *testing.T) {
		_, _, err := svc.IssueToken("wrong", "user-1")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("rejects when disabled", func(t *testing.T) {
		disabled, err := NewService(Config{})
		require.NoError(t, err)
		_, _, err = disabled.IssueToken(testAccessToken, "user-1")
		require.ErrorIs(t, err, ErrDisabled)
	})
}

func TestValidateToken(t *testing.T) {
	svc := newTestService(t, time.Hour)

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := svc.ValidateToken("not-a-token")
		require.Error(t, err)
	})

	t.Run("rejects tokens signed with another secret", func(t *testing.T) {
		other := newTestService(t, time.Hour)
		signed, _, err := other.IssueToken(testAccessToken, "user-1")
		require.NoError(t, err)

		stranger, err := NewService(Config{Enabled: true, TokenHash: "h", JWTSecret: "different"})
		require.NoError(t, err)
		_, err = stranger.ValidateToken(signed)
		require.Error(t, err)
	})

	t.Run("rejects expired tokens", func(t *testing.T) {
		quick := newTestService(t, time.Nanosecond)
		signed, _, err := quick.IssueToken(testAccessToken, "user-1")
		require.NoError(t, err)

		time.Sleep(10 * time.Millisecond)
		_, err = quick.ValidateToken(signed)
		require.Error(t, err)
	})
}

func TestMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := UserFromContext(r.Context())
		w.Header().Set("X-User", user)
		w.WriteHeader(http.StatusOK)
	})

	t.Run("passes through when disabled", func(t *testing.T) {
		svc, err := NewService(Config{})
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		svc.Middleware(handler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-User"))
	})

	t.Run("rejects a missing header", func(t *testing.T) {
		svc := newTestService(t, time.Hour)
		rec := httptest.NewRecorder()
		svc.Middleware(handler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects a bad token", func(t *testing.T) {
		svc := newTestService(t, time.Hour)
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Authorization", "Bearer bogus")
		rec := httptest.NewRecorder()
		svc.Middleware(handler).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("stores the user on the context", func(t *testing.T) {
		svc := newTestService(t, time.Hour)
		signed, _, err := svc.IssueToken(testAccessToken, "user-7")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Authorization", "Bearer "+signed)
		rec := httptest.NewRecorder()
		svc.Middleware(handler).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user-7", rec.Header().Get("X-User"))
	})
}
