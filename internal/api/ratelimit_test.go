package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter(t *testing.T) {
	t.Run("allows up to the burst", func(t *testing.T) {
		rl := NewRateLimiter(1, 2)

		assert.True(t, rl.Allow("u-1"))
		assert.True(t, rl.Allow("u-1"))
		assert.False(t, rl.Allow("u-1"))
	})

	t.Run("tracks keys independently", func(t *testing.T) {
		rl := NewRateLimiter(1, 1)

		require.True(t, rl.Allow("u-1"))
		require.False(t, rl.Allow("u-1"))
		assert.True(t, rl.Allow("u-2"))
	})

	t.Run("zero values fall back to defaults", func(t *testing.T) {
		rl := NewRateLimiter(0, 0)

		assert.Equal(t, defaultRequestsPerSecond, rl.requestsPerSecond)
		assert.Equal(t, defaultBurst, rl.burst)
	})

	t.Run("resets tracking past the cap", func(t *testing.T) {
		rl := NewRateLimiter(1, 1)

		for i := 0; i < maxTrackedKeys; i++ {
			rl.Allow(fmt.Sprintf("u-%d", i))
		}
		require.Len(t, rl.limiters, maxTrackedKeys)

		assert.True(t, rl.Allow("fresh"))
		assert.Len(t, rl.limiters, 1)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	newRouter := func(rl *RateLimiter) *mux.Router {
		router := mux.NewRouter()
		router.Use(rl.Middleware)
		router.HandleFunc("/users/{userID}/status", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		router.HandleFunc("/auth/token", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		return router
	}

	get := func(router *mux.Router, path, remoteAddr string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if remoteAddr != "" {
			req.RemoteAddr = remoteAddr
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	t.Run("rejects a user over budget with 429", func(t *testing.T) {
		router := newRouter(NewRateLimiter(1, 2))

		assert.Equal(t, http.StatusOK, get(router, "/users/u-1/status", ""))
		assert.Equal(t, http.StatusOK, get(router, "/users/u-1/status", ""))
		assert.Equal(t, http.StatusTooManyRequests, get(router, "/users/u-1/status", ""))

		// Another user is unaffected.
		assert.Equal(t, http.StatusOK, get(router, "/users/u-2/status", ""))
	})

	t.Run("keys userless routes by client address", func(t *testing.T) {
		router := newRouter(NewRateLimiter(1, 1))

		assert.Equal(t, http.StatusOK, get(router, "/auth/token", "198.51.100.7:4431"))
		assert.Equal(t, http.StatusTooManyRequests, get(router, "/auth/token", "198.51.100.7:9090"))
		assert.Equal(t, http.StatusOK, get(router, "/auth/token", "198.51.100.8:4431"))
	})
}
