package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JainamDedhia/Eduthon/internal/material"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_CurrentUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/user", r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"u-1","email":"ada@example.com","displayName":"Ada","isTeacher":true}`))
	}))
	defer srv.Close()

	user, err := NewClient(srv.URL, "tok-123").CurrentUser(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "u-1", user.ID)
	assert.Equal(t, "Ada", user.DisplayName)
	assert.True(t, user.IsTeacher)
}

func TestClient_CurrentUser_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token expired", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "stale").CurrentUser(context.Background())

	var netErr *material.NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, http.StatusUnauthorized, netErr.StatusCode)
}

func TestClient_SignOut(t *testing.T) {
	var called bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/signout", r.URL.Path)

		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewClient(srv.URL, "tok-123").SignOut(context.Background()))
	assert.True(t, called)
}

func TestClient_SignOut_ServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session store down", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "tok-123").SignOut(context.Background())

	var netErr *material.NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, http.StatusBadGateway, netErr.StatusCode)
}
