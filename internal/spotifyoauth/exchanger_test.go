package spotifyoauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newExchangerAgainst(server *httptest.Server) *Exchanger {
	exchanger := New("client-id", "client-secret")
	exchanger.tokenURL = server.URL
	return exchanger
}

func TestRefreshReturnsNewAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Basic Y2xpZW50LWlkOmNsaWVudC1zZWNyZXQ=", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.FormValue("grant_type"))
		require.Equal(t, "old-refresh", r.FormValue("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","expires_in":3600,"token_type":"Bearer"}`))
	}))
	defer server.Close()

	token, err := newExchangerAgainst(server).Refresh(context.Background(), "old-refresh")
	require.NoError(t, err)
	require.Equal(t, "new-access", token.AccessToken)
	require.Equal(t, "old-refresh", token.RefreshToken) // not rotated
	require.True(t, token.ExpiresAt.After(time.Now()))
}

func TestRefreshRotatesRefreshTokenWhenPresent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"new-access","refresh_token":"rotated","expires_in":3600}`))
	}))
	defer server.Close()

	token, err := newExchangerAgainst(server).Refresh(context.Background(), "old-refresh")
	require.NoError(t, err)
	require.Equal(t, "rotated", token.RefreshToken)
}

func TestRefreshPropagatesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"refresh token revoked"}`))
	}))
	defer server.Close()

	_, err := newExchangerAgainst(server).Refresh(context.Background(), "old-refresh")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid_grant")
}

func TestRefreshRejectsEmptyRefreshToken(t *testing.T) {
	exchanger := New("client-id", "client-secret")
	_, err := exchanger.Refresh(context.Background(), "")
	require.Error(t, err)
}
