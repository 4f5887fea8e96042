package cloudapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/connect-alarm-go/internal/tokensource"
)

type fakeTokenSource struct {
	token         tokensource.Token
	forceRefreshN int32
}

func (f *fakeTokenSource) GetValidToken(ctx context.Context) (tokensource.Token, error) {
	return f.token, nil
}

func (f *fakeTokenSource) ForceRefresh(ctx context.Context) (tokensource.Token, error) {
	atomic.AddInt32(&f.forceRefreshN, 1)
	f.token.AccessToken = "refreshed-token"
	return f.token, nil
}

func newClientAgainst(server *httptest.Server, tokens tokensource.TokenSource) *HTTPClient {
	client := NewHTTPClient(tokens, 1, nil)
	client.base = server.URL
	return client
}

func TestPlayRetriesOnceAfter404(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	tokens := &fakeTokenSource{token: tokensource.Token{AccessToken: "tok"}}
	client := newClientAgainst(server, tokens)

	err := client.Play(context.Background(), "device-1", "spotify:playlist:abc", false)
	require.NoError(t, err)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestDevicesRefreshesOnceOn401(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"devices": []map[string]any{{"id": "d1", "name": "Kitchen"}},
		})
	}))
	defer server.Close()

	tokens := &fakeTokenSource{token: tokensource.Token{AccessToken: "stale-token"}}
	client := newClientAgainst(server, tokens)

	devices, err := client.Devices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Equal(t, "Kitchen", devices[0].Name)
	require.EqualValues(t, 1, atomic.LoadInt32(&tokens.forceRefreshN))
}

func TestVolumeFailureReturnsCategorizedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	tokens := &fakeTokenSource{token: tokensource.Token{AccessToken: "tok"}}
	client := newClientAgainst(server, tokens)

	err := client.Volume(context.Background(), "device-1", 45)
	require.Error(t, err)
	require.True(t, IsKind(err, KindTransient))
}

func TestPermanentRejectionDoesNotRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	tokens := &fakeTokenSource{token: tokensource.Token{AccessToken: "tok"}}
	client := newClientAgainst(server, tokens)

	err := client.Pause(context.Background(), "device-1")
	require.Error(t, err)
	require.True(t, IsKind(err, KindPermanentRejected))
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestCurrentPlaybackNoContentMeansNotPlaying(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	tokens := &fakeTokenSource{token: tokensource.Token{AccessToken: "tok"}}
	client := newClientAgainst(server, tokens)

	state, err := client.CurrentPlayback(context.Background())
	require.NoError(t, err)
	require.False(t, state.IsPlaying)
}

func TestDeviceNotFoundIsCategorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	tokens := &fakeTokenSource{token: tokensource.Token{AccessToken: "tok"}}
	client := newClientAgainst(server, tokens)

	err := client.Transfer(context.Background(), "device-1", true)
	require.Error(t, err)
	require.True(t, IsKind(err, KindDeviceNotFound))
}
