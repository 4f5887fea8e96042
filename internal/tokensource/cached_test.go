package tokensource

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeExchanger struct {
	calls   int32
	delay   time.Duration
	err     error
	onCall  func()
}

func (f *fakeExchanger) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.onCall != nil {
		f.onCall()
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return Token{}, f.err
	}
	return Token{
		AccessToken:  "fresh-token",
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil
}

func TestGetValidTokenRefreshesWhenEmpty(t *testing.T) {
	exchanger := &fakeExchanger{}
	source, err := NewCachedTokenSource(exchanger, filepath.Join(t.TempDir(), "token.json"), nil)
	require.NoError(t, err)

	token, err := source.GetValidToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fresh-token", token.AccessToken)
	require.EqualValues(t, 1, exchanger.calls)
}

func TestGetValidTokenSkipsRefreshWhenFresh(t *testing.T) {
	exchanger := &fakeExchanger{}
	source, err := NewCachedTokenSource(exchanger, filepath.Join(t.TempDir(), "token.json"), nil)
	require.NoError(t, err)

	source.mu.Lock()
	source.token = Token{AccessToken: "still-good", ExpiresAt: time.Now().Add(time.Hour)}
	source.mu.Unlock()

	token, err := source.GetValidToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "still-good", token.AccessToken)
	require.EqualValues(t, 0, exchanger.calls)
}

func TestGetValidTokenRefreshesWithinBuffer(t *testing.T) {
	exchanger := &fakeExchanger{}
	source, err := NewCachedTokenSource(exchanger, filepath.Join(t.TempDir(), "token.json"), nil)
	require.NoError(t, err)

	source.mu.Lock()
	source.token = Token{AccessToken: "about-to-expire", ExpiresAt: time.Now().Add(30 * time.Second)}
	source.mu.Unlock()

	token, err := source.GetValidToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fresh-token", token.AccessToken)
	require.EqualValues(t, 1, exchanger.calls)
}

func TestGetValidTokenFallsBackToExistingOnRefreshFailure(t *testing.T) {
	exchanger := &fakeExchanger{err: errors.New("refresh failed")}
	source, err := NewCachedTokenSource(exchanger, filepath.Join(t.TempDir(), "token.json"), nil)
	require.NoError(t, err)

	source.mu.Lock()
	source.token = Token{AccessToken: "still-valid", ExpiresAt: time.Now().Add(30 * time.Second)}
	source.mu.Unlock()

	token, err := source.GetValidToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "still-valid", token.AccessToken)
}

func TestConcurrentRefreshesAreSingleflighted(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	exchanger := &fakeExchanger{
		onCall: func() {
			once.Do(func() { close(started) })
			<-release
		},
	}
	source, err := NewCachedTokenSource(exchanger, filepath.Join(t.TempDir(), "token.json"), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = source.GetValidToken(context.Background())
		}()
	}

	<-started
	close(release)
	wg.Wait()

	require.EqualValues(t, 1, exchanger.calls)
}

func TestTokenPersistsToStoreFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	exchanger := &fakeExchanger{}
	source, err := NewCachedTokenSource(exchanger, path, nil)
	require.NoError(t, err)

	_, err = source.GetValidToken(context.Background())
	require.NoError(t, err)

	reloaded, err := NewCachedTokenSource(exchanger, path, nil)
	require.NoError(t, err)
	require.Equal(t, "fresh-token", reloaded.token.AccessToken)
}
