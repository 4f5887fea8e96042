package tokensource

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// refreshBuffer matches spec §6: refresh is triggered when now > expires_at
// - 60s, not only once already expired.
const refreshBuffer = 60 * time.Second

// CachedTokenSource is the single owning TokenSource instance: an
// in-memory cache backed by a JSON file at BASE_DIR, refreshed through a
// singleflight so concurrent callers never issue overlapping refresh
// requests.
type CachedTokenSource struct {
	exchanger TokenExchanger
	storePath string
	logger    *log.Logger

	mu    sync.Mutex
	token Token

	refreshMu     sync.Mutex
	refreshInFlight bool
	refreshWaiters  []chan refreshResult
}

type refreshResult struct {
	token Token
	err   error
}

// NewCachedTokenSource loads any persisted token from storePath (if present)
// and returns a CachedTokenSource ready to serve GetValidToken.
func NewCachedTokenSource(exchanger TokenExchanger, storePath string, logger *log.Logger) (*CachedTokenSource, error) {
	if logger == nil {
		logger = log.Default()
	}
	source := &CachedTokenSource{
		exchanger: exchanger,
		storePath: storePath,
		logger:    logger,
	}

	if loaded, err := loadToken(storePath); err == nil {
		source.token = loaded
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("load token store: %w", err)
	}

	return source, nil
}

// GetValidToken implements TokenSource.
func (s *CachedTokenSource) GetValidToken(ctx context.Context) (Token, error) {
	s.mu.Lock()
	current := s.token
	s.mu.Unlock()

	if current.AccessToken == "" {
		return s.refresh(ctx, current.RefreshToken)
	}

	if current.ExpiresWithin(time.Now(), refreshBuffer) {
		refreshed, err := s.refresh(ctx, current.RefreshToken)
		if err != nil {
			// Refresh failed but the cached token may still be valid for a
			// little longer; prefer it over a hard failure.
			if time.Now().Before(current.ExpiresAt) {
				s.logger.Printf("tokensource: refresh failed, using existing token: %v", err)
				return current, nil
			}
			return Token{}, err
		}
		return refreshed, nil
	}

	return current, nil
}

// ForceRefresh implements TokenSource.
func (s *CachedTokenSource) ForceRefresh(ctx context.Context) (Token, error) {
	s.mu.Lock()
	refreshToken := s.token.RefreshToken
	s.mu.Unlock()
	return s.refresh(ctx, refreshToken)
}

// refresh performs a singleflight-style refresh: concurrent callers join the
// one in-flight request instead of issuing their own (spec §5 "Shared-resource
// policy" -- only one refresh in flight at a time).
func (s *CachedTokenSource) refresh(ctx context.Context, refreshToken string) (Token, error) {
	s.refreshMu.Lock()
	if s.refreshInFlight {
		ch := make(chan refreshResult, 1)
		s.refreshWaiters = append(s.refreshWaiters, ch)
		s.refreshMu.Unlock()
		result := <-ch
		return result.token, result.err
	}
	s.refreshInFlight = true
	s.refreshMu.Unlock()

	token, err := s.exchanger.Refresh(ctx, refreshToken)
	if err == nil {
		s.mu.Lock()
		s.token = token
		s.mu.Unlock()
		if persistErr := saveToken(s.storePath, token); persistErr != nil {
			s.logger.Printf("tokensource: failed to persist token: %v", persistErr)
		}
	}

	s.refreshMu.Lock()
	waiters := s.refreshWaiters
	s.refreshWaiters = nil
	s.refreshInFlight = false
	s.refreshMu.Unlock()

	for _, ch := range waiters {
		ch <- refreshResult{token: token, err: err}
		close(ch)
	}

	return token, err
}

func loadToken(path string) (Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Token{}, err
	}
	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return Token{}, fmt.Errorf("parse token store: %w", err)
	}
	return token, nil
}

func saveToken(path string, token Token) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
