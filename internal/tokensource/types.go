// Package tokensource supplies the ambient cache/refresh/singleflight wiring
// the orchestrator and cloudapi consume for a fresh OAuth access token.
// Acquiring and refreshing tokens against the identity provider is out of
// scope (spec §1); TokenExchanger is the seam where that lives.
package tokensource

import (
	"context"
	"time"
)

// Token is the cached credential shape persisted to the token store file
// (spec §6 "Token store").
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// ExpiresWithin reports whether the token expires within d of now.
func (t Token) ExpiresWithin(now time.Time, d time.Duration) bool {
	return now.After(t.ExpiresAt.Add(-d))
}

// TokenExchanger performs the actual OAuth HTTP exchange against the
// identity provider. This is the out-of-scope collaborator (spec §1); the
// concrete implementation is spotifyoauth's HTTP adapter, wired in
// server.NewHandler, or, in tests, an in-memory fake.
type TokenExchanger interface {
	Refresh(ctx context.Context, refreshToken string) (Token, error)
}

// TokenSource is the capability interface the orchestrator and CloudAPI
// consume for a fresh access token (spec §1, §9).
type TokenSource interface {
	GetValidToken(ctx context.Context) (Token, error)
	// ForceRefresh refreshes immediately regardless of expiry, replacing the
	// cached token on success (the cached token stays if the refresh fails);
	// used after a 401 from the cloud API (spec §4.4, §7 AuthExpired).
	ForceRefresh(ctx context.Context) (Token, error)
}
