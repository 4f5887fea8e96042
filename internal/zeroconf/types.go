// Package zeroconf implements the device-local HTTP control surface a
// Spotify Connect speaker serves on its mDNS-advertised endpoint: getInfo,
// addUser, and a lightweight health probe. See spec §4.3.
package zeroconf

import "context"

// GetInfoResult is the parsed response of a getInfo call.
type GetInfoResult struct {
	OK           bool
	FriendlyName string
	Raw          map[string]any
}

// AddUserMode selects the authentication payload shape addUser sends.
type AddUserMode string

const (
	// ModeAccessToken is the primary, genuine auth path.
	ModeAccessToken AddUserMode = "access_token"
	// ModeBlobClientKey is the best-effort encrypted-blob fallback (spec §9).
	ModeBlobClientKey AddUserMode = "blob_clientKey"
)

// AddUserRequest carries the fields needed to build either addUser payload
// shape described in spec §4.3.
type AddUserRequest struct {
	Mode        AddUserMode
	Username    string
	AccessToken string // ModeAccessToken
	LoginID     string // ModeAccessToken
	Blob        string // ModeBlobClientKey
	ClientKey   string // ModeBlobClientKey
}

// HealthResult is the outcome of a health probe.
type HealthResult struct {
	Responding     bool
	ResponseTimeMs int64
	Error          string
}

// Endpoint addresses a device's local control server.
type Endpoint struct {
	IP    string
	Port  int
	Cpath string
}

// Client is the capability interface the orchestrator depends on.
type Client interface {
	GetInfo(ctx context.Context, ep Endpoint) (GetInfoResult, bool)
	AddUser(ctx context.Context, ep Endpoint, req AddUserRequest) bool
	Health(ctx context.Context, ep Endpoint) HealthResult
}
