// Package cloudapi wraps the Spotify Web API surface the orchestrator needs:
// listing devices, transferring playback, staging volume, starting/pausing
// playback, and reading current playback state. See spec §4.4.
package cloudapi

import (
	"context"
	"errors"
)

// Kind categorizes a CloudAPI failure the way the orchestrator needs to
// switch on it (spec §4.4, §7).
type Kind string

const (
	KindAuthExpired       Kind = "auth_expired"
	KindDeviceNotFound    Kind = "device_not_found"
	KindTransient         Kind = "transient"
	KindPermanentRejected Kind = "permanent_rejected"
)

// Error is the structured failure every CloudAPI operation returns instead
// of an ad-hoc error value, so the orchestrator can switch on Kind.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

// IsKind reports whether err is a CloudAPI Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind == kind
	}
	return false
}

// Device is the ephemeral cloud device-list entry (spec §3 CloudDevice).
type Device struct {
	ID               string
	Name             string
	IsActive         bool
	VolumePercent    int
	DeviceType       string
	IsPrivateSession bool
	IsRestricted     bool
}

// PlaybackState is the response shape of CurrentPlayback.
type PlaybackState struct {
	IsPlaying bool
	Device    Device
}

// CloudAPI is the capability interface the orchestrator depends on.
type CloudAPI interface {
	Devices(ctx context.Context) ([]Device, error)
	Transfer(ctx context.Context, deviceID string, play bool) error
	Volume(ctx context.Context, deviceID string, percent int) error
	Play(ctx context.Context, deviceID, contextURI string, shuffle bool) error
	Pause(ctx context.Context, deviceID string) error
	CurrentPlayback(ctx context.Context) (*PlaybackState, error)
}
