// Package registry owns DeviceProfiles: the persistent, friendly-name-keyed
// record of what a wake target is and where it was last seen, plus a
// TTL-bounded discovery cache. See spec §3, §4.5.
package registry

import (
	"context"
	"strings"
	"time"
)

// Profile is the persistent DeviceProfile (spec §3). name is the stable
// identity; every other field is mutable and may be learned/refined on
// each orchestration run.
type Profile struct {
	Name               string
	InstanceName       string
	SpotifyDeviceNames []string
	IP                 string
	Port               int
	Cpath              string
	VolumePreset       int
	MaxWakeWaitS       *float64
	LearnedName        string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// MatchingNames returns {name, instance_name} ∪ spotify_device_names with
// empty entries removed, per spec §3 get_all_matching_names().
func (p Profile) MatchingNames() []string {
	candidates := append([]string{p.Name, p.InstanceName}, p.SpotifyDeviceNames...)
	names := make([]string, 0, len(candidates))
	for _, name := range candidates {
		if strings.TrimSpace(name) != "" {
			names = append(names, name)
		}
	}
	return names
}

// HasEndpoint reports whether the profile carries a usable last-known
// local control endpoint.
func (p Profile) HasEndpoint() bool {
	return p.IP != "" && p.Port > 0
}

// Registry is the capability interface the orchestrator consumes.
type Registry interface {
	// Discover returns the profiles materialized from the most recent
	// discovery sweep, reusing the cache when it is younger than the TTL
	// unless force is set (spec §4.5).
	Discover(ctx context.Context, force bool) ([]Profile, error)
	// GetOrCreate finds a profile by name, or materializes one via
	// DiscoverByName when absent (spec §4.5).
	GetOrCreate(ctx context.Context, name string) (Profile, error)
	// Get returns the persisted profile for name, if any.
	Get(name string) (Profile, bool, error)
	// UpdateLearned idempotently appends a learned cloud device name or
	// mDNS instance name to the profile (spec §4.5, §4.7).
	UpdateLearned(name string, spotifyDeviceName, instanceName string) error
	// UpdateEndpoint persists a freshly observed local control endpoint.
	UpdateEndpoint(name, ip string, port int, cpath string) error
}
