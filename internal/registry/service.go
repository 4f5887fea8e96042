package registry

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/strefethen/connect-alarm-go/internal/discovery"
	"github.com/strefethen/connect-alarm-go/internal/zeroconf"
)

// DefaultVolumePreset is used when synthesizing a profile that has never
// been configured with an explicit preset (spec §4.6 phase 2).
const DefaultVolumePreset = 35

type discoverResult struct {
	profiles []Profile
	err      error
}

// Service is the process-wide DeviceRegistry: it materializes DeviceProfiles
// from mDNS sweeps, caches the result for cacheTTL, and serializes concurrent
// refreshes through a singleflight so overlapping callers share one sweep.
type Service struct {
	store     *Store
	discovery discovery.Discovery
	zc        zeroconf.Client
	cacheTTL  time.Duration
	logger    *log.Logger

	cacheMu      sync.RWMutex
	cached       []Profile
	cachedAt     time.Time

	discoveryMu       sync.Mutex
	discoveryInFlight bool
	discoveryWaiters  []chan discoverResult
}

// NewService builds a Service backed by store, using disc for mDNS sweeps
// and zc for local health probes during discovery.
func NewService(store *Store, disc discovery.Discovery, zc zeroconf.Client, cacheTTL time.Duration, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{store: store, discovery: disc, zc: zc, cacheTTL: cacheTTL, logger: logger}
}

// Discover implements Registry.
func (s *Service) Discover(ctx context.Context, force bool) ([]Profile, error) {
	if !force {
		s.cacheMu.RLock()
		if s.cached != nil && time.Since(s.cachedAt) < s.cacheTTL {
			cached := s.cached
			s.cacheMu.RUnlock()
			return cached, nil
		}
		s.cacheMu.RUnlock()
	}
	return s.performDiscovery(ctx)
}

// Get implements Registry.
func (s *Service) Get(name string) (Profile, bool, error) {
	return s.store.Get(name)
}

// GetOrCreate implements Registry.
func (s *Service) GetOrCreate(ctx context.Context, name string) (Profile, error) {
	if profile, ok, err := s.store.Get(name); err != nil {
		return Profile{}, err
	} else if ok {
		return profile, nil
	}

	result, found, err := s.discovery.DiscoverByName(name, 1500)
	if err != nil {
		return Profile{}, fmt.Errorf("discover by name %q: %w", name, err)
	}

	profile := Profile{Name: name, VolumePreset: DefaultVolumePreset}
	if found && result.IsComplete() {
		profile.InstanceName = result.InstanceName
		profile.IP = result.IP
		profile.Port = result.Port
		profile.Cpath = normalizeCpath(result.Cpath)
	}

	if err := s.store.Upsert(profile); err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// UpdateLearned implements Registry.
func (s *Service) UpdateLearned(name string, spotifyDeviceName, instanceName string) error {
	if spotifyDeviceName != "" {
		if err := s.store.AppendSpotifyDeviceName(name, spotifyDeviceName); err != nil {
			return err
		}
	}
	if instanceName != "" {
		if err := s.store.UpdateInstanceName(name, instanceName); err != nil {
			return err
		}
	}
	return nil
}

// UpdateEndpoint implements Registry.
func (s *Service) UpdateEndpoint(name, ip string, port int, cpath string) error {
	return s.store.UpdateEndpoint(name, ip, port, cpath)
}

// performDiscovery runs a single mDNS sweep, resolving each sighting into a
// profile and persisting it. Concurrent callers are deduplicated: only one
// sweep runs at a time, and callers that arrive while it's in flight share
// its result instead of starting a redundant sweep.
func (s *Service) performDiscovery(ctx context.Context) ([]Profile, error) {
	s.discoveryMu.Lock()
	if s.discoveryInFlight {
		ch := make(chan discoverResult, 1)
		s.discoveryWaiters = append(s.discoveryWaiters, ch)
		s.discoveryMu.Unlock()
		result := <-ch
		return result.profiles, result.err
	}
	s.discoveryInFlight = true
	s.discoveryMu.Unlock()

	profiles, err := s.doDiscover(ctx)

	s.discoveryMu.Lock()
	waiters := s.discoveryWaiters
	s.discoveryWaiters = nil
	s.discoveryInFlight = false
	s.discoveryMu.Unlock()

	for _, ch := range waiters {
		ch <- discoverResult{profiles: profiles, err: err}
		close(ch)
	}

	if err == nil {
		s.cacheMu.Lock()
		s.cached = profiles
		s.cachedAt = time.Now()
		s.cacheMu.Unlock()
	}

	return profiles, err
}

func (s *Service) doDiscover(ctx context.Context) ([]Profile, error) {
	results, err := s.discovery.DiscoverAll(5000)
	if err != nil {
		return nil, fmt.Errorf("discover all: %w", err)
	}

	profiles := make([]Profile, 0, len(results))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, result := range results {
		if !result.IsComplete() {
			continue
		}
		result := result
		wg.Add(1)
		go func() {
			defer wg.Done()

			endpoint := zeroconf.Endpoint{IP: result.IP, Port: result.Port, Cpath: normalizeCpath(result.Cpath)}
			getInfoFriendly := ""
			if info, ok := s.zc.GetInfo(ctx, endpoint); ok {
				getInfoFriendly = info.FriendlyName
			}

			name := resolveFriendlyName(getInfoFriendly, result.TXTRecords, result.InstanceName)
			profile := Profile{
				Name:         name,
				InstanceName: result.InstanceName,
				IP:           result.IP,
				Port:         result.Port,
				Cpath:        normalizeCpath(result.Cpath),
				VolumePreset: DefaultVolumePreset,
			}

			if existing, ok, err := s.store.Get(name); err == nil && ok {
				profile.SpotifyDeviceNames = existing.SpotifyDeviceNames
				profile.VolumePreset = existing.VolumePreset
				profile.MaxWakeWaitS = existing.MaxWakeWaitS
			}

			if err := s.store.Upsert(profile); err != nil {
				s.logger.Printf("registry: persist profile %q: %v", name, err)
				return
			}

			mu.Lock()
			profiles = append(profiles, profile)
			mu.Unlock()
		}()
	}
	wg.Wait()

	return profiles, nil
}
