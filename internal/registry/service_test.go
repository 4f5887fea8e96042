package registry

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/connect-alarm-go/internal/db"
	"github.com/strefethen/connect-alarm-go/internal/discovery"
	"github.com/strefethen/connect-alarm-go/internal/zeroconf"
)

type fakeDiscovery struct {
	results   []discovery.Result
	callCount int32
}

func (f *fakeDiscovery) DiscoverAll(timeoutMs int) ([]discovery.Result, error) {
	atomic.AddInt32(&f.callCount, 1)
	return f.results, nil
}

func (f *fakeDiscovery) DiscoverByName(friendlyOrInstance string, timeoutMs int) (discovery.Result, bool, error) {
	for _, r := range f.results {
		if r.InstanceName == friendlyOrInstance {
			return r, true, nil
		}
	}
	return discovery.Result{}, false, nil
}

type fakeZeroconf struct{}

func (fakeZeroconf) GetInfo(ctx context.Context, ep zeroconf.Endpoint) (zeroconf.GetInfoResult, bool) {
	return zeroconf.GetInfoResult{OK: true, FriendlyName: "Kitchen"}, true
}

func (fakeZeroconf) AddUser(ctx context.Context, ep zeroconf.Endpoint, req zeroconf.AddUserRequest) bool {
	return true
}

func (fakeZeroconf) Health(ctx context.Context, ep zeroconf.Endpoint) zeroconf.HealthResult {
	return zeroconf.HealthResult{Responding: true}
}

func newTestService(t *testing.T, disc discovery.Discovery, cacheTTL time.Duration) *Service {
	t.Helper()
	dbPair, err := db.Init(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbPair.Close() })
	store := NewStore(dbPair)
	return NewService(store, disc, fakeZeroconf{}, cacheTTL, nil)
}

func TestDiscoverPersistsResolvedProfiles(t *testing.T) {
	disc := &fakeDiscovery{results: []discovery.Result{
		{IP: "10.0.0.5", Port: 4000, Cpath: "", InstanceName: "kitchen-speaker"},
	}}
	service := newTestService(t, disc, time.Minute)

	profiles, err := service.Discover(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	require.Equal(t, "Kitchen", profiles[0].Name)
	require.Equal(t, "/spotifyconnect/zeroconf", profiles[0].Cpath)

	stored, ok, err := service.Get("Kitchen")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "10.0.0.5", stored.IP)
}

func TestDiscoverUsesCacheWithinTTL(t *testing.T) {
	disc := &fakeDiscovery{results: []discovery.Result{
		{IP: "10.0.0.5", Port: 4000, InstanceName: "kitchen-speaker"},
	}}
	service := newTestService(t, disc, time.Minute)

	_, err := service.Discover(context.Background(), false)
	require.NoError(t, err)
	_, err = service.Discover(context.Background(), false)
	require.NoError(t, err)

	require.EqualValues(t, 1, atomic.LoadInt32(&disc.callCount))
}

func TestDiscoverForceBypassesCache(t *testing.T) {
	disc := &fakeDiscovery{results: []discovery.Result{
		{IP: "10.0.0.5", Port: 4000, InstanceName: "kitchen-speaker"},
	}}
	service := newTestService(t, disc, time.Minute)

	_, err := service.Discover(context.Background(), false)
	require.NoError(t, err)
	_, err = service.Discover(context.Background(), true)
	require.NoError(t, err)

	require.EqualValues(t, 2, atomic.LoadInt32(&disc.callCount))
}

func TestGetOrCreateSynthesizesMinimalProfile(t *testing.T) {
	disc := &fakeDiscovery{}
	service := newTestService(t, disc, time.Minute)

	profile, err := service.GetOrCreate(context.Background(), "Unknown Speaker")
	require.NoError(t, err)
	require.Equal(t, "Unknown Speaker", profile.Name)
	require.Equal(t, DefaultVolumePreset, profile.VolumePreset)
}

func TestUpdateLearnedIsIdempotent(t *testing.T) {
	disc := &fakeDiscovery{}
	service := newTestService(t, disc, time.Minute)

	_, err := service.GetOrCreate(context.Background(), "Office")
	require.NoError(t, err)

	require.NoError(t, service.UpdateLearned("Office", "Office Speaker (Spotify)", ""))
	require.NoError(t, service.UpdateLearned("Office", "Office Speaker (Spotify)", ""))

	profile, ok, err := service.Get("Office")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"Office Speaker (Spotify)"}, profile.SpotifyDeviceNames)
}

func TestMatchingNamesCombinesAllSources(t *testing.T) {
	profile := Profile{
		Name:               "Office",
		InstanceName:       "office-speaker",
		SpotifyDeviceNames: []string{"Office Speaker (Spotify)", ""},
	}
	names := profile.MatchingNames()
	require.ElementsMatch(t, []string{"Office", "office-speaker", "Office Speaker (Spotify)"}, names)
}
