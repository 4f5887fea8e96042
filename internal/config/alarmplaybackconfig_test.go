package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
targets:
  - name: Kitchen
    spotify_device_names: ["Kitchen Speaker"]
    volume_preset: 30
  - name: Bedroom
    spotify_device_names: []
    volume_preset: 20
context_uri: "spotify:playlist:abc123"
shuffle: false
retry_404_delay_s: 0.7
total_poll_deadline_s: 20
poll_fast_period_s: 5
debounce_after_seen_s: 0.5
failover_fire_after_s: 2
breaker_failure_threshold: 3
breaker_cooldown_s: 300
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alarm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAlarmPlaybackConfigParsesTargetsAndTiming(t *testing.T) {
	cfg, err := LoadAlarmPlaybackConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	require.Len(t, cfg.Targets, 2)
	require.Equal(t, "Kitchen", cfg.Targets[0].Name)
	require.Equal(t, []string{"Kitchen Speaker"}, cfg.Targets[0].SpotifyDeviceNames)
	require.Equal(t, "spotify:playlist:abc123", cfg.ContextURI)
	require.Equal(t, 2.0, cfg.FailoverFireAfterSeconds)
	require.Equal(t, 3, cfg.BreakerFailureThreshold)
}

func TestLoadAlarmPlaybackConfigRejectsMissingContextURI(t *testing.T) {
	_, err := LoadAlarmPlaybackConfig(writeConfig(t, "targets:\n  - name: Kitchen\n"))
	require.Error(t, err)
}

func TestLoadAlarmPlaybackConfigRejectsEmptyTargets(t *testing.T) {
	_, err := LoadAlarmPlaybackConfig(writeConfig(t, "context_uri: \"spotify:playlist:abc\"\ntargets: []\n"))
	require.Error(t, err)
}

func TestLoadAlarmPlaybackConfigRejectsMissingFile(t *testing.T) {
	_, err := LoadAlarmPlaybackConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
