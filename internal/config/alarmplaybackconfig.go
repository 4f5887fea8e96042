package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DeviceProfileSeed is a YAML-friendly seed for a registry DeviceProfile
// (spec §6 "list of DeviceProfile targets"). Nothing in this repository
// writes seeds into the registry.
type DeviceProfileSeed struct {
	Name               string   `yaml:"name"`
	SpotifyDeviceNames []string `yaml:"spotify_device_names"`
	VolumePreset       int      `yaml:"volume_preset"`
	MaxWakeWaitS       *float64 `yaml:"max_wake_wait_s"`
}

// AlarmPlaybackConfig is the consumed-not-owned configuration shape spec §6
// describes: the target list, what to play, and the timing/breaker knobs
// driving a single scheduled alarm. Only the tests load it; cmd/alarmd and
// the HTTP control API do not use it (callers pass target and context_uri
// directly in the trigger request).
type AlarmPlaybackConfig struct {
	Targets    []DeviceProfileSeed `yaml:"targets"`
	ContextURI string              `yaml:"context_uri"`
	Shuffle    bool                `yaml:"shuffle"`

	Retry404DelaySeconds      float64 `yaml:"retry_404_delay_s"`
	TotalPollDeadlineSeconds  float64 `yaml:"total_poll_deadline_s"`
	PollFastPeriodSeconds     float64 `yaml:"poll_fast_period_s"`
	DebounceAfterSeenSeconds  float64 `yaml:"debounce_after_seen_s"`
	FailoverFireAfterSeconds  float64 `yaml:"failover_fire_after_s"`

	BreakerFailureThreshold int `yaml:"breaker_failure_threshold"`
	BreakerCooldownSeconds  int `yaml:"breaker_cooldown_s"`
}

// LoadAlarmPlaybackConfig reads and parses an AlarmPlaybackConfig from path.
func LoadAlarmPlaybackConfig(path string) (AlarmPlaybackConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AlarmPlaybackConfig{}, fmt.Errorf("read alarm playback config: %w", err)
	}

	var cfg AlarmPlaybackConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AlarmPlaybackConfig{}, fmt.Errorf("parse alarm playback config: %w", err)
	}
	if cfg.ContextURI == "" {
		return AlarmPlaybackConfig{}, fmt.Errorf("alarm playback config: context_uri is required")
	}
	if len(cfg.Targets) == 0 {
		return AlarmPlaybackConfig{}, fmt.Errorf("alarm playback config: at least one target is required")
	}
	return cfg, nil
}
