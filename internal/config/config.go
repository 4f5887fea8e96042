package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the orchestrator server configuration.
type Config struct {
	Host          string
	Port          string
	SQLiteDBPath  string
	NodeEnv       string
	AllowTestMode bool
	JWTSecret     string

	JWTAccessTokenExpirySec int

	// Spotify OAuth client settings. Token acquisition/refresh itself is out
	// of scope; these are only used to construct the TokenSource adapter.
	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyRedirectURI  string
	BaseDir             string // token store directory, per BASE_DIR convention

	// mDNS discovery timing
	MDNSDiscoverTimeoutMs int
	MDNSLookupTimeoutMs   int

	// Device local HTTP timing
	GetInfoTimeoutMs int
	AddUserTimeoutMs int
	WakeTimeoutMs    int

	// Cloud API timing
	Retry404DelayMs int

	// Orchestrator timing knobs (see AlarmPlaybackConfig, §6)
	TotalPollDeadlineS  float64
	PollFastPeriodS     float64
	DebounceAfterSeenS  float64
	FailoverFireAfterS  float64
	LoginGraceS         float64
	StageSettleS        float64

	// Discovery/registry cache
	DiscoveryCacheTTLS int

	// Circuit breaker
	BreakerFailureThreshold int
	BreakerCooldownS        int
}

// Load reads configuration from environment variables with defaults.
func Load() (Config, error) {
	host := envString("HOST", "0.0.0.0")
	port := envString("PORT", "9100")
	sqlitePath := envString("SQLITE_DB_PATH", "./data/connect-alarm.db")
	nodeEnv := envString("NODE_ENV", "development")
	allowTestMode := envBool("ALLOW_TEST_MODE", false)
	jwtSecret := envString("JWT_SECRET", "")
	jwtAccessExpiry := envInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)

	spotifyClientID := envString("SPOTIFY_CLIENT_ID", "")
	spotifyClientSecret := envString("SPOTIFY_CLIENT_SECRET", "")
	spotifyRedirectURI := envString("SPOTIFY_REDIRECT_URI", "")
	baseDir := envString("BASE_DIR", "./data")

	mdnsDiscoverTimeout := envInt("MDNS_DISCOVER_TIMEOUT_MS", 1500)
	mdnsLookupTimeout := envInt("MDNS_LOOKUP_TIMEOUT_MS", 1500)

	getInfoTimeout := envInt("GETINFO_TIMEOUT_MS", 1500)
	addUserTimeout := envInt("ADDUSER_TIMEOUT_MS", 2500)
	wakeTimeout := envInt("WAKE_TIMEOUT_MS", 1500)

	retry404Delay := envInt("RETRY_404_DELAY_MS", 700)

	totalPollDeadline := envFloat("TOTAL_POLL_DEADLINE_S", 20.0)
	pollFastPeriod := envFloat("POLL_FAST_PERIOD_S", 5.0)
	debounceAfterSeen := envFloat("DEBOUNCE_AFTER_SEEN_S", 0.5)
	failoverFireAfter := envFloat("FAILOVER_FIRE_AFTER_S", 2.0)
	loginGrace := envFloat("LOGIN_GRACE_S", 2.0)
	stageSettle := envFloat("STAGE_SETTLE_S", 0.2)

	discoveryCacheTTL := envInt("DISCOVERY_CACHE_TTL_S", 300)

	breakerThreshold := envInt("BREAKER_FAILURE_THRESHOLD", 3)
	breakerCooldown := envInt("BREAKER_COOLDOWN_S", 300)

	if len(strings.TrimSpace(jwtSecret)) < 32 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}

	return Config{
		Host:                    host,
		Port:                    port,
		SQLiteDBPath:            sqlitePath,
		NodeEnv:                 nodeEnv,
		AllowTestMode:           allowTestMode,
		JWTSecret:               jwtSecret,
		JWTAccessTokenExpirySec: jwtAccessExpiry,
		SpotifyClientID:         spotifyClientID,
		SpotifyClientSecret:     spotifyClientSecret,
		SpotifyRedirectURI:      spotifyRedirectURI,
		BaseDir:                 baseDir,
		MDNSDiscoverTimeoutMs:   mdnsDiscoverTimeout,
		MDNSLookupTimeoutMs:     mdnsLookupTimeout,
		GetInfoTimeoutMs:        getInfoTimeout,
		AddUserTimeoutMs:        addUserTimeout,
		WakeTimeoutMs:           wakeTimeout,
		Retry404DelayMs:         retry404Delay,
		TotalPollDeadlineS:      totalPollDeadline,
		PollFastPeriodS:         pollFastPeriod,
		DebounceAfterSeenS:      debounceAfterSeen,
		FailoverFireAfterS:      failoverFireAfter,
		LoginGraceS:             loginGrace,
		StageSettleS:            stageSettle,
		DiscoveryCacheTTLS:      discoveryCacheTTL,
		BreakerFailureThreshold: breakerThreshold,
		BreakerCooldownS:        breakerCooldown,
	}, nil
}

func envString(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return strings.EqualFold(val, "true")
}
