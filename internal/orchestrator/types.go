// Package orchestrator implements the wake-and-play timeline: it races
// local (mDNS + device HTTP) and cloud (Web API) paths to bring a Spotify
// Connect speaker up and playing within a bounded deadline, falling back
// across alternate paths on failure. See spec §4.6-§4.8.
package orchestrator

import (
	"time"

	"github.com/strefethen/connect-alarm-go/internal/clockwork"
)

// State is the orchestrator's local progress marker for a single run
// (spec §3).
type State string

const (
	StateUnknown             State = "UNKNOWN"
	StateDiscovered          State = "DISCOVERED"
	StateLocalAwake          State = "LOCAL_AWAKE"
	StateLoggedIn            State = "LOGGED_IN"
	StateCloudVisible        State = "CLOUD_VISIBLE"
	StateStaged              State = "STAGED"
	StatePlaying             State = "PLAYING"
	StateDeepSleepSuspected  State = "DEEP_SLEEP_SUSPECTED"
)

// Branch labels the final outcome of a run (spec §3, glossary).
const (
	BranchWebAPIDirect     = "webapi_direct"
	BranchPrimaryIPWakeup  = "primary_ip_wakeup"
	BranchPrimary          = "primary"
	BranchFallback         = "fallback"
	branchFailedPrefix     = "failed:"
)

func failedBranch(reason string) string {
	return branchFailedPrefix + reason
}

// Fallback reasons (spec §4.6, §4.8, §8 scenarios).
const (
	ReasonCircuitBreakerOpen   = "circuit_breaker_open"
	ReasonNoMDNS               = "no_mdns"
	ReasonNotInDevicesDeadline = "not_in_devices_by_deadline"
	ReasonPlayNotConfirmed     = "play_not_confirmed_t2"
	ReasonCancelled            = "cancelled"
	ReasonUnexpectedError      = "unexpected_error"
	ReasonFallbackStageFailed  = "fallback_stage_play_confirm_failed"
	ReasonStagePlayFailed      = "stage_play_confirm_failed"
)

// PhaseError is one entry in PhaseMetrics.Errors (spec §3).
type PhaseError struct {
	Phase   string `json:"phase"`
	Message string `json:"message"`
}

// PhaseMetrics is the ephemeral, one-per-run record of how far a wake
// sequence got and how long each milestone took (spec §3).
type PhaseMetrics struct {
	AlarmID   string `json:"alarm_id"`
	Target    string `json:"target"`
	StartedAt time.Time `json:"started_at"`

	DiscoveredMs   *int64 `json:"discovered_ms,omitempty"`
	GetInfoMs      *int64 `json:"getinfo_ms,omitempty"`
	AddUserMs      *int64 `json:"adduser_ms,omitempty"`
	CloudVisibleMs *int64 `json:"cloud_visible_ms,omitempty"`
	PlayMs         *int64 `json:"play_ms,omitempty"`
	TotalDurationMs *int64 `json:"total_duration_ms,omitempty"`

	Branch         string       `json:"branch"`
	State          State        `json:"state"`
	UsedFallback   bool         `json:"used_fallback"`
	BypassedPrimary bool        `json:"bypassed_primary"`
	Errors         []PhaseError `json:"errors"`
}

func (m *PhaseMetrics) mark(field **int64, clock clockwork.Clock) {
	elapsed := clock.Now().Sub(m.StartedAt).Milliseconds()
	*field = &elapsed
}

func (m *PhaseMetrics) recordError(phase, message string) {
	m.Errors = append(m.Errors, PhaseError{Phase: phase, Message: message})
}

// Timing holds the wall-clock knobs consumed by the phase timeline,
// translated from config.Config's flat fields (spec §6 AlarmPlaybackConfig).
type Timing struct {
	MDNSLookupTimeout time.Duration
	GetInfoTimeout    time.Duration
	AddUserTimeout    time.Duration
	WakeTimeout       time.Duration
	Retry404Delay     time.Duration

	TotalPollDeadline  time.Duration
	PollFastPeriod     time.Duration
	PollFastInterval   time.Duration
	PollSlowInterval   time.Duration
	DebounceAfterSeen  time.Duration
	FailoverFireAfter  time.Duration
	ConfirmPollInterval time.Duration
	LoginGrace         time.Duration
	StageSettle        time.Duration
}

// DefaultTiming matches the §6/§4.6 defaults.
func DefaultTiming() Timing {
	return Timing{
		MDNSLookupTimeout:   1500 * time.Millisecond,
		GetInfoTimeout:      1500 * time.Millisecond,
		AddUserTimeout:      2500 * time.Millisecond,
		WakeTimeout:         1500 * time.Millisecond,
		Retry404Delay:       700 * time.Millisecond,
		TotalPollDeadline:   20 * time.Second,
		PollFastPeriod:      5 * time.Second,
		PollFastInterval:    500 * time.Millisecond,
		PollSlowInterval:    1 * time.Second,
		DebounceAfterSeen:   500 * time.Millisecond,
		FailoverFireAfter:   2 * time.Second,
		ConfirmPollInterval: 200 * time.Millisecond,
		LoginGrace:          2 * time.Second,
		StageSettle:         200 * time.Millisecond,
	}
}
