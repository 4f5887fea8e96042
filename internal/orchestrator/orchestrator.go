package orchestrator

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"

	"github.com/strefethen/connect-alarm-go/internal/apperrors"
	"github.com/strefethen/connect-alarm-go/internal/breaker"
	"github.com/strefethen/connect-alarm-go/internal/clockwork"
	"github.com/strefethen/connect-alarm-go/internal/cloudapi"
	"github.com/strefethen/connect-alarm-go/internal/discovery"
	"github.com/strefethen/connect-alarm-go/internal/registry"
	"github.com/strefethen/connect-alarm-go/internal/spotifycrypto"
	"github.com/strefethen/connect-alarm-go/internal/tokensource"
	"github.com/strefethen/connect-alarm-go/internal/zeroconf"
)

// errPlaybackNotConfirmed is an internal sentinel distinguishing "device
// never confirmed playing" from an outright CloudAPI call failure; both
// trigger fallback but with different reasons.
var errPlaybackNotConfirmed = errors.New("playback not confirmed within deadline")

// activationUsername is the fixed local-account username the device
// activation handshake presents, matching the original alarm client's
// convention (spec §4.6 phase 6b).
const activationUsername = "alarm_user"

// AlternateTransport is an optional second fallback rung: an alternate
// playback path using the profile's known IP. A nil AlternateTransport
// simply means that rung is unavailable.
type AlternateTransport interface {
	Play(ctx context.Context, profile registry.Profile, contextURI string) (bool, error)
}

// Orchestrator implements PlayAlarm, the phased wake-and-play timeline,
// built from narrow, injected capability interfaces for each collaborator
// it depends on.
type Orchestrator struct {
	registry  registry.Registry
	cloud     cloudapi.CloudAPI
	disc      discovery.Discovery
	zc        zeroconf.Client
	tokens    tokensource.TokenSource
	breaker   breaker.Breaker
	clock     clockwork.Clock
	alternate AlternateTransport
	timing    Timing
	logger    *log.Logger
	onUpdate  func(*PhaseMetrics)

	locks *keyedMutex
}

// New builds an Orchestrator. alternate and onUpdate may both be nil;
// onUpdate, when set, is invoked after every phase transition with a copy
// of the in-progress metrics (e.g. to drive a live status feed).
func New(
	reg registry.Registry,
	cloud cloudapi.CloudAPI,
	disc discovery.Discovery,
	zc zeroconf.Client,
	tokens tokensource.TokenSource,
	brk breaker.Breaker,
	clock clockwork.Clock,
	alternate AlternateTransport,
	timing Timing,
	logger *log.Logger,
	onUpdate func(*PhaseMetrics),
) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		registry:  reg,
		cloud:     cloud,
		disc:      disc,
		zc:        zc,
		tokens:    tokens,
		breaker:   brk,
		clock:     clock,
		alternate: alternate,
		timing:    timing,
		logger:    logger,
		onUpdate:  onUpdate,
		locks:     newKeyedMutex(),
	}
}

// publish notifies onUpdate, if configured, of the current metrics
// snapshot.
func (o *Orchestrator) publish(metrics *PhaseMetrics) {
	if o.onUpdate != nil {
		snapshot := *metrics
		snapshot.Errors = append([]PhaseError(nil), metrics.Errors...)
		o.onUpdate(&snapshot)
	}
}

// PlayAlarm is the sole public operation (spec §4.6). It returns a
// completed PhaseMetrics for every outcome except the two errors that are
// allowed to escape: Misconfiguration and FallbackExhausted (spec §7).
func (o *Orchestrator) PlayAlarm(ctx context.Context, targetName, contextURI string, shuffle bool) (*PhaseMetrics, error) {
	unlock := o.locks.Lock(targetName)
	defer unlock()

	metrics := &PhaseMetrics{
		AlarmID:   uuid.NewString(),
		Target:    targetName,
		StartedAt: o.clock.Now(),
		State:     StateUnknown,
	}

	if ctx.Err() != nil {
		metrics.Branch = failedBranch(ReasonCancelled)
		return metrics, nil
	}

	profile, err := o.registry.GetOrCreate(ctx, targetName)
	if err != nil {
		return metrics, apperrors.NewMisconfigurationError(
			"failed to resolve device profile for "+targetName,
			map[string]any{"error": err.Error()})
	}

	// Phase 1: fast path -- cloud check.
	if devices, err := o.cloud.Devices(ctx); err != nil {
		metrics.recordError("fast_path", err.Error())
	} else if match := pickDevice(devices, profile); match != nil {
		o.learn(targetName, match.Name, "")
		metrics.mark(&metrics.CloudVisibleMs, o.clock)
		metrics.State = StateCloudVisible
		metrics.Branch = BranchWebAPIDirect
		o.publish(metrics)
		return o.finishOrFallback(ctx, profile, match.ID, contextURI, shuffle, metrics, targetName)
	}

	// Phase 3: circuit breaker gate.
	if o.breaker.ShouldBypassPrimary(targetName) {
		metrics.BypassedPrimary = true
		o.publish(metrics)
		return o.fallback(ctx, profile, contextURI, shuffle, metrics, ReasonCircuitBreakerOpen)
	}

	// Phase 4: IP wake using a previously learned endpoint.
	if profile.HasEndpoint() {
		endpoint := zeroconf.Endpoint{IP: profile.IP, Port: profile.Port, Cpath: profile.Cpath}
		o.ipWake(ctx, endpoint)

		if devices, err := o.cloud.Devices(ctx); err == nil {
			if match := pickDevice(devices, profile); match != nil {
				o.learn(targetName, match.Name, "")
				metrics.mark(&metrics.CloudVisibleMs, o.clock)
				metrics.State = StateCloudVisible
				metrics.Branch = BranchPrimaryIPWakeup
				o.publish(metrics)
				return o.finishOrFallback(ctx, profile, match.ID, contextURI, shuffle, metrics, targetName)
			}
		}
	}

	// Phase 5: mDNS discovery.
	endpoint, ok := o.resolveEndpoint(ctx, profile, targetName, metrics)
	if !ok {
		o.breaker.RecordFailure(targetName)
		o.publish(metrics)
		return o.fallback(ctx, profile, contextURI, shuffle, metrics, ReasonNoMDNS)
	}
	o.publish(metrics)

	// Phase 6: activation handshake.
	o.activationHandshake(ctx, endpoint, metrics)
	o.publish(metrics)

	// Phase 7: cloud poll.
	deviceID, found := o.pollForDevice(ctx, profile, targetName, metrics)
	if !found {
		o.breaker.RecordFailure(targetName)
		o.publish(metrics)
		return o.fallback(ctx, profile, contextURI, shuffle, metrics, ReasonNotInDevicesDeadline)
	}

	metrics.Branch = BranchPrimary
	o.publish(metrics)
	return o.finishOrFallback(ctx, profile, deviceID, contextURI, shuffle, metrics, targetName)
}

// finishOrFallback runs phases 8-11 and hands a failed stage, play or
// confirmation to the fallback ladder with the matching reason.
func (o *Orchestrator) finishOrFallback(ctx context.Context, profile registry.Profile, deviceID, contextURI string, shuffle bool, metrics *PhaseMetrics, targetName string) (*PhaseMetrics, error) {
	result, err := o.finish(ctx, profile, deviceID, contextURI, shuffle, metrics, targetName)
	if err != nil {
		reason := ReasonStagePlayFailed
		if errors.Is(err, errPlaybackNotConfirmed) {
			reason = ReasonPlayNotConfirmed
		}
		return o.fallback(ctx, profile, contextURI, shuffle, metrics, reason)
	}
	return result, nil
}

// resolveEndpoint implements spec §4.6 phase 5: a live mDNS lookup, falling
// back to the registry's cached endpoint when the lookup is incomplete.
func (o *Orchestrator) resolveEndpoint(ctx context.Context, profile registry.Profile, targetName string, metrics *PhaseMetrics) (zeroconf.Endpoint, bool) {
	result, found, err := o.disc.DiscoverByName(targetName, int(o.timing.MDNSLookupTimeout.Milliseconds()))
	if err != nil {
		metrics.recordError("mdns_discovery", err.Error())
	}

	if found && result.IsComplete() {
		metrics.mark(&metrics.DiscoveredMs, o.clock)
		metrics.State = StateDiscovered
		_ = o.registry.UpdateEndpoint(targetName, result.IP, result.Port, result.Cpath)
		return zeroconf.Endpoint{IP: result.IP, Port: result.Port, Cpath: result.Cpath}, true
	}

	if profile.HasEndpoint() {
		return zeroconf.Endpoint{IP: profile.IP, Port: profile.Port, Cpath: profile.Cpath}, true
	}

	return zeroconf.Endpoint{}, false
}

// learn records a newly observed cloud or mDNS name on the profile (spec
// §4.7). The orchestrator's only other profile write is the UpdateEndpoint
// call in resolveEndpoint after a complete mDNS lookup.
func (o *Orchestrator) learn(targetName, spotifyDeviceName, instanceName string) {
	if err := o.registry.UpdateLearned(targetName, spotifyDeviceName, instanceName); err != nil {
		o.logger.Printf("orchestrator: learn name for %q: %v", targetName, err)
	}
}

// ipWake issues a bare getInfo probe against a known endpoint to coax a
// sleeping device awake (spec §4.6 phase 4, fallback item 1).
func (o *Orchestrator) ipWake(ctx context.Context, endpoint zeroconf.Endpoint) {
	wakeCtx, cancel := context.WithTimeout(ctx, o.timing.WakeTimeout)
	defer cancel()
	o.zc.GetInfo(wakeCtx, endpoint)
}

// activationHandshake implements spec §4.6 phase 6: getInfo liveness probe,
// then addUser in access_token mode, falling back once to blob_clientKey
// mode on failure.
func (o *Orchestrator) activationHandshake(ctx context.Context, endpoint zeroconf.Endpoint, metrics *PhaseMetrics) {
	getInfoCtx, cancel := context.WithTimeout(ctx, o.timing.GetInfoTimeout)
	_, ok := o.zc.GetInfo(getInfoCtx, endpoint)
	cancel()
	if ok {
		metrics.mark(&metrics.GetInfoMs, o.clock)
		metrics.State = StateLocalAwake
	}

	token, err := o.tokens.GetValidToken(ctx)
	if err != nil {
		metrics.recordError("adduser", "no valid token: "+err.Error())
		return
	}

	addUserCtx, cancel := context.WithTimeout(ctx, o.timing.AddUserTimeout)
	loggedIn := o.zc.AddUser(addUserCtx, endpoint, zeroconf.AddUserRequest{
		Mode:        zeroconf.ModeAccessToken,
		Username:    activationUsername,
		AccessToken: token.AccessToken,
		LoginID:     uuid.NewString(),
	})
	cancel()

	if !loggedIn {
		// Best effort only: with no device DH public value available, the
		// blob is built against a random placeholder and a device may be
		// unable to decrypt it. access_token mode above is the real path.
		blob, clientKey, err := spotifycrypto.EncryptedBlob(activationUsername, token.AccessToken, nil)
		if err != nil {
			metrics.recordError("adduser", "blob encryption failed: "+err.Error())
		} else {
			blobCtx, cancel := context.WithTimeout(ctx, o.timing.AddUserTimeout)
			loggedIn = o.zc.AddUser(blobCtx, endpoint, zeroconf.AddUserRequest{
				Mode:      zeroconf.ModeBlobClientKey,
				Username:  activationUsername,
				Blob:      blob,
				ClientKey: clientKey,
			})
			cancel()
		}
	}

	if !loggedIn {
		metrics.recordError("adduser", "addUser failed in both access_token and blob_clientKey modes")
		return
	}

	metrics.mark(&metrics.AddUserMs, o.clock)
	metrics.State = StateLoggedIn
	o.clock.Sleep(ctx, o.timing.LoginGrace)
}

// pollForDevice implements spec §4.6 phase 7: poll Devices() at a fast
// cadence for the first PollFastPeriod, then a slow cadence, until
// TotalPollDeadline elapses.
func (o *Orchestrator) pollForDevice(ctx context.Context, profile registry.Profile, targetName string, metrics *PhaseMetrics) (string, bool) {
	deadline := o.clock.Now().Add(o.timing.TotalPollDeadline)
	fastUntil := o.clock.Now().Add(o.timing.PollFastPeriod)

	for {
		devices, err := o.cloud.Devices(ctx)
		if err != nil {
			metrics.recordError("cloud_poll", err.Error())
		} else if match := pickDevice(devices, profile); match != nil {
			o.learn(targetName, match.Name, "")
			metrics.mark(&metrics.CloudVisibleMs, o.clock)
			metrics.State = StateCloudVisible
			return match.ID, true
		}

		if ctx.Err() != nil || !o.clock.Now().Before(deadline) {
			return "", false
		}

		interval := o.timing.PollSlowInterval
		if o.clock.Now().Before(fastUntil) {
			interval = o.timing.PollFastInterval
		}
		o.clock.Sleep(ctx, interval)
	}
}

// finish implements spec §4.6 phases 8-11: debounce, stage, play, confirm.
func (o *Orchestrator) finish(ctx context.Context, profile registry.Profile, deviceID, contextURI string, shuffle bool, metrics *PhaseMetrics, targetName string) (*PhaseMetrics, error) {
	o.clock.Sleep(ctx, o.timing.DebounceAfterSeen)

	if err := o.cloud.Transfer(ctx, deviceID, false); err != nil {
		metrics.recordError("stage_transfer", err.Error())
		return metrics, err
	}
	if err := o.cloud.Volume(ctx, deviceID, profile.VolumePreset); err != nil {
		// Volume is explicitly non-fatal (spec §4.4, §4.6 phase 9).
		metrics.recordError("stage_volume", err.Error())
	}
	o.clock.Sleep(ctx, o.timing.StageSettle)
	metrics.State = StateStaged
	o.publish(metrics)

	if err := o.cloud.Play(ctx, deviceID, contextURI, shuffle); err != nil {
		metrics.recordError("play", err.Error())
		return metrics, err
	}
	metrics.mark(&metrics.PlayMs, o.clock)

	if !o.confirmPlayback(ctx, deviceID, metrics) {
		metrics.recordError("confirm", errPlaybackNotConfirmed.Error())
		o.breaker.RecordFailure(targetName)
		o.publish(metrics)
		return metrics, errPlaybackNotConfirmed
	}

	metrics.State = StatePlaying
	metrics.mark(&metrics.TotalDurationMs, o.clock)
	o.breaker.RecordSuccess(targetName)
	o.publish(metrics)
	return metrics, nil
}

// confirmPlayback implements spec §4.6 phase 11: poll CurrentPlayback every
// ConfirmPollInterval until FailoverFireAfter elapses, requiring the
// playing device's id to match deviceID exactly.
func (o *Orchestrator) confirmPlayback(ctx context.Context, deviceID string, metrics *PhaseMetrics) bool {
	deadline := o.clock.Now().Add(o.timing.FailoverFireAfter)

	for {
		state, err := o.cloud.CurrentPlayback(ctx)
		if err != nil {
			metrics.recordError("confirm", err.Error())
		} else if state != nil && state.IsPlaying && state.Device.ID == deviceID {
			return true
		}

		if ctx.Err() != nil || !o.clock.Now().Before(deadline) {
			return false
		}
		o.clock.Sleep(ctx, o.timing.ConfirmPollInterval)
	}
}
