package orchestrator

import (
	"context"

	"github.com/strefethen/connect-alarm-go/internal/apperrors"
	"github.com/strefethen/connect-alarm-go/internal/registry"
	"github.com/strefethen/connect-alarm-go/internal/zeroconf"
)

// fallback implements the ladder of spec §4.8: re-issue the IP wake and
// retry the activation-through-confirm timeline once, then try an
// alternate transport if one is configured, and only then give up.
// FatalFallbackExhausted is one of the two errors allowed to escape
// PlayAlarm (spec §7).
func (o *Orchestrator) fallback(ctx context.Context, profile registry.Profile, contextURI string, shuffle bool, metrics *PhaseMetrics, reason string) (*PhaseMetrics, error) {
	metrics.UsedFallback = true

	if ctx.Err() != nil {
		metrics.Branch = failedBranch(ReasonCancelled)
		return metrics, nil
	}

	if endpoint, ok := fallbackEndpoint(profile); ok {
		o.ipWake(ctx, endpoint)
		o.activationHandshake(ctx, endpoint, metrics)
		o.publish(metrics)

		if deviceID, found := o.pollForDevice(ctx, profile, profile.Name, metrics); found {
			metrics.Branch = BranchFallback
			o.publish(metrics)
			result, err := o.finish(ctx, profile, deviceID, contextURI, shuffle, metrics, profile.Name)
			if err == nil {
				return result, nil
			}
			metrics.recordError("fallback_stage_play_confirm", err.Error())
		}
	}

	if o.alternate != nil {
		played, err := o.alternate.Play(ctx, profile, contextURI)
		if err != nil {
			metrics.recordError("alternate_transport", err.Error())
		} else if played {
			metrics.Branch = BranchFallback
			metrics.State = StatePlaying
			metrics.mark(&metrics.TotalDurationMs, o.clock)
			o.publish(metrics)
			return metrics, nil
		}
	}

	metrics.Branch = failedBranch(reason)
	metrics.State = StateDeepSleepSuspected
	metrics.mark(&metrics.TotalDurationMs, o.clock)
	o.publish(metrics)
	return metrics, apperrors.NewFallbackExhaustedError(
		"exhausted fallback ladder for "+profile.Name,
		map[string]any{"target": profile.Name, "reason": reason},
	)
}

func fallbackEndpoint(profile registry.Profile) (zeroconf.Endpoint, bool) {
	if !profile.HasEndpoint() {
		return zeroconf.Endpoint{}, false
	}
	return zeroconf.Endpoint{IP: profile.IP, Port: profile.Port, Cpath: profile.Cpath}, true
}
