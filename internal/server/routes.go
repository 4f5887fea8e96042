package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/connect-alarm-go/internal/api"
	"github.com/strefethen/connect-alarm-go/internal/apperrors"
	"github.com/strefethen/connect-alarm-go/internal/orchestrator"
	"github.com/strefethen/connect-alarm-go/internal/registry"
)

type triggerRequest struct {
	Target     string `json:"target"`
	ContextURI string `json:"context_uri"`
	Shuffle    bool   `json:"shuffle"`
}

// RegisterAlarmRoutes wires the control API: triggering a wake-and-play run
// and listing known device profiles.
func RegisterAlarmRoutes(router chi.Router, orch *orchestrator.Orchestrator, reg registry.Registry) {
	router.Method(http.MethodPost, "/v1/alarms/trigger", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var req triggerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		if req.Target == "" {
			return apperrors.NewValidationError("target is required", nil)
		}
		if req.ContextURI == "" {
			return apperrors.NewValidationError("context_uri is required", nil)
		}

		metrics, err := orch.PlayAlarm(r.Context(), req.Target, req.ContextURI, req.Shuffle)
		if err != nil {
			return err
		}

		return api.WriteAction(w, http.StatusOK, formatMetrics(metrics))
	}))

	router.Method(http.MethodGet, "/v1/devices", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		force := r.URL.Query().Get("force") == "true"
		profiles, err := reg.Discover(r.Context(), force)
		if err != nil {
			return apperrors.NewInternalError("device discovery failed")
		}

		formatted := make([]map[string]any, 0, len(profiles))
		for _, profile := range profiles {
			formatted = append(formatted, formatProfile(profile))
		}
		return api.WriteList(w, "/v1/devices", formatted, false)
	}))
}

func formatMetrics(metrics *orchestrator.PhaseMetrics) map[string]any {
	return map[string]any{
		"object":           "alarm_run",
		"alarm_id":         metrics.AlarmID,
		"target":           metrics.Target,
		"branch":           metrics.Branch,
		"state":            metrics.State,
		"used_fallback":    metrics.UsedFallback,
		"bypassed_primary": metrics.BypassedPrimary,
		"errors":           metrics.Errors,
		"timings": map[string]any{
			"discovered_ms":    metrics.DiscoveredMs,
			"getinfo_ms":       metrics.GetInfoMs,
			"adduser_ms":       metrics.AddUserMs,
			"cloud_visible_ms": metrics.CloudVisibleMs,
			"play_ms":          metrics.PlayMs,
			"total_duration_ms": metrics.TotalDurationMs,
		},
	}
}

func formatProfile(p registry.Profile) map[string]any {
	return map[string]any{
		"object":               "device_profile",
		"name":                 p.Name,
		"instance_name":        p.InstanceName,
		"spotify_device_names": p.SpotifyDeviceNames,
		"ip":                   p.IP,
		"port":                 p.Port,
		"volume_preset":        p.VolumePreset,
		"learned_name":         p.LearnedName,
		"has_endpoint":         p.HasEndpoint(),
		"updated_at":           p.UpdatedAt,
	}
}
