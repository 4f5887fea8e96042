package orchestrator

import (
	"strings"

	"github.com/strefethen/connect-alarm-go/internal/cloudapi"
	"github.com/strefethen/connect-alarm-go/internal/registry"
)

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// pickDevice implements the strict, no-fuzzy matching rule of spec §4.7:
// a CloudDevice matches iff its normalized name is an element of the
// profile's normalized get_all_matching_names(). First exact match wins,
// iteration order is the cloud's return order.
func pickDevice(devices []cloudapi.Device, profile registry.Profile) *cloudapi.Device {
	matching := make(map[string]struct{}, 4)
	for _, name := range profile.MatchingNames() {
		matching[normalizeName(name)] = struct{}{}
	}

	for i := range devices {
		if _, ok := matching[normalizeName(devices[i].Name)]; ok {
			return &devices[i]
		}
	}
	return nil
}
