package discovery

import (
	"context"
	"log"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

const (
	serviceType = "_spotify-connect._tcp"
	domain      = "local"
)

// MDNSDiscovery implements Discovery against the real network using
// hashicorp/mdns, the same library timvw-Bose-SoundTouch uses for its own
// Bonjour/mDNS device discovery.
type MDNSDiscovery struct {
	logger *log.Logger
}

// NewMDNSDiscovery returns a production Discovery backed by mDNS queries.
func NewMDNSDiscovery(logger *log.Logger) *MDNSDiscovery {
	if logger == nil {
		logger = log.Default()
	}
	return &MDNSDiscovery{logger: logger}
}

// DiscoverAll implements Discovery.
func (d *MDNSDiscovery) DiscoverAll(timeoutMs int) ([]Result, error) {
	timeout := time.Duration(timeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 1500 * time.Millisecond
	}

	entries := make(chan *mdns.ServiceEntry, 32)
	results := make([]Result, 0)
	seen := make(map[string]struct{})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	go func() {
		defer close(entries)
		err := mdns.Query(&mdns.QueryParam{
			Service:     serviceType,
			Domain:      domain,
			Timeout:     timeout,
			Entries:     entries,
			DisableIPv6: true,
		})
		if err != nil {
			d.logger.Printf("mdns query error: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return results, nil
		case entry, ok := <-entries:
			if !ok {
				return results, nil
			}
			result := entryToResult(entry)
			if _, dup := seen[result.InstanceName]; dup {
				continue
			}
			seen[result.InstanceName] = struct{}{}
			results = append(results, result)
		}
	}
}

// DiscoverByName implements Discovery.
func (d *MDNSDiscovery) DiscoverByName(friendlyOrInstance string, timeoutMs int) (Result, bool, error) {
	target := strings.ToLower(strings.TrimSpace(friendlyOrInstance))
	results, err := d.DiscoverAll(timeoutMs)
	if err != nil {
		return Result{}, false, err
	}

	for _, r := range results {
		if strings.EqualFold(cleanInstanceName(r.InstanceName), target) {
			return r, true, nil
		}
		for _, key := range []string{"CN", "Name", "DisplayName", "FriendlyName"} {
			if val, ok := r.TXTRecords[key]; ok && strings.EqualFold(strings.TrimSpace(val), target) {
				return r, true, nil
			}
		}
	}
	return Result{}, false, nil
}

func entryToResult(entry *mdns.ServiceEntry) Result {
	result := Result{
		InstanceName: entry.Name,
		Port:         entry.Port,
		TXTRecords:   parseTXT(entry.InfoFields),
	}

	switch {
	case entry.AddrV4 != nil:
		result.IP = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		result.IP = entry.AddrV6.String()
	default:
		if ips, err := net.LookupIP(entry.Host); err == nil {
			for _, ip := range ips {
				if v4 := ip.To4(); v4 != nil {
					result.IP = v4.String()
					break
				}
			}
			if result.IP == "" && len(ips) > 0 {
				result.IP = ips[0].String()
			}
		}
	}

	if cpath, ok := result.TXTRecords["CPath"]; ok {
		result.Cpath = cpath
	}

	return result
}

func parseTXT(fields []string) map[string]string {
	out := make(map[string]string, len(fields))
	for _, field := range fields {
		key, value, found := strings.Cut(field, "=")
		if !found {
			continue
		}
		out[key] = value
	}
	return out
}

// cleanInstanceName strips the mDNS service-type suffix variants so a
// friendly name comparison can be made, mirroring the registry's own
// name-cleaning rules (spec §4.5 step 3).
func cleanInstanceName(instance string) string {
	cleaned := instance
	for _, suffix := range []string{
		"." + serviceType + "." + domain + ".",
		"." + serviceType + "." + domain,
		"." + serviceType,
	} {
		if strings.HasSuffix(strings.ToLower(cleaned), strings.ToLower(suffix)) {
			cleaned = cleaned[:len(cleaned)-len(suffix)]
			break
		}
	}
	return strings.TrimSpace(cleaned)
}

// formatServiceName builds the canonical mDNS service string, used by tests
// that need to construct a synthetic entry matching what mdns.Query returns.
func formatServiceName(instance string) string {
	return instance + "." + serviceType + "." + domain + "."
}
