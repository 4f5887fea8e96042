package registry

import (
	"regexp"
	"strings"
)

// instanceSuffixRegex strips the mDNS service-type suffix in any of its
// common casings, e.g. "Kitchen._spotify-connect._tcp.local."
var instanceSuffixRegex = regexp.MustCompile(`(?i)\._spotify-connect\._tcp\.local\.?$`)

var txtNameKeys = []string{"CN", "Name", "DisplayName", "FriendlyName"}

// resolveFriendlyName implements the strict priority chain of spec §4.5:
//  1. device-reported getInfo friendly name (already priority-resolved by
//     the zeroconf client), trimmed.
//  2. a TXT record among CN | Name | DisplayName | FriendlyName.
//  3. the instance name with its mDNS service-type suffix stripped, used
//     only when that stripping removed a meaningful (>=3 char) suffix.
//  4. the raw instance name.
func resolveFriendlyName(getInfoFriendly string, txtRecords map[string]string, instanceName string) string {
	if name := strings.TrimSpace(getInfoFriendly); name != "" {
		return name
	}

	for _, key := range txtNameKeys {
		if name := strings.TrimSpace(txtRecords[key]); name != "" {
			return name
		}
	}

	cleaned := strings.TrimSpace(instanceSuffixRegex.ReplaceAllString(instanceName, ""))
	if cleaned != "" && cleaned != instanceName && len(instanceName)-len(cleaned) >= 3 {
		return cleaned
	}
	if strings.ContainsAny(instanceName, " '") {
		return strings.TrimSpace(instanceName)
	}

	return strings.TrimSpace(instanceName)
}
