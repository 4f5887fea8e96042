package registry

import "strings"

// defaultCpath is substituted whenever a device reports no control path at
// all, matching Spotify's documented default for ZeroConf devices.
const defaultCpath = "/spotifyconnect/zeroconf"

// normalizeCpath implements spec §3: empty or "/" becomes the default
// path, a trailing slash is stripped, and a leading slash is guaranteed.
func normalizeCpath(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "/" {
		return defaultCpath
	}
	trimmed = strings.TrimSuffix(trimmed, "/")
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	return trimmed
}
