package zeroconf

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const protocolVersion = "2.9.0"

// friendlyNameFields is the priority order getInfo responses are searched in
// for a usable display name.
var friendlyNameFields = []string{"remoteName", "displayName", "name", "deviceName", "modelDisplayName"}

// httpClient is a shared client with small, bounded timeouts so a single
// unreachable device never stalls a wake sequence.
var httpClient = &http.Client{
	Timeout: 5 * time.Second,
	Transport: &http.Transport{
		DialContext:         (&net.Dialer{Timeout: 2 * time.Second}).DialContext,
		TLSHandshakeTimeout: 2 * time.Second,
		IdleConnTimeout:     30 * time.Second,
	},
}

// HTTPClient implements Client against real devices over HTTP.
type HTTPClient struct {
	logger *log.Logger
}

// NewHTTPClient returns a production Client.
func NewHTTPClient(logger *log.Logger) *HTTPClient {
	if logger == nil {
		logger = log.Default()
	}
	return &HTTPClient{logger: logger}
}

func controlURL(ep Endpoint, action string) string {
	return fmt.Sprintf("http://%s:%d%s/?action=%s", ep.IP, ep.Port, ep.Cpath, action)
}

// GetInfo implements Client. Connection errors, timeouts, non-2xx status, and
// invalid JSON all collapse to a single boolean failure with a debug log; no
// error escapes (spec §4.3).
func (c *HTTPClient) GetInfo(ctx context.Context, ep Endpoint) (GetInfoResult, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, controlURL(ep, "getInfo"), nil)
	if err != nil {
		c.logger.Printf("zeroconf: getInfo request build failed for %s: %v", ep.IP, err)
		return GetInfoResult{}, false
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		c.logger.Printf("zeroconf: getInfo call failed for %s: %v", ep.IP, err)
		return GetInfoResult{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Printf("zeroconf: getInfo non-2xx %d for %s", resp.StatusCode, ep.IP)
		return GetInfoResult{}, false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Printf("zeroconf: getInfo read failed for %s: %v", ep.IP, err)
		return GetInfoResult{}, false
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		c.logger.Printf("zeroconf: getInfo invalid JSON for %s: %v", ep.IP, err)
		return GetInfoResult{}, false
	}

	name := extractFriendlyName(raw)
	return GetInfoResult{OK: true, FriendlyName: name, Raw: raw}, true
}

func extractFriendlyName(raw map[string]any) string {
	for _, field := range friendlyNameFields {
		if value, ok := raw[field]; ok {
			if str, ok := value.(string); ok {
				trimmed := strings.TrimSpace(str)
				if trimmed != "" {
					return trimmed
				}
			}
		}
	}
	return ""
}

// AddUser implements Client. Returns true only on a 2xx response; every
// other outcome (network error, timeout, non-2xx) is a single boolean
// failure, logged at debug level.
func (c *HTTPClient) AddUser(ctx context.Context, ep Endpoint, req AddUserRequest) bool {
	form := url.Values{}
	form.Set("action", "addUser")
	form.Set("userName", req.Username)
	form.Set("version", protocolVersion)

	switch req.Mode {
	case ModeAccessToken:
		form.Set("accessToken", req.AccessToken)
		form.Set("tokenType", "accesstoken")
		form.Set("loginId", req.LoginID)
	case ModeBlobClientKey:
		form.Set("blob", req.Blob)
		form.Set("clientKey", req.ClientKey)
		form.Set("tokenType", "default")
	default:
		c.logger.Printf("zeroconf: addUser unknown mode %q", req.Mode)
		return false
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, controlURL(ep, "addUser"), strings.NewReader(form.Encode()))
	if err != nil {
		c.logger.Printf("zeroconf: addUser request build failed for %s: %v", ep.IP, err)
		return false
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		c.logger.Printf("zeroconf: addUser call failed for %s: %v", ep.IP, err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Printf("zeroconf: addUser non-2xx %d for %s (mode=%s)", resp.StatusCode, ep.IP, req.Mode)
		return false
	}
	return true
}

// Health implements Client, probing with a 1s deadline regardless of the
// caller's context so a slow device never drags out a health check.
func (c *HTTPClient) Health(ctx context.Context, ep Endpoint) HealthResult {
	healthCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(healthCtx, http.MethodGet, controlURL(ep, "getInfo"), nil)
	if err != nil {
		return HealthResult{Error: err.Error()}
	}

	resp, err := httpClient.Do(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return HealthResult{Error: err.Error(), ResponseTimeMs: elapsed}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return HealthResult{
		Responding:     resp.StatusCode >= 200 && resp.StatusCode < 300,
		ResponseTimeMs: elapsed,
	}
}
