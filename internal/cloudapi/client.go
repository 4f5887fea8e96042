package cloudapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/strefethen/connect-alarm-go/internal/tokensource"
)

const defaultAPIBase = "https://api.spotify.com/v1/me/player"

var httpClient = &http.Client{
	Timeout: 10 * time.Second,
}

// HTTPClient implements CloudAPI against the Spotify Web API player
// endpoints: a bearer token is attached per-request and a single 401
// triggers one ForceRefresh-and-retry before giving up.
type HTTPClient struct {
	tokens          tokensource.TokenSource
	retry404DelayMs int
	logger          *log.Logger
	// base is the player API root; overridden in tests to point at an
	// httptest.Server instead of the real Spotify Web API.
	base string
}

// NewHTTPClient builds a CloudAPI backed by the real Spotify Web API.
// retry404DelayMs is the pause before the single retry Play performs when
// the device briefly 404s right after a Transfer (spec §4.6 phase 9).
func NewHTTPClient(tokens tokensource.TokenSource, retry404DelayMs int, logger *log.Logger) *HTTPClient {
	if logger == nil {
		logger = log.Default()
	}
	return &HTTPClient{tokens: tokens, retry404DelayMs: retry404DelayMs, logger: logger, base: defaultAPIBase}
}

type apiDevice struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	IsActive         bool   `json:"is_active"`
	VolumePercent    int    `json:"volume_percent"`
	Type             string `json:"type"`
	IsPrivateSession bool   `json:"is_private_session"`
	IsRestricted     bool   `json:"is_restricted"`
}

func (d apiDevice) toDevice() Device {
	return Device{
		ID:               d.ID,
		Name:             d.Name,
		IsActive:         d.IsActive,
		VolumePercent:    d.VolumePercent,
		DeviceType:       d.Type,
		IsPrivateSession: d.IsPrivateSession,
		IsRestricted:     d.IsRestricted,
	}
}

// Devices implements CloudAPI.
func (c *HTTPClient) Devices(ctx context.Context) ([]Device, error) {
	var body struct {
		Devices []apiDevice `json:"devices"`
	}
	if err := c.apiRequest(ctx, http.MethodGet, c.base+"/devices", nil, &body); err != nil {
		return nil, err
	}
	devices := make([]Device, 0, len(body.Devices))
	for _, d := range body.Devices {
		devices = append(devices, d.toDevice())
	}
	return devices, nil
}

// Transfer implements CloudAPI.
func (c *HTTPClient) Transfer(ctx context.Context, deviceID string, play bool) error {
	payload := map[string]any{
		"device_ids": []string{deviceID},
		"play":       play,
	}
	return c.apiRequest(ctx, http.MethodPut, c.base, payload, nil)
}

// Volume implements CloudAPI. Callers treat a Volume failure as non-fatal
// per spec §4.6 phase 7 -- a bad volume preset should not abort the wake.
func (c *HTTPClient) Volume(ctx context.Context, deviceID string, percent int) error {
	u := fmt.Sprintf("%s/volume?%s", c.base, url.Values{
		"volume_percent": {fmt.Sprintf("%d", percent)},
		"device_id":      {deviceID},
	}.Encode())
	return c.apiRequest(ctx, http.MethodPut, u, nil, nil)
}

// Play implements CloudAPI, retrying once after retry404DelayMs if the
// device briefly 404s right after a Transfer (spec §4.6 phase 9, §8 S4).
func (c *HTTPClient) Play(ctx context.Context, deviceID, contextURI string, shuffle bool) error {
	payload := map[string]any{}
	if contextURI != "" {
		payload["context_uri"] = contextURI
	}
	u := fmt.Sprintf("%s/play?%s", c.base, url.Values{"device_id": {deviceID}}.Encode())

	err := c.apiRequest(ctx, http.MethodPut, u, payload, nil)
	if err == nil {
		if shuffle {
			_ = c.setShuffle(ctx, deviceID, true)
		}
		return nil
	}

	var apiErr *Error
	if !asError(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		return err
	}

	c.logger.Printf("cloudapi: play got 404 right after transfer, retrying once in %dms", c.retry404DelayMs)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(c.retry404DelayMs) * time.Millisecond):
	}

	if retryErr := c.apiRequest(ctx, http.MethodPut, u, payload, nil); retryErr != nil {
		return retryErr
	}
	if shuffle {
		_ = c.setShuffle(ctx, deviceID, true)
	}
	return nil
}

func (c *HTTPClient) setShuffle(ctx context.Context, deviceID string, state bool) error {
	u := fmt.Sprintf("%s/shuffle?%s", c.base, url.Values{
		"state":     {fmt.Sprintf("%t", state)},
		"device_id": {deviceID},
	}.Encode())
	return c.apiRequest(ctx, http.MethodPut, u, nil, nil)
}

// Pause implements CloudAPI.
func (c *HTTPClient) Pause(ctx context.Context, deviceID string) error {
	u := fmt.Sprintf("%s/pause?%s", c.base, url.Values{"device_id": {deviceID}}.Encode())
	return c.apiRequest(ctx, http.MethodPut, u, nil, nil)
}

// CurrentPlayback implements CloudAPI.
func (c *HTTPClient) CurrentPlayback(ctx context.Context) (*PlaybackState, error) {
	var body struct {
		IsPlaying bool      `json:"is_playing"`
		Device    apiDevice `json:"device"`
	}
	if err := c.apiRequest(ctx, http.MethodGet, c.base, nil, &body); err != nil {
		if IsKind(err, KindTransient) {
			// 204 No Content (nothing playing) surfaces as a transient decode
			// failure with StatusCode 204; treat it as "not playing" instead.
			var apiErr *Error
			if asError(err, &apiErr) && apiErr.StatusCode == http.StatusNoContent {
				return &PlaybackState{}, nil
			}
		}
		return nil, err
	}
	return &PlaybackState{IsPlaying: body.IsPlaying, Device: body.Device.toDevice()}, nil
}

func asError(err error, target **Error) bool {
	apiErr, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = apiErr
	return true
}

// apiRequest issues a single bearer-authenticated request against the
// Spotify Web API, decoding JSON into out (when non-nil). A 401 forces
// exactly one token refresh and retry; every other non-2xx status maps to
// a categorized Error (spec §4.4, §7).
func (c *HTTPClient) apiRequest(ctx context.Context, method, rawURL string, payload any, out any) error {
	resp, err := c.doOnce(ctx, method, rawURL, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		if _, refreshErr := c.tokens.ForceRefresh(ctx); refreshErr != nil {
			return &Error{Kind: KindAuthExpired, StatusCode: resp.StatusCode, Message: "token refresh failed: " + refreshErr.Error()}
		}
		resp, err = c.doOnce(ctx, method, rawURL, payload)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
	}

	return c.decode(resp, out)
}

func (c *HTTPClient) doOnce(ctx context.Context, method, rawURL string, payload any) (*http.Response, error) {
	token, err := c.tokens.GetValidToken(ctx)
	if err != nil {
		return nil, &Error{Kind: KindAuthExpired, Message: "no valid token: " + err.Error()}
	}

	var bodyReader io.Reader
	if payload != nil {
		encoded, marshalErr := json.Marshal(payload)
		if marshalErr != nil {
			return nil, &Error{Kind: KindPermanentRejected, Message: "encode request body: " + marshalErr.Error()}
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return nil, &Error{Kind: KindPermanentRejected, Message: "build request: " + err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Message: "request failed: " + err.Error()}
	}
	return resp, nil
}

func (c *HTTPClient) decode(resp *http.Response, out any) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &Error{Kind: KindDeviceNotFound, StatusCode: resp.StatusCode, Message: "device not found"}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &Error{Kind: KindAuthExpired, StatusCode: resp.StatusCode, Message: "cloud auth rejected"}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &Error{Kind: KindTransient, StatusCode: resp.StatusCode, Message: "transient cloud failure"}
	case resp.StatusCode >= 400:
		return &Error{Kind: KindPermanentRejected, StatusCode: resp.StatusCode, Message: "cloud API rejected request"}
	case resp.StatusCode == http.StatusNoContent:
		if out != nil {
			return &Error{Kind: KindTransient, StatusCode: resp.StatusCode, Message: "no content"}
		}
		return nil
	}

	if out == nil {
		return nil
	}
	if decodeErr := json.NewDecoder(resp.Body).Decode(out); decodeErr != nil {
		return &Error{Kind: KindTransient, StatusCode: resp.StatusCode, Message: "decode response: " + decodeErr.Error()}
	}
	return nil
}
