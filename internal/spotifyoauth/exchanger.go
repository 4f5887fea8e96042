// Package spotifyoauth is the thin HTTP adapter implementing
// tokensource.TokenExchanger: it performs the refresh_token grant against
// Spotify's Accounts service using HTTP Basic client authentication.
package spotifyoauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/strefethen/connect-alarm-go/internal/tokensource"
)

const defaultTokenURL = "https://accounts.spotify.com/api/token"

// Exchanger implements tokensource.TokenExchanger using a registered
// Spotify application's client credentials.
type Exchanger struct {
	clientID     string
	clientSecret string
	tokenURL     string
	httpClient   *http.Client
}

// New returns an Exchanger for the given Spotify app credentials.
func New(clientID, clientSecret string) *Exchanger {
	return &Exchanger{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     defaultTokenURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Refresh implements tokensource.TokenExchanger.
func (e *Exchanger) Refresh(ctx context.Context, refreshToken string) (tokensource.Token, error) {
	if refreshToken == "" {
		return tokensource.Token{}, fmt.Errorf("spotifyoauth: no refresh token configured")
	}

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return tokensource.Token{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+e.basicAuth())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return tokensource.Token{}, fmt.Errorf("spotifyoauth: token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return tokensource.Token{}, fmt.Errorf("spotifyoauth: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return tokensource.Token{}, fmt.Errorf("spotifyoauth: %s: %s", apiErr.Error, apiErr.ErrorDescription)
		}
		return tokensource.Token{}, fmt.Errorf("spotifyoauth: token request failed: %s", resp.Status)
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return tokensource.Token{}, fmt.Errorf("spotifyoauth: parse token response: %w", err)
	}

	newRefreshToken := parsed.RefreshToken
	if newRefreshToken == "" {
		// Spotify does not always rotate the refresh token.
		newRefreshToken = refreshToken
	}

	return tokensource.Token{
		AccessToken:  parsed.AccessToken,
		RefreshToken: newRefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second),
	}, nil
}

func (e *Exchanger) basicAuth() string {
	raw := e.clientID + ":" + e.clientSecret
	return base64.StdEncoding.EncodeToString([]byte(raw))
}
