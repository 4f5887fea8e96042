package controlauth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/connect-alarm-go/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		JWTSecret:               "a-thirty-two-character-secret!!",
		JWTAccessTokenExpirySec: 3600,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, _ := CallerFromContext(r.Context())
		w.Header().Set("X-Caller", sub)
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareRejectsMissingAuthorization(t *testing.T) {
	handler := Middleware(testConfig())(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/v1/alarms/trigger", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareAcceptsValidBearerToken(t *testing.T) {
	cfg := testConfig()
	token, err := IssueToken(cfg, "scheduler", cfg.JWTAccessTokenExpirySec)
	require.NoError(t, err)

	handler := Middleware(cfg)(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/v1/alarms/trigger", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "scheduler", rec.Header().Get("X-Caller"))
}

func TestMiddlewareRejectsExpiredToken(t *testing.T) {
	cfg := testConfig()
	token, err := IssueToken(cfg, "scheduler", -1)
	require.NoError(t, err)

	handler := Middleware(cfg)(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/v1/alarms/trigger", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareAllowsHealthRoutesUnauthenticated(t *testing.T) {
	handler := Middleware(testConfig())(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/v1/health/live", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareTestModeBypassRequiresBothFlags(t *testing.T) {
	cfg := testConfig()
	cfg.AllowTestMode = true
	cfg.NodeEnv = "development"

	handler := Middleware(cfg)(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/v1/alarms/trigger", nil)
	req.Header.Set("x-test-mode", "true")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "test-operator", rec.Header().Get("X-Caller"))

	for _, partial := range []struct {
		allow bool
		env   string
	}{{true, "production"}, {false, "development"}} {
		partialCfg := testConfig()
		partialCfg.AllowTestMode = partial.allow
		partialCfg.NodeEnv = partial.env
		rec := httptest.NewRecorder()
		Middleware(partialCfg)(okHandler()).ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}
