package server

import (
	"bufio"
	"context"
	"log"
	"net"
	"net/http"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/strefethen/connect-alarm-go/internal/api"
	"github.com/strefethen/connect-alarm-go/internal/breaker"
	"github.com/strefethen/connect-alarm-go/internal/clockwork"
	"github.com/strefethen/connect-alarm-go/internal/cloudapi"
	"github.com/strefethen/connect-alarm-go/internal/config"
	"github.com/strefethen/connect-alarm-go/internal/controlauth"
	"github.com/strefethen/connect-alarm-go/internal/db"
	"github.com/strefethen/connect-alarm-go/internal/discovery"
	"github.com/strefethen/connect-alarm-go/internal/orchestrator"
	"github.com/strefethen/connect-alarm-go/internal/registry"
	"github.com/strefethen/connect-alarm-go/internal/spotifyoauth"
	"github.com/strefethen/connect-alarm-go/internal/statusfeed"
	"github.com/strefethen/connect-alarm-go/internal/tokensource"
	"github.com/strefethen/connect-alarm-go/internal/zeroconf"
)

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack implements http.Hijacker for the status feed's websocket upgrade.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

func requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		log.Printf("%s %s %d %s", r.Method, r.URL.RequestURI(), wrapped.status, time.Since(start).Round(time.Millisecond))
	})
}

// Options controls server wiring.
type Options struct {
	// DisableDiscovery skips the registry's initial discovery sweep that
	// NewHandler otherwise runs before returning; used by tests that don't
	// want real mDNS traffic.
	DisableDiscovery bool
}

// NewHandler builds the HTTP handler for the control API and status feed,
// and returns a shutdown function.
func NewHandler(cfg config.Config, options Options) (http.Handler, func(context.Context) error, error) {
	log.Printf("Using database: %s", cfg.SQLiteDBPath)
	dbPair, err := db.Init(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, err
	}

	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(requestLoggerMiddleware)
	router.Use(api.RequestIDMiddleware)
	router.Use(api.RecovererMiddleware)
	router.Use(controlauth.Middleware(cfg))

	registerHealthRoutes(router)

	zc := zeroconf.NewHTTPClient(nil)
	disc := discovery.NewMDNSDiscovery(nil)
	store := registry.NewStore(dbPair)
	discoveryCacheTTL := time.Duration(cfg.DiscoveryCacheTTLS) * time.Second
	regService := registry.NewService(store, disc, zc, discoveryCacheTTL, nil)

	exchanger := spotifyoauth.New(cfg.SpotifyClientID, cfg.SpotifyClientSecret)
	tokenStorePath := cfg.BaseDir + "/spotify_token.json"
	tokens, err := tokensource.NewCachedTokenSource(exchanger, tokenStorePath, nil)
	if err != nil {
		dbPair.Close()
		return nil, nil, err
	}

	cloud := cloudapi.NewHTTPClient(tokens, cfg.Retry404DelayMs, nil)
	clock := clockwork.Real{}
	brk := breaker.NewInMemory(cfg.BreakerFailureThreshold, time.Duration(cfg.BreakerCooldownS)*time.Second, nil, clock)
	timing := timingFromConfig(cfg)

	feed := statusfeed.NewManager(nil)
	orch := orchestrator.New(regService, cloud, disc, zc, tokens, brk, clock, nil, timing, nil, feed.Broadcast)

	RegisterAlarmRoutes(router, orch, regService)
	statusfeed.RegisterRoutes(router, feed)

	if !options.DisableDiscovery {
		if _, err := regService.Discover(context.Background(), false); err != nil {
			log.Printf("initial device discovery failed: %v", err)
		}
	}

	shutdown := func(ctx context.Context) error {
		feed.Close()
		if ctx == nil {
			ctx = context.Background()
		}
		return dbPair.Close()
	}

	return router, shutdown, nil
}

// timingFromConfig translates the flat config knobs into orchestrator.Timing,
// per spec §6 AlarmPlaybackConfig, layering config overrides onto the
// defaults for knobs config does not expose.
func timingFromConfig(cfg config.Config) orchestrator.Timing {
	timing := orchestrator.DefaultTiming()
	timing.MDNSLookupTimeout = time.Duration(cfg.MDNSLookupTimeoutMs) * time.Millisecond
	timing.GetInfoTimeout = time.Duration(cfg.GetInfoTimeoutMs) * time.Millisecond
	timing.AddUserTimeout = time.Duration(cfg.AddUserTimeoutMs) * time.Millisecond
	timing.WakeTimeout = time.Duration(cfg.WakeTimeoutMs) * time.Millisecond
	timing.Retry404Delay = time.Duration(cfg.Retry404DelayMs) * time.Millisecond
	timing.TotalPollDeadline = secondsToDuration(cfg.TotalPollDeadlineS)
	timing.PollFastPeriod = secondsToDuration(cfg.PollFastPeriodS)
	timing.DebounceAfterSeen = secondsToDuration(cfg.DebounceAfterSeenS)
	timing.FailoverFireAfter = secondsToDuration(cfg.FailoverFireAfterS)
	timing.LoginGrace = secondsToDuration(cfg.LoginGraceS)
	timing.StageSettle = secondsToDuration(cfg.StageSettleS)
	return timing
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func registerHealthRoutes(router chi.Router) {
	router.Method(http.MethodGet, "/v1/health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"service":   "connect-alarm",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}))
	router.Method(http.MethodGet, "/v1/health/live", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))
	router.Method(http.MethodGet, "/v1/health/ready", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	}))
}
