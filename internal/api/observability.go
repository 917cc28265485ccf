package api

import (
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics with bounded cardinality (mode tags and fixed outcome names only,
// never room or player ids)
var (
	// Room metrics
	tickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "room_tick_duration_seconds",
		Help:    "Time spent in one room tick",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05},
	}, []string{"mode"})

	tickPanics = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "room_tick_panics_total",
		Help: "Recovered panics in the room loop",
	}, []string{"mode"})

	matchesEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matches_ended_total",
		Help: "Matches ended by mode and result",
	}, []string{"mode", "result"}) // result: win, draw

	hazardsSpawned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hazards_spawned_total",
		Help: "Hazards spawned by mode and kind",
	}, []string{"mode", "kind"})

	roomsActive = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "rooms_active",
		Help: "Rooms currently registered in the lobby",
	}, func() float64 {
		if fn := roomCounter.Load(); fn != nil {
			return float64((*fn)())
		}
		return 0
	})

	// Collaborator metrics
	directives = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_directives_total",
		Help: "AI director outcomes",
	}, []string{"source", "outcome"}) // source: ai, fallback

	resultsSaved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "match_results_saved_total",
		Help: "Match summaries handed to the result sinks",
	}, []string{"status"}) // status: ok, failed

	resultsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "match_results_dropped_total",
		Help: "Match summaries dropped because the recorder queue was full or stopped",
	})

	// Event journal metrics
	journalTotal = promauto.NewCounterFunc(prometheus.CounterOpts{
		Name: "event_log_total",
		Help: "Total events logged",
	}, func() float64 {
		total, _ := journalStats()
		return float64(total)
	})

	journalDropped = promauto.NewCounterFunc(prometheus.CounterOpts{
		Name: "event_log_dropped_total",
		Help: "Events dropped due to rate limiting or buffer full",
	}, func() float64 {
		_, dropped := journalStats()
		return float64(dropped)
	})

	// DoS detection metrics - use ONLY bounded label values
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit", "join"

	// HTTP metrics with bounded labels
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is the route pattern, not the full URL

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	// WebSocket metrics
	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "WebSocket messages by direction",
	}, []string{"direction"}) // "out", "in", "dropped_out", "dropped_in"
)

var (
	roomCounter atomic.Pointer[func() int]
	journalStat atomic.Pointer[func() (uint64, uint64)]
)

func journalStats() (uint64, uint64) {
	if fn := journalStat.Load(); fn != nil {
		return (*fn)()
	}
	return 0, 0
}

// Metrics is the Prometheus-backed observer handed to rooms, the result
// recorder and the AI director. The zero value is ready to use.
type Metrics struct{}

// NewMetrics returns the process-wide metrics observer
func NewMetrics() *Metrics {
	return &Metrics{}
}

// TrackRooms sets the source of the rooms_active gauge
func (*Metrics) TrackRooms(count func() int) {
	roomCounter.Store(&count)
}

// TrackJournal sets the source of the event log counters
func (*Metrics) TrackJournal(stats func() (total, dropped uint64)) {
	journalStat.Store(&stats)
}

// TickObserved records tick timing
func (*Metrics) TickObserved(mode string, d time.Duration) {
	tickDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// TickPanicked counts a recovered room panic
func (*Metrics) TickPanicked(mode string) {
	tickPanics.WithLabelValues(mode).Inc()
}

// MatchEnded counts a finished match
func (*Metrics) MatchEnded(mode, result string) {
	matchesEnded.WithLabelValues(mode, result).Inc()
}

// HazardSpawned counts a hazard
func (*Metrics) HazardSpawned(mode, kind string) {
	hazardsSpawned.WithLabelValues(mode, kind).Inc()
}

// DirectiveObserved counts an AI director outcome
func (*Metrics) DirectiveObserved(source, outcome string) {
	directives.WithLabelValues(source, outcome).Inc()
}

// ResultSaved counts a sink write
func (*Metrics) ResultSaved(ok bool) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	resultsSaved.WithLabelValues(status).Inc()
}

// ResultDropped counts a summary the recorder could not queue
func (*Metrics) ResultDropped() {
	resultsDropped.Inc()
}

// ObservabilityConfig configures the debug server
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string // MUST be "127.0.0.1:6060" in production
	BasicAuthUser string // Optional basic auth
	BasicAuthPass string
}

// DefaultObservabilityConfig returns safe defaults
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060", // Localhost only - NEVER expose externally
	}
}

// DebugHandler returns the pprof, metrics and health endpoints
func DebugHandler(cfg ObservabilityConfig) http.Handler {
	mux := http.NewServeMux()

	// pprof endpoints for profiling
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if cfg.BasicAuthUser != "" {
		return basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}
	return mux
}

// StartDebugServer starts the internal observability server
// CRITICAL: This MUST bind to localhost only to prevent pprof-based DoS
func StartDebugServer(cfg ObservabilityConfig) error {
	if !cfg.Enabled {
		log.Println("📊 Debug server disabled")
		return nil
	}

	// SECURITY: Validate address is localhost
	if !isLoopbackAddr(cfg.ListenAddr) && os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
		log.Println("⚠️ Debug server forced to localhost for security")
		cfg.ListenAddr = DefaultObservabilityConfig().ListenAddr
	}

	handler := DebugHandler(cfg)
	go func() {
		log.Printf("📊 Debug server starting on %s", cfg.ListenAddr)
		log.Printf("   - pprof:   http://%s/debug/pprof/", cfg.ListenAddr)
		log.Printf("   - metrics: http://%s/metrics", cfg.ListenAddr)

		if err := http.ListenAndServe(cfg.ListenAddr, handler); err != nil {
			log.Printf("⚠️ Debug server error: %v", err)
		}
	}()

	return nil
}

func isLoopbackAddr(addr string) bool {
	for _, prefix := range []string{"127.0.0.1:", "localhost:", "[::1]:"} {
		if strings.HasPrefix(addr, prefix) {
			return true
		}
	}
	return false
}

// basicAuthMiddleware adds basic authentication to the handler
func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || !tokenEqual(u, user) || !tokenEqual(p, pass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RecordConnectionRejected increments the rejection counter
// reason must be one of: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit", "join"
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, http.StatusText(status)).Inc()
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// RecordWSMessage counts one WebSocket message in the given direction
func RecordWSMessage(direction string) {
	wsMessagesTotal.WithLabelValues(direction).Inc()
}
