package api

import (
	"context"
	"net/http"
	"time"

	"party-arena/internal/game"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Lobby is the room registry the API needs. *lobby.Manager satisfies it;
// tests can supply a fake without running the full lobby.
type Lobby interface {
	Create(mode string) (*game.Room, error)
	Resolve(key string) (*game.Room, error)
	List() []game.Info
	Modes() []string
}

// MatchHistory serves recently persisted matches. *persistence.SQLiteStore
// satisfies it.
type MatchHistory interface {
	Recent(ctx context.Context, limit int) ([]game.MatchSummary, error)
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
//	router := api.NewRouter(api.RouterConfig{
//	    Lobby:           lobbyMgr,
//	    Hub:             api.NewHub(api.DefaultHubConfig()),
//	    RateLimitConfig: &api.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
//	})
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Lobby is the room registry (required)
	Lobby Lobby

	// Hub serves /ws/{room}. Without it the WebSocket route is not mounted.
	Hub *Hub

	// History serves /api/matches. Without it the route answers 404.
	History MatchHistory

	// AdminToken guards the mutation endpoint. Empty disables it.
	AdminToken string

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one is created from RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is only used when RateLimiter is nil. If both are nil,
	// DefaultRateLimitConfig applies.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed origins.
	// If nil, DefaultAllowedOrigins applies.
	CORSOrigins []string

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

// routerHandlers holds what the route handlers share
type routerHandlers struct {
	lobby   Lobby
	hub     *Hub
	history MatchHistory
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// It is pure apart from the rate limiter's cleanup goroutine when none is
// passed in: no listeners are opened and no rooms are created, so it is safe
// to wrap in httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - order matters
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(instrument)

	// Rate limiting before CORS to reject early
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = DefaultAllowedOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", AdminTokenHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	h := &routerHandlers{
		lobby:   cfg.Lobby,
		hub:     cfg.Hub,
		history: cfg.History,
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/modes", h.handleGetModes)
		r.Get("/matches", h.handleGetMatches)

		r.Route("/rooms", func(r chi.Router) {
			r.Get("/", h.handleListRooms)
			r.Post("/", h.handleCreateRoom)
			r.Get("/{room}", h.handleGetRoom)

			r.With(RequireAdmin(cfg.AdminToken)).Post("/{room}/mutations", h.handlePostMutation)
		})
	})

	if cfg.Hub != nil {
		r.Get("/ws/{room}", h.handleWebSocket)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	return r
}

// instrument records latency per route pattern, keeping label cardinality bounded
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			pattern = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordRequest(r.Method, pattern, status, time.Since(start))
	})
}
