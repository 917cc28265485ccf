package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Server is the HTTP API server with WebSocket support
type Server struct {
	router      *chi.Mux
	hub         *Hub
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
}

// NewServer builds the server for addr. It opens no listener until Start.
func NewServer(addr string, cfg RouterConfig) *Server {
	if cfg.RateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		cfg.RateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	router := NewRouter(cfg)
	return &Server{
		router:      router,
		hub:         cfg.Hub,
		rateLimiter: cfg.RateLimiter,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Start listens and blocks until the server stops. A clean Shutdown returns nil.
func (s *Server) Start() error {
	log.Printf("🌐 API server starting on %s", s.httpServer.Addr)
	log.Printf("🎮 Rooms: http://localhost%s/api/rooms", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Router returns the HTTP handler for use with httptest
func (s *Server) Router() http.Handler {
	return s.router
}

// Shutdown stops accepting requests, disconnects WebSocket sessions and stops
// background workers
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.hub != nil {
		s.hub.CloseAll()
	}
	s.rateLimiter.Stop()
	return err
}
