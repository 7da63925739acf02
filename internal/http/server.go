// Package http exposes the subscription tracker as a JSON API.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"subtrack/internal/core"
	"subtrack/internal/middleware/trace"
	"subtrack/internal/services"
)

type Server struct {
	http.Server
	svc         *services.SubscriptionService
	rateLimiter *rateLimiter

	// LRU caches for the aggregate endpoints, cleared on every mutation
	overviewCache *lruCache[services.Overview]
	trendCache    *lruCache[core.Trend]

	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

// Simple in-memory rate limiter
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

// startCleanup runs periodic cleanup to remove stale client entries
func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries removes client entries older than 10 minutes
func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		if rl.stopCleanup != nil {
			close(rl.stopCleanup)
		}
	})
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]

	if !exists {
		rl.clients[clientIP] = &clientInfo{
			lastRequest: now,
			requests:    1,
		}
		return true
	}

	// Reset counter if more than 1 minute has passed
	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	// Allow up to 60 requests per minute
	client.requests++
	client.lastRequest = now

	return client.requests <= 60
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc *services.SubscriptionService) *Server {
	mux := http.NewServeMux()

	s := &Server{
		svc:              svc,
		rateLimiter:      newRateLimiter(),
		overviewCache:    newLRUCache[services.Overview](10, 5*time.Minute),
		trendCache:       newLRUCache[core.Trend](10, 5*time.Minute),
		stopCacheCleanup: make(chan struct{}),
	}

	go s.startCacheCleanup()

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("GET /subscriptions", s.withSecurity(s.handleListSubscriptions))
	mux.HandleFunc("POST /subscriptions", s.withSecurity(s.handleCreateSubscription))
	mux.HandleFunc("GET /subscriptions/{id}", s.withSecurity(s.handleGetSubscription))
	mux.HandleFunc("PUT /subscriptions/{id}", s.withSecurity(s.handleUpdateSubscription))
	mux.HandleFunc("DELETE /subscriptions/{id}", s.withSecurity(s.handleDeleteSubscription))

	mux.HandleFunc("GET /summary", s.withSecurity(s.handleSummary))
	mux.HandleFunc("GET /trend", s.withSecurity(s.handleTrend))
	mux.HandleFunc("GET /renewals/upcoming", s.withSecurity(s.handleUpcomingRenewals))
	mux.HandleFunc("GET /renewals/timeline", s.withSecurity(s.handleRenewalTimeline))

	mux.HandleFunc("GET /preferences", s.withSecurity(s.handleGetPreferences))
	mux.HandleFunc("PUT /preferences", s.withSecurity(s.handleUpdatePreferences))

	mux.HandleFunc("GET /export", s.withSecurity(s.handleExport))
	mux.HandleFunc("POST /import", s.withSecurity(s.handleImport))

	traced := trace.NewMiddleware(extractClientIP)
	s.Server.Addr = addr
	s.Server.Handler = traced.Middleware(mux)

	return s
}

// withSecurity adds security headers and rate limiting on mutating methods.
func (s *Server) withSecurity(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && !s.rateLimiter.allow(extractClientIP(r)) {
			slog.WarnContext(r.Context(), "Rate limit exceeded",
				"client_ip", extractClientIP(r),
				"method", r.Method,
				"path", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next(w, r)
	}
}

// startCacheCleanup runs periodic cleanup for both aggregate caches
func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			overviewCleaned := s.overviewCache.CleanExpired()
			trendCleaned := s.trendCache.CleanExpired()
			if overviewCleaned > 0 || trendCleaned > 0 {
				slog.Debug("Cache cleanup completed",
					"overview_entries_removed", overviewCleaned,
					"trend_entries_removed", trendCleaned)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// invalidateAggregates clears cached summary and trend responses after any
// mutation of the collection or preferences.
func (s *Server) invalidateAggregates() {
	s.overviewCache.Clear()
	s.trendCache.Clear()
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.stopCacheCleanup != nil {
			close(s.stopCacheCleanup)
		}
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
