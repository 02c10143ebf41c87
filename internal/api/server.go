// Package api implements the HTTP surface for the delivery pipeline.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/garrellmacarilay/floodguard-agent/internal/assistant"
	"github.com/garrellmacarilay/floodguard-agent/internal/buildinfo"
	"github.com/garrellmacarilay/floodguard-agent/internal/chatlog"
	"github.com/garrellmacarilay/floodguard-agent/internal/contacts"
	"github.com/garrellmacarilay/floodguard-agent/internal/events"
	"github.com/garrellmacarilay/floodguard-agent/internal/geo"
	"github.com/garrellmacarilay/floodguard-agent/internal/shelters"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response,
// which is not actionable but worth tracking for debugging.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	listen   string
	orch     *assistant.Orchestrator
	store    *chatlog.Store
	identity chatlog.IdentityProvider
	bus      *events.Bus
	resolver *geo.Resolver
	ranked   int
	logger   *slog.Logger
	server   *http.Server
}

// Config wires the server's collaborators. Orchestrator and Logger are
// required; the rest degrade the matching endpoints when absent.
type Config struct {
	Listen       string
	Orchestrator *assistant.Orchestrator
	Store        *chatlog.Store
	Identity     chatlog.IdentityProvider
	Bus          *events.Bus
	Resolver     *geo.Resolver
	RankLimit    int
	Logger       *slog.Logger
}

// NewServer creates the API server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ranked := cfg.RankLimit
	if ranked <= 0 {
		ranked = shelters.DefaultRankLimit
	}
	return &Server{
		listen:   cfg.Listen,
		orch:     cfg.Orchestrator,
		store:    cfg.Store,
		identity: cfg.Identity,
		bus:      cfg.Bus,
		resolver: cfg.Resolver,
		ranked:   ranked,
		logger:   logger,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/quick-prompts", s.handleQuickPrompts)

	mux.HandleFunc("GET /api/conversations", s.handleConversations)
	mux.HandleFunc("GET /api/conversations/{id}/messages", s.handleConversationMessages)

	mux.HandleFunc("GET /api/shelters/nearby", s.handleSheltersNearby)
	mux.HandleFunc("GET /api/contacts", s.handleContacts)

	mux.HandleFunc("GET /api/events", s.handleEvents)

	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests and blocks until the listener
// fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.listen,
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// No write timeout: chat responses stream for as long as the
		// model talks.
	}

	s.logger.Info("starting API server", "listen", s.listen)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    status,
		},
	}, s.logger)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.errorResponse(w, http.StatusNotFound, "not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "FloodGuard",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"status": "healthy",
		"state":  s.orch.State().String(),
		"uptime": buildinfo.Uptime().String(),
	}, s.logger)
}

func (s *Server) handleQuickPrompts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"prompts": s.orch.QuickPrompts(),
	}, s.logger)
}

func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"contacts": contacts.Regional(),
	}, s.logger)
}

// handleSheltersNearby ranks the shelter directory around the caller's
// position. lat/lon query parameters override the resolved position.
func (s *Server) handleSheltersNearby(w http.ResponseWriter, r *http.Request) {
	var origin geo.Point

	latStr, lonStr := r.URL.Query().Get("lat"), r.URL.Query().Get("lon")
	if latStr != "" || lonStr != "" {
		lat, latErr := strconv.ParseFloat(latStr, 64)
		lon, lonErr := strconv.ParseFloat(lonStr, 64)
		if latErr != nil || lonErr != nil {
			s.errorResponse(w, http.StatusBadRequest, "lat and lon must both be valid numbers")
			return
		}
		if s.resolver != nil {
			res := *s.resolver
			res.Provider = geo.StaticProvider(geo.Point{Lat: lat, Lon: lon})
			origin = res.Resolve(r.Context())
		} else {
			origin = geo.Point{Lat: lat, Lon: lon}
		}
	} else if s.resolver != nil {
		origin = s.resolver.Resolve(r.Context())
	}

	limit := s.ranked
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.errorResponse(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"origin":   origin,
		"shelters": shelters.RankNearest(origin, shelters.Directory(), limit),
	}, s.logger)
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	if s.store == nil || s.identity == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "persistence disabled")
		return
	}
	userID, err := s.identity.GetOrCreate()
	if err != nil {
		s.logger.Error("identity lookup failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "identity unavailable")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			s.errorResponse(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
	}

	convs, err := s.store.UserConversations(r.Context(), userID, limit)
	if err != nil {
		s.logger.Error("list conversations failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "query failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"conversations": convs}, s.logger)
}

func (s *Server) handleConversationMessages(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "persistence disabled")
		return
	}
	id := r.PathValue("id")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.errorResponse(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	if _, err := s.store.Conversation(r.Context(), id); err != nil {
		s.errorResponse(w, http.StatusNotFound, "conversation not found")
		return
	}

	messages, err := s.store.ConversationHistory(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("conversation history failed", "conversation_id", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "query failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"messages": messages}, s.logger)
}
