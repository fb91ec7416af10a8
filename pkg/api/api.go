package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethpandaops/gheregistry/pkg/api/docs"
	"github.com/ethpandaops/gheregistry/pkg/auth"
	"github.com/ethpandaops/gheregistry/pkg/config"
	"github.com/ethpandaops/gheregistry/pkg/github"
	"github.com/ethpandaops/gheregistry/pkg/metrics"
	"github.com/ethpandaops/gheregistry/pkg/registry"
	"github.com/ethpandaops/gheregistry/pkg/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// maxBodyBytes bounds create request bodies.
const maxBodyBytes = 1 << 20

// Server is the HTTP API server.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
	Addr() string
}

// server implements Server.
type server struct {
	log      logrus.FieldLogger
	cfg      *config.Config
	store    store.Store
	registry registry.Service
	auth     auth.Service
	monitor  github.Monitor
	metrics  *metrics.Metrics
	hub      *Hub
	srv      *http.Server
	router   chi.Router

	mu         sync.Mutex
	listener   net.Listener
	cancelHub  context.CancelFunc
	hubStopped chan struct{}

	// Rate limiters for different endpoint tiers.
	publicRateLimiter        *IPRateLimiter
	authenticatedRateLimiter *IPRateLimiter
}

// Ensure server implements Server.
var _ Server = (*server)(nil)

// NewServer creates a new API server. monitor may be nil.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.Config,
	st store.Store,
	reg registry.Service,
	authSvc auth.Service,
	monitor github.Monitor,
	m *metrics.Metrics,
) Server {
	hub := NewHub(log, m)

	s := &server{
		log:      log.WithField("component", "api"),
		cfg:      cfg,
		store:    st,
		registry: reg,
		auth:     authSvc,
		monitor:  monitor,
		metrics:  m,
		hub:      hub,
	}

	// Initialize rate limiters if enabled.
	if cfg.Server.RateLimit.Enabled {
		s.publicRateLimiter = NewIPRateLimiter(tierPublic, cfg.Server.RateLimit.Public.RequestsPerMinute, m)
		s.authenticatedRateLimiter = NewIPRateLimiter(tierAuthenticated, cfg.Server.RateLimit.Authenticated.RequestsPerMinute, m)

		log.WithFields(logrus.Fields{
			"public_rpm":        cfg.Server.RateLimit.Public.RequestsPerMinute,
			"authenticated_rpm": cfg.Server.RateLimit.Authenticated.RequestsPerMinute,
		}).Info("Rate limiting enabled")
	}

	// Stream registry changes to event stream clients.
	reg.SetChangeCallback(func(event registry.EventType, srv *store.Server) {
		switch event {
		case registry.EventServerCreated:
			hub.BroadcastServerCreated(srv)
		case registry.EventServerDeleted:
			hub.BroadcastServerDeleted(srv)
		}
	})

	if monitor != nil {
		monitor.SetReachabilityChangeCallback(hub.BroadcastReachability)
	}

	s.setupRouter()

	return s
}

// Start binds the listen address and serves in the background.
func (s *server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
	}

	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	hubCtx, cancel := context.WithCancel(ctx)
	stopped := make(chan struct{})

	s.mu.Lock()
	s.listener = ln
	s.cancelHub = cancel
	s.hubStopped = stopped
	s.mu.Unlock()

	s.log.WithField("addr", ln.Addr().String()).Info("Starting API server")

	// Start WebSocket hub.
	go func() {
		defer close(stopped)

		s.hub.Run(hubCtx)
	}()

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *server) Stop() error {
	if s.publicRateLimiter != nil {
		s.publicRateLimiter.Stop()
	}

	if s.authenticatedRateLimiter != nil {
		s.authenticatedRateLimiter.Stop()
	}

	if s.srv == nil {
		return nil
	}

	s.log.Info("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.srv.Shutdown(ctx)

	s.mu.Lock()
	cancelHub, stopped := s.cancelHub, s.hubStopped
	s.mu.Unlock()

	cancelHub()
	<-stopped

	return err
}

// Addr returns the bound listen address, or "" before Start.
func (s *server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

func (s *server) setupRouter() {
	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(auth.RedactQueryToken)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(s.metricsMiddleware)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS.
	if len(s.cfg.Server.CORSOrigins) > 0 {
		r.Use(corsMiddleware(s.cfg.Server.CORSOrigins))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	// Public endpoints with public rate limit.
	r.Group(func(r chi.Router) {
		if s.publicRateLimiter != nil {
			r.Use(s.publicRateLimiter.Middleware)
		}

		r.Get("/health", s.handleHealth)
		r.Handle("/metrics", s.metrics.Handler())
		r.Get("/openapi.json", s.handleOpenAPISpec)
	})

	// Event stream.
	r.Group(func(r chi.Router) {
		r.Use(auth.QueryTokenMiddleware(s.auth))
		if s.authenticatedRateLimiter != nil {
			r.Use(s.authenticatedRateLimiter.Middleware)
		}
		r.Get("/events", s.handleEvents)
	})

	r.Route("/organizations/{org}/scm/github-enterprise/servers", func(r chi.Router) {
		r.Use(s.requireOrganization)

		// Lookup by id is public.
		r.Group(func(r chi.Router) {
			if s.publicRateLimiter != nil {
				r.Use(s.publicRateLimiter.Middleware)
			}
			r.Get("/{id}", s.handleGetServer)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.AuthMiddleware(s.auth))
			if s.authenticatedRateLimiter != nil {
				r.Use(s.authenticatedRateLimiter.Middleware)
			}

			r.Get("/", s.handleListServers)
			r.Post("/", s.handleCreateServer)
			r.Delete("/{id}", s.handleDeleteServer)
		})
	})

	s.router = r
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowAll := len(origins) == 1 && origins[0] == "*"

	originSet := make(map[string]bool, len(origins))
	for _, origin := range origins {
		originSet[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if allowAll || originSet[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// metricsMiddleware records request counts and latency by route pattern.
func (s *server) metricsMiddleware(next http.Handler) http.Handler {
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

		s.metrics.RecordHTTPRequest(r.Method, pattern, strconv.Itoa(status), time.Since(start).Seconds())
	})
}

// requireOrganization rejects organizations that are not configured.
func (s *server) requireOrganization(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		org := chi.URLParam(r, "org")
		if !s.cfg.HasOrganization(org) {
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("Organization '%s' not found", org))

			return
		}

		next.ServeHTTP(w, r)
	})
}

// ============================================================================
// Response helpers
// ============================================================================

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Code    int    `json:"code" example:"404"`
	Message string `json:"message" example:"Server not found"`
}

// CreateErrorResponse is returned when a create request fails validation.
type CreateErrorResponse struct {
	Code    int                   `json:"code" example:"400"`
	Message string                `json:"message" example:"Failed to create GitHub server"`
	Errors  []registry.FieldError `json:"errors"`
}

func (s *server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Error("Failed to encode JSON response")
	}
}

func (s *server) writeError(w http.ResponseWriter, status int, message string) {
	writeErrorBody(w, status, message)
}

func writeErrorBody(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{Code: status, Message: message})
}

// ============================================================================
// Handlers
// ============================================================================

// HealthResponse is the response for the health check endpoint.
type HealthResponse struct {
	Status   string `json:"status" example:"ok"`
	Database string `json:"database" example:"ok"`
	Auth     bool   `json:"auth" example:"true"`
}

// handleOpenAPISpec godoc
//
//	@Summary		OpenAPI specification
//	@Description	Returns the OpenAPI specification for the API
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	object	"OpenAPI specification"
//	@Router			/openapi.json [get]
func (s *server) handleOpenAPISpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(docs.SwaggerInfo.ReadDoc()))
}

// handleHealth godoc
//
//	@Summary		Health check
//	@Description	Returns the health of the API server and its store
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Failure		503	{object}	HealthResponse
//	@Router			/health [get]
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Database: "ok", Auth: s.auth.Enabled()}
	status := http.StatusOK

	if err := s.store.Ping(r.Context()); err != nil {
		s.log.WithError(err).Warn("Store health check failed")

		resp.Status = "degraded"
		resp.Database = "unavailable"
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, resp)
}

// handleEvents godoc
//
//	@Summary		Registry event stream
//	@Description	Upgrades to a WebSocket streaming server_created, server_deleted and server_reachability events
//	@Tags			events
//	@Security		BearerAuth
//	@Param			token	query	string	false	"Bearer token, for clients that cannot set headers"
//	@Success		101		"WebSocket connection established"
//	@Failure		401		{object}	ErrorResponse
//	@Router			/events [get]
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ServeWs(s.hub, auth.SubjectFromContext(r.Context()), s.cfg.Server.CORSOrigins, w, r)
}

// handleCreateServer godoc
//
//	@Summary		Register a GitHub Enterprise server
//	@Description	Validates the name and API URL, probes the URL for a GitHub API and stores the server
//	@Tags			servers
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			org		path		string					true	"Organization"
//	@Param			body	body		registry.CreateRequest	true	"Server to register"
//	@Success		200		{object}	store.Server
//	@Failure		400		{object}	CreateErrorResponse
//	@Failure		401		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/organizations/{org}/scm/github-enterprise/servers [post]
func (s *server) handleCreateServer(w http.ResponseWriter, r *http.Request) {
	var req registry.CreateRequest

	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)

	// An empty body is treated as an empty object so missing fields are reported.
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")

		return
	}

	created, err := s.registry.Create(r.Context(), req, auth.SubjectFromContext(r.Context()))
	if err != nil {
		var verr *registry.ValidationError
		if errors.As(err, &verr) {
			s.writeJSON(w, http.StatusBadRequest, CreateErrorResponse{
				Code:    http.StatusBadRequest,
				Message: registry.CreateFailedMessage,
				Errors:  verr.Errors,
			})

			return
		}

		s.log.WithError(err).Error("Failed to create server")
		s.writeError(w, http.StatusInternalServerError, "Failed to create server")

		return
	}

	s.writeJSON(w, http.StatusOK, created)
}

// handleListServers godoc
//
//	@Summary		List GitHub Enterprise servers
//	@Description	Returns every registered server in registration order
//	@Tags			servers
//	@Security		BearerAuth
//	@Produce		json
//	@Param			org	path		string	true	"Organization"
//	@Success		200	{array}		store.Server
//	@Failure		401	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Router			/organizations/{org}/scm/github-enterprise/servers [get]
func (s *server) handleListServers(w http.ResponseWriter, r *http.Request) {
	servers, err := s.registry.List(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to list servers")
		s.writeError(w, http.StatusInternalServerError, "Failed to list servers")

		return
	}

	s.writeJSON(w, http.StatusOK, servers)
}

// handleGetServer godoc
//
//	@Summary		Get a GitHub Enterprise server
//	@Description	Returns a server by id, the SHA-256 hex digest of its API URL
//	@Tags			servers
//	@Produce		json
//	@Param			org	path		string	true	"Organization"
//	@Param			id	path		string	true	"Server ID"
//	@Success		200	{object}	store.Server
//	@Failure		404	{object}	ErrorResponse
//	@Router			/organizations/{org}/scm/github-enterprise/servers/{id} [get]
func (s *server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	found, err := s.registry.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, registry.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "Server not found")

		return
	}

	if err != nil {
		s.log.WithError(err).Error("Failed to get server")
		s.writeError(w, http.StatusInternalServerError, "Failed to get server")

		return
	}

	s.writeJSON(w, http.StatusOK, found)
}

// handleDeleteServer godoc
//
//	@Summary		Delete a GitHub Enterprise server
//	@Description	Removes a registered server
//	@Tags			servers
//	@Security		BearerAuth
//	@Param			org	path	string	true	"Organization"
//	@Param			id	path	string	true	"Server ID"
//	@Success		204	"Deleted"
//	@Failure		401	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Router			/organizations/{org}/scm/github-enterprise/servers/{id} [delete]
func (s *server) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	err := s.registry.Delete(r.Context(), chi.URLParam(r, "id"), auth.SubjectFromContext(r.Context()))
	if errors.Is(err, registry.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "Server not found")

		return
	}

	if err != nil {
		s.log.WithError(err).Error("Failed to delete server")
		s.writeError(w, http.StatusInternalServerError, "Failed to delete server")

		return
	}

	w.WriteHeader(http.StatusNoContent)
}
