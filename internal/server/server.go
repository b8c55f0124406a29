package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	v1 "github.com/gosuda/audittrail/internal/api/v1"
	"github.com/gosuda/audittrail/internal/api/ws"
	"github.com/gosuda/audittrail/internal/config"
	"github.com/gosuda/audittrail/internal/server/middleware"
)

const (
	actorRPS   = 100
	actorBurst = 200
	ipRPS      = 50
	ipBurst    = 100
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Trail    v1.TrailReader
	Events   v1.EventRecorder
	Policies v1.PolicyLookup
	// Live feeds the trail WebSocket; nil disables /ws.
	Live ws.Subscriber
	// Metrics serves /metrics; nil disables it.
	Metrics http.Handler
	// Health is checked by /healthz, keyed by component name.
	Health map[string]Pinger
	Logger zerolog.Logger
}

// Server is the HTTP server that wires all application routes and middleware.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	deps       Deps
}

// New creates a Server with all routes wired. ctx bounds the background
// cleanup of the rate limiters.
func New(ctx context.Context, cfg *config.Config, deps Deps) *Server {
	router := chi.NewRouter()

	// Global middleware stack.
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(hlog.NewHandler(deps.Logger))
	router.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Str("request_id", chimw.GetReqID(r.Context())).
			Msg("request")
	}))
	router.Use(chimw.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Language", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	s := &Server{
		router: router,
		deps:   deps,
		httpServer: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      otelhttp.NewHandler(router, "audittrail"),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	// Mount API routes on /api/v1 with three sub-groups:
	// 1. Event intake, open to anonymous sessions.
	// 2. Per-entity trails for any authenticated actor.
	// 3. Cross-entity search for auditors.
	router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT.Secret))
			r.Use(middleware.RateLimitByIP(ctx, ipRPS, ipBurst))
			r.Use(middleware.RateLimit(ctx, actorRPS, actorBurst))
			r.Use(middleware.Execution(cfg.Capture.Languages...))

			registerEventRoutes(humachi.New(r, apiConfig("Audit Trail API", true)), deps)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT.Secret))
			r.Use(middleware.RateLimit(ctx, actorRPS, actorBurst))

			registerTrailRoutes(humachi.New(r, apiConfig("Audit Trail Read API", false)), deps)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT.Secret))
			r.Use(middleware.RequireAuditor())
			r.Use(middleware.RateLimit(ctx, actorRPS, actorBurst))

			registerSearchRoutes(humachi.New(r, apiConfig("Audit Trail Search API", false)), deps)
		})
	})

	// WebSocket routes.
	if deps.Live != nil {
		router.Route("/ws", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT.Secret))
			registerWSRoutes(r, ws.NewHub(deps.Live))
		})
	}

	if deps.Metrics != nil {
		router.Handle("/metrics", deps.Metrics)
	}

	// Health check (unauthenticated).
	router.Get("/healthz", s.healthz)

	return s
}

// apiConfig builds the huma config of one route group. Only the primary
// group serves the OpenAPI document and docs; secondary groups share the
// /api/v1 prefix and would otherwise shadow them.
func apiConfig(title string, primary bool) huma.Config {
	c := huma.DefaultConfig(title, "1.0.0")
	c.Servers = []*huma.Server{
		{URL: "/api/v1"},
	}
	if !primary {
		c.OpenAPIPath = ""
		c.DocsPath = ""
		c.SchemasPath = ""
		c.CreateHooks = nil
	}
	return c
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	status := http.StatusOK
	for name, p := range s.deps.Health {
		if err := p.Ping(ctx); err != nil {
			if resp.Checks == nil {
				resp.Checks = make(map[string]string)
			}
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// Handler returns the routed handler without the tracing wrapper.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
