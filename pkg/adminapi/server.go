package adminapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cloudcompute/admin-gateway/pkg/adminactions"
	"github.com/cloudcompute/admin-gateway/pkg/compute"
)

// HistoryReader serves the os-instance-actions endpoints.
type HistoryReader interface {
	ListByInstance(ctx context.Context, instanceID string, pageSize int, pageToken string) ([]adminactions.InstanceActionRecord, string, error)
	Get(ctx context.Context, instanceID, requestID string) (*adminactions.InstanceActionRecord, error)
}

// HostService serves the os-hosts endpoints.
type HostService interface {
	List(ctx context.Context, service string) ([]compute.Host, error)
	SetEnabled(ctx context.Context, name string, enabled bool) error
}

// Server exposes the action gateway over HTTP.
type Server struct {
	router      chi.Router
	gateway     *adminactions.Gateway
	instances   compute.ResourceStore
	history     HistoryReader
	hosts       HostService
	networks    NetworkService
	floatingIPs FloatingIPReader
	principals  PrincipalExtractor
	gatherer    prometheus.Gatherer
	ready       func(ctx context.Context) error
	logger      *slog.Logger
	startedAt   time.Time
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithPrincipalExtractor replaces the header-based principal extractor.
func WithPrincipalExtractor(extractor PrincipalExtractor) ServerOption {
	return func(s *Server) {
		s.principals = extractor
	}
}

// WithHistory mounts the os-instance-actions endpoints. instances, when
// non-nil, is used to answer 404 for unknown servers.
func WithHistory(history HistoryReader, instances compute.ResourceStore) ServerOption {
	return func(s *Server) {
		s.history = history
		s.instances = instances
	}
}

// WithHosts mounts the os-hosts endpoints.
func WithHosts(hosts HostService) ServerOption {
	return func(s *Server) {
		s.hosts = hosts
	}
}

// WithNetworks mounts the os-cloudpipe update and os-floating-ips endpoints.
func WithNetworks(networks NetworkService, floatingIPs FloatingIPReader) ServerOption {
	return func(s *Server) {
		s.networks = networks
		s.floatingIPs = floatingIPs
	}
}

// WithMetricsGatherer exposes gatherer on /metrics.
func WithMetricsGatherer(g prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithReadinessCheck sets the check behind /readyz, typically a database ping.
func WithReadinessCheck(check func(ctx context.Context) error) ServerOption {
	return func(s *Server) {
		s.ready = check
	}
}

// NewServer creates a Server for gateway.
func NewServer(gateway *adminactions.Gateway, logger *slog.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		gateway:    gateway,
		principals: DefaultPrincipalExtractor,
		logger:     logger,
		startedAt:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MountRoutes creates the HTTP router.
func (s *Server) MountRoutes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", UserHeader, GroupHeader, RoleHeader, ProjectHeader},
		ExposedHeaders:   []string{"Location", RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.healthHandler)
	r.Get("/livez", s.healthHandler)
	r.Get("/readyz", s.readyHandler)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v2", func(r chi.Router) {
		r.Use(PrincipalMiddleware(s.principals))

		r.Route("/servers/{serverID}", func(r chi.Router) {
			r.Post("/action", s.wrappedActionHandler)
			for _, d := range s.gateway.Registry().Descriptors() {
				h := s.actionHandler(d.Name)
				if d.ReadOnly {
					r.Get("/"+string(d.Name), h)
				} else {
					r.Post("/"+string(d.Name), h)
				}
			}
			if s.history != nil {
				r.Get("/os-instance-actions", s.listInstanceActionsHandler)
				r.Get("/os-instance-actions/{requestID}", s.getInstanceActionHandler)
			}
		})

		if s.hosts != nil {
			r.Route("/os-hosts", func(r chi.Router) {
				r.With(RequireRole(adminactions.RoleOperator)).Get("/", s.listHostsHandler)
				r.With(RequireRole(adminactions.RoleAdmin)).Put("/{host}", s.updateHostHandler)
			})
		}

		if s.networks != nil {
			r.With(RequireRole(adminactions.RoleAdmin)).Put("/os-cloudpipe/{id}", s.updateCloudpipeHandler)
			r.Get("/os-floating-ips", s.listFloatingIPsHandler)
			r.Get("/os-floating-ips/{id}", s.getFloatingIPHandler)
		}
	})

	s.router = r
	s.logger.Info("mounted admin routes",
		"actions", len(s.gateway.Registry().Names()),
		"history", s.history != nil,
		"hosts", s.hosts != nil,
		"networks", s.networks != nil,
		"metrics", s.gatherer != nil)
	return r
}

// Router returns the router built by MountRoutes.
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "alive",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// errorBody is the uniform error envelope.
type errorBody struct {
	Error *adminactions.ActionError `json:"error"`
	Code  int                       `json:"code"`
}

// writeActionError writes a classified failure.
func writeActionError(w http.ResponseWriter, aerr *adminactions.ActionError) {
	status := aerr.HTTPStatus()
	writeJSON(w, status, errorBody{Error: aerr, Code: status})
}

// writeError writes a failure that did not come from the gateway.
func writeError(w http.ResponseWriter, status int, kind adminactions.ErrorKind, message string, args ...any) {
	if len(args) > 0 {
		message = fmt.Sprintf(message, args...)
	}
	writeJSON(w, status, errorBody{
		Error: &adminactions.ActionError{Kind: kind, Message: message},
		Code:  status,
	})
}
