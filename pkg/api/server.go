package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/localzure/localzure/pkg/events"
	"github.com/localzure/localzure/pkg/health"
	"github.com/localzure/localzure/pkg/keyvault"
	"github.com/localzure/localzure/pkg/log"
	"github.com/localzure/localzure/pkg/metrics"
	"github.com/localzure/localzure/pkg/oauth"
)

// Options wires the server to its engines. Broker may be nil; token
// lifecycle events are then dropped.
type Options struct {
	ListenAddr string
	Engine     *keyvault.Engine
	Issuer     *oauth.Issuer
	Health     *health.Registry
	Broker     *events.Broker
}

// Server is the HTTP facade: it maps REST paths onto the secret engine and
// the token authority and carries no business logic of its own
type Server struct {
	opts       Options
	mux        *http.ServeMux
	httpServer *http.Server
	logger     zerolog.Logger
}

// NewServer creates the facade and registers all routes
func NewServer(opts Options) *Server {
	s := &Server{
		opts:   opts,
		mux:    http.NewServeMux(),
		logger: log.WithComponent("api"),
	}
	s.routes()

	s.httpServer = &http.Server{
		Addr:         opts.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	// OAuth authority
	s.mux.HandleFunc("POST /.localzure/oauth/token", s.handleToken)
	s.mux.HandleFunc("GET /.localzure/oauth/keys", s.handleJWKS)
	s.mux.HandleFunc("GET /.well-known/openid-configuration", s.handleDiscovery)

	// Key Vault data plane. Literal segments win over wildcards, so the
	// versions and recover routes shadow the version wildcard.
	s.mux.HandleFunc("PUT /{vault}/secrets/{name}", s.handleSetSecret)
	s.mux.HandleFunc("GET /{vault}/secrets", s.handleListSecrets)
	s.mux.HandleFunc("GET /{vault}/secrets/{name}", s.handleGetSecret)
	s.mux.HandleFunc("GET /{vault}/secrets/{name}/versions", s.handleListVersions)
	s.mux.HandleFunc("GET /{vault}/secrets/{name}/{version}", s.handleGetSecret)
	s.mux.HandleFunc("PATCH /{vault}/secrets/{name}", s.handleUpdateSecret)
	s.mux.HandleFunc("PATCH /{vault}/secrets/{name}/{version}", s.handleUpdateSecret)
	s.mux.HandleFunc("DELETE /{vault}/secrets/{name}", s.handleDeleteSecret)

	s.mux.HandleFunc("GET /{vault}/deletedsecrets", s.handleListDeleted)
	s.mux.HandleFunc("GET /{vault}/deletedsecrets/{name}", s.handleGetDeleted)
	s.mux.HandleFunc("POST /{vault}/deletedsecrets/{name}/recover", s.handleRecover)
	s.mux.HandleFunc("DELETE /{vault}/deletedsecrets/{name}", s.handlePurge)

	// Operational endpoints
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", metrics.Handler())
}

// Handler returns the full middleware-wrapped handler, for tests and for
// the embedded server
func (s *Server) Handler() http.Handler {
	return s.withMiddleware(s.mux)
}

// Start serves until the listener fails or Shutdown is called
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.opts.ListenAddr).Msg("API server listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	report := health.Report{Status: "ok", Checks: map[string]health.Result{}}
	if s.opts.Health != nil {
		report = s.opts.Health.Check(r.Context())
	}

	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// writeJSON renders a JSON response body with the given status
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
