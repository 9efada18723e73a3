package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/energy-community-auth/auth"
	"github.com/jrsteele09/energy-community-auth/internal/config"
	"github.com/jrsteele09/energy-community-auth/token"
)

// KeySetPublisher exposes the public keys that verify access tokens.
type KeySetPublisher interface {
	JWKS() token.JWKS
}

type Server struct {
	env       string
	mux       *http.ServeMux
	routes    []string
	cors      config.CorsConfig
	auth      *auth.Service
	validator *auth.Validator
	jwks      KeySetPublisher
	metrics   http.Handler
	health    func(ctx context.Context) error
	stateTTL  time.Duration
	logger    zerolog.Logger
}

const defaultOAuthStateTTL = 10 * time.Minute

type Option func(*Server)

func WithEnv(env string) Option {
	return func(s *Server) {
		s.env = env
	}
}

// WithJWKS publishes the access token keys at the well-known JWKS route
func WithJWKS(publisher KeySetPublisher) Option {
	return func(s *Server) {
		s.jwks = publisher
	}
}

func WithMetricsHandler(handler http.Handler) Option {
	return func(s *Server) {
		s.metrics = handler
	}
}

// WithOAuthStateTTL sets how long the browser keeps a pending provider login
func WithOAuthStateTTL(ttl time.Duration) Option {
	return func(s *Server) {
		if ttl > 0 {
			s.stateTTL = ttl
		}
	}
}

func WithHealthCheck(health func(ctx context.Context) error) Option {
	return func(s *Server) {
		s.health = health
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func New(cors config.CorsConfig, authService *auth.Service, options ...Option) (*Server, error) {
	if authService == nil {
		return nil, errors.New("[Server New] auth service is required")
	}
	if cors == nil {
		return nil, errors.New("[Server New] cors config is required")
	}

	s := &Server{
		env:       config.EnvDev,
		mux:       http.NewServeMux(),
		cors:      cors,
		auth:      authService,
		validator: auth.NewValidator(),
		stateTTL:  defaultOAuthStateTTL,
		logger:    log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != config.EnvDev {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			s.logRoute(parts[0], parts[1])
		} else {
			s.logRoute("", parts[0])
		}
	}
}

func (s *Server) logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	s.logger.Info().Msgf("[%-19s] %s", color+paddedMethod+ResetColor, path)
}
