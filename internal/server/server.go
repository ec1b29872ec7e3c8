// Package server exposes a Gambit instance over HTTP: agent uploads,
// session control and a websocket stream of match events.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hupe1980/gambit"
	"github.com/hupe1980/gambit/core"
	"github.com/hupe1980/gambit/engine"
	"github.com/hupe1980/gambit/logging"
	"github.com/hupe1980/gambit/session"
)

// Config tunes the HTTP surface.
type Config struct {
	// RequestTimeout bounds every non-streaming request.
	RequestTimeout time.Duration
	// EventBuffer is the per-connection event queue length.
	EventBuffer int
	// WriteTimeout bounds a single websocket write.
	WriteTimeout time.Duration
}

// DefaultConfig is used when no options are supplied.
var DefaultConfig = Config{
	RequestTimeout: 60 * time.Second,
	EventBuffer:    64,
	WriteTimeout:   5 * time.Second,
}

// Options configures a Server.
type Options struct {
	Config Config
	Logger logging.Logger
}

// Server serves the HTTP API of one Gambit instance.
type Server struct {
	g    *gambit.Gambit
	opts Options
}

// New creates a Server for g.
func New(g *gambit.Gambit, optFns ...func(o *Options)) *Server {
	opts := Options{Config: DefaultConfig, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.Config.EventBuffer < 1 {
		opts.Config.EventBuffer = DefaultConfig.EventBuffer
	}
	if opts.Config.WriteTimeout <= 0 {
		opts.Config.WriteTimeout = DefaultConfig.WriteTimeout
	}
	return &Server{g: g, opts: opts}
}

// Routes returns the root router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", s.g.Metrics().Handler())

	r.Route("/api", func(r chi.Router) {
		r.Mount("/agents", s.agentRoutes())
		r.Mount("/sessions", s.sessionRoutes())
	})
	return r
}

// timeout wraps non-streaming routes with the request timeout.
func (s *Server) timeout(r chi.Router) chi.Router {
	if s.opts.Config.RequestTimeout > 0 {
		return r.With(middleware.Timeout(s.opts.Config.RequestTimeout))
	}
	return r
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string          `json:"code"`
	Class   core.ErrorClass `json:"class,omitempty"`
	Message string          `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}

// handleError maps err onto a status code through the error taxonomy.
func (s *Server) handleError(w http.ResponseWriter, err error) {
	class := core.Classify(err)
	status, code := statusFor(err, class)
	if status >= http.StatusInternalServerError {
		s.opts.Logger.Error("Request failed", "error", err, "class", string(class))
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Class: class, Message: err.Error()}})
}

func statusFor(err error, class core.ErrorClass) (int, string) {
	switch {
	case errors.Is(err, core.ErrAgentNotFound), errors.Is(err, core.ErrSessionNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, core.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"
	case errors.Is(err, core.ErrRegistryFull), errors.Is(err, core.ErrDecisionInFlight),
		errors.Is(err, core.ErrStaleGeneration), errors.Is(err, core.ErrGameOver),
		errors.Is(err, engine.ErrInvalidTransition), errors.Is(err, session.ErrTooManySessions),
		errors.Is(err, core.ErrBuiltinAgent):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, core.ErrAgentTimedOut):
		return http.StatusGatewayTimeout, "AGENT_TIMEOUT"
	}
	switch class {
	case core.ClassValidation:
		return http.StatusBadRequest, "BAD_REQUEST"
	case core.ClassLoad, core.ClassIllegal:
		return http.StatusUnprocessableEntity, strings.ToUpper(strings.ReplaceAll(string(class), "-", "_"))
	case core.ClassDecision:
		return http.StatusBadGateway, "AGENT_FAILED"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
