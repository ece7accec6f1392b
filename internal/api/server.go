package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ServerConfig contains configuration for creating the API server.
// Pipeline, Ingest, and Registry are satisfied by *rag.Pipeline,
// *ingest.Service, and *session.Registry respectively.
type ServerConfig struct {
	Logger      *slog.Logger
	Pipeline    answerer      // Required
	Ingest      ingestor      // Required
	Registry    toucher       // Required
	Pool        *pgxpool.Pool // Optional: nil reports not ready on /ready
	CORSOrigins []string      // Allowed origins for CORS and WebSocket handshakes
	IsDev       bool          // Enables HTTP cookies (no Secure flag)
	TrustProxy  bool          // Trust X-Real-IP/X-Forwarded-For headers (behind reverse proxy)
	RateRPS     float64       // Rate limiter refill per IP (0 = default 1/sec)
	RateBurst   int           // Rate limiter burst size per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if cfg.Ingest == nil {
		return nil, errors.New("ingest service is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("session registry is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sm := &sessionManager{
		registry: cfg.Registry,
		isDev:    cfg.IsDev,
		logger:   logger,
	}

	ih := &ingestHandler{
		service:  cfg.Ingest,
		sessions: sm,
		logger:   logger,
	}
	qh := &queryHandler{
		pipeline: cfg.Pipeline,
		sessions: sm,
		logger:   logger,
	}
	wh := &wsHandler{
		pipeline: cfg.Pipeline,
		registry: cfg.Registry,
		origins:  cfg.CORSOrigins,
		logger:   logger,
	}

	mux := http.NewServeMux()

	// Document ingestion
	mux.HandleFunc("POST /api/v1/ingest", ih.upload)
	mux.HandleFunc("GET /api/v1/supported-formats", supportedFormats)

	// Question answering
	mux.HandleFunc("POST /api/v1/query", qh.ask)
	mux.Handle("GET /api/v1/query/ws", wh.handler())

	// Rate limiter: per-IP token bucket
	rps := cfg.RateRPS
	if rps <= 0 {
		rps = 1.0
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(rps, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Session → Routes
	// RequestID must be before Logging so request_id is available in log attributes.
	// CORS must be before RateLimit so preflight OPTIONS gets proper CORS headers.
	var handler http.Handler = mux
	handler = sessionMiddleware(sm)(handler)
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Wrap with security headers
	isDev := cfg.IsDev
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, isDev)
		handler.ServeHTTP(w, r)
	})

	// Use a top-level mux to separate health probes from the middleware stack
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool))
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
