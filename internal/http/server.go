package http

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"expensetracker/internal/aggregate"
	"expensetracker/internal/cache"
	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
	"expensetracker/internal/middleware/ratelimit"
	"expensetracker/internal/middleware/security"
	"expensetracker/internal/services"
)

const (
	maxBodyBytes         = 64 << 10
	defaultHeartbeat     = 15 * time.Second
	defaultCleanupPeriod = 10 * time.Minute
)

// Server serves the JSON API. It embeds http.Server so callers use
// ListenAndServe and Shutdown directly.
type Server struct {
	http.Server

	svc      *services.TransactionService
	engine   *aggregate.Engine
	logger   *applog.Logger
	limiter  *ratelimit.Limiter
	detector *security.Detector

	// txCache is the store's read-through cache, swept periodically.
	txCache       *cache.LRUCache[core.Transaction]
	cleanupPeriod time.Duration
	heartbeat     time.Duration

	// baseCtx parents every request so Shutdown can end open streams.
	baseCtx    context.Context
	cancelBase context.CancelFunc

	shutdownOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *applog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCacheCleanup sweeps expired entries from c every period.
func WithCacheCleanup(c *cache.LRUCache[core.Transaction], period time.Duration) Option {
	return func(s *Server) {
		s.txCache = c
		if period > 0 {
			s.cleanupPeriod = period
		}
	}
}

// WithRateLimit limits mutating requests per client IP.
func WithRateLimit(cfg ratelimit.Config) Option {
	return func(s *Server) {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		s.limiter = ratelimit.NewLimiter(cfg)
	}
}

// WithHeartbeat sets how often an idle summary stream sends a comment line.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

func NewServer(addr string, svc *services.TransactionService, engine *aggregate.Engine, opts ...Option) *Server {
	s := &Server{
		svc:           svc,
		engine:        engine,
		logger:        applog.New(applog.DefaultConfig()),
		detector:      security.NewDetector(),
		cleanupPeriod: defaultCleanupPeriod,
		heartbeat:     defaultHeartbeat,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = ratelimit.NewLimiter(ratelimit.DefaultConfig())
	}
	s.logger = s.logger.WithComponent(applog.ComponentHTTP)
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
	}

	if s.txCache != nil {
		janitor := cache.NewJanitor(s.logger.WithComponent(applog.ComponentCache).Logger, s.txCache)
		go janitor.Run(s.baseCtx, s.cleanupPeriod)
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(applog.Middleware(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.detector.Middleware)
	r.Use(middleware.RequestSize(maxBodyBytes))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").Write(w)
	})

	limited := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Get("/categories", s.handleCategories)
		r.Get("/summary", s.handleSummary)
		r.Get("/summary/stream", s.handleSummaryStream)

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", s.handleListTransactions)
			r.With(limited).Post("/", s.handleCreateTransaction)
			r.Get("/{id}", s.handleGetTransaction)
			r.With(limited).Put("/{id}", s.handleUpdateTransaction)
			r.With(limited).Delete("/{id}", s.handleDeleteTransaction)
		})
	})
	return r
}

// Shutdown ends open summary streams, stops background goroutines and then
// drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.cancelBase()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// location is the zone days are counted in.
func (s *Server) location() *time.Location {
	return s.engine.Now().Location()
}
