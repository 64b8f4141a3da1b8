package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const requestTimeout = 5 * time.Second

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	MaxConcurrent int
	CORSOrigin    string

	Logger   *zap.Logger
	Metrics  *Metrics
	Gatherer prometheus.Gatherer // served on /metrics when set
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(addr string) ServerConfig {
	return ServerConfig{
		Addr:          addr,
		ReadTimeout:   5 * time.Second,
		WriteTimeout:  10 * time.Second,
		MaxConcurrent: runtime.NumCPU() * 2,
	}
}

// NewServer creates an HTTP server with all routes and middleware.
func NewServer(cfg ServerConfig, handlers *Handlers) *http.Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	mux := http.NewServeMux()

	// Concurrency limiter.
	sem := make(chan struct{}, cfg.MaxConcurrent)
	route := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, withMiddleware(pattern, h, sem, cfg))
	}

	route("GET /api/v1/health", handlers.HandleHealth)
	route("GET /api/v1/tiles", handlers.HandleTiles)
	route("GET /api/v1/tiles/{tile}/border", handlers.HandleBorder)
	route("GET /api/v1/tiles/{tile}/nearest-ingoing", handlers.HandleNearestIngoing)
	route("GET /api/v1/tiles/{tile}/cost", handlers.HandleCost)
	if cfg.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

// ListenAndServe starts the server and blocks until shutdown signal.
func ListenAndServe(srv *http.Server, log *zap.Logger) error {
	// Graceful shutdown on SIGTERM/SIGINT.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info("shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

// withMiddleware wraps a handler with logging, metrics, recovery, security
// headers, and concurrency limiting.
func withMiddleware(route string, handler http.HandlerFunc, sem chan struct{}, cfg ServerConfig) http.HandlerFunc {
	log := cfg.Logger
	return func(w http.ResponseWriter, r *http.Request) {
		// Security headers.
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")

		// CORS.
		if cfg.CORSOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", cfg.CORSOrigin)
		}

		// Concurrency limiter.
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
		default:
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusServiceUnavailable, "service_unavailable", "")
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		defer func() {
			if p := recover(); p != nil {
				log.Error("handler panic", zap.String("route", route), zap.String("panic", fmt.Sprint(p)))
				writeError(rec, http.StatusInternalServerError, "internal_error", "")
			}
			elapsed := time.Since(start)
			cfg.Metrics.observe(r.Method, route, rec.status, elapsed)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("elapsed", elapsed))
		}()

		// Request timeout.
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		handler(rec, r.WithContext(ctx))
	}
}
