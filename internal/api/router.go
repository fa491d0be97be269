package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"dustPool/internal/auth"
	"dustPool/internal/metrics"
)

const requestLimit = 1 << 16

// Config wires the HTTP surface to a pool.
type Config struct {
	Pool     auth.Operator
	Verifier *auth.Verifier
	Metrics  *metrics.PoolMetrics
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
	// Timeout bounds one operation including its settlement calls.
	Timeout time.Duration
}

// NewRouter returns the pool HTTP API.
func NewRouter(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	h := &handlers{
		pool:    cfg.Pool,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		timeout: cfg.Timeout,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(cfg.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1/pool", func(sr chi.Router) {
		if cfg.Verifier != nil {
			sr.Use(auth.Middleware(cfg.Verifier, cfg.Logger))
		}
		sr.Get("/state", h.state)
		sr.Post("/deposit", h.deposit)
		sr.Post("/borrow", h.borrow)
		sr.Post("/repay", h.repay)
		sr.Post("/default", h.handleDefault)
	})

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}
