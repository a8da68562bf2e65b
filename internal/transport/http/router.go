package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"custodywatch/internal/platform/middleware"
	"custodywatch/pkg/platform/middleware/metadata"
	"custodywatch/pkg/platform/middleware/requesttime"
)

const requestTimeout = 30 * time.Second

// RouterOption configures NewRouter.
type RouterOption func(*routerConfig)

type routerConfig struct {
	logger  *slog.Logger
	metrics *middleware.Metrics
	scrape  http.Handler
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) RouterOption {
	return func(c *routerConfig) {
		c.logger = logger
	}
}

// WithRequestMetrics records request latency.
func WithRequestMetrics(m *middleware.Metrics) RouterOption {
	return func(c *routerConfig) {
		c.metrics = m
	}
}

// WithMetricsHandler serves h at GET /metrics.
func WithMetricsHandler(h http.Handler) RouterOption {
	return func(c *routerConfig) {
		c.scrape = h
	}
}

// NewRouter builds the chi router with the shared middleware chain.
func NewRouter(h *Handler, opts ...RouterOption) http.Handler {
	cfg := routerConfig{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()
	r.Use(requesttime.Middleware)
	r.Use(middleware.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(middleware.Recovery(cfg.logger))
	r.Use(middleware.Logger(cfg.logger))
	r.Use(middleware.Latency(cfg.metrics))

	if cfg.scrape != nil {
		r.Method(http.MethodGet, "/metrics", cfg.scrape)
	}
	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.TimeoutHandler(next, requestTimeout, `{"error":"timeout"}`)
		})
		h.Register(r)
	})
	return r
}
