// Package api exposes the ranking engine over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/purchase-predictor/internal/model"
	"github.com/sells-group/purchase-predictor/internal/ranking"
)

// Ranker is the part of ranking.Engine the handlers use.
type Ranker interface {
	Ready() error
	LoadErr() error
	Rows() int
	Top(ctx context.Context, k int) ([]model.RankedService, error)
}

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	TopK           int
	RateLimit      float64 // requests per second, 0 disables
	RateBurst      int
	Metrics        *Metrics // nil disables /metrics
}

// NewRouter returns the HTTP handler for rk.
func NewRouter(rk Ranker, opts Options) http.Handler {
	if opts.TopK <= 0 {
		opts.TopK = ranking.DefaultTopK
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	h := &handlers{ranker: rk, topK: opts.TopK, metrics: opts.Metrics}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(logRequests(opts.Metrics))
	r.Use(recoverJSON)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	}))
	if opts.RateLimit > 0 {
		r.Use(rateLimit(opts.RateLimit, opts.RateBurst))
	}

	r.Get("/", h.welcome)
	r.Get("/most_purchased_services", h.mostPurchased)
	r.Get("/health", h.health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}
	return r
}
