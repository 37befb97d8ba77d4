package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"coinboard/backend-go/internal/config"
	"coinboard/backend-go/internal/handlers"
	"coinboard/backend-go/internal/services"
)

func NewRouter(cfg config.Config, cache services.Cache, clock services.Clock, log *zap.Logger) http.Handler {
	api := handlers.New(cfg, cache, clock, log)

	mux := http.NewServeMux()
	routes := map[string]http.HandlerFunc{
		"/api/health":      api.Health,
		"/api/global":      api.Global,
		"/api/all-markets": api.AllMarkets,
		"/api/markets":     api.Markets,
		"/api/candles":     api.Candles,
		"/api/orderbook":   api.OrderBook,
		"/api/trades":      api.Trades,
	}
	known := make(map[string]bool, len(routes)+1)
	for path, h := range routes {
		mux.Handle(path, getOnly(h))
		known[path] = true
	}
	mux.Handle("/metrics", promhttp.Handler())
	known["/metrics"] = true

	h := http.Handler(mux)
	h = withRecovery(h, log)
	h = withLogging(h, log, known)
	h = withRateLimit(cfg.RateLimitPerMin)(h)
	h = withCORS(h)
	return h
}
