package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"coinboard/backend-go/internal/config"
	"coinboard/backend-go/internal/services"
)

type API struct {
	cfg       config.Config
	cache     services.Cache
	log       *zap.Logger
	coingecko *services.CoinGeckoClient
	upbit     *services.UpbitClient
	global    *services.GlobalSnapshotService
	tickers   *services.TickerFetcher
}

func New(cfg config.Config, cache services.Cache, clock services.Clock, log *zap.Logger) *API {
	coingecko := services.NewCoinGeckoClient(cfg, log)
	upbit := services.NewUpbitClient(cfg, log)
	return &API{
		cfg:       cfg,
		cache:     cache,
		log:       log,
		coingecko: coingecko,
		upbit:     upbit,
		global:    services.NewGlobalSnapshotService(cfg, coingecko, services.NewSnapshotStore(cache), clock, log),
		tickers:   services.NewTickerFetcher(cfg, upbit, clock, log),
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

var marketPattern = regexp.MustCompile(`^[A-Z]{2,5}-[A-Z0-9]{1,15}$`)

// parseMarket accepts codes like krw-btc and returns KRW-BTC.
func parseMarket(raw string) (string, bool) {
	m := strings.ToUpper(strings.TrimSpace(raw))
	if !marketPattern.MatchString(m) {
		return "", false
	}
	return m, true
}

func parseIntParam(v string, def int, min int, max int) int {
	if v == "" {
		return def
	}
	var out int
	_, err := fmt.Sscanf(v, "%d", &out)
	if err != nil {
		return def
	}
	if out < min {
		return min
	}
	if out > max {
		return max
	}
	return out
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func timeboxed(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := r.Context().Deadline(); ok || d <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), d)
}

func (a *API) cached(ctx context.Context, key string, out any) bool {
	if a.cache == nil {
		return false
	}
	b, ok := a.cache.Get(ctx, key)
	if !ok {
		return false
	}
	return services.UnmarshalCache(b, out) == nil
}

func (a *API) store(ctx context.Context, key string, v any) {
	if a.cache == nil {
		return
	}
	b, err := services.MarshalCache(v)
	if err != nil {
		return
	}
	if err := a.cache.Set(ctx, key, b, a.cfg.CacheTTLMarket); err != nil {
		a.log.Debug("cache set failed", zap.String("key", key), zap.Error(err))
	}
}
