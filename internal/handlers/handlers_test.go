package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"coinboard/backend-go/internal/config"
	"coinboard/backend-go/internal/models"
	"coinboard/backend-go/internal/services"
)

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

func (c *stepClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func newTestAPI(t *testing.T, upstream http.Handler) *API {
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)
	cfg := config.Default()
	cfg.CoinGeckoBaseURL = srv.URL
	cfg.UpbitBaseURL = srv.URL
	cfg.CircuitFailLimit = 1000
	clock := &stepClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	return New(cfg, services.NewMemoryCache(), clock, zap.NewNop())
}

func serve(h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestGlobalFallbackIsStill200(t *testing.T) {
	api := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	rec := serve(api.Global, "/api/global")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 45.8, body["btcDominance"])
	assert.Equal(t, 17.2, body["ethDominance"])
	assert.Equal(t, 3100.0, body["totalMarketCap"])
	assert.Equal(t, false, body["success"])
	assert.Equal(t, true, body["rateLimited"])
	assert.Equal(t, "fallback", body["mode"])
	assert.NotContains(t, body, "fromCache")
}

func TestGlobalSecondCallFromCache(t *testing.T) {
	var calls atomic.Int32
	api := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"data":{"market_cap_percentage":{"btc":50,"eth":18},"total_market_cap":{"usd":2e12,"krw":2.8e15}}}`))
	}))

	first := serve(api.Global, "/api/global")
	second := serve(api.Global, "/api/global")

	var a, b models.GlobalResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.False(t, a.FromCache)
	assert.True(t, b.FromCache)
	assert.Equal(t, a.Timestamp, b.Timestamp)
	assert.Equal(t, 2800.0, b.TotalMarketCap)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAllMarketsListingFailureReturnsEmptyArray(t *testing.T) {
	api := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	rec := serve(api.AllMarkets, "/api/all-markets")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestAllMarketsShape(t *testing.T) {
	api := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/market/all":
			_, _ = w.Write([]byte(`[{"market":"KRW-BTC","korean_name":"비트코인"},{"market":"KRW-ETH","korean_name":"이더리움"}]`))
		case "/ticker":
			_, _ = w.Write([]byte(`[
				{"market":"KRW-BTC","trade_price":90000000,"signed_change_rate":0.01,"acc_trade_price_24h":5e11,"acc_trade_volume_24h":5500},
				{"market":"KRW-ETH","trade_price":4000000,"signed_change_rate":-0.02,"acc_trade_price_24h":7e11,"acc_trade_volume_24h":175000}
			]`))
		}
	}))

	rec := serve(api.AllMarkets, "/api/all-markets")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[
		{"symbol":"ETH","name":"이더리움","market":"KRW-ETH","price":4000000,"change":-2,"volume":700000000000,"trade_volume":175000},
		{"symbol":"BTC","name":"비트코인","market":"KRW-BTC","price":90000000,"change":1,"volume":500000000000,"trade_volume":5500}
	]`, rec.Body.String())
}

func TestCandlesRequiresMarket(t *testing.T) {
	api := newTestAPI(t, http.NotFoundHandler())
	rec := serve(api.Candles, "/api/candles?market=not%20a%20market")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"market_required"}`, rec.Body.String())
}

func TestCandlesCached(t *testing.T) {
	var calls atomic.Int32
	api := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/candles/days", r.URL.Path)
		_, _ = w.Write([]byte(`[{"candle_date_time_kst":"2026-03-01T09:00:00","opening_price":1,"high_price":2,"low_price":1,"trade_price":2,"candle_acc_trade_volume":3}]`))
	}))

	first := serve(api.Candles, "/api/candles?market=krw-btc&unit=days&count=5")
	second := serve(api.Candles, "/api/candles?market=KRW-BTC&unit=days&count=5")

	assert.Equal(t, http.StatusOK, first.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, int32(1), calls.Load())
}

func TestOrderBookRateLimitedPassesThrough(t *testing.T) {
	api := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	rec := serve(api.OrderBook, "/api/orderbook?market=KRW-BTC")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestTradesUpstreamServerError(t *testing.T) {
	api := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	rec := serve(api.Trades, "/api/trades?market=KRW-BTC&count=500")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHealthReportsUnreachable(t *testing.T) {
	api := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ping" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))

	rec := serve(api.Health, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var body models.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Ok)
	assert.Equal(t, []string{"coingecko_unreachable"}, body.DataMissing)
	assert.True(t, body.DepsStatus["upbit"].Ok)
	assert.Equal(t, "memory", body.CacheBackend)
}

func TestParseMarket(t *testing.T) {
	m, ok := parseMarket(" krw-btc ")
	assert.True(t, ok)
	assert.Equal(t, "KRW-BTC", m)

	_, ok = parseMarket("")
	assert.False(t, ok)
	_, ok = parseMarket("KRW-BTC,KRW-ETH")
	assert.False(t, ok)
}

func TestParseIntParamClamps(t *testing.T) {
	assert.Equal(t, 50, parseIntParam("", 50, 1, 100))
	assert.Equal(t, 100, parseIntParam("500", 50, 1, 100))
	assert.Equal(t, 1, parseIntParam("-3", 50, 1, 100))
	assert.Equal(t, 50, parseIntParam("abc", 50, 1, 100))
}

func TestHealthProbesCached(t *testing.T) {
	var pings atomic.Int32
	api := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pings.Add(1)
		_, _ = w.Write([]byte(`[]`))
	}))

	first := serve(api.Health, "/api/health")
	second := serve(api.Health, "/api/health")

	assert.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	// one coingecko ping and one upbit ping
	assert.Equal(t, int32(2), pings.Load())
}

func TestWriteUpstreamErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"rate limited", &services.UpstreamError{Provider: "upbit", Status: http.StatusTooManyRequests}, http.StatusTooManyRequests},
		{"upstream timeout", &services.UpstreamError{Provider: "upbit", Status: http.StatusGatewayTimeout}, http.StatusGatewayTimeout},
		{"client error", &services.UpstreamError{Provider: "upbit", Status: http.StatusNotFound}, http.StatusUnprocessableEntity},
		{"server error", &services.UpstreamError{Provider: "upbit", Status: http.StatusInternalServerError}, http.StatusBadGateway},
		{"breaker open", fmt.Errorf("upbit: %w", gobreaker.ErrOpenState), http.StatusServiceUnavailable},
		{"deadline", fmt.Errorf("upbit: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"transport", errors.New("upbit: connection refused"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeUpstreamError(rec, tc.err)
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}
