package handlers

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"coinboard/backend-go/internal/models"
)

var candleUnits = map[string]bool{"minutes": true, "days": true, "weeks": true, "months": true}

var minuteIntervals = map[int]bool{1: true, 3: true, 5: true, 10: true, 15: true, 30: true, 60: true, 240: true}

func (a *API) Candles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	market, ok := parseMarket(q.Get("market"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "market_required"})
		return
	}
	unit := q.Get("unit")
	if !candleUnits[unit] {
		unit = "days"
	}
	interval := parseIntParam(q.Get("interval"), 60, 1, 240)
	if !minuteIntervals[interval] {
		interval = 60
	}
	count := parseIntParam(q.Get("count"), 100, 1, 200)

	key := fmt.Sprintf("candles:v1:%s:%s:%d:%d", market, unit, interval, count)
	var cached []models.Candle
	if a.cached(r.Context(), key, &cached) {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	ctx, cancel := timeboxed(r, a.cfg.RequestTimeout)
	defer cancel()
	candles, err := a.upbit.Candles(ctx, market, unit, interval, count)
	if err != nil {
		a.log.Warn("candles proxy failed", zap.String("market", market), zap.Error(err))
		writeUpstreamError(w, err)
		return
	}
	a.store(r.Context(), key, candles)
	writeJSON(w, http.StatusOK, candles)
}

func (a *API) OrderBook(w http.ResponseWriter, r *http.Request) {
	market, ok := parseMarket(r.URL.Query().Get("market"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "market_required"})
		return
	}

	key := "orderbook:v1:" + market
	var cached models.OrderBook
	if a.cached(r.Context(), key, &cached) {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	ctx, cancel := timeboxed(r, a.cfg.RequestTimeout)
	defer cancel()
	ob, err := a.upbit.OrderBook(ctx, market)
	if err != nil {
		a.log.Warn("orderbook proxy failed", zap.String("market", market), zap.Error(err))
		writeUpstreamError(w, err)
		return
	}
	a.store(r.Context(), key, ob)
	writeJSON(w, http.StatusOK, ob)
}

func (a *API) Trades(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	market, ok := parseMarket(q.Get("market"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "market_required"})
		return
	}
	count := parseIntParam(q.Get("count"), 50, 1, 100)

	key := fmt.Sprintf("trades:v1:%s:%d", market, count)
	var cached []models.Trade
	if a.cached(r.Context(), key, &cached) {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	ctx, cancel := timeboxed(r, a.cfg.RequestTimeout)
	defer cancel()
	trades, err := a.upbit.Trades(ctx, market, count)
	if err != nil {
		a.log.Warn("trades proxy failed", zap.String("market", market), zap.Error(err))
		writeUpstreamError(w, err)
		return
	}
	a.store(r.Context(), key, trades)
	writeJSON(w, http.StatusOK, trades)
}
