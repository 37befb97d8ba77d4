package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"coinboard/backend-go/internal/models"
)

func (a *API) AllMarkets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.tickers.AllMarkets(r.Context()))
}

func (a *API) Markets(w http.ResponseWriter, r *http.Request) {
	key := "markets:v1:" + a.cfg.QuoteCurrency
	var cached []models.MarketInfo
	if a.cached(r.Context(), key, &cached) {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	ctx, cancel := timeboxed(r, a.cfg.RequestTimeout)
	defer cancel()
	markets, err := a.upbit.Markets(ctx, a.cfg.QuoteCurrency)
	if err != nil {
		a.log.Warn("markets proxy failed", zap.Error(err))
		writeUpstreamError(w, err)
		return
	}
	a.store(r.Context(), key, markets)
	writeJSON(w, http.StatusOK, markets)
}
