package services

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"coinboard/backend-go/internal/config"
)

var errMalformedGlobal = errors.New("coingecko: payload missing data")

type CoinGeckoClient struct {
	baseURL string
	up      *upstream
}

type globalMarket struct {
	MarketCapPercentage map[string]float64 `json:"market_cap_percentage"`
	TotalMarketCap      map[string]float64 `json:"total_market_cap"`
}

func NewCoinGeckoClient(cfg config.Config, log *zap.Logger) *CoinGeckoClient {
	return &CoinGeckoClient{
		baseURL: strings.TrimRight(cfg.CoinGeckoBaseURL, "/"),
		up:      newUpstream("coingecko", cfg, log),
	}
}

// Global fetches /global. A response without the top-level data object is
// treated as a failure.
func (c *CoinGeckoClient) Global(ctx context.Context) (globalMarket, error) {
	var payload struct {
		Data *globalMarket `json:"data"`
	}
	if _, err := c.up.getJSON(ctx, c.baseURL+"/global", &payload); err != nil {
		return globalMarket{}, err
	}
	if payload.Data == nil {
		return globalMarket{}, errMalformedGlobal
	}
	return *payload.Data, nil
}

func (c *CoinGeckoClient) Ping(ctx context.Context) error {
	_, err := c.up.getJSON(ctx, c.baseURL+"/ping", nil)
	return err
}
