package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"coinboard/backend-go/internal/config"
	"coinboard/backend-go/internal/models"
)

// TickerFetcher builds the all-markets board: every pair in the quote
// currency, fetched in rate-limited batches and sorted by 24h notional.
type TickerFetcher struct {
	upbit       *UpbitClient
	policy      BatchPolicy
	clock       Clock
	log         *zap.Logger
	quote       string
	listTimeout time.Duration
}

func NewTickerFetcher(cfg config.Config, upbit *UpbitClient, clock Clock, log *zap.Logger) *TickerFetcher {
	return &TickerFetcher{
		upbit: upbit,
		policy: BatchPolicy{
			Size:         cfg.TickerBatchSize,
			Delay:        cfg.TickerBatchDelay,
			RetryBackoff: cfg.TickerRetryBackoff,
			Retries:      1,
			ChunkTimeout: cfg.TickerChunkTimeout,
		},
		clock:       clock,
		log:         log,
		quote:       strings.ToUpper(cfg.QuoteCurrency),
		listTimeout: cfg.RequestTimeout,
	}
}

// AllMarkets returns an empty slice, never an error, when the market listing
// fails.
func (f *TickerFetcher) AllMarkets(ctx context.Context) []models.Ticker {
	listCtx, cancel := chunkContext(ctx, f.listTimeout)
	markets, err := f.upbit.Markets(listCtx, f.quote)
	cancel()
	if err != nil {
		f.log.Warn("market listing failed", zap.Error(err))
		return []models.Ticker{}
	}

	names := make(map[string]string, len(markets))
	codes := make([]string, 0, len(markets))
	for _, m := range markets {
		if _, dup := names[m.Market]; dup {
			continue
		}
		names[m.Market] = m.Name
		codes = append(codes, m.Market)
	}

	raw, report := RunBatches(ctx, codes, f.policy, f.clock, f.log, f.upbit.Tickers)
	f.log.Info("all markets fetched",
		zap.Int("markets", len(codes)),
		zap.Int("chunks", report.Chunks),
		zap.Int("dropped", report.Dropped),
		zap.Int("rows", len(raw)))

	return normalizeTickers(raw, names, f.quote)
}

func normalizeTickers(raw []upbitTicker, names map[string]string, quote string) []models.Ticker {
	out := make([]models.Ticker, 0, len(raw))
	for _, r := range raw {
		if r.Market == "" {
			continue
		}
		symbol := marketSymbol(r.Market, quote)
		name := names[r.Market]
		if name == "" {
			name = symbol
		}
		out = append(out, models.Ticker{
			Symbol:      symbol,
			Name:        name,
			Market:      r.Market,
			Price:       r.TradePrice,
			Change:      round(r.SignedChangeRate*100, 2),
			Volume:      r.AccTradePrice24h,
			TradeVolume: r.AccTradeVol24h,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Volume > out[j].Volume })
	return out
}

// marketSymbol strips the quote prefix: KRW-BTC -> BTC.
func marketSymbol(market string, quote string) string {
	if s, ok := strings.CutPrefix(market, quote+"-"); ok {
		return s
	}
	if _, s, ok := strings.Cut(market, "-"); ok {
		return s
	}
	return market
}
