package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"coinboard/backend-go/internal/config"
	"coinboard/backend-go/internal/metrics"
	"coinboard/backend-go/internal/models"
)

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

const globalCacheKey = "global:v1"

type SnapshotMode string

const (
	ModeFresh    SnapshotMode = "fresh"
	ModeStale    SnapshotMode = "stale"
	ModeFallback SnapshotMode = "fallback"
)

// SnapshotResult is what /api/global serves: always a usable snapshot, plus
// how it was obtained.
type SnapshotResult struct {
	Snapshot    models.GlobalSnapshot
	Mode        SnapshotMode
	FromCache   bool
	RateLimited bool
	Reason      string
}

type SnapshotEntry struct {
	Snapshot  models.GlobalSnapshot `json:"snapshot"`
	FetchedAt time.Time             `json:"fetched_at"`
}

// SnapshotStore holds the single cached snapshot. Store replaces the whole
// entry.
type SnapshotStore interface {
	Load(ctx context.Context) (SnapshotEntry, bool)
	Store(ctx context.Context, entry SnapshotEntry) error
}

type cacheSnapshotStore struct {
	cache Cache
	key   string
}

func NewSnapshotStore(cache Cache) SnapshotStore {
	return &cacheSnapshotStore{cache: cache, key: globalCacheKey}
}

func (s *cacheSnapshotStore) Load(ctx context.Context) (SnapshotEntry, bool) {
	b, ok := s.cache.Get(ctx, s.key)
	if !ok {
		return SnapshotEntry{}, false
	}
	var entry SnapshotEntry
	if err := UnmarshalCache(b, &entry); err != nil {
		return SnapshotEntry{}, false
	}
	return entry, true
}

func (s *cacheSnapshotStore) Store(ctx context.Context, entry SnapshotEntry) error {
	b, err := MarshalCache(entry)
	if err != nil {
		return err
	}
	// no ttl: an expired entry is still the stale fallback
	return s.cache.Set(ctx, s.key, b, 0)
}

// FallbackSnapshot is served when upstream fails before anything was cached.
func FallbackSnapshot(now time.Time, reason string) models.GlobalSnapshot {
	return models.GlobalSnapshot{
		BtcDominance:      45.8,
		EthDominance:      17.2,
		TotalMarketCap:    3100,
		TotalMarketCapUsd: 2.21,
		Timestamp:         now.UTC().Format(isoMillis),
		Success:           false,
		Error:             reason,
	}
}

type GlobalSnapshotService struct {
	client  *CoinGeckoClient
	store   SnapshotStore
	clock   Clock
	log     *zap.Logger
	ttl     time.Duration
	timeout time.Duration
	local   string
}

func NewGlobalSnapshotService(cfg config.Config, client *CoinGeckoClient, store SnapshotStore, clock Clock, log *zap.Logger) *GlobalSnapshotService {
	return &GlobalSnapshotService{
		client:  client,
		store:   store,
		clock:   clock,
		log:     log,
		ttl:     cfg.GlobalCacheTTL,
		timeout: cfg.GlobalTimeout,
		local:   strings.ToLower(cfg.QuoteCurrency),
	}
}

// Get never fails. Concurrent misses may each hit upstream; the last
// successful write wins.
func (s *GlobalSnapshotService) Get(ctx context.Context) SnapshotResult {
	res := s.get(ctx)
	metrics.GlobalServed(string(res.Mode), res.FromCache)
	return res
}

func (s *GlobalSnapshotService) get(ctx context.Context) SnapshotResult {
	entry, cached := s.store.Load(ctx)
	if cached && s.clock.Now().Sub(entry.FetchedAt) < s.ttl {
		return SnapshotResult{Snapshot: entry.Snapshot, Mode: ModeFresh, FromCache: true}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	market, err := s.client.Global(fetchCtx)
	now := s.clock.Now()

	if err == nil {
		snap := s.toSnapshot(market, now)
		if err := s.store.Store(ctx, SnapshotEntry{Snapshot: snap, FetchedAt: now}); err != nil {
			s.log.Warn("global snapshot not cached", zap.Error(err))
		}
		return SnapshotResult{Snapshot: snap, Mode: ModeFresh}
	}

	if errors.Is(err, ErrRateLimited) {
		s.log.Warn("coingecko rate limited", zap.Bool("cached", cached))
		if cached {
			return SnapshotResult{Snapshot: entry.Snapshot, Mode: ModeStale, FromCache: true, RateLimited: true, Reason: ErrRateLimited.Error()}
		}
		return SnapshotResult{Snapshot: FallbackSnapshot(now, ErrRateLimited.Error()), Mode: ModeFallback, RateLimited: true, Reason: ErrRateLimited.Error()}
	}

	s.log.Warn("global snapshot fetch failed", zap.Bool("cached", cached), zap.Error(err))
	if cached {
		snap := entry.Snapshot
		snap.Error = err.Error()
		return SnapshotResult{Snapshot: snap, Mode: ModeStale, FromCache: true, Reason: err.Error()}
	}
	return SnapshotResult{Snapshot: FallbackSnapshot(now, err.Error()), Mode: ModeFallback, Reason: err.Error()}
}

func (s *GlobalSnapshotService) toSnapshot(m globalMarket, now time.Time) models.GlobalSnapshot {
	return models.GlobalSnapshot{
		BtcDominance:      round(m.MarketCapPercentage["btc"], 2),
		EthDominance:      round(m.MarketCapPercentage["eth"], 2),
		TotalMarketCap:    trillions(m.TotalMarketCap[s.local], 0),
		TotalMarketCapUsd: trillions(m.TotalMarketCap["usd"], 2),
		Timestamp:         now.UTC().Format(isoMillis),
		Success:           true,
	}
}
