package services

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"coinboard/backend-go/internal/metrics"
)

type BatchPolicy struct {
	Size         int
	Delay        time.Duration
	RetryBackoff time.Duration
	Retries      int
	ChunkTimeout time.Duration
}

type BatchReport struct {
	Chunks    int
	Succeeded int
	Retried   int
	Dropped   int
}

// Chunk splits items into contiguous slices of at most size elements.
func Chunk(items []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	out := make([][]string, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}

// RunBatches fetches chunks one after another, waiting policy.Delay between
// them. fetch errors wrapping ErrRateLimited are retried after
// policy.RetryBackoff; any other error skips the chunk. A chunk that still
// fails is dropped and the rest continue. Results keep chunk order.
func RunBatches[T any](ctx context.Context, items []string, policy BatchPolicy, clock Clock, log *zap.Logger, fetch func(ctx context.Context, chunk []string) ([]T, error)) ([]T, BatchReport) {
	chunks := Chunk(items, policy.Size)
	report := BatchReport{Chunks: len(chunks)}
	var out []T

	for i, chunk := range chunks {
		rows, attempts, err := fetchChunk(ctx, chunk, policy, clock, log, i, fetch)
		if attempts > 1 {
			report.Retried++
		}
		switch {
		case err == nil:
			report.Succeeded++
			out = append(out, rows...)
			metrics.TickerChunk("ok")
			log.Info("ticker chunk fetched",
				zap.Int("chunk", i),
				zap.Int("size", len(chunk)),
				zap.Int("rows", len(rows)))
		case errors.Is(err, ErrRateLimited):
			report.Dropped++
			metrics.TickerChunk("rate_limited")
			log.Warn("ticker chunk dropped after retry", zap.Int("chunk", i), zap.Int("size", len(chunk)), zap.Error(err))
		default:
			report.Dropped++
			metrics.TickerChunk("failed")
			log.Warn("ticker chunk skipped", zap.Int("chunk", i), zap.Int("size", len(chunk)), zap.Error(err))
		}

		if i == len(chunks)-1 {
			break
		}
		if err := sleep(ctx, clock, policy.Delay); err != nil {
			log.Warn("batch cancelled", zap.Int("processed", i+1), zap.Int("chunks", len(chunks)), zap.Error(err))
			break
		}
	}
	return out, report
}

func fetchChunk[T any](ctx context.Context, chunk []string, policy BatchPolicy, clock Clock, log *zap.Logger, idx int, fetch func(ctx context.Context, chunk []string) ([]T, error)) ([]T, int, error) {
	var rows []T
	attempts := 0
	op := func() error {
		attempts++
		callCtx, cancel := chunkContext(ctx, policy.ChunkTimeout)
		defer cancel()
		r, err := fetch(callCtx, chunk)
		if err == nil {
			rows = r
			return nil
		}
		if errors.Is(err, ErrRateLimited) {
			return err
		}
		return backoff.Permanent(err)
	}

	retries := policy.Retries
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(policy.RetryBackoff), uint64(retries)), ctx)
	notify := func(err error, wait time.Duration) {
		log.Warn("ticker chunk rate limited, retrying",
			zap.Int("chunk", idx),
			zap.Duration("wait", wait),
			zap.Error(err))
	}
	err := backoff.RetryNotifyWithTimer(op, b, notify, &clockTimer{clock: clock})
	return rows, attempts, err
}

func chunkContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
