package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func codes(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("KRW-C%03d", i)
	}
	return out
}

var rateLimited = &UpstreamError{Provider: "upbit", Status: http.StatusTooManyRequests}

type recordingFetch struct {
	mu     sync.Mutex
	chunks [][]string
	fail   func(call int, chunk []string) error
}

func (r *recordingFetch) fetch(_ context.Context, chunk []string) ([]string, error) {
	r.mu.Lock()
	call := len(r.chunks)
	r.chunks = append(r.chunks, append([]string(nil), chunk...))
	r.mu.Unlock()
	if r.fail != nil {
		if err := r.fail(call, chunk); err != nil {
			return nil, err
		}
	}
	return chunk, nil
}

func testPolicy() BatchPolicy {
	return BatchPolicy{
		Size:         100,
		Delay:        500 * time.Millisecond,
		RetryBackoff: 2 * time.Second,
		Retries:      1,
		ChunkTimeout: time.Second,
	}
}

func TestChunkPartitionsContiguously(t *testing.T) {
	chunks := Chunk(codes(250), 100)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 100)
	assert.Len(t, chunks[1], 100)
	assert.Len(t, chunks[2], 50)

	var joined []string
	for _, c := range chunks {
		joined = append(joined, c...)
	}
	assert.Equal(t, codes(250), joined)

	assert.Empty(t, Chunk(nil, 100))
	assert.Len(t, Chunk(codes(100), 100), 1)
	assert.Len(t, Chunk(codes(101), 100), 2)
}

func TestRunBatchesSequentialWithDelay(t *testing.T) {
	rec := &recordingFetch{}
	clock := newFakeClock()

	rows, report := RunBatches(context.Background(), codes(250), testPolicy(), clock, zap.NewNop(), rec.fetch)

	require.Len(t, rec.chunks, 3)
	assert.Equal(t, []int{100, 100, 50}, []int{len(rec.chunks[0]), len(rec.chunks[1]), len(rec.chunks[2])})
	assert.Equal(t, codes(250), rows)
	assert.Equal(t, BatchReport{Chunks: 3, Succeeded: 3}, report)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, clock.Waits())
}

func TestRunBatchesRetriesRateLimitedChunkOnce(t *testing.T) {
	rec := &recordingFetch{fail: func(call int, _ []string) error {
		if call == 1 {
			return rateLimited
		}
		return nil
	}}
	clock := newFakeClock()

	rows, report := RunBatches(context.Background(), codes(250), testPolicy(), clock, zap.NewNop(), rec.fetch)

	assert.Len(t, rec.chunks, 4)
	assert.Equal(t, rec.chunks[1], rec.chunks[2])
	assert.Equal(t, codes(250), rows)
	assert.Equal(t, 1, report.Retried)
	assert.Equal(t, 0, report.Dropped)
	assert.Contains(t, clock.Waits(), 2*time.Second)
}

func TestRunBatchesDropsChunkAfterSecondRateLimit(t *testing.T) {
	all := codes(250)
	rec := &recordingFetch{fail: func(_ int, chunk []string) error {
		if chunk[0] == all[100] {
			return rateLimited
		}
		return nil
	}}
	clock := newFakeClock()

	rows, report := RunBatches(context.Background(), all, testPolicy(), clock, zap.NewNop(), rec.fetch)

	assert.Len(t, rec.chunks, 4)
	want := append(append([]string(nil), all[:100]...), all[200:]...)
	assert.Equal(t, want, rows)
	assert.Equal(t, BatchReport{Chunks: 3, Succeeded: 2, Retried: 1, Dropped: 1}, report)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 2 * time.Second, 500 * time.Millisecond}, clock.Waits())
}

func TestRunBatchesSkipsOtherFailuresWithoutRetry(t *testing.T) {
	rec := &recordingFetch{fail: func(call int, _ []string) error {
		if call == 0 {
			return &UpstreamError{Provider: "upbit", Status: http.StatusInternalServerError}
		}
		return nil
	}}

	rows, report := RunBatches(context.Background(), codes(250), testPolicy(), newFakeClock(), zap.NewNop(), rec.fetch)

	assert.Len(t, rec.chunks, 3)
	assert.Len(t, rows, 150)
	assert.Equal(t, 1, report.Dropped)
	assert.Equal(t, 0, report.Retried)
}

func TestRunBatchesAllFailYieldsEmpty(t *testing.T) {
	rec := &recordingFetch{fail: func(int, []string) error { return errors.New("boom") }}

	rows, report := RunBatches(context.Background(), codes(120), testPolicy(), newFakeClock(), zap.NewNop(), rec.fetch)

	assert.Empty(t, rows)
	assert.Equal(t, 2, report.Dropped)
}

func TestRunBatchesChunkTimeoutSkipsSlowChunk(t *testing.T) {
	all := codes(250)
	slow := func(ctx context.Context, chunk []string) ([]string, error) {
		if chunk[0] == all[100] {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return chunk, nil
	}
	policy := testPolicy()
	policy.ChunkTimeout = 20 * time.Millisecond

	rows, report := RunBatches(context.Background(), all, policy, newFakeClock(), zap.NewNop(), slow)

	assert.Len(t, rows, 150)
	assert.Equal(t, 1, report.Dropped)
	assert.Equal(t, 0, report.Retried)
}

func TestRunBatchesStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	fetch := func(_ context.Context, chunk []string) ([]string, error) {
		calls++
		cancel()
		return chunk, nil
	}

	rows, _ := RunBatches(ctx, codes(250), testPolicy(), SystemClock(), zap.NewNop(), fetch)

	assert.Equal(t, 1, calls)
	assert.Len(t, rows, 100)
}
