package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"coinboard/backend-go/internal/config"
	"coinboard/backend-go/internal/metrics"
)

var ErrRateLimited = errors.New("rate_limited")

type UpstreamError struct {
	Provider string
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: status %d", e.Provider, e.Status)
}

func (e *UpstreamError) Unwrap() error {
	if e.Status == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	return nil
}

// upstream is the shared GET-and-decode path for every provider. Transport
// errors and 5xx trip the breaker; 4xx (429 included) mean the provider is
// alive and do not.
type upstream struct {
	provider string
	hc       *http.Client
	cb       *gobreaker.CircuitBreaker
}

func newUpstream(provider string, cfg config.Config, log *zap.Logger) *upstream {
	limit := cfg.CircuitFailLimit
	if limit <= 0 {
		limit = 5
	}
	return &upstream{
		provider: provider,
		hc:       &http.Client{Timeout: cfg.RequestTimeout},
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        provider,
			MaxRequests: 1,
			Timeout:     cfg.CircuitCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(limit)
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				log.Warn("circuit breaker state changed",
					zap.String("provider", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}),
	}
}

// getJSON returns the upstream status alongside any error. Cancelled callers
// never count against the breaker.
func (u *upstream) getJSON(ctx context.Context, url string, out any) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%s: %w", u.provider, err)
	}
	start := time.Now()
	var status int
	var callErr error
	_, cbErr := u.cb.Execute(func() (interface{}, error) {
		status, callErr = u.do(ctx, url, out)
		if callErr != nil && status >= 400 && status < 500 {
			return nil, nil
		}
		if callErr != nil && errors.Is(ctx.Err(), context.Canceled) {
			return nil, nil
		}
		return nil, callErr
	})
	metrics.ObserveUpstream(u.provider, status, time.Since(start))
	if callErr != nil {
		return status, callErr
	}
	if cbErr != nil {
		return 0, fmt.Errorf("%s: %w", u.provider, cbErr)
	}
	return status, nil
}

func (u *upstream) do(ctx context.Context, url string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	res, err := u.hc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", u.provider, err)
	}
	defer res.Body.Close()
	status := res.StatusCode
	if status >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return status, &UpstreamError{Provider: u.provider, Status: status, Body: string(body)}
	}
	if out == nil {
		return status, nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return status, fmt.Errorf("%s: decode: %w", u.provider, err)
	}
	return status, nil
}
