package handlers

import (
	"context"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"coinboard/backend-go/internal/models"
)

const healthCacheKey = "health:v1"

// Health probes each provider at most once per CACHE_TTL_MARKET; the probes
// share the breakers and rate budget of the data routes.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	var cached models.HealthResponse
	if a.cached(r.Context(), healthCacheKey, &cached) {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	probes := map[string]func(context.Context) error{
		"coingecko": a.coingecko.Ping,
		"upbit":     a.upbit.Ping,
	}

	var mu sync.Mutex
	depsStatus := map[string]models.DepStatus{}
	g, gctx := errgroup.WithContext(ctx)
	for name, probe := range probes {
		name, probe := name, probe
		g.Go(func() error {
			start := time.Now()
			err := probe(gctx)
			st := models.DepStatus{Ok: err == nil, LatencyMs: time.Since(start).Milliseconds()}
			if err != nil {
				st.Error = err.Error()
			}
			mu.Lock()
			depsStatus[name] = st
			mu.Unlock()
			// probe failures are reported, not propagated
			return nil
		})
	}
	_ = g.Wait()

	missing := []string{}
	for name, st := range depsStatus {
		if !st.Ok {
			missing = append(missing, name+"_unreachable")
		}
	}
	sort.Strings(missing)

	resp := models.HealthResponse{
		Ok:           len(missing) == 0,
		TsISO:        nowISO(),
		Service:      "coinboard-backend",
		Version:      os.Getenv("SERVICE_VERSION"),
		CacheBackend: a.cache.Name(),
		DepsStatus:   depsStatus,
		DataMissing:  missing,
	}
	a.store(r.Context(), healthCacheKey, resp)
	writeJSON(w, http.StatusOK, resp)
}
