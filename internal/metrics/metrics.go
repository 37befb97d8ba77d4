package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	upstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinboard_upstream_requests_total",
		Help: "Outbound requests to market data providers by status",
	}, []string{"provider", "status"})

	upstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coinboard_upstream_request_duration_seconds",
		Help:    "Latency of outbound provider requests",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"provider"})

	globalServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinboard_global_snapshot_served_total",
		Help: "Global snapshots served by degradation mode",
	}, []string{"mode", "from_cache"})

	tickerChunks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinboard_ticker_chunks_total",
		Help: "Ticker batch chunks by outcome",
	}, []string{"outcome"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coinboard_http_request_duration_seconds",
		Help:    "Inbound request latency",
		Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 30},
	}, []string{"path", "status"})
)

// ObserveUpstream records one outbound call. status 0 means the request
// never produced a response.
func ObserveUpstream(provider string, status int, d time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	upstreamRequests.WithLabelValues(provider, label).Inc()
	upstreamDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func GlobalServed(mode string, fromCache bool) {
	globalServed.WithLabelValues(mode, strconv.FormatBool(fromCache)).Inc()
}

func TickerChunk(outcome string) {
	tickerChunks.WithLabelValues(outcome).Inc()
}

func ObserveRequest(path string, status int, d time.Duration) {
	requestDuration.WithLabelValues(path, strconv.Itoa(status)).Observe(d.Seconds())
}
