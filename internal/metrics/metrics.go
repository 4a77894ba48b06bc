// Package metrics exposes Prometheus collectors for the lead scraper service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	leadsRecordsTotal          *prometheus.CounterVec
	leadsBatchSize             prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	leadsActiveWorkers         prometheus.Gauge
	leadsRateLimitDelaySeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		leadsRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_records_total",
				Help: "Total number of lead records produced, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		leadsBatchSize = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "leads_batch_size",
				Help:    "Number of URLs submitted per batch.",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		)

		leadsActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "leads_active_workers",
				Help: "Number of workers currently processing a URL.",
			},
		)

		leadsRateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leads_rate_limit_delay_seconds",
				Help:    "Histogram of per-domain render budget wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRecord counts one finished lead record.
func ObserveRecord(site string, status string) {
	Init()
	leadsRecordsTotal.WithLabelValues(SanitizeSite(site), status).Inc()
}

// ObserveBatch records the size of a submitted batch.
func ObserveBatch(size int) {
	Init()
	leadsBatchSize.Observe(float64(size))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	leadsActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	leadsActiveWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	leadsRateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
