package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/lead-scraper/internal/progress"
)

// PrometheusSink exports lead pipeline progress via Prometheus. It owns the
// collectors for jobs started/completed/running, render latency and volume,
// contact page outcomes, and shed progress events.
type PrometheusSink struct {
	jobsStarted   prometheus.Counter
	jobsCompleted *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobRuntime    *prometheus.HistogramVec

	renderDuration *prometheus.HistogramVec
	renderBytes    *prometheus.CounterVec
	contactPages   *prometheus.CounterVec
	eventsDropped  prometheus.Counter

	tracker *jobTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leads_jobs_started_total",
			Help: "Total lead jobs that have started.",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leads_jobs_completed_total",
			Help: "Total lead jobs completed partitioned by result.",
		}, []string{"result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "leads_jobs_running",
			Help: "Current number of running lead jobs.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leads_job_runtime_seconds",
			Help:    "Wall time per completed lead job.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"result"}),
		renderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leads_render_duration_seconds",
			Help:    "Page render duration partitioned by site.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
		}, []string{"site"}),
		renderBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leads_render_bytes_total",
			Help: "Rendered document bytes per site.",
		}, []string{"site"}),
		contactPages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leads_contact_pages_total",
			Help: "Contact page renders partitioned by result.",
		}, []string{"result"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leads_progress_events_dropped_total",
			Help: "Intermediate progress events shed under backpressure, reported per finished batch.",
		}),
		tracker: newJobTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsCompleted,
		s.jobsRunning,
		s.jobRuntime,
		s.renderDuration,
		s.renderBytes,
		s.contactPages,
		s.eventsDropped,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageJobStart, progress.StageJobDone, progress.StageJobError:
		s.handleJobEvent(evt)
	case progress.StageRenderDone, progress.StageContactDone:
		s.handleRenderEvent(evt)
	case progress.StageContactError:
		s.contactPages.WithLabelValues("error").Inc()
	case progress.StageBatchDone:
		if evt.Dropped > 0 {
			s.eventsDropped.Add(float64(evt.Dropped))
		}
	}
}

func (s *PrometheusSink) handleJobEvent(evt progress.Event) {
	key := jobKey{batch: evt.BatchID, index: evt.Index}
	switch evt.Stage {
	case progress.StageJobStart:
		s.jobsStarted.Inc()
		if s.tracker.start(key) {
			s.jobsRunning.Inc()
		}
	case progress.StageJobDone:
		s.jobsCompleted.WithLabelValues("success").Inc()
		s.observeRuntime(evt, "success")
	case progress.StageJobError:
		s.jobsCompleted.WithLabelValues("error").Inc()
		s.observeRuntime(evt, "error")
	}
	if evt.Stage != progress.StageJobStart && s.tracker.complete(key) {
		s.jobsRunning.Dec()
	}
}

func (s *PrometheusSink) observeRuntime(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.jobRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handleRenderEvent(evt progress.Event) {
	if evt.Stage == progress.StageContactDone {
		s.contactPages.WithLabelValues("success").Inc()
	}
	site := evt.Site
	if site == "" {
		site = "unknown"
	}
	if evt.Bytes > 0 {
		s.renderBytes.WithLabelValues(site).Add(float64(evt.Bytes))
	}
	if evt.Dur > 0 {
		s.renderDuration.WithLabelValues(site).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type jobKey struct {
	batch [16]byte
	index int
}

type jobTracker struct {
	mu      sync.Mutex
	running map[jobKey]struct{}
}

func newJobTracker() *jobTracker {
	return &jobTracker{running: make(map[jobKey]struct{})}
}

func (t *jobTracker) start(key jobKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[key]; ok {
		return false
	}
	t.running[key] = struct{}{}
	return true
}

func (t *jobTracker) complete(key jobKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[key]; !ok {
		return false
	}
	delete(t.running, key)
	return true
}
