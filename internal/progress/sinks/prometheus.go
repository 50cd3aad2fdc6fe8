package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bipulgarera-droid/seo-audit-slides/internal/progress"
)

// PrometheusSink exports audit progress metrics via Prometheus. It owns all
// collectors for audits started/completed/running and per-source fetch
// counters.
type PrometheusSink struct {
	auditsStarted   prometheus.Counter
	auditsCompleted *prometheus.CounterVec
	auditsRunning   prometheus.Gauge
	auditRuntime    *prometheus.HistogramVec

	sourceFetches  *prometheus.CounterVec
	sourceRetries  *prometheus.CounterVec
	sourceDuration *prometheus.HistogramVec

	tracker *taskTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		auditsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_tasks_started_total",
			Help: "Total audit tasks that have started.",
		}),
		auditsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_tasks_completed_total",
			Help: "Total audit tasks completed partitioned by final status.",
		}, []string{"status"}),
		auditsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audit_tasks_running",
			Help: "Current number of running audit tasks.",
		}),
		auditRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audit_task_runtime_seconds",
			Help:    "Wall time per completed audit task.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"status"}),
		sourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_source_fetches_total",
			Help: "Source fetch completions partitioned by source and result.",
		}, []string{"source", "result"}),
		sourceRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_source_retries_total",
			Help: "Source fetch retries partitioned by source.",
		}, []string{"source"}),
		sourceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audit_source_fetch_duration_seconds",
			Help:    "Source fetch duration partitioned by source and result.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"source", "result"}),
		tracker: newTaskTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.auditsStarted,
		s.auditsCompleted,
		s.auditsRunning,
		s.auditRuntime,
		s.sourceFetches,
		s.sourceRetries,
		s.sourceDuration,
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
	case progress.StageTaskStart, progress.StageTaskDone, progress.StageTaskError:
		s.handleTaskEvent(evt)
	case progress.StageSourceRetry:
		s.sourceRetries.WithLabelValues(string(evt.Source)).Inc()
	case progress.StageSourceDone:
		s.handleSourceEvent(evt)
	}
}

func (s *PrometheusSink) handleTaskEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageTaskStart:
		s.auditsStarted.Inc()
		if s.tracker.start(evt.TaskID) {
			s.auditsRunning.Inc()
		}
	case progress.StageTaskDone:
		status := string(evt.Status)
		s.auditsCompleted.WithLabelValues(status).Inc()
		s.observeRuntime(evt, status)
	case progress.StageTaskError:
		s.auditsCompleted.WithLabelValues("error").Inc()
		s.observeRuntime(evt, "error")
	}
	if evt.Stage != progress.StageTaskStart && s.tracker.complete(evt.TaskID) {
		s.auditsRunning.Dec()
	}
}

func (s *PrometheusSink) observeRuntime(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.auditRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handleSourceEvent(evt progress.Event) {
	result := "success"
	if !evt.Success {
		result = string(evt.ErrorKind)
		if result == "" {
			result = "failure"
		}
	}
	s.sourceFetches.WithLabelValues(string(evt.Source), result).Inc()
	if evt.Dur > 0 {
		s.sourceDuration.WithLabelValues(string(evt.Source), result).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type taskTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newTaskTracker() *taskTracker {
	return &taskTracker{running: make(map[[16]byte]struct{})}
}

func (t *taskTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *taskTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
