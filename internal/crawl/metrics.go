package crawl

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"reddot-watch/hncrawler/internal/fetch"
	"reddot-watch/hncrawler/internal/models"
)

// Metrics owns the Prometheus collectors describing crawl activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	items         *prometheus.CounterVec
	linksAdded    prometheus.Counter
	activeWorkers prometheus.Gauge
	fetchAttempts prometheus.Counter
	fetchFailures prometheus.Counter
}

// NewMetrics registers the crawl collectors against reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hncrawler_runs_total",
			Help: "Completed crawl runs partitioned by terminal status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hncrawler_run_duration_seconds",
			Help:    "Wall time per crawl run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hncrawler_items_processed_total",
			Help: "Per-item pipelines partitioned by result.",
		}, []string{"result"}),
		linksAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hncrawler_links_added_total",
			Help: "Discussion links stored for the first time.",
		}),
		activeWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hncrawler_active_workers",
			Help: "Per-item pipelines currently running.",
		}),
		fetchAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hncrawler_fetch_attempts_total",
			Help: "HTTP fetch attempts, retries included.",
		}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hncrawler_fetch_failures_total",
			Help: "HTTP fetch attempts that failed.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		m.runs,
		m.runDuration,
		m.items,
		m.linksAdded,
		m.activeWorkers,
		m.fetchAttempts,
		m.fetchFailures,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register crawl collector: %w", err)
		}
	}
	return m, nil
}

// FetchHooks returns transport callbacks feeding the fetch counters.
func (m *Metrics) FetchHooks() fetch.Hooks {
	if m == nil {
		return fetch.Hooks{}
	}
	return fetch.Hooks{
		OnAttempt: func(int) { m.fetchAttempts.Inc() },
		OnFailure: func(int, error) { m.fetchFailures.Inc() },
	}
}

func (m *Metrics) observeRun(status models.RunStatus, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(status)).Inc()
	m.runDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) observeItem(err error, added int64) {
	if m == nil {
		return
	}
	if err != nil {
		m.items.WithLabelValues("error").Inc()
		return
	}
	m.items.WithLabelValues("ok").Inc()
	m.linksAdded.Add(float64(added))
}

func (m *Metrics) workerStarted() {
	if m != nil {
		m.activeWorkers.Inc()
	}
}

func (m *Metrics) workerFinished() {
	if m != nil {
		m.activeWorkers.Dec()
	}
}
