package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 汇总运行期指标。所有方法对 nil 接收者安全，方便在测试中省略。
type Metrics struct {
	registry *prometheus.Registry

	Runs          *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	Degraded      *prometheus.CounterVec
	Notifications *prometheus.CounterVec
	Collected     *prometheus.CounterVec
	Breaker       *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "btcagent",
			Name:      "workflow_runs_total",
			Help:      "Workflow runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "btcagent",
			Name:      "workflow_run_seconds",
			Help:      "Wall time of one workflow run.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),
		Degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "btcagent",
			Name:      "producer_degraded_total",
			Help:      "Results replaced by the HOLD/0.5 default.",
		}, []string{"agent"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "btcagent",
			Name:      "notifications_total",
			Help:      "Routed signals by tier.",
		}, []string{"tier"}),
		Collected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "btcagent",
			Name:      "collector_items_total",
			Help:      "Items fetched per source.",
		}, []string{"kind", "source"}),
		Breaker: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "btcagent",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions.",
		}, []string{"name", "to"}),
	}
	m.registry.MustRegister(m.Runs, m.RunDuration, m.Degraded, m.Notifications, m.Collected, m.Breaker)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRun(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(took.Seconds())
}

func (m *Metrics) IncDegraded(agent string) {
	if m == nil {
		return
	}
	m.Degraded.WithLabelValues(agent).Inc()
}

func (m *Metrics) IncNotification(tier string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(tier).Inc()
}

func (m *Metrics) AddCollected(kind, source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Collected.WithLabelValues(kind, source).Add(float64(n))
}

func (m *Metrics) BreakerTransition(name, to string) {
	if m == nil {
		return
	}
	m.Breaker.WithLabelValues(name, to).Inc()
}
