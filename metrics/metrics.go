// Package metrics records check cycle and notification counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Check results recorded per creator.
const (
	ResultOK      = "ok"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// Recorder receives events from the poll cycle and the notifier.
type Recorder interface {
	CreatorChecked(creator, result string)
	AlertsEmitted(creator string, n int)
	NotifyFailed(provider string)
	CycleCompleted(d time.Duration)
}

// Prometheus exports counters on its own registry.
type Prometheus struct {
	registry       *prometheus.Registry
	checksTotal    *prometheus.CounterVec
	alertsTotal    *prometheus.CounterVec
	notifyFailures *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
}

// NewPrometheus creates a recorder backed by a fresh registry.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Prometheus{
		registry: reg,
		checksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tier_alerter_checks_total",
			Help: "Creator page checks by result",
		}, []string{"creator", "result"}),
		alertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tier_alerter_alerts_total",
			Help: "Availability alerts emitted per creator",
		}, []string{"creator"}),
		notifyFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tier_alerter_notify_failures_total",
			Help: "Notification sends that failed, by provider",
		}, []string{"provider"}),
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tier_alerter_cycle_duration_seconds",
			Help:    "Duration of a full check cycle in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
}

func (p *Prometheus) CreatorChecked(creator, result string) {
	p.checksTotal.WithLabelValues(creator, result).Inc()
}

func (p *Prometheus) AlertsEmitted(creator string, n int) {
	if n > 0 {
		p.alertsTotal.WithLabelValues(creator).Add(float64(n))
	}
}

func (p *Prometheus) NotifyFailed(provider string) {
	p.notifyFailures.WithLabelValues(provider).Inc()
}

func (p *Prometheus) CycleCompleted(d time.Duration) {
	p.cycleDuration.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Nop discards everything. Used by the CLI loop and tests.
type Nop struct{}

func (Nop) CreatorChecked(_, _ string)     {}
func (Nop) AlertsEmitted(_ string, _ int)  {}
func (Nop) NotifyFailed(_ string)          {}
func (Nop) CycleCompleted(_ time.Duration) {}
