// Package metrics provides an explicit collector object passed into each
// component at construction. Nothing registers against the process-wide
// default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the counters of the billing and task cores.
type Collector struct {
	registry *prometheus.Registry

	EntitlementChecks *prometheus.CounterVec
	TaskTransitions   *prometheus.CounterVec
	ReconcileCycles   prometheus.Counter
	ReconcileFailures prometheus.Counter
	TrialsExpired     prometheus.Counter
	SubsExpired       prometheus.Counter
	NotifySent        prometheus.Counter
	NotifyFailed      prometheus.Counter
	CycleDuration     prometheus.Histogram
}

// New creates a collector with its own registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		EntitlementChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stroybot_entitlement_checks_total",
			Help: "Entitlement gate verdicts by result.",
		}, []string{"result"}),
		TaskTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stroybot_task_transitions_total",
			Help: "Successful task status transitions by new status.",
		}, []string{"status"}),
		ReconcileCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stroybot_reconcile_cycles_total",
			Help: "Completed reconciliation cycles.",
		}),
		ReconcileFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stroybot_reconcile_failures_total",
			Help: "Reconciliation cycles that rolled back.",
		}),
		TrialsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stroybot_trials_expired_total",
			Help: "Trials deactivated by the enforcement pass.",
		}),
		SubsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stroybot_subscriptions_expired_total",
			Help: "Subscriptions expired by the enforcement pass.",
		}),
		NotifySent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stroybot_notifications_sent_total",
			Help: "Notifications delivered to recipients.",
		}),
		NotifyFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stroybot_notifications_failed_total",
			Help: "Notification deliveries that failed after retries.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stroybot_reconcile_cycle_seconds",
			Help:    "Wall time of one reconciliation cycle.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		c.EntitlementChecks, c.TaskTransitions,
		c.ReconcileCycles, c.ReconcileFailures,
		c.TrialsExpired, c.SubsExpired,
		c.NotifySent, c.NotifyFailed,
		c.CycleDuration,
	)
	return c
}

// Handler exposes the collector's registry over HTTP.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// The inc helpers below are nil-safe so components can run without metrics.

func (c *Collector) IncEntitlement(result string) {
	if c != nil {
		c.EntitlementChecks.WithLabelValues(result).Inc()
	}
}

func (c *Collector) IncTransition(status string) {
	if c != nil {
		c.TaskTransitions.WithLabelValues(status).Inc()
	}
}

func (c *Collector) IncCycle(ok bool, seconds float64) {
	if c == nil {
		return
	}
	c.ReconcileCycles.Inc()
	if !ok {
		c.ReconcileFailures.Inc()
	}
	c.CycleDuration.Observe(seconds)
}

func (c *Collector) IncTrialExpired() {
	if c != nil {
		c.TrialsExpired.Inc()
	}
}

func (c *Collector) IncSubExpired() {
	if c != nil {
		c.SubsExpired.Inc()
	}
}

func (c *Collector) IncNotify(ok bool) {
	if c == nil {
		return
	}
	if ok {
		c.NotifySent.Inc()
	} else {
		c.NotifyFailed.Inc()
	}
}
