// Package metrics exports Prometheus collectors for configuration
// transactions and the agent container slot.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/errdefs"
	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/supervisor"
)

const namespace = "relayer_ctr"

// Recorder implements the coordinator's and the supervisor's observer
// interfaces on top of a private registry.
type Recorder struct {
	registry *prometheus.Registry

	transactions *prometheus.CounterVec
	duration     prometheus.Histogram
	spinups      *prometheus.CounterVec
	slot         *prometheus.GaugeVec
}

// New registers the collectors on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_transactions_total",
			Help:      "Configuration transactions by final outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "config_transaction_duration_seconds",
			Help:      "Wall time of configuration transactions.",
			Buckets:   []float64{1, 5, 15, 25, 45, 60, 90, 120},
		}),
		spinups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spinups_total",
			Help:      "Agent container spinup attempts by result.",
		}, []string{"result"}),
		slot: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_slot_state",
			Help:      "1 for the current state of the agent container slot.",
		}, []string{"state"}),
	}
	r.registry.MustRegister(r.transactions, r.duration, r.spinups, r.slot)
	r.SlotChanged(supervisor.Absent)
	return r
}

// Transaction records the outcome of one configuration transaction.
func (r *Recorder) Transaction(outcome string, elapsed time.Duration) {
	r.transactions.WithLabelValues(outcome).Inc()
	r.duration.Observe(elapsed.Seconds())
}

// SlotChanged sets the slot gauge.
func (r *Recorder) SlotChanged(state supervisor.State) {
	for _, s := range []supervisor.State{supervisor.Absent, supervisor.Starting, supervisor.Active, supervisor.Failed} {
		v := 0.0
		if s == state {
			v = 1
		}
		r.slot.WithLabelValues(s.String()).Set(v)
	}
}

// SpinupFinished counts a spinup attempt.
func (r *Recorder) SpinupFinished(err error) {
	result := "success"
	if err != nil {
		result = errdefs.Kind(err)
	}
	r.spinups.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
