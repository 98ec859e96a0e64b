package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ruleFiringsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_rule_firings_total",
		Help: "Total rule firings by overall result",
	}, []string{"result"})
	actionDispatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_action_dispatches_total",
		Help: "Total per-target action dispatches by action and result",
	}, []string{"action", "result"})
	eventsIngestedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_events_ingested_total",
		Help: "Total events accepted for evaluation by event name",
	}, []string{"event"})
	engineTickSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "warden_engine_tick_seconds",
		Help:    "Duration of one schedule and threshold evaluation tick",
		Buckets: prometheus.DefBuckets,
	})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(ruleFiringsTotal, actionDispatchesTotal, eventsIngestedTotal, engineTickSeconds)
}

// IncRuleFiring counts one rule firing with its overall result.
func IncRuleFiring(result string) { ruleFiringsTotal.WithLabelValues(result).Inc() }

// IncActionDispatch counts one action attempt against one target.
func IncActionDispatch(action, result string) {
	actionDispatchesTotal.WithLabelValues(action, result).Inc()
}

// IncEventIngested counts one event accepted for evaluation.
func IncEventIngested(event string) { eventsIngestedTotal.WithLabelValues(event).Inc() }

// ObserveTick records the duration of one engine tick.
func ObserveTick(seconds float64) { engineTickSeconds.Observe(seconds) }
