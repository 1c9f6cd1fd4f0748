package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"

	namespace = "hazard_tasks"
)

var (
	tasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Task creation requests, partitioned by analysis and result (created, existing, failed).",
		},
		[]string{"analysis", "result"},
	)

	statusTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Applied task status transitions.",
		},
		[]string{"from", "to"},
	)

	resolutionSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolution_seconds",
			Help:      "AOI, scene selection and baseline matching latency in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Processing jobs run by the dispatch runner, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	catalogRequestSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "catalog_request_seconds",
			Help:      "Outbound catalog and event source request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint", "outcome"},
	)

	circuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open).",
		},
		[]string{"name"},
	)

	circuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_requests_total",
			Help:      "Requests through a circuit breaker by result (success, failure, rejected).",
		},
		[]string{"name", "result"},
	)

	circuitBreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Circuit breaker state transitions.",
		},
		[]string{"name", "from", "to"},
	)

	streamSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_subscribers",
			Help:      "Open task status stream connections.",
		},
	)

	streamEventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_dropped_total",
			Help:      "Task events skipped for stream subscribers that fell behind.",
		},
	)
)

// Register attaches the collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		tasksTotal,
		statusTransitionsTotal,
		resolutionSeconds,
		dispatchTotal,
		catalogRequestSeconds,
		circuitBreakerState,
		circuitBreakerRequests,
		circuitBreakerTransitions,
		streamSubscribers,
		streamEventsDropped,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

func TaskRequested(analysis, result string) {
	tasksTotal.WithLabelValues(analysis, result).Inc()
}

func StatusTransition(from, to string) {
	statusTransitionsTotal.WithLabelValues(from, to).Inc()
}

func ObserveResolution(duration time.Duration, err error) {
	resolutionSeconds.WithLabelValues(outcome(err)).Observe(clamp(duration).Seconds())
}

func DispatchFinished(err error) {
	dispatchTotal.WithLabelValues(outcome(err)).Inc()
}

func ObserveCatalogRequest(endpoint string, duration time.Duration, err error) {
	catalogRequestSeconds.WithLabelValues(endpoint, outcome(err)).Observe(clamp(duration).Seconds())
}

func SetCircuitBreakerState(name string, state float64) {
	circuitBreakerState.WithLabelValues(name).Set(state)
}

func CircuitBreakerRequest(name, result string) {
	circuitBreakerRequests.WithLabelValues(name, result).Inc()
}

func CircuitBreakerTransition(name, from, to string) {
	circuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
}

func StreamSubscribed()   { streamSubscribers.Inc() }
func StreamUnsubscribed() { streamSubscribers.Dec() }
func StreamEventDropped() { streamEventsDropped.Inc() }

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}

func clamp(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
