package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shopplanner"

var (
	once sync.Once

	mutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_mutations_total",
			Help:      "Count of appointment mutations by operation and result.",
		},
		[]string{"op", "result"},
	)

	rollbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "optimistic_rollbacks_total",
			Help:      "Count of optimistic updates rolled back after a failed write.",
		},
		[]string{"op"},
	)

	scheduleChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_checks_total",
			Help:      "Count of availability oracle calls by result (available, unavailable, error).",
		},
		[]string{"result"},
	)

	gestures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "board_gestures_total",
			Help:      "Count of board gestures by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	slotSearches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_searches_total",
			Help:      "Count of nearest-slot searches by whether a slot was found.",
		},
		[]string{"found"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of API requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	httpErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Count of API requests answered with an error by endpoint.",
		},
		[]string{"endpoint"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directory_cache_lookups_total",
			Help:      "Count of directory cache lookups by key and result (hit, miss).",
		},
		[]string{"key", "result"},
	)

	writeLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "appointment_write_duration_seconds",
			Help:      "Latency of persistence writes issued by the mutation layer.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"op"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(mutations, rollbacks, scheduleChecks, gestures, slotSearches, httpRequests, httpErrors, cacheLookups, writeLatency)
	})
}

func IncMutation(op, result string) {
	mutations.WithLabelValues(op, result).Inc()
}

func IncRollback(op string) {
	rollbacks.WithLabelValues(op).Inc()
}

func IncScheduleCheck(result string) {
	scheduleChecks.WithLabelValues(result).Inc()
}

func IncGesture(kind, outcome string) {
	gestures.WithLabelValues(kind, outcome).Inc()
}

func IncSlotSearch(found bool) {
	label := "false"
	if found {
		label = "true"
	}
	slotSearches.WithLabelValues(label).Inc()
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncHTTPError(endpoint string) {
	httpErrors.WithLabelValues(endpoint).Inc()
}

func IncCache(key string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(key, result).Inc()
}

// Handler serves the default registry for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveWrite(op string, seconds float64) {
	writeLatency.WithLabelValues(op).Observe(seconds)
}
