package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tokend",
			Subsystem: "rpc",
			Name:      "commands_total",
			Help:      "Total commands processed, by action and outcome.",
		},
		[]string{"action", "result"},
	)
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tokend",
			Subsystem: "rpc",
			Name:      "command_duration_seconds",
			Help:      "Command execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"action"},
	)
	signalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tokend",
			Subsystem: "rpc",
			Name:      "signals_total",
			Help:      "Out-of-band signals emitted, by name.",
		},
		[]string{"signal"},
	)
	sessionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tokend",
			Subsystem: "rpc",
			Name:      "sessions_total",
			Help:      "Client sessions served.",
		},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tokend",
			Subsystem: "rpc",
			Name:      "sessions_active",
			Help:      "Client sessions currently open.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tokend",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"component", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tokend",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"component", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			commandsTotal,
			commandDuration,
			signalsTotal,
			sessionsTotal,
			sessionsActive,
			httpRequests,
			httpDuration,
		)
	})
}

func RecordCommand(action, result string, duration time.Duration) {
	RegisterMetrics()
	commandsTotal.WithLabelValues(action, result).Inc()
	commandDuration.WithLabelValues(action).Observe(duration.Seconds())
}

func RecordSignal(name string) {
	RegisterMetrics()
	signalsTotal.WithLabelValues(name).Inc()
}

func SessionStarted() {
	RegisterMetrics()
	sessionsTotal.Inc()
	sessionsActive.Inc()
}

func SessionEnded() {
	RegisterMetrics()
	sessionsActive.Dec()
}

func RecordHTTPRequest(component, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(component, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(component, method, path, statusLabel).Observe(duration.Seconds())
}
