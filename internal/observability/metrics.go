package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dutctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"agent", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dutctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"agent", "method", "path", "status"},
	)
	execCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dutctl",
			Subsystem: "exec",
			Name:      "commands_total",
			Help:      "Commands dispatched to the lab host, by terminal status.",
		},
		[]string{"backend", "status"},
	)
	execDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dutctl",
			Subsystem: "exec",
			Name:      "command_duration_seconds",
			Help:      "Wall-clock command duration across all attempts.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"backend", "status"},
	)
	execKills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dutctl",
			Subsystem: "exec",
			Name:      "command_kills_total",
			Help:      "Processes killed after exceeding their deadline.",
		},
		[]string{"backend"},
	)
	linkProbes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dutctl",
			Subsystem: "link",
			Name:      "probes_total",
			Help:      "Device reachability probes, by resulting state.",
		},
		[]string{"device", "state"},
	)
	linkReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dutctl",
			Subsystem: "link",
			Name:      "reconnects_total",
			Help:      "Reconnect outcomes, by connection mode.",
		},
		[]string{"device", "mode", "success"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			execCommands, execDuration, execKills,
			linkProbes, linkReconnects,
		)
	})
}

func RecordHTTPRequest(agent, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(agent, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(agent, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordCommand(backend, status string, duration time.Duration) {
	RegisterMetrics()
	execCommands.WithLabelValues(backend, status).Inc()
	execDuration.WithLabelValues(backend, status).Observe(duration.Seconds())
}

func RecordCommandKill(backend string) {
	RegisterMetrics()
	execKills.WithLabelValues(backend).Inc()
}

func RecordProbe(device, state string) {
	RegisterMetrics()
	linkProbes.WithLabelValues(device, state).Inc()
}

func RecordReconnect(device, mode string, success bool) {
	RegisterMetrics()
	linkReconnects.WithLabelValues(device, mode, strconv.FormatBool(success)).Inc()
}
