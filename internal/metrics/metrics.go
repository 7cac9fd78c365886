package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth tracks the number of events currently buffered per stream.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainindex_queue_depth",
			Help: "Number of events currently buffered in a stream queue",
		},
		[]string{"stream"},
	)

	// ProducerSleepMillis tracks the current adaptive backpressure sleep.
	ProducerSleepMillis = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainindex_producer_sleep_ms",
			Help: "Current adaptive sleep applied to the producer on enqueue, in milliseconds",
		},
	)

	// DrainDuration tracks how long a stream's processing pass took in a drain cycle.
	DrainDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainindex_drain_duration_seconds",
			Help:    "Duration of processing one stream's batch during a drain cycle",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stream"},
	)

	// DrainBatchSize tracks how many events were processed per stream per drain cycle.
	DrainBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainindex_drain_batch_size",
			Help:    "Number of events processed per stream in a single drain cycle",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024},
		},
		[]string{"stream"},
	)

	// ABICacheLookups counts ABI cache hits and misses.
	ABICacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainindex_abi_cache_lookups_total",
			Help: "Total ABI cache lookups by outcome",
		},
		[]string{"outcome"}, // "hit", "miss", "unresolved"
	)

	// ABICacheSize tracks the current number of entries in the ABI cache.
	ABICacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainindex_abi_cache_size",
			Help: "Current number of entries held in the ABI cache",
		},
	)

	// DocStoreRequestDuration tracks document store HTTP call latency by operation.
	DocStoreRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainindex_docstore_request_duration_seconds",
			Help:    "Duration of document store HTTP operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// DocStoreErrors counts document store operation failures by kind.
	DocStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainindex_docstore_errors_total",
			Help: "Total document store operation failures by error kind",
		},
		[]string{"operation", "kind"},
	)

	// BlacklistCheckRequests counts check_hash HTTP requests by resulting message.
	BlacklistCheckRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainindex_blacklist_check_requests_total",
			Help: "Total blacklist check_hash requests by resulting message",
		},
		[]string{"message"},
	)

	// System metrics
	Uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainindex_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainindex_errors_total",
			Help: "Total number of errors by component and severity",
		},
		[]string{"component", "severity"},
	)

	ComponentHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainindex_component_health",
			Help: "Component health status (1=healthy, 0=unhealthy)",
		},
		[]string{"component"},
	)

	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainindex_goroutines",
			Help: "Number of active goroutines",
		},
	)

	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainindex_memory_usage_bytes",
			Help: "Memory usage statistics",
		},
		[]string{"type"},
	)

	startTime = time.Now()
)

func QueueDepthSet(stream string, depth int) {
	QueueDepth.WithLabelValues(stream).Set(float64(depth))
}

func ProducerSleepSet(d time.Duration) {
	ProducerSleepMillis.Set(float64(d.Milliseconds()))
}

func DrainObserve(stream string, count int, elapsed time.Duration) {
	DrainDuration.WithLabelValues(stream).Observe(elapsed.Seconds())
	DrainBatchSize.WithLabelValues(stream).Observe(float64(count))
}

func ABICacheHit()        { ABICacheLookups.WithLabelValues("hit").Inc() }
func ABICacheMiss()       { ABICacheLookups.WithLabelValues("miss").Inc() }
func ABICacheUnresolved() { ABICacheLookups.WithLabelValues("unresolved").Inc() }

func DocStoreRequestObserve(operation string, elapsed time.Duration) {
	DocStoreRequestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func DocStoreErrorInc(operation, kind string) {
	DocStoreErrors.WithLabelValues(operation, kind).Inc()
}

func BlacklistCheckInc(message string) {
	BlacklistCheckRequests.WithLabelValues(message).Inc()
}

func ErrorsInc(component, severity string) {
	Errors.WithLabelValues(component, severity).Inc()
}

func ComponentHealthSet(component string, healthy bool) {
	boolAsFloat := float64(1)
	if !healthy {
		boolAsFloat = 0
	}
	ComponentHealth.WithLabelValues(component).Set(boolAsFloat)
}

// UpdateSystemMetrics updates runtime system metrics.
// This should be called periodically (e.g., every 15 seconds).
func UpdateSystemMetrics() {
	Uptime.Set(time.Since(startTime).Seconds())
	Goroutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	MemoryUsage.WithLabelValues("total_alloc").Set(float64(m.TotalAlloc))
	MemoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	MemoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
}
