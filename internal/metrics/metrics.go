// Package metrics exposes the Prometheus surface for every core component
// (gateway sessions, dispatcher throughput, seq blocks, history writes, rpc
// pool health) plus a periodic system-resource sampler, adapting the
// teacher's promauto-based Metrics/SystemMetrics split to the message-core
// domain (spec §2 Observability).
package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v3/cpu"
)

// Registry groups every Prometheus collector the core registers. New
// registers the whole set for every process, namespaced by service; a
// process only updates the collectors that concern it (a gateway never
// touches dispatcher metrics).
type Registry struct {
	// Gateway / session metrics
	SessionsActive   prometheus.Gauge
	SessionsTotal    prometheus.Counter
	SessionsEvicted  prometheus.Counter
	FramesInbound    prometheus.Counter
	FramesDropped    prometheus.Counter
	PushLatency      prometheus.Histogram

	// Dispatcher / queue metrics
	RecordsConsumed prometheus.Counter
	RecordsFailed   prometheus.Counter
	DispatchLatency prometheus.Histogram

	// Sequence engine metrics
	SeqBlocksAllocated *prometheus.CounterVec // labeled by scope (send/recv)
	SeqPersistErrors   prometheus.Counter

	// History store metrics
	HistoryWrites     *prometheus.CounterVec // labeled by outcome (ok/retry/fail)
	HistoryRowsPruned prometheus.Counter

	// RPC pool / registry metrics
	PoolEndpoints *prometheus.GaugeVec // labeled by service
	PoolEvictions prometheus.Counter

	// System resource gauges, refreshed by Sampler
	Goroutines prometheus.Gauge
	MemAlloc   prometheus.Gauge
	CPUPercent prometheus.Gauge
}

// New registers every collector against the default registerer. service
// namespaces the metric names (e.g. "gateway", "dispatcher") so multiple
// binaries can be scraped without name collisions when run as one process
// during local development.
func New(service string) *Registry {
	ns := service

	return &Registry{
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "sessions_active",
			Help: "Number of live WebSocket sessions.",
		}),
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "sessions_total",
			Help: "Total WebSocket sessions accepted.",
		}),
		SessionsEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "sessions_evicted_total",
			Help: "Sessions closed by a newer login at the same (user, platform).",
		}),
		FramesInbound: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "frames_inbound_total",
			Help: "Inbound WebSocket frames successfully parsed.",
		}),
		FramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "frames_dropped_total",
			Help: "Inbound frames dropped for failing to parse, or outbound frames dropped to a saturated session.",
		}),
		PushLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "push_latency_seconds",
			Help:    "Latency of a gateway RPC push call as observed by the pusher.",
			Buckets: prometheus.DefBuckets,
		}),
		RecordsConsumed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "records_consumed_total",
			Help: "Queue records handed to the dispatcher.",
		}),
		RecordsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "records_failed_total",
			Help: "Queue records the dispatcher failed to process (still committed).",
		}),
		DispatchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "dispatch_latency_seconds",
			Help:    "End-to-end HandleRecord latency.",
			Buckets: prometheus.DefBuckets,
		}),
		SeqBlocksAllocated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "seq_blocks_allocated_total",
			Help: "Sequence blocks allocated, by scope.",
		}, []string{"scope"}),
		SeqPersistErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "seq_persist_errors_total",
			Help: "Failures persisting a sequence block's max.",
		}),
		HistoryWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "history_writes_total",
			Help: "History store writes, by outcome.",
		}, []string{"outcome"}),
		HistoryRowsPruned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "history_rows_pruned_total",
			Help: "Rows removed by the history cleaner.",
		}),
		PoolEndpoints: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "rpc_pool_endpoints",
			Help: "Live endpoints in an RPC pool, by service name.",
		}, []string{"service"}),
		PoolEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "rpc_pool_evictions_total",
			Help: "Endpoints evicted from an RPC pool after a failed call.",
		}),
		Goroutines: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "goroutines",
			Help: "runtime.NumGoroutine() as of the last sample.",
		}),
		MemAlloc: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "mem_alloc_bytes",
			Help: "Heap bytes allocated as of the last sample.",
		}),
		CPUPercent: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "cpu_percent",
			Help: "Process-wide CPU percent as of the last sample, via gopsutil.",
		}),
	}
}

// Sampler periodically refreshes the Goroutines/MemAlloc/CPUPercent gauges,
// adapting the teacher's SystemMetrics.Update poll loop (system.go) to run
// against a Registry instead of a bespoke stats struct.
type Sampler struct {
	reg      *Registry
	interval time.Duration

	mu  sync.Mutex
	mem runtime.MemStats
}

func NewSampler(reg *Registry, interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Sampler{reg: reg, interval: interval}
}

// Run blocks, sampling until done is closed. Call it in its own goroutine.
func (s *Sampler) Run(done <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *Sampler) sample() {
	s.mu.Lock()
	runtime.ReadMemStats(&s.mem)
	s.reg.MemAlloc.Set(float64(s.mem.Alloc))
	s.mu.Unlock()

	s.reg.Goroutines.Set(float64(runtime.NumGoroutine()))

	percents, err := cpu.Percent(0, false)
	if err == nil && len(percents) > 0 {
		s.reg.CPUPercent.Set(percents[0])
	}
}
