// Package metrics exposes the chainstate engine's Prometheus collectors
// (the counters and histograms named in spec.md §3/§8). The teacher has no
// metrics package of its own; this one follows the corpus convention of
// package-level collector vars plus an explicit Register step, the same
// shape internal/log uses for its package-level Logger but wired through
// github.com/prometheus/client_golang instead of zerolog.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fluxd"

var (
	// BlocksConnected counts blocks successfully applied to the chain tip.
	BlocksConnected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chainstate",
		Name:      "blocks_connected_total",
		Help:      "Total blocks successfully connected to the chain tip.",
	})

	// BlocksDisconnected counts blocks reversed off the chain tip, whether
	// by an explicit Disconnect or as part of a Reorg.
	BlocksDisconnected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chainstate",
		Name:      "blocks_disconnected_total",
		Help:      "Total blocks disconnected from the chain tip.",
	})

	// Reorgs counts completed calls to Chain.Reorg, regardless of outcome.
	Reorgs = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chainstate",
		Name:      "reorgs_total",
		Help:      "Total chain reorganizations attempted.",
	})

	// ReorgDepthLast records the fork depth of the most recently attempted
	// reorg, in blocks.
	ReorgDepthLast = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "chainstate",
		Name:      "reorg_depth_last",
		Help:      "Depth in blocks of the most recently attempted reorg.",
	})

	// BatchCommitSeconds observes the wall time of each store.WriteBatch
	// commit issued by the chainstate engine.
	BatchCommitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "chainstate",
		Name:      "batch_commit_seconds",
		Help:      "Time to commit one atomic connect/disconnect write batch.",
		Buckets:   prometheus.DefBuckets,
	})

	// ValidationRejections counts blocks rejected by validation.ValidateBlock
	// or by chainstate's own linkage/ancestor checks, broken down by reason.
	ValidationRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chainstate",
		Name:      "validation_rejections_total",
		Help:      "Total blocks rejected, by reason.",
	}, []string{"reason"})

	// StoreWriteBufferBytes is the current size of the KV store's
	// in-memory write buffer (spec.md §4.1 backpressure signal). It is
	// registered but no package in this module sets it.
	StoreWriteBufferBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "write_buffer_bytes",
		Help:      "Current size in bytes of the store's in-memory write buffer.",
	})

	// StoreJournalBytes is the current size of the store's write-ahead
	// journal on disk. It is registered but no package in this module
	// sets it.
	StoreJournalBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "journal_bytes",
		Help:      "Current size in bytes of the store's write-ahead journal.",
	})

	// MemtableRotations counts write-buffer flush/rotation events. It is
	// registered but no package in this module increments it.
	MemtableRotations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "memtable_rotations_total",
		Help:      "Total write-buffer rotations (flushes to a new segment).",
	})

	collectors = []prometheus.Collector{
		BlocksConnected,
		BlocksDisconnected,
		Reorgs,
		ReorgDepthLast,
		BatchCommitSeconds,
		ValidationRejections,
		StoreWriteBufferBytes,
		StoreJournalBytes,
		MemtableRotations,
	}
)

// Register adds every chainstate/store collector to reg. Call once at
// startup; registering twice on the same registerer returns the
// registerer's error for the first collector already present.
func Register(reg prometheus.Registerer) error {
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler returns the HTTP handler that serves the registered collectors
// in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
