package store

import (
	"github.com/prometheus/client_golang/prometheus"
)

type PebbleCollector struct {
	store *Pebble

	compactionCount         *prometheus.Desc
	compactionEstimatedDebt *prometheus.Desc
	compactionInProgress    *prometheus.Desc

	memtableSize  *prometheus.Desc
	memtableCount *prometheus.Desc

	walFiles        *prometheus.Desc
	walSize         *prometheus.Desc
	walBytesIn      *prometheus.Desc
	walBytesWritten *prometheus.Desc

	blockCacheHits   *prometheus.Desc
	blockCacheMisses *prometheus.Desc
}

func NewPebbleCollector(p *Pebble) *PebbleCollector {
	return &PebbleCollector{
		store: p,

		compactionCount: prometheus.NewDesc(
			"offline_pebble_compaction_count_total",
			"Total number of compactions performed",
			nil, nil,
		),
		compactionEstimatedDebt: prometheus.NewDesc(
			"offline_pebble_compaction_estimated_debt_bytes",
			"Estimated number of bytes that need to be compacted to reach a stable state",
			nil, nil,
		),
		compactionInProgress: prometheus.NewDesc(
			"offline_pebble_compaction_in_progress_bytes",
			"Number of bytes being compacted currently",
			nil, nil,
		),

		memtableSize: prometheus.NewDesc(
			"offline_pebble_memtable_size_bytes",
			"Current size of memtables in bytes",
			nil, nil,
		),
		memtableCount: prometheus.NewDesc(
			"offline_pebble_memtable_count",
			"Current count of memtables",
			nil, nil,
		),

		walFiles: prometheus.NewDesc(
			"offline_pebble_wal_files",
			"Number of live WAL files",
			nil, nil,
		),
		walSize: prometheus.NewDesc(
			"offline_pebble_wal_size_bytes",
			"Size of live WAL data in bytes",
			nil, nil,
		),
		walBytesIn: prometheus.NewDesc(
			"offline_pebble_wal_bytes_in_total",
			"Logical bytes written to the WAL",
			nil, nil,
		),
		walBytesWritten: prometheus.NewDesc(
			"offline_pebble_wal_bytes_written_total",
			"Physical bytes written to the WAL",
			nil, nil,
		),

		blockCacheHits: prometheus.NewDesc(
			"offline_pebble_block_cache_hits_total",
			"Block cache hits",
			nil, nil,
		),
		blockCacheMisses: prometheus.NewDesc(
			"offline_pebble_block_cache_misses_total",
			"Block cache misses",
			nil, nil,
		),
	}
}

func (pc *PebbleCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- pc.compactionCount
	ch <- pc.compactionEstimatedDebt
	ch <- pc.compactionInProgress

	ch <- pc.memtableSize
	ch <- pc.memtableCount

	ch <- pc.walFiles
	ch <- pc.walSize
	ch <- pc.walBytesIn
	ch <- pc.walBytesWritten

	ch <- pc.blockCacheHits
	ch <- pc.blockCacheMisses
}

func (pc *PebbleCollector) Collect(ch chan<- prometheus.Metric) {
	metrics := pc.store.metrics()
	if metrics == nil {
		return
	}

	ch <- prometheus.MustNewConstMetric(
		pc.compactionCount,
		prometheus.CounterValue,
		float64(metrics.Compact.Count),
	)
	ch <- prometheus.MustNewConstMetric(
		pc.compactionEstimatedDebt,
		prometheus.GaugeValue,
		float64(metrics.Compact.EstimatedDebt),
	)
	ch <- prometheus.MustNewConstMetric(
		pc.compactionInProgress,
		prometheus.GaugeValue,
		float64(metrics.Compact.InProgressBytes),
	)

	ch <- prometheus.MustNewConstMetric(
		pc.memtableSize,
		prometheus.GaugeValue,
		float64(metrics.MemTable.Size),
	)
	ch <- prometheus.MustNewConstMetric(
		pc.memtableCount,
		prometheus.GaugeValue,
		float64(metrics.MemTable.Count),
	)

	ch <- prometheus.MustNewConstMetric(
		pc.walFiles,
		prometheus.GaugeValue,
		float64(metrics.WAL.Files),
	)
	ch <- prometheus.MustNewConstMetric(
		pc.walSize,
		prometheus.GaugeValue,
		float64(metrics.WAL.Size),
	)
	ch <- prometheus.MustNewConstMetric(
		pc.walBytesIn,
		prometheus.CounterValue,
		float64(metrics.WAL.BytesIn),
	)
	ch <- prometheus.MustNewConstMetric(
		pc.walBytesWritten,
		prometheus.CounterValue,
		float64(metrics.WAL.BytesWritten),
	)

	ch <- prometheus.MustNewConstMetric(
		pc.blockCacheHits,
		prometheus.CounterValue,
		float64(metrics.BlockCache.Hits),
	)
	ch <- prometheus.MustNewConstMetric(
		pc.blockCacheMisses,
		prometheus.CounterValue,
		float64(metrics.BlockCache.Misses),
	)
}
