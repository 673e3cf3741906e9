package lsindex

import (
	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
)

type pebbleMetric struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(m *pebble.Metrics) float64
}

// PebbleCollector reports compaction, memtable, WAL and read amplification
// figures of the store's database.
type PebbleCollector struct {
	db      *pebble.DB
	metrics []pebbleMetric
}

func newPebbleMetric(name, help string, kind prometheus.ValueType, value func(m *pebble.Metrics) float64) pebbleMetric {
	return pebbleMetric{
		desc:  prometheus.NewDesc("lsindex_pebble_"+name, help, nil, nil),
		kind:  kind,
		value: value,
	}
}

func NewPebbleCollector(db *pebble.DB) *PebbleCollector {
	counter, gauge := prometheus.CounterValue, prometheus.GaugeValue
	return &PebbleCollector{
		db: db,
		metrics: []pebbleMetric{
			// compactions
			newPebbleMetric("compaction_count_total", "Total number of compactions performed", counter,
				func(m *pebble.Metrics) float64 { return float64(m.Compact.Count) }),
			newPebbleMetric("compaction_default_count_total", "Total number of default compactions performed", counter,
				func(m *pebble.Metrics) float64 { return float64(m.Compact.DefaultCount) }),
			newPebbleMetric("compaction_elision_only_total", "Total number of elision-only compactions performed", counter,
				func(m *pebble.Metrics) float64 { return float64(m.Compact.ElisionOnlyCount) }),
			newPebbleMetric("compaction_move_total", "Total number of move compactions performed", counter,
				func(m *pebble.Metrics) float64 { return float64(m.Compact.MoveCount) }),
			newPebbleMetric("compaction_read_total", "Total number of read compactions performed", counter,
				func(m *pebble.Metrics) float64 { return float64(m.Compact.ReadCount) }),
			newPebbleMetric("compaction_rewrite_total", "Total number of rewrite compactions performed", counter,
				func(m *pebble.Metrics) float64 { return float64(m.Compact.RewriteCount) }),
			newPebbleMetric("compaction_multilevel_total", "Total number of multi-level compactions performed", counter,
				func(m *pebble.Metrics) float64 { return float64(m.Compact.MultiLevelCount) }),
			newPebbleMetric("compaction_estimated_debt_bytes", "Estimated bytes to compact to reach a stable state", gauge,
				func(m *pebble.Metrics) float64 { return float64(m.Compact.EstimatedDebt) }),
			newPebbleMetric("compaction_in_progress_bytes", "Bytes being compacted currently", gauge,
				func(m *pebble.Metrics) float64 { return float64(m.Compact.InProgressBytes) }),
			newPebbleMetric("compaction_marked_files", "Files marked for compaction", gauge,
				func(m *pebble.Metrics) float64 { return float64(m.Compact.MarkedFiles) }),
			// memtables
			newPebbleMetric("memtable_size_bytes", "Current size of the memtable", gauge,
				func(m *pebble.Metrics) float64 { return float64(m.MemTable.Size) }),
			newPebbleMetric("memtable_count", "Current count of memtables", gauge,
				func(m *pebble.Metrics) float64 { return float64(m.MemTable.Count) }),
			newPebbleMetric("memtable_zombie_size_bytes", "Size of zombie memtables", gauge,
				func(m *pebble.Metrics) float64 { return float64(m.MemTable.ZombieSize) }),
			newPebbleMetric("memtable_zombie_count", "Count of zombie memtables", gauge,
				func(m *pebble.Metrics) float64 { return float64(m.MemTable.ZombieCount) }),
			// write-ahead log
			newPebbleMetric("wal_files", "Number of live WAL files", gauge,
				func(m *pebble.Metrics) float64 { return float64(m.WAL.Files) }),
			newPebbleMetric("wal_obsolete_files", "Number of obsolete WAL files", gauge,
				func(m *pebble.Metrics) float64 { return float64(m.WAL.ObsoleteFiles) }),
			newPebbleMetric("wal_size_bytes", "Size of live WAL data", gauge,
				func(m *pebble.Metrics) float64 { return float64(m.WAL.Size) }),
			newPebbleMetric("wal_bytes_in_total", "Logical bytes written to the WAL", counter,
				func(m *pebble.Metrics) float64 { return float64(m.WAL.BytesIn) }),
			newPebbleMetric("wal_bytes_written_total", "Physical bytes written to the WAL", counter,
				func(m *pebble.Metrics) float64 { return float64(m.WAL.BytesWritten) }),
			// reads
			newPebbleMetric("read_amplification", "Number of sublevels a point read may visit", gauge,
				func(m *pebble.Metrics) float64 { return float64(m.ReadAmp()) }),
		},
	}
}

func (pc *PebbleCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range pc.metrics {
		ch <- m.desc
	}
}

func (pc *PebbleCollector) Collect(ch chan<- prometheus.Metric) {
	metrics := pc.db.Metrics()
	for _, m := range pc.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.kind, m.value(metrics))
	}
}
