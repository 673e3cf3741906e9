package indexes

import "github.com/prometheus/client_golang/prometheus"

var SearchCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lsindex",
	Subsystem: "searcher",
	Name:      "searches",
}, []string{"table", "column", "result"})

var SearchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "lsindex",
	Subsystem: "searcher",
	Name:      "search_duration_ms",
	Buckets:   []float64{0.1, 0.25, 0.5, 1, 5, 10, 20, 50, 100, 200, 500},
}, []string{"table", "column"})

var PagesFetched = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lsindex",
	Subsystem: "searcher",
	Name:      "pages",
}, []string{"table", "column"})

var EntriesScanned = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lsindex",
	Subsystem: "searcher",
	Name:      "entries_scanned",
}, []string{"table", "column"})

var EntriesReclaimed = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lsindex",
	Subsystem: "searcher",
	Name:      "entries_reclaimed",
}, []string{"table", "column", "result"})

var IndexWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lsindex",
	Subsystem: "maintainer",
	Name:      "index_writes",
}, []string{"table", "column", "type"})

// Collectors lists the metrics of the package for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		SearchCount,
		SearchDuration,
		PagesFetched,
		EntriesScanned,
		EntriesReclaimed,
		IndexWrites,
	}
}
