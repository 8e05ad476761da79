package offline

import (
	"github.com/drpcorg/offline/indexes"
	"github.com/prometheus/client_golang/prometheus"
)

var SyncDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "offline",
	Subsystem: "sync",
	Name:      "duration_seconds",
	Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
}, []string{"result"})

var SyncRows = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "offline",
	Subsystem: "sync",
	Name:      "rows",
}, []string{"table"})

var QueryPlans = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "offline",
	Subsystem: "query",
	Name:      "plans",
}, []string{"table", "plan"})

// Collectors lists every metric the database updates, for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		SyncDuration,
		SyncRows,
		QueryPlans,
		indexes.GroupMutations,
		indexes.RowWrites,
	}
}
