package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolConns, dbPoolAcquireWait, dbPoolEmptyAcquires, cacheLookups) }

var (
	dbPoolConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_connections",
			Help: "Postgres pool connections by state (total, idle, acquired).",
		},
		[]string{"state"},
	)

	dbPoolAcquireWait = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "db_pool_acquire_wait_seconds",
		Help: "Cumulative time spent waiting for a pool connection.",
	})

	dbPoolEmptyAcquires = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "db_pool_empty_acquires",
		Help: "Cumulative acquires that had to wait because the pool was empty.",
	})

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Cache lookups by cache name and result (hit, miss, error).",
		},
		[]string{"cache", "result"},
	)
)

// PoolStats is a snapshot of the connection pool.
type PoolStats struct {
	Total, Idle, Acquired int32
	AcquireWaitSeconds    float64
	EmptyAcquires         int64
}

func SetDBPoolStats(s PoolStats) {
	dbPoolConns.WithLabelValues("total").Set(float64(s.Total))
	dbPoolConns.WithLabelValues("idle").Set(float64(s.Idle))
	dbPoolConns.WithLabelValues("acquired").Set(float64(s.Acquired))
	dbPoolAcquireWait.Set(s.AcquireWaitSeconds)
	dbPoolEmptyAcquires.Set(float64(s.EmptyAcquires))
}

func IncCacheRequest(cache, result string) {
	cacheLookups.WithLabelValues(cache, norm(result)).Inc()
}
