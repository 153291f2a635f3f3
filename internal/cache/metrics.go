package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "manifest_alert_cache_lookups_total",
		Help: "Total number of tiered cache lookups.",
	}, []string{"tier", "status" /* hit | miss | stale | error */})
	cacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "manifest_alert_cache_entries",
		Help: "Number of entries currently held per cache tier.",
	}, []string{"tier"})
	cacheSweptEntries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "manifest_alert_cache_swept_entries_total",
		Help: "Total number of expired entries purged by the sweep.",
	})
)
