package network

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "manifest_alert_network_operation_seconds",
		Help:    "Duration of shared-location file operations.",
		Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"op", "result"})
	operationTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "manifest_alert_network_timeouts_total",
		Help: "Total number of shared-location operations abandoned at their deadline.",
	}, []string{"op"})
)
