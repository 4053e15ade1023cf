package finder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	heartbeatsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hive",
			Subsystem: "finder",
			Name:      "heartbeats_total",
			Help:      "Total number of self record refreshes",
		},
		[]string{"status"},
	)

	serviceEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hive",
			Subsystem: "finder",
			Name:      "service_events_total",
			Help:      "Total number of service notifications received",
		},
		[]string{"service", "act"},
	)

	cachedInstances = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "hive",
			Subsystem: "finder",
			Name:      "cached_instances",
			Help:      "Number of cached instances per subscribed service",
		},
		[]string{"service"},
	)

	configFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hive",
			Subsystem: "finder",
			Name:      "config_fetch_total",
			Help:      "Total number of config blob reads",
		},
		[]string{"status"},
	)
)
