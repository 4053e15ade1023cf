package hive

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pluginPhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hive",
		Subsystem: "app",
		Name:      "plugin_phase_duration_seconds",
		Help:      "Duration of plugin lifecycle hooks.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"plugin", "phase"})

	pluginPhaseErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "app",
		Name:      "plugin_phase_errors_total",
		Help:      "Plugin lifecycle hooks that returned an error.",
	}, []string{"plugin", "phase"})

	loadedPlugins = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "hive",
		Subsystem: "app",
		Name:      "plugins_loaded",
		Help:      "Plugins instantiated by the running app.",
	})
)
