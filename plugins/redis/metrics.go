package redis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	redisStartupTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "redis_client",
		Name:      "startup_total",
		Help:      "Total number of Redis connections opened.",
	})
	redisStartupFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "redis_client",
		Name:      "startup_failed_total",
		Help:      "Total number of Redis connections that never answered PING.",
	})
	redisReuseTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "redis_client",
		Name:      "reuse_total",
		Help:      "Total number of instances served by an existing connection.",
	}, []string{"kind"})
	redisPingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hive",
		Subsystem: "redis_client",
		Name:      "ping_latency_seconds",
		Help:      "Latency of the startup PING.",
		Buckets:   prometheus.DefBuckets,
	})
	redisCmdLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hive",
		Subsystem: "redis_client",
		Name:      "cmd_latency_seconds",
		Help:      "Latency of Redis commands by name.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"cmd"})
	redisCmdErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "redis_client",
		Name:      "cmd_errors_total",
		Help:      "Total number of Redis command errors by name.",
	}, []string{"cmd"})
)
