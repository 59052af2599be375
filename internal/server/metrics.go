package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proofdeps_queries_total",
		Help: "Committed dependency queries by trigger",
	}, []string{"trigger"})

	suppressedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proofdeps_suppressed_selections_total",
		Help: "Cursor selections ignored as echoes of a pointer selection",
	})

	queryLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "proofdeps_query_latency_seconds",
		Help:    "Latency of one dependency query",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	})

	wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "proofdeps_ws_connections",
		Help: "Open WebSocket sessions",
	})

	rebuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proofdeps_rebuilds_total",
		Help: "Graph rebuilds by result",
	}, []string{"result"})
)
