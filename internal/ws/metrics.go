package ws

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jobstream_ws_connections",
		Help: "Live websocket connections.",
	})

	sessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jobstream_ws_sessions",
		Help: "Sessions with at least one subscribed observer.",
	})

	broadcastFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobstream_broadcast_frames_total",
		Help: "Frames queued to observer connections, by frame type.",
	}, []string{"type"})

	evictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jobstream_ws_evictions_total",
		Help: "Connections evicted because they could not keep up.",
	})
)
