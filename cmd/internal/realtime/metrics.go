package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	presenceOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulse_presence_online",
		Help: "Number of profiles with a live websocket connection.",
	})

	framesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_realtime_frames_delivered_total",
		Help: "Frames enqueued to live connections, by frame type.",
	}, []string{"type"})

	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_realtime_frames_dropped_total",
		Help: "Frames not delivered, by reason (offline, backpressure, closing).",
	}, []string{"reason"})

	connectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_ws_connections_total",
		Help: "Websocket connections accepted after handshake authentication.",
	})

	authFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_ws_auth_failures_total",
		Help: "Websocket handshakes rejected for invalid access tokens.",
	})
)
