package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Соединения и комнаты
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_connections_active",
			Help: "Open relay WebSocket connections",
		},
	)

	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_rooms_active",
			Help: "Rooms with at least one registered connection",
		},
	)

	// Входящие фреймы по типу события
	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_frames_received_total",
			Help: "Inbound relay frames",
		},
		[]string{"event"},
	)

	// Рассылки по типу события
	Broadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_broadcasts_total",
			Help: "Room broadcasts by event",
		},
		[]string{"event"},
	)

	Departures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_departures_total",
			Help: "Room departures by reason",
		},
		[]string{"reason"}, // leave, disconnect, rejoin
	)

	RejectedFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_rejected_frames_total",
			Help: "Frames answered with relay-error",
		},
		[]string{"code"},
	)

	SlowConsumers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_slow_consumers_total",
			Help: "Connections dropped because their send buffer was full",
		},
	)

	// Инфраструктура
	MembershipSinkLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_membership_sink_latency_seconds",
			Help:    "Latency of presence and audit writes",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"sink"}, // redis, postgres
	)
)
