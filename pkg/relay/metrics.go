package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	roomsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collab_relay_rooms",
		Help: "Number of active rooms.",
	})
	clientsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collab_relay_clients",
		Help: "Number of connected clients.",
	})
	framesCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_relay_frames_total",
		Help: "Total relayed frames.",
	})
)
