package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionStateGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "patterntrader_gateway_connection_state",
		Help: "Current gateway connection state (0=disconnected, 1=connecting, 2=connected, 3=error)",
	})

	reconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patterntrader_gateway_reconnects_total",
		Help: "Total reconnect attempts scheduled",
	})

	identityRotationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patterntrader_gateway_identity_rotations_total",
		Help: "Total client id rotations after identity conflicts",
	})

	heartbeatFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patterntrader_gateway_heartbeat_failures_total",
		Help: "Total failed keep-alive requests",
	})

	resubscribeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patterntrader_gateway_resubscribe_failures_total",
		Help: "Total failed per-symbol resubscriptions after reconnect",
	}, []string{"symbol"})
)
