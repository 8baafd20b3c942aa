package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OnlineUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ephemsg_online_users",
			Help: "Users with at least one active connection.",
		},
	)

	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ephemsg_ws_events_total",
			Help: "Inbound real-time events by name.",
		},
		[]string{"event"},
	)

	MessagesRoutedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ephemsg_messages_routed_total",
			Help: "Messages persisted and fanned out.",
		},
	)

	RouteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ephemsg_route_failures_total",
			Help: "Sends aborted by persistence failures.",
		},
	)
)

func MustRegister() {
	prometheus.MustRegister(
		OnlineUsers,
		EventsTotal,
		MessagesRoutedTotal,
		RouteFailuresTotal,
	)
}
