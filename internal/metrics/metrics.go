// Package metrics declares the Prometheus collectors exported by the ChatRelay
// server. They are registered on the default registry and scraped via the
// /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatrelay_connected_clients",
			Help: "Clients currently joined with a registered name",
		},
	)

	ClientsJoined = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_clients_joined_total",
			Help: "Total successful joins",
		},
	)

	NameConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_name_conflicts_total",
			Help: "Total joins rejected because the name was taken",
		},
	)

	Messages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_messages_total",
			Help: "Total messages routed",
		},
		[]string{"kind"}, // "broadcast", "private" or "group"
	)

	GroupsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_groups_created_total",
			Help: "Total groups created",
		},
	)

	ReadReceipts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_read_receipts_total",
			Help: "Total read acknowledgements that changed message state",
		},
		[]string{"kind"}, // "private" or "group"
	)

	DroppedDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_dropped_deliveries_total",
			Help: "Outbound events dropped because a connection could not accept them",
		},
	)

	ProtocolErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_protocol_errors_total",
			Help: "Protocol errors reported to clients",
		},
		[]string{"reason"},
	)
)
