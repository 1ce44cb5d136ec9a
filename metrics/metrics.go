// Package metrics holds the prometheus collectors shared across the server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OnlineUsers tracks users with a live websocket route.
	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chat",
		Name:      "online_users",
		Help:      "Number of users currently online.",
	})

	// EventsTotal counts inbound realtime events by type.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "events_total",
		Help:      "Inbound realtime events handled, by event type.",
	}, []string{"type"})

	// MessagesTotal counts message status transitions.
	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "messages_total",
		Help:      "Message status transitions, by resulting status.",
	}, []string{"status"})
)
