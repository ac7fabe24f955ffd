// Package metrics holds the OpenTelemetry instruments of the presence service.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cwrk-planet/presence-service/internal/broadcast"
)

type Metrics struct {
	connections metric.Int64UpDownCounter
	joins       metric.Int64Counter
	disconnects metric.Int64Counter
	delivered   metric.Int64Counter
	pruned      metric.Int64Counter
}

// New registers instruments on the global meter provider; NewProvider installs the SDK one.
func New() *Metrics {
	return NewWithMeter(otel.Meter("presence-service"))
}

func NewWithMeter(meter metric.Meter) *Metrics {
	m := &Metrics{}
	m.connections, _ = meter.Int64UpDownCounter("presence_connections",
		metric.WithDescription("Live client connections"))
	m.joins, _ = meter.Int64Counter("presence_joins_total",
		metric.WithDescription("Room join attempts by result"))
	m.disconnects, _ = meter.Int64Counter("presence_disconnects_total",
		metric.WithDescription("Disconnects by reason"))
	m.delivered, _ = meter.Int64Counter("presence_broadcast_delivered_total",
		metric.WithDescription("Events delivered to subscribers"))
	m.pruned, _ = meter.Int64Counter("presence_broadcast_pruned_total",
		metric.WithDescription("Subscribers dropped after a failed delivery"))

	return m
}

func (m *Metrics) Connected(ctx context.Context) {
	m.connections.Add(ctx, 1)
}

func (m *Metrics) Disconnected(ctx context.Context, reason string) {
	m.connections.Add(ctx, -1)
	m.disconnects.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) Joined(ctx context.Context, ok bool) {
	result := "rejected"
	if ok {
		result = "accepted"
	}
	m.joins.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// Published implements broadcast.Observer.
func (m *Metrics) Published(channel string, st broadcast.Stats) {
	kind := "room"
	if channel == broadcast.LobbyChannel {
		kind = "lobby"
	}
	attrs := metric.WithAttributes(attribute.String("channel", kind))
	ctx := context.Background()
	m.delivered.Add(ctx, int64(st.Delivered), attrs)
	if st.Pruned > 0 {
		m.pruned.Add(ctx, int64(st.Pruned), attrs)
	}
}
