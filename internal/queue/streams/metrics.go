package streams

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

type hubMetrics struct {
	events      otelmetric.Int64Counter
	drops       otelmetric.Int64Counter
	subscribers otelmetric.Int64UpDownCounter
}

func newHubMetrics() *hubMetrics {
	meter := otel.Meter("pharmaverse/queue/streams")
	m := &hubMetrics{}
	var err error
	m.events, err = meter.Int64Counter(
		"session_events_total",
		otelmetric.WithDescription("Live session events broadcast, by type"),
	)
	if err != nil {
		log.Printf("streams metrics init: session_events_total: %v", err)
	}
	m.drops, err = meter.Int64Counter(
		"session_subscriber_drops_total",
		otelmetric.WithDescription("Subscribers detached after a failed delivery"),
	)
	if err != nil {
		log.Printf("streams metrics init: session_subscriber_drops_total: %v", err)
	}
	m.subscribers, err = meter.Int64UpDownCounter(
		"session_subscribers",
		otelmetric.WithDescription("Currently attached live-update subscribers"),
	)
	if err != nil {
		log.Printf("streams metrics init: session_subscribers: %v", err)
	}
	return m
}

func (m *hubMetrics) event(ctx context.Context, t EventType) {
	if m == nil || m.events == nil {
		return
	}
	m.events.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("type", string(t))))
}

func (m *hubMetrics) dropped(ctx context.Context, t EventType) {
	if m == nil || m.drops == nil {
		return
	}
	m.drops.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("type", string(t))))
}

func (m *hubMetrics) attached(ctx context.Context, delta int64) {
	if m == nil || m.subscribers == nil {
		return
	}
	m.subscribers.Add(ctx, delta)
}
