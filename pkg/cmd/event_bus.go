package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowmuse/flowmuse/pkg/channels/gochannel"
	"github.com/flowmuse/flowmuse/pkg/channels/kafka"
	"github.com/flowmuse/flowmuse/pkg/eventbus"
	"github.com/flowmuse/flowmuse/pkg/settings"
)

// NewEventBus creates the sync event bus for the named channel. Anything
// other than kafka gets the in-process channel, which is the default for
// a single editor process.
func NewEventBus(provider string, tracer trace.Tracer, logger *slog.Logger) eventbus.EventBus {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case settings.EventBusKafka:
		pub, sub, err := kafka.CreateChannel(wmLogger, "flowmuse")
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub, tracer)
	default:
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			panic(fmt.Errorf("failed to create in-process pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub, tracer)
	}
}
