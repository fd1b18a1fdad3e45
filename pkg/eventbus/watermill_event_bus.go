package eventbus

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowmuse/flowmuse/pkg/events"
	"github.com/flowmuse/flowmuse/pkg/otelhelper"
)

type WatermillEventBus struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	tracer        trace.Tracer
	subscriptions map[events.EventType]EventHandler
}

// NewWatermillEventBus wraps a watermill publisher/subscriber pair. A nil
// tracer falls back to the global provider, which is a no-op until the
// process installs a real one.
func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber, tracer trace.Tracer) EventBus {
	if tracer == nil {
		tracer = otel.Tracer("flowmuse/eventbus")
	}

	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		tracer:        tracer,
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)

	// Trace context rides in the message metadata so consumers can stitch
	// their spans onto the publishing operation.
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	for k, v := range carrier {
		msg.Metadata.Set(k, v)
	}

	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(events.Topic, msg)
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

			carrier := propagation.MapCarrier{}
			for key, value := range msg.Metadata {
				carrier[key] = value
			}

			msgCtx := otel.GetTextMapPropagator().Extract(ctx, carrier)

			traceCtx, span := otelhelper.StartSpan(msgCtx, eb.tracer, "eventbus.consumer consume",
				attribute.String(otelhelper.EventKeyKey, msg.Metadata.Get(events.EventMetadataKey)),
				attribute.String(otelhelper.EventTypeKey, string(eventType)),
			)

			handler, exists := eb.subscriptions[eventType]
			if !exists {
				span.SetStatus(codes.Ok, "no handler registered for event type")
				span.End()
				msg.Ack()

				continue
			}

			var event any

			switch eventType {
			case events.FlowGeneratedEvent:
				event = &events.FlowGenerated{}
			case events.TabCreatedEvent:
				event = &events.TabCreated{}
			case events.NodeSyncStartedEvent:
				event = &events.NodeSyncStarted{}
			case events.NodeSyncWaitingEvent:
				event = &events.NodeSyncWaiting{}
			case events.NodeSyncResumedEvent:
				event = &events.NodeSyncResumed{}
			case events.NodeSyncCompletedEvent:
				event = &events.NodeSyncCompleted{}
			case events.NodeSyncFailedEvent:
				event = &events.NodeSyncFailed{}
			case events.NodeRemovedEvent:
				event = &events.NodeRemoved{}
			default:
				otelhelper.SetError(span, errors.New("unknown event type"))
				span.End()
				msg.Nack()

				continue
			}

			if err := json.Unmarshal(msg.Payload, event); err != nil {
				otelhelper.SetError(span, err)
				span.End()
				msg.Nack()

				continue
			}

			if err := handler(traceCtx, event); err != nil {
				otelhelper.SetError(span, err)
				span.End()
				msg.Nack()

				continue
			}

			span.AddEvent("event_handled", trace.WithAttributes())
			span.End()
			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
