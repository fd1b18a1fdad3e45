package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowmuse/flowmuse/pkg/channels/gochannel"
	"github.com/flowmuse/flowmuse/pkg/events"
	"github.com/flowmuse/flowmuse/pkg/otelhelper"
)

func newTestBus(t *testing.T) EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NewSlogLogger(slog.Default()))
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub, nil)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBusRoundTrip(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan any, 1)
	require.NoError(t, bus.Handle(events.FlowGeneratedEvent, func(_ context.Context, event any) error {
		received <- event

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	published := events.FlowGenerated{
		BaseEvent: events.NewBaseEvent(events.FlowGeneratedEvent),
		TabID:     "tab-1",
		FlowName:  "Hello Logger",
		Provider:  "openai",
		Added:     2,
		Removed:   1,
	}
	require.NoError(t, bus.Publish(ctx, "tab-1", published))

	select {
	case got := <-received:
		decoded, ok := got.(*events.FlowGenerated)
		require.True(t, ok)
		assert.Equal(t, "tab-1", decoded.TabID)
		assert.Equal(t, "Hello Logger", decoded.FlowName)
		assert.Equal(t, 2, decoded.Added)
	case <-time.After(2 * time.Second):
		t.Fatal("published event never reached the handler")
	}
}

func TestWatermillEventBusDispatchesByType(t *testing.T) {
	bus := newTestBus(t)

	syncEvents := make(chan any, 2)
	require.NoError(t, bus.Handle(events.NodeSyncCompletedEvent, func(_ context.Context, event any) error {
		syncEvents <- event

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	// No handler registered for this type; it must be acked and skipped.
	require.NoError(t, bus.Publish(ctx, "n9", events.NodeRemoved{
		BaseEvent: events.NewBaseEvent(events.NodeRemovedEvent),
		NodeID:    "n9",
	}))

	require.NoError(t, bus.Publish(ctx, "n1", events.NodeSyncCompleted{
		BaseEvent:  events.NewBaseEvent(events.NodeSyncCompletedEvent),
		NodeID:     "n1",
		DurationMs: 42,
	}))

	select {
	case got := <-syncEvents:
		decoded, ok := got.(*events.NodeSyncCompleted)
		require.True(t, ok)
		assert.Equal(t, "n1", decoded.NodeID)
	case <-time.After(2 * time.Second):
		t.Fatal("typed handler never ran")
	}
}

func TestWatermillEventBusGenerateID(t *testing.T) {
	bus := newTestBus(t)

	first := bus.GenerateID()
	second := bus.GenerateID()

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}

func TestWatermillEventBusPropagatesTraceContext(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("eventbus-test")

	previous := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(previous) })

	pub, sub, err := gochannel.CreateTestChannel(watermill.NewSlogLogger(slog.Default()))
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub, tracer)
	t.Cleanup(func() { _ = bus.Close() })

	handlerTraces := make(chan trace.TraceID, 1)
	require.NoError(t, bus.Handle(events.NodeSyncCompletedEvent, func(ctx context.Context, _ any) error {
		handlerTraces <- trace.SpanContextFromContext(ctx).TraceID()

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	publishCtx, parent := tracer.Start(ctx, "resync operation")
	require.NoError(t, bus.Publish(publishCtx, "n1", events.NodeSyncCompleted{
		BaseEvent:  events.NewBaseEvent(events.NodeSyncCompletedEvent),
		NodeID:     "n1",
		DurationMs: 7,
	}))
	parent.End()

	select {
	case gotTraceID := <-handlerTraces:
		assert.Equal(t, parent.SpanContext().TraceID(), gotTraceID, "handler context carries the publisher's trace")
	case <-time.After(2 * time.Second):
		t.Fatal("traced event never reached the handler")
	}

	var consumed sdktrace.ReadOnlySpan

	require.Eventually(t, func() bool {
		for _, span := range recorder.Ended() {
			if span.Name() == "eventbus.consumer consume" {
				consumed = span

				return true
			}
		}

		return false
	}, 2*time.Second, 10*time.Millisecond, "consumer span was never recorded")

	assert.Equal(t, parent.SpanContext().TraceID(), consumed.SpanContext().TraceID())
	assert.Contains(t, consumed.Attributes(), attribute.String(otelhelper.EventTypeKey, string(events.NodeSyncCompletedEvent)))
	assert.Contains(t, consumed.Attributes(), attribute.String(otelhelper.EventKeyKey, "n1"))
}

func TestWatermillEventBusRedeliversAfterHandlerError(t *testing.T) {
	bus := newTestBus(t)

	var once atomic.Bool

	delivered := make(chan struct{}, 1)
	require.NoError(t, bus.Handle(events.NodeSyncFailedEvent, func(_ context.Context, _ any) error {
		if once.CompareAndSwap(false, true) {
			return errors.New("handler exploded")
		}

		delivered <- struct{}{}

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "n1", events.NodeSyncFailed{
		BaseEvent: events.NewBaseEvent(events.NodeSyncFailedEvent),
		NodeID:    "n1",
		Error:     "boom",
	}))

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("nacked event was never redelivered")
	}
}
