package observe

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archquest/quest-engine/pkg/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func setupBridge(t *testing.T) (*Bridge, *events.Bus, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bus := events.NewBus(testLogger())
	bridge := NewBridge(client, "test-session", testLogger())
	bridge.Attach(bus)
	t.Cleanup(bridge.Detach)

	return bridge, bus, client
}

func TestBridge_ForwardsQuestEvents(t *testing.T) {
	bridge, bus, client := setupBridge(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := client.Subscribe(ctx, bridge.Channel())
	defer func() { _ = sub.Close() }()

	// Wait for the subscription to be live before emitting.
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	bus.Emit(events.QuestStarted, map[string]any{"quest_id": "the-aura-of-sovereignty"})

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "quest-events:test-session", msg.Channel)

	var e events.Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &e))
	assert.Equal(t, events.QuestStarted, e.Name)
	assert.Equal(t, "the-aura-of-sovereignty", e.Payload["quest_id"])
}

func TestBridge_SkipsLoadingEvents(t *testing.T) {
	bridge, bus, client := setupBridge(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := client.Subscribe(ctx, bridge.Channel())
	defer func() { _ = sub.Close() }()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	bus.Emit(events.LoadingStart, nil)
	bus.Emit(events.HubEntered, nil)

	// Only the hub event should arrive; loading ticks stay local.
	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var e events.Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &e))
	assert.Equal(t, events.HubEntered, e.Name)
}

func TestBridge_DetachStopsForwarding(t *testing.T) {
	bridge, bus, client := setupBridge(t)
	bridge.Detach()

	bus.Emit(events.QuestStarted, nil)

	// Nothing subscribed to the channel server-side either; just confirm
	// the bus itself still works and no panic occurred.
	assert.Equal(t, 0, bus.SubscriberCount(events.QuestStarted))
	_ = client
}

func TestBridge_PublishFailureIsContained(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bus := events.NewBus(testLogger())
	bridge := NewBridge(client, "test-session", testLogger())
	bridge.Attach(bus)

	mr.Close()

	// Emit must not panic or propagate the publish error.
	bus.Emit(events.QuestStarted, map[string]any{"quest_id": "q"})
}
