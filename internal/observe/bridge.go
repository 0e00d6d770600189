// Package observe republishes core engine events to Redis Pub/Sub so
// external tooling (analytics, debug dashboards) can watch a session
// without linking against the engine.
package observe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/archquest/quest-engine/pkg/events"
)

// bridgedEvents is the subset of bus traffic worth broadcasting.
// Loading ticks stay local; they are UI pacing, not telemetry.
var bridgedEvents = []string{
	events.QuestStarted,
	events.QuestComplete,
	events.ChapterChanged,
	events.HubEntered,
	events.ItemCollected,
	events.Error,
}

// Bridge forwards engine events to a session-scoped Redis channel.
// Fire-and-forget: publish failures are logged and never interrupt the
// emitting use-case.
type Bridge struct {
	redisClient *redis.Client
	sessionID   string
	logger      *slog.Logger
	unsubs      []func()
}

// NewBridge creates a bridge for the session.
func NewBridge(redisClient *redis.Client, sessionID string, logger *slog.Logger) *Bridge {
	return &Bridge{
		redisClient: redisClient,
		sessionID:   sessionID,
		logger:      logger,
	}
}

// Attach subscribes the bridge to the bus. Call Detach to stop
// forwarding.
func (b *Bridge) Attach(bus *events.Bus) {
	for _, name := range bridgedEvents {
		b.unsubs = append(b.unsubs, bus.On(name, b.forward))
	}
	b.logger.Debug("Event bridge attached", "events", len(bridgedEvents))
}

// Detach removes the bridge's bus subscriptions.
func (b *Bridge) Detach() {
	for _, off := range b.unsubs {
		off()
	}
	b.unsubs = nil
}

// Channel returns the Redis channel the bridge publishes to.
func (b *Bridge) Channel() string {
	return fmt.Sprintf("quest-events:%s", b.sessionID)
}

func (b *Bridge) forward(e events.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		b.logger.Error("Failed to marshal event for bridge", "event", e.Name, "error", err)
		return
	}

	ctx := context.Background()
	if err := b.redisClient.Publish(ctx, b.Channel(), data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "event", e.Name, "channel", b.Channel(), "error", err)
		return
	}

	b.logger.Debug("Event bridged", "channel", b.Channel(), "event", e.Name)
}
