package events

import (
	"time"

	"github.com/google/uuid"
)

// Core event names emitted by the session orchestrator. Consumers should
// subscribe by these constants rather than raw strings.
const (
	LoadingStart   = "loading:start"
	LoadingEnd     = "loading:end"
	QuestStarted   = "quest:started"
	QuestComplete  = "quest:complete"
	ChapterChanged = "chapter:changed"
	HubEntered     = "hub:entered"
	ItemCollected  = "item:collected"
	Error          = "error"
)

// Event is a single emission recorded by the bus.
type Event struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Handler receives an event synchronously during Emit.
type Handler func(Event)
