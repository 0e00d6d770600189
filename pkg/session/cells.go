package session

import (
	"sync"

	"github.com/archquest/quest-engine/pkg/quest"
)

// Cell is an observable value container. Presentation reads through Get
// and re-renders on Subscribe notifications; writes are reserved for
// the orchestrator and the small documented detector allow-list
// (movement, pause toggle, item collection). Single-writer discipline
// is ownership convention, not a type-system guarantee.
type Cell[T any] struct {
	mu    sync.Mutex
	value T
	subs  []*cellSub[T]
}

type cellSub[T any] struct {
	fn func(T)
}

// NewCell creates a cell holding the initial value.
func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{value: initial}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set replaces the value and notifies subscribers synchronously, in
// subscription order, against a snapshot of the subscriber list.
func (c *Cell[T]) Set(value T) {
	c.mu.Lock()
	c.value = value
	subs := make([]*cellSub[T], len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.fn(value)
	}
}

// Update applies fn to the current value and stores the result as one
// atomic step, so invariants spanning multiple fields hold for every
// observer.
func (c *Cell[T]) Update(fn func(T) T) {
	c.mu.Lock()
	c.value = fn(c.value)
	value := c.value
	subs := make([]*cellSub[T], len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.fn(value)
	}
}

// Subscribe registers an observer and returns an unsubscribe closure.
// The observer is not called with the current value on registration.
func (c *Cell[T]) Subscribe(fn func(T)) func() {
	sub := &cellSub[T]{fn: fn}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s == sub {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

// SessionState is the transient session cell. Invariant: IsInHub is
// true exactly when CurrentQuest is nil; the orchestrator sets both in
// one Update.
type SessionState struct {
	IsLoading    bool
	IsInHub      bool
	CurrentQuest *quest.Quest
}

// HeroState is the transient hero cell.
type HeroState struct {
	Position  quest.Position
	Direction string
}

// WorldState is the transient game-world cell: per-chapter flags reset
// on every chapter change and restored from saved chapter state.
type WorldState struct {
	Paused          bool
	QuestCompleted  bool
	ItemCollected   bool
	RewardCollected bool
	LockedMessage   string
	ServiceContext  string
}

// QuestRuntime is the transient quest cell holding the materialized
// current-chapter data for presentation.
type QuestRuntime struct {
	Chapter *ChapterData
}

// Cells bundles the reactive state cells mutated by the orchestrator.
type Cells struct {
	Session *Cell[SessionState]
	Hero    *Cell[HeroState]
	World   *Cell[WorldState]
	Quest   *Cell[QuestRuntime]
}

// NewCells creates the four cells in their zero states, with the
// session cell starting in the hub.
func NewCells() *Cells {
	return &Cells{
		Session: NewCell(SessionState{IsInHub: true}),
		Hero:    NewCell(HeroState{}),
		World:   NewCell(WorldState{}),
		Quest:   NewCell(QuestRuntime{}),
	}
}
