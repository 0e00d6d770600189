package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archquest/quest-engine/pkg/command"
	"github.com/archquest/quest-engine/pkg/quest"
)

func TestMoveHeroCommand_UndoRestoresPosition(t *testing.T) {
	f := newFixture(t)
	bus := command.NewBus(testLogger())
	ctx := context.Background()

	f.cells.Hero.Set(HeroState{Position: quest.Position{X: 10, Y: 20}})

	move := &MoveHeroCommand{Hero: f.cells.Hero, To: quest.Position{X: 50, Y: 60}, Direction: "east"}
	result := bus.Execute(ctx, move)
	require.True(t, result.Success)
	assert.Equal(t, quest.Position{X: 50, Y: 60}, f.cells.Hero.Get().Position)

	require.True(t, bus.Undo(ctx))
	assert.Equal(t, quest.Position{X: 10, Y: 20}, f.cells.Hero.Get().Position)

	require.True(t, bus.Redo(ctx))
	assert.Equal(t, quest.Position{X: 50, Y: 60}, f.cells.Hero.Get().Position)
}

func TestTogglePauseCommand_UndoTogglesBack(t *testing.T) {
	f := newFixture(t)
	bus := command.NewBus(testLogger())
	ctx := context.Background()

	pause := &TogglePauseCommand{World: f.cells.World}
	require.True(t, bus.Execute(ctx, pause).Success)
	assert.True(t, f.cells.World.Get().Paused)

	require.True(t, bus.Undo(ctx))
	assert.False(t, f.cells.World.Get().Paused)
}

func TestStartQuestCommand_ThroughBus(t *testing.T) {
	f := newFixture(t)
	bus := command.NewBus(testLogger())
	ctx := context.Background()

	result := bus.Execute(ctx, &StartQuestCommand{Orchestrator: f.orch, QuestID: auraQuestID})
	require.True(t, result.Success)
	assert.False(t, f.cells.Session.Get().IsInHub)
	assert.Equal(t, 0, bus.HistoryLen(), "quest commands are not undoable")

	// Locked quest surfaces as a structured failure, not a panic.
	result = bus.Execute(ctx, &StartQuestCommand{Orchestrator: f.orch, QuestID: "the-gateway-of-messages"})
	assert.False(t, result.Success)
	require.Error(t, result.Err)
	assert.ErrorIs(t, result.Err, quest.ErrQuestLocked)
}

func TestAdvanceChapterCommand_GatedOnActiveQuest(t *testing.T) {
	f := newFixture(t)
	bus := command.NewBus(testLogger())
	ctx := context.Background()

	advance := &AdvanceChapterCommand{Orchestrator: f.orch}
	result := bus.Execute(ctx, advance)
	assert.False(t, result.Success)
	assert.Equal(t, command.ReasonPreconditionFailed, result.Reason)

	require.True(t, bus.Execute(ctx, &StartQuestCommand{Orchestrator: f.orch, QuestID: auraQuestID}).Success)
	require.True(t, bus.Execute(ctx, advance).Success)
	assert.Equal(t, 1, f.nav.Current().Index)
}

func TestCollectItemCommand_PersistsChapterState(t *testing.T) {
	f := newFixture(t)
	bus := command.NewBus(testLogger())
	ctx := context.Background()

	require.True(t, bus.Execute(ctx, &ContinueQuestCommand{Orchestrator: f.orch, QuestID: auraQuestID}).Success)

	// Chapter one has no goal: the gate blocks collection.
	collect := &CollectItemCommand{Orchestrator: f.orch}
	result := bus.Execute(ctx, collect)
	assert.Equal(t, command.ReasonPreconditionFailed, result.Reason)

	require.True(t, bus.Execute(ctx, &AdvanceChapterCommand{Orchestrator: f.orch}).Success)
	require.True(t, bus.Execute(ctx, collect).Success)

	saved := f.store.ChapterState("aura-2-archives")
	require.NotNil(t, saved)
	assert.Equal(t, true, saved["item_collected"])
}
