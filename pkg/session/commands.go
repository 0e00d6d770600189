package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/archquest/quest-engine/pkg/events"
	"github.com/archquest/quest-engine/pkg/quest"
)

// Command names routed through the command bus.
const (
	CmdStartQuest     = "quest:start"
	CmdContinueQuest  = "quest:continue"
	CmdReturnToHub    = "hub:return"
	CmdAdvanceChapter = "chapter:advance"
	CmdMoveHero       = "hero:move"
	CmdTogglePause    = "world:toggle-pause"
	CmdCollectItem    = "world:collect-item"
)

func resultErr(r Result) error {
	if r.Success {
		return nil
	}
	if r.Err != nil {
		return fmt.Errorf("%s: %w", r.Reason, r.Err)
	}
	return errors.New(r.Reason)
}

// StartQuestCommand starts a quest from scratch through the
// orchestrator.
type StartQuestCommand struct {
	Orchestrator *Orchestrator
	QuestID      string
}

func (c *StartQuestCommand) Name() string { return CmdStartQuest }

func (c *StartQuestCommand) Metadata() map[string]any {
	return map[string]any{"quest_id": c.QuestID}
}

func (c *StartQuestCommand) Execute(ctx context.Context) error {
	return resultErr(c.Orchestrator.StartQuest(ctx, c.QuestID))
}

// ContinueQuestCommand resumes a quest at its first incomplete chapter.
type ContinueQuestCommand struct {
	Orchestrator *Orchestrator
	QuestID      string
}

func (c *ContinueQuestCommand) Name() string { return CmdContinueQuest }

func (c *ContinueQuestCommand) Metadata() map[string]any {
	return map[string]any{"quest_id": c.QuestID}
}

func (c *ContinueQuestCommand) Execute(ctx context.Context) error {
	return resultErr(c.Orchestrator.ContinueQuest(ctx, c.QuestID))
}

// ReturnToHubCommand leaves the active quest.
type ReturnToHubCommand struct {
	Orchestrator *Orchestrator
}

func (c *ReturnToHubCommand) Name() string { return CmdReturnToHub }

func (c *ReturnToHubCommand) Execute(ctx context.Context) error {
	return resultErr(c.Orchestrator.ReturnToHub(ctx))
}

// AdvanceChapterCommand completes the current chapter, advancing the
// quest or finishing it. Issued by the exit-zone detector and by the
// goal NPC dialog.
type AdvanceChapterCommand struct {
	Orchestrator *Orchestrator
}

func (c *AdvanceChapterCommand) Name() string { return CmdAdvanceChapter }

func (c *AdvanceChapterCommand) CanExecute() bool {
	return c.Orchestrator.Navigator().Current() != nil
}

func (c *AdvanceChapterCommand) Execute(ctx context.Context) error {
	return resultErr(c.Orchestrator.CompleteChapter(ctx))
}

// MoveHeroCommand moves the hero to a position. Undoable: undo restores
// the position the hero had when the command executed.
type MoveHeroCommand struct {
	Hero      *Cell[HeroState]
	To        quest.Position
	Direction string

	prev HeroState
}

func (c *MoveHeroCommand) Name() string { return CmdMoveHero }

func (c *MoveHeroCommand) Metadata() map[string]any {
	return map[string]any{"x": c.To.X, "y": c.To.Y}
}

func (c *MoveHeroCommand) Execute(ctx context.Context) error {
	c.prev = c.Hero.Get()
	c.Hero.Set(HeroState{Position: c.To, Direction: c.Direction})
	return nil
}

func (c *MoveHeroCommand) Undo(ctx context.Context) error {
	c.Hero.Set(c.prev)
	return nil
}

// TogglePauseCommand flips the world pause flag. Undoable: undo flips
// it back.
type TogglePauseCommand struct {
	World *Cell[WorldState]
}

func (c *TogglePauseCommand) Name() string { return CmdTogglePause }

func (c *TogglePauseCommand) toggle() {
	c.World.Update(func(w WorldState) WorldState {
		w.Paused = !w.Paused
		return w
	})
}

func (c *TogglePauseCommand) Execute(ctx context.Context) error {
	c.toggle()
	return nil
}

func (c *TogglePauseCommand) Undo(ctx context.Context) error {
	c.toggle()
	return nil
}

// CollectItemCommand is the collision detector's write path: it flips
// the transient collected flag and persists it into the chapter state
// so a revisit restores it.
type CollectItemCommand struct {
	Orchestrator *Orchestrator
}

func (c *CollectItemCommand) Name() string { return CmdCollectItem }

// CanExecute requires an active chapter with a goal whose item has not
// been collected yet.
func (c *CollectItemCommand) CanExecute() bool {
	snap := c.Orchestrator.Navigator().Current()
	if snap == nil || snap.Chapter.Chapter.Goal == nil {
		return false
	}
	return !c.Orchestrator.Cells().World.Get().ItemCollected
}

func (c *CollectItemCommand) Execute(ctx context.Context) error {
	snap := c.Orchestrator.Navigator().Current()
	if snap == nil {
		return ErrNoActiveQuest
	}
	chapter := snap.Chapter.Chapter

	c.Orchestrator.Cells().World.Update(func(w WorldState) WorldState {
		w.ItemCollected = true
		return w
	})
	c.Orchestrator.progress.SetChapterState(ctx, chapter.ID, map[string]any{
		chapterStateItemCollected: true,
	})

	payload := map[string]any{"chapter_id": chapter.ID}
	if chapter.Goal != nil {
		payload["item"] = chapter.Goal.Item
	}
	c.Orchestrator.bus.Emit(events.ItemCollected, payload)
	return nil
}
