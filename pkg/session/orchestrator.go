package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/archquest/quest-engine/pkg/events"
	"github.com/archquest/quest-engine/pkg/progress"
	"github.com/archquest/quest-engine/pkg/quest"
)

// Chapter-state keys shared between the orchestrator's restore pass and
// the detector commands that write them.
const (
	chapterStateItemCollected   = "item_collected"
	chapterStateRewardCollected = "reward_collected"
)

const defaultTransitionCooldown = 500 * time.Millisecond

// Result is the uniform use-case outcome. Use-cases never return or
// panic with an error; failures land here and are mirrored on the
// event bus for observers that do not check return values.
type Result struct {
	Success bool
	Reason  string
	Err     error
}

func ok() Result { return Result{Success: true} }

func fail(reason string, err error) Result {
	return Result{Success: false, Reason: reason, Err: err}
}

// Orchestrator sequences the use-cases that keep the three state layers
// in lock-step: persistent progression, the navigation state machine,
// and the transient reactive cells.
type Orchestrator struct {
	nav      *Navigator
	progress *progress.Store
	bus      *events.Bus
	cells    *Cells
	logger   *slog.Logger

	hubGate    gate
	transition *debouncer
	clock      func() time.Time

	playMu    sync.Mutex
	enteredAt time.Time // zero while in the hub
}

// OrchestratorOption customizes construction.
type OrchestratorOption func(*Orchestrator)

// WithTransitionCooldown overrides the exit-zone debounce window.
func WithTransitionCooldown(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.transition = newDebouncer(d)
		}
	}
}

// WithClock overrides the play-time clock, for tests.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		if now != nil {
			o.clock = now
		}
	}
}

// NewOrchestrator wires the orchestrator and subscribes its
// chapter-change handling to the event bus.
func NewOrchestrator(nav *Navigator, store *progress.Store, bus *events.Bus, cells *Cells, logger *slog.Logger, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		nav:        nav,
		progress:   store,
		bus:        bus,
		cells:      cells,
		logger:     logger,
		transition: newDebouncer(defaultTransitionCooldown),
		clock:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	// Chapter-change handling reacts to the event rather than being
	// called directly, so deep links, starts, and exit-zone advances
	// all share the same repositioning path.
	bus.On(events.ChapterChanged, o.handleChapterChanged)
	return o
}

// Cells exposes the reactive cells for presentation.
func (o *Orchestrator) Cells() *Cells { return o.cells }

// Navigator exposes the navigation state machine's query surface.
func (o *Orchestrator) Navigator() *Navigator { return o.nav }

// StartQuest begins the quest from scratch. Event order is
// loading:start, loading:end, then the outcome events; nothing from the
// navigation machine's internals is emitted in between, on success or
// failure.
func (o *Orchestrator) StartQuest(ctx context.Context, questID string) Result {
	result, data := o.withLoading(questID, func() (Result, *ChapterData) {
		data, err := o.nav.StartQuest(ctx, questID)
		if err != nil {
			return fail("quest unavailable", err), nil
		}
		o.enterQuest(data)
		return ok(), data
	})

	if !result.Success {
		o.emitError("start_quest", questID, result)
		return result
	}

	snap := o.nav.Current()
	o.bus.Emit(events.QuestStarted, map[string]any{"quest_id": snap.Quest.ID})
	o.emitChapterChanged(snap.Quest.ID, data)
	return result
}

// ContinueQuest resumes the quest at its first incomplete chapter.
func (o *Orchestrator) ContinueQuest(ctx context.Context, questID string) Result {
	result, data := o.withLoading(questID, func() (Result, *ChapterData) {
		data, err := o.nav.ContinueQuest(ctx, questID)
		if err != nil {
			return fail("quest unavailable", err), nil
		}
		o.enterQuest(data)
		return ok(), data
	})

	if !result.Success {
		o.emitError("continue_quest", questID, result)
		return result
	}

	o.emitChapterChanged(o.nav.Current().Quest.ID, data)
	return result
}

// LoadChapter is the deep-link entry point. A quest mismatch loads the
// quest without resetting its progress; a failed jump degrades to the
// resume point instead of erroring; an unavailable quest redirects to
// the hub.
func (o *Orchestrator) LoadChapter(ctx context.Context, questID, chapterID string) Result {
	snap := o.nav.Current()
	sameQuest := snap != nil && snap.Quest.ID == questID

	if !sameQuest {
		if !o.progress.IsQuestAvailable(questID) {
			o.logger.Warn("Deep link to unavailable quest, redirecting to hub", "quest_id", questID)
			result := fail("quest unavailable", quest.ErrQuestLocked)
			o.emitError("load_chapter", questID, result)
			o.ReturnToHub(ctx)
			return result
		}

		// Load without resetting; ContinueQuest already positions us at
		// the nearest legal chapter if the jump below fails.
		result, _ := o.withLoading(questID, func() (Result, *ChapterData) {
			data, err := o.nav.ContinueQuest(ctx, questID)
			if err != nil {
				return fail("quest unavailable", err), nil
			}
			o.enterQuest(data)
			return ok(), data
		})
		if !result.Success {
			o.emitError("load_chapter", questID, result)
			o.ReturnToHub(ctx)
			return result
		}
	}

	if !o.nav.JumpToChapter(ctx, chapterID) {
		// Degrade gracefully: stay on (or move to) the resume point.
		if sameQuest {
			if _, err := o.nav.ContinueQuest(ctx, questID); err != nil {
				result := fail("quest unavailable", err)
				o.emitError("load_chapter", questID, result)
				return result
			}
		}
		o.logger.Info("Deep-link chapter unavailable, resumed at nearest legal chapter",
			"quest_id", questID, "chapter_id", chapterID)
	}

	snap = o.nav.Current()
	o.enterQuest(snap.Chapter)
	o.emitChapterChanged(snap.Quest.ID, snap.Chapter)
	return ok()
}

// CompleteChapter handles goal/exit-zone completion of the current
// chapter: advance to the next chapter, or finish the quest on the
// last one. Duplicate triggers inside the cooldown window are
// suppressed; a call with no active quest fails without opening the
// window, so a legitimate advance right after is not swallowed.
func (o *Orchestrator) CompleteChapter(ctx context.Context) Result {
	if o.nav.Current() == nil {
		result := fail("cannot complete chapter", ErrNoActiveQuest)
		o.emitError("complete_chapter", "", result)
		return result
	}

	if !o.transition.Begin() {
		return fail("chapter transition in progress", nil)
	}

	data, questDone, err := o.nav.CompleteChapter(ctx)
	if err != nil {
		result := fail("cannot complete chapter", err)
		o.emitError("complete_chapter", "", result)
		return result
	}

	snap := o.nav.Current()
	if questDone {
		return o.CompleteQuest(ctx)
	}

	o.cells.Quest.Set(QuestRuntime{Chapter: data})
	o.emitChapterChanged(snap.Quest.ID, data)
	return ok()
}

// CompleteQuest records the current quest as completed and emits the
// domain event with a quest snapshot. Navigation is left alone: the
// caller decides whether to show a victory screen before returning to
// the hub.
func (o *Orchestrator) CompleteQuest(ctx context.Context) Result {
	snap := o.nav.Current()
	if snap == nil {
		o.logger.Warn("CompleteQuest with no active quest")
		return fail("no active quest", ErrNoActiveQuest)
	}

	o.progress.CompleteQuest(ctx, snap.Quest.ID)
	o.cells.World.Update(func(w WorldState) WorldState {
		w.QuestCompleted = true
		return w
	})

	o.bus.Emit(events.QuestComplete, map[string]any{
		"quest_id":    snap.Quest.ID,
		"quest_name":  snap.Quest.Name,
		"achievement": snap.Quest.Reward.Achievement,
	})
	return ok()
}

// ReturnToHub leaves the active quest. Idempotent and single-flight
// guarded: a second concurrent return (UI button racing an
// auto-advance timer) is rejected, and a return while already in the
// hub short-circuits successfully with no store writes.
func (o *Orchestrator) ReturnToHub(ctx context.Context) Result {
	if !o.hubGate.TryAcquire() {
		return fail("return to hub already in progress", nil)
	}
	defer o.hubGate.Release()

	if o.cells.Session.Get().CurrentQuest == nil && o.nav.Current() == nil {
		return ok()
	}

	o.flushPlayTime(ctx)

	// Reset transient flags before navigation so observers of the hub
	// state never see a stale victory/pause overlay.
	o.cells.World.Update(func(w WorldState) WorldState {
		w.QuestCompleted = false
		w.Paused = false
		w.ItemCollected = false
		w.RewardCollected = false
		w.LockedMessage = ""
		return w
	})

	o.nav.ReturnToHub(ctx)
	o.cells.Quest.Set(QuestRuntime{})
	o.cells.Session.Update(func(s SessionState) SessionState {
		s.CurrentQuest = nil
		s.IsInHub = true
		return s
	})

	o.bus.Emit(events.HubEntered, nil)
	return ok()
}

// withLoading brackets a use-case body with the loading events and the
// session cell's IsLoading flag. loading:end is guaranteed on every
// path, and no other event is emitted between start and end.
func (o *Orchestrator) withLoading(questID string, body func() (Result, *ChapterData)) (result Result, data *ChapterData) {
	o.bus.Emit(events.LoadingStart, map[string]any{"quest_id": questID})
	o.cells.Session.Update(func(s SessionState) SessionState {
		s.IsLoading = true
		return s
	})

	defer func() {
		o.cells.Session.Update(func(s SessionState) SessionState {
			s.IsLoading = false
			return s
		})
		o.bus.Emit(events.LoadingEnd, map[string]any{"quest_id": questID})
	}()

	return body()
}

// enterQuest flips the session cell out of the hub and publishes the
// materialized chapter. CurrentQuest and IsInHub change in one atomic
// update.
func (o *Orchestrator) enterQuest(data *ChapterData) {
	o.playMu.Lock()
	if o.enteredAt.IsZero() {
		o.enteredAt = o.clock()
	}
	o.playMu.Unlock()

	snap := o.nav.Current()
	o.cells.Quest.Set(QuestRuntime{Chapter: data})
	o.cells.Session.Update(func(s SessionState) SessionState {
		s.CurrentQuest = snap.Quest
		s.IsInHub = false
		return s
	})
}

// flushPlayTime credits the seconds spent in quests since the session
// last left the hub. Switching quests without a hub visit keeps the
// clock running; only a hub return settles it.
func (o *Orchestrator) flushPlayTime(ctx context.Context) {
	o.playMu.Lock()
	entered := o.enteredAt
	o.enteredAt = time.Time{}
	o.playMu.Unlock()

	if entered.IsZero() {
		return
	}
	if secs := int64(o.clock().Sub(entered).Seconds()); secs > 0 {
		o.progress.AddPlayTime(ctx, secs)
	}
}

func (o *Orchestrator) emitChapterChanged(questID string, data *ChapterData) {
	o.bus.Emit(events.ChapterChanged, map[string]any{
		"quest_id":   questID,
		"chapter_id": data.Chapter.ID,
		"number":     data.Number,
		"total":      data.Total,
	})
}

// handleChapterChanged repositions the world for the new chapter:
// hero to the chapter start, service context applied, transient flags
// reset, and previously saved chapter state restored. Reset must run
// before restore, or a revisited chapter would lose its collected-item
// flags.
func (o *Orchestrator) handleChapterChanged(e events.Event) {
	snap := o.nav.Current()
	if snap == nil || snap.Chapter == nil {
		return
	}
	chapter := snap.Chapter.Chapter

	o.cells.Hero.Set(HeroState{Position: chapter.Start})

	o.cells.World.Update(func(w WorldState) WorldState {
		w.ItemCollected = false
		w.RewardCollected = false
		w.LockedMessage = ""
		if chapter.ServiceContext != "" {
			w.ServiceContext = chapter.ServiceContext
		}
		return w
	})

	if saved := o.progress.ChapterState(chapter.ID); saved != nil {
		o.cells.World.Update(func(w WorldState) WorldState {
			if collected, _ := saved[chapterStateItemCollected].(bool); collected {
				w.ItemCollected = true
			}
			if rewarded, _ := saved[chapterStateRewardCollected].(bool); rewarded {
				w.RewardCollected = true
			}
			return w
		})
	}
}

func (o *Orchestrator) emitError(useCase, questID string, result Result) {
	payload := map[string]any{
		"use_case": useCase,
		"reason":   result.Reason,
	}
	if questID != "" {
		payload["quest_id"] = questID
	}
	if result.Err != nil {
		payload["error"] = result.Err.Error()
	}
	o.bus.Emit(events.Error, payload)
}
