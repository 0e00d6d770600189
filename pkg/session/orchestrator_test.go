package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archquest/quest-engine/pkg/events"
	"github.com/archquest/quest-engine/pkg/quest"
)

// requireHubInvariant asserts IsInHub == (CurrentQuest == nil).
func requireHubInvariant(t *testing.T, f *fixture) {
	t.Helper()
	s := f.cells.Session.Get()
	require.Equal(t, s.CurrentQuest == nil, s.IsInHub,
		"session invariant violated: IsInHub=%v CurrentQuest=%v", s.IsInHub, s.CurrentQuest)
}

func TestOrchestrator_StartQuest(t *testing.T) {
	f := newFixture(t)

	result := f.orch.StartQuest(context.Background(), auraQuestID)
	require.True(t, result.Success)

	s := f.cells.Session.Get()
	assert.False(t, s.IsInHub)
	require.NotNil(t, s.CurrentQuest)
	assert.Equal(t, auraQuestID, s.CurrentQuest.ID)
	assert.False(t, s.IsLoading)
	requireHubInvariant(t, f)

	rt := f.cells.Quest.Get()
	require.NotNil(t, rt.Chapter)
	assert.Equal(t, "aura-1-throne", rt.Chapter.Chapter.ID)
	assert.Equal(t, 0, f.nav.Current().Index)
}

func TestOrchestrator_StartQuestEventOrdering(t *testing.T) {
	f := newFixture(t)
	seen := recordEvents(f.bus, events.LoadingStart, events.LoadingEnd,
		events.QuestStarted, events.ChapterChanged, events.Error)

	// Success path: loading window first, outcome events after.
	f.orch.StartQuest(context.Background(), auraQuestID)
	assert.Equal(t, []string{
		events.LoadingStart,
		events.LoadingEnd,
		events.QuestStarted,
		events.ChapterChanged,
	}, *seen)

	// Failure path: nothing leaks between start and end either.
	*seen = nil
	f.orch.StartQuest(context.Background(), "no-such-quest")
	assert.Equal(t, []string{
		events.LoadingStart,
		events.LoadingEnd,
		events.Error,
	}, *seen)
}

func TestOrchestrator_StartQuestFailureKeepsHubState(t *testing.T) {
	f := newFixture(t)

	result := f.orch.StartQuest(context.Background(), "the-gateway-of-messages")
	assert.False(t, result.Success)
	assert.Equal(t, "quest unavailable", result.Reason)

	s := f.cells.Session.Get()
	assert.True(t, s.IsInHub)
	assert.Nil(t, s.CurrentQuest)
	assert.False(t, s.IsLoading, "loading flag must clear on failure")
	requireHubInvariant(t, f)

	// Failure is mirrored on the bus with quest-id context.
	errs := f.bus.History(events.Error)
	require.Len(t, errs, 1)
	assert.Equal(t, "the-gateway-of-messages", errs[0].Payload["quest_id"])
}

func TestOrchestrator_ChapterChangeRepositionsHero(t *testing.T) {
	f := newFixture(t)

	f.orch.StartQuest(context.Background(), auraQuestID)

	hero := f.cells.Hero.Get()
	assert.Equal(t, quest.Position{X: 120, Y: 340}, hero.Position)

	world := f.cells.World.Get()
	assert.Equal(t, "monolith", world.ServiceContext)
	assert.False(t, world.ItemCollected)
}

func TestOrchestrator_ChapterChangeResetThenRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.orch.ContinueQuest(ctx, auraQuestID)
	f.orch.CompleteChapter(ctx) // now on aura-2-archives

	// Collect the item on chapter two, then leave and revisit.
	require.True(t, f.bus != nil)
	collect := &CollectItemCommand{Orchestrator: f.orch}
	require.True(t, collect.CanExecute())
	require.NoError(t, collect.Execute(ctx))
	assert.True(t, f.cells.World.Get().ItemCollected)

	f.orch.ReturnToHub(ctx)
	assert.False(t, f.cells.World.Get().ItemCollected)

	// Revisit: the saved chapter state restores the collected flag
	// after the transient reset.
	f.orch.ContinueQuest(ctx, auraQuestID)
	assert.Equal(t, "aura-2-archives", f.cells.Quest.Get().Chapter.Chapter.ID)
	assert.True(t, f.cells.World.Get().ItemCollected,
		"revisit must restore collected state, not reset it")

	// The goal cannot be collected twice.
	assert.False(t, collect.CanExecute())
}

func TestOrchestrator_ServiceContextPersistsAcrossChaptersWithoutOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.orch.StartQuest(ctx, auraQuestID)
	assert.Equal(t, "monolith", f.cells.World.Get().ServiceContext)

	// Chapter two has no service context: keep the active one.
	f.orch.CompleteChapter(ctx)
	assert.Equal(t, "monolith", f.cells.World.Get().ServiceContext)

	// Chapter three switches.
	f.orch.CompleteChapter(ctx)
	assert.Equal(t, "microservices", f.cells.World.Get().ServiceContext)
}

func TestOrchestrator_CompleteChapterForkPoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seen := recordEvents(f.bus, events.ChapterChanged, events.QuestComplete)

	f.orch.StartQuest(ctx, auraQuestID)
	*seen = nil

	// Chapters one and two advance.
	require.True(t, f.orch.CompleteChapter(ctx).Success)
	require.True(t, f.orch.CompleteChapter(ctx).Success)
	assert.Equal(t, []string{events.ChapterChanged, events.ChapterChanged}, *seen)

	// The last chapter finishes the quest instead of advancing.
	require.True(t, f.orch.CompleteChapter(ctx).Success)
	assert.Equal(t, []string{events.ChapterChanged, events.ChapterChanged, events.QuestComplete}, *seen)

	assert.True(t, f.store.IsQuestCompleted(auraQuestID))
	assert.True(t, f.cells.World.Get().QuestCompleted)

	// Navigation stays on the final chapter: the caller decides when to
	// show the victory screen and return to the hub.
	assert.NotNil(t, f.nav.Current())
	assert.False(t, f.cells.Session.Get().IsInHub)
}

func TestOrchestrator_CompleteQuestSnapshotEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.orch.StartQuest(ctx, auraQuestID)
	result := f.orch.CompleteQuest(ctx)
	require.True(t, result.Success)

	emissions := f.bus.History(events.QuestComplete)
	require.Len(t, emissions, 1)
	assert.Equal(t, auraQuestID, emissions[0].Payload["quest_id"])
	assert.Equal(t, "The Aura of Sovereignty", emissions[0].Payload["quest_name"])
	assert.Equal(t, "aura-master", emissions[0].Payload["achievement"])
}

func TestOrchestrator_CompleteQuestWithoutActiveQuest(t *testing.T) {
	f := newFixture(t)

	result := f.orch.CompleteQuest(context.Background())
	assert.False(t, result.Success)
	assert.Equal(t, "no active quest", result.Reason)
	assert.Equal(t, 0, f.store.State().Stats.QuestsCompleted)
}

func TestOrchestrator_ReturnToHubIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Already in hub: both calls succeed and write nothing.
	require.True(t, f.orch.ReturnToHub(ctx).Success)
	require.True(t, f.orch.ReturnToHub(ctx).Success)
	assert.Equal(t, 0, f.adapter.Len(), "short-circuit must not write to storage")
	requireHubInvariant(t, f)
}

func TestOrchestrator_ReturnToHubFromQuest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.orch.StartQuest(ctx, auraQuestID)
	f.orch.CompleteQuest(ctx)
	require.True(t, f.cells.World.Get().QuestCompleted)

	result := f.orch.ReturnToHub(ctx)
	require.True(t, result.Success)

	s := f.cells.Session.Get()
	assert.True(t, s.IsInHub)
	assert.Nil(t, s.CurrentQuest)
	requireHubInvariant(t, f)
	assert.Nil(t, f.cells.Quest.Get().Chapter)
	assert.Nil(t, f.nav.Current())

	world := f.cells.World.Get()
	assert.False(t, world.QuestCompleted, "victory flag cleared on hub return")
	assert.False(t, world.Paused)

	questID, chapterID := f.store.CurrentLocation()
	assert.Empty(t, questID)
	assert.Empty(t, chapterID)

	hubs := f.bus.History(events.HubEntered)
	assert.Len(t, hubs, 1)
}

func TestOrchestrator_ReturnToHubReentrancyGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.orch.StartQuest(ctx, auraQuestID)

	// Simulate the UI-button-races-auto-advance case: a world observer
	// fires a second return while the first is mid-flight.
	var nested Result
	off := f.cells.World.Subscribe(func(WorldState) {
		nested = f.orch.ReturnToHub(ctx)
	})
	defer off()

	result := f.orch.ReturnToHub(ctx)
	require.True(t, result.Success)
	assert.False(t, nested.Success, "re-entrant return must be rejected")
	assert.Equal(t, "return to hub already in progress", nested.Reason)

	// Guard released: a later return works (and short-circuits).
	assert.True(t, f.orch.ReturnToHub(ctx).Success)
}

func TestOrchestrator_LoadChapterDeepLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// No quest active: the deep link loads the quest without resetting
	// progress and jumps to the chapter.
	f.store.CompleteChapter(ctx, "aura-1-throne")
	result := f.orch.LoadChapter(ctx, auraQuestID, "aura-3-crown")
	require.True(t, result.Success)
	assert.Equal(t, 2, f.nav.Current().Index)
	assert.True(t, f.store.IsChapterCompleted("aura-1-throne"), "deep link must not reset progress")
	requireHubInvariant(t, f)
}

func TestOrchestrator_LoadChapterFallsBackToResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Chapter from another quest: jump fails, fall back to the resume
	// point of the requested quest.
	f.store.CompleteChapter(ctx, "aura-1-throne")
	result := f.orch.LoadChapter(ctx, auraQuestID, "gateway-1-courier")
	require.True(t, result.Success, "deep links degrade, they do not error")
	assert.Equal(t, auraQuestID, f.nav.Current().Quest.ID)
	assert.Equal(t, 1, f.nav.Current().Index, "resume at first incomplete chapter")
}

func TestOrchestrator_LoadChapterUnavailableQuestRedirectsToHub(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := f.orch.LoadChapter(ctx, "the-gateway-of-messages", "gateway-1-courier")
	assert.False(t, result.Success)

	s := f.cells.Session.Get()
	assert.True(t, s.IsInHub, "locked deep link redirects to hub")
	requireHubInvariant(t, f)
	assert.NotEmpty(t, f.bus.History(events.Error))
}

func TestOrchestrator_LoadChapterWithinActiveQuest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.orch.StartQuest(ctx, auraQuestID)
	seen := recordEvents(f.bus, events.LoadingStart)

	result := f.orch.LoadChapter(ctx, auraQuestID, "aura-2-archives")
	require.True(t, result.Success)
	assert.Equal(t, 1, f.nav.Current().Index)
	assert.Empty(t, *seen, "same-quest deep link needs no loading window")
	assert.Equal(t, quest.Position{X: 80, Y: 200}, f.cells.Hero.Get().Position,
		"hero repositioned to the deep-linked chapter start")
}

func TestOrchestrator_ExitZoneDebounce(t *testing.T) {
	f := newFixture(t)

	// Fresh orchestrator with a wide cooldown window.
	orch := NewOrchestrator(f.nav, f.store, events.NewBus(testLogger()), NewCells(), testLogger(),
		WithTransitionCooldown(time.Hour))
	ctx := context.Background()

	require.True(t, orch.StartQuest(ctx, auraQuestID).Success)

	first := orch.CompleteChapter(ctx)
	require.True(t, first.Success)

	// The collision frame fires again immediately: suppressed.
	second := orch.CompleteChapter(ctx)
	assert.False(t, second.Success)
	assert.Equal(t, "chapter transition in progress", second.Reason)
	assert.Equal(t, 1, orch.Navigator().Current().Index, "duplicate trigger must not double-advance")
}

func TestOrchestrator_FailedCompleteChapterKeepsDebounceWindow(t *testing.T) {
	f := newFixture(t)
	orch := NewOrchestrator(f.nav, f.store, events.NewBus(testLogger()), NewCells(), testLogger(),
		WithTransitionCooldown(time.Hour))
	ctx := context.Background()

	// No active quest: the attempt fails without opening the cooldown
	// window.
	require.False(t, orch.CompleteChapter(ctx).Success)

	require.True(t, orch.StartQuest(ctx, auraQuestID).Success)
	result := orch.CompleteChapter(ctx)
	assert.True(t, result.Success, "advance right after a failed attempt must not be debounced")
	assert.Equal(t, 1, orch.Navigator().Current().Index)
}

func TestOrchestrator_HubReturnCreditsPlayTime(t *testing.T) {
	f := newFixture(t)
	now := time.Unix(1_700_000_000, 0)
	orch := NewOrchestrator(f.nav, f.store, events.NewBus(testLogger()), NewCells(), testLogger(),
		WithTransitionCooldown(time.Nanosecond),
		WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.True(t, orch.StartQuest(ctx, auraQuestID).Success)
	now = now.Add(90 * time.Second)

	// Switching quests keeps the clock running; only the hub return
	// settles it.
	require.True(t, orch.ContinueQuest(ctx, auraQuestID).Success)
	now = now.Add(30 * time.Second)

	require.True(t, orch.ReturnToHub(ctx).Success)
	assert.Equal(t, int64(120), f.store.State().Stats.TotalPlayTime)

	// An idle hub return credits nothing more.
	require.True(t, orch.ReturnToHub(ctx).Success)
	assert.Equal(t, int64(120), f.store.State().Stats.TotalPlayTime)
}

func TestOrchestrator_UseCasesNeverPanic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A panicking event subscriber must not break a use-case.
	f.bus.On(events.ChapterChanged, func(events.Event) { panic("renderer bug") })

	result := f.orch.StartQuest(ctx, auraQuestID)
	assert.True(t, result.Success)
}
