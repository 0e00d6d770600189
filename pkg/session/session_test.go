package session

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/archquest/quest-engine/pkg/events"
	"github.com/archquest/quest-engine/pkg/progress"
	"github.com/archquest/quest-engine/pkg/quest"
	"github.com/archquest/quest-engine/pkg/storage"
)

const auraQuestID = "the-aura-of-sovereignty"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testCatalog() *quest.StaticCatalog {
	return quest.NewStaticCatalog(
		&quest.Quest{
			ID:     auraQuestID,
			Name:   "The Aura of Sovereignty",
			Status: quest.StatusAvailable,
			Reward: quest.Reward{Achievement: "aura-master"},
			Chapters: []quest.Chapter{
				{
					ID:             "aura-1-throne",
					Start:          quest.Position{X: 120, Y: 340},
					ExitZone:       &quest.Zone{X: 600, Y: 300, Width: 64, Height: 96},
					ServiceContext: "monolith",
				},
				{
					ID:    "aura-2-archives",
					Start: quest.Position{X: 80, Y: 200},
					Goal:  &quest.GoalRef{Item: "royal-seal", Position: quest.Position{X: 420, Y: 180}},
				},
				{
					ID:             "aura-3-crown",
					Start:          quest.Position{X: 40, Y: 40},
					ServiceContext: "microservices",
				},
			},
		},
		&quest.Quest{
			ID:            "the-gateway-of-messages",
			Name:          "The Gateway of Messages",
			Status:        quest.StatusAvailable,
			Prerequisites: []string{auraQuestID},
			Chapters: []quest.Chapter{
				{ID: "gateway-1-courier", Start: quest.Position{X: 10, Y: 10}},
			},
		},
		&quest.Quest{
			ID:     "the-vault-of-shards",
			Status: quest.StatusComingSoon,
		},
	)
}

type fixture struct {
	catalog *quest.StaticCatalog
	adapter *storage.Memory
	store   *progress.Store
	bus     *events.Bus
	cells   *Cells
	nav     *Navigator
	orch    *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := testLogger()
	catalog := testCatalog()
	adapter := storage.NewMemory()
	store := progress.NewStore(adapter, catalog, logger, progress.WithSeedQuest(auraQuestID))
	store.Load(context.Background())

	bus := events.NewBus(logger)
	cells := NewCells()
	nav := NewNavigator(catalog, store, logger)
	orch := NewOrchestrator(nav, store, bus, cells, logger,
		WithTransitionCooldown(time.Nanosecond))

	return &fixture{
		catalog: catalog,
		adapter: adapter,
		store:   store,
		bus:     bus,
		cells:   cells,
		nav:     nav,
		orch:    orch,
	}
}

// recordEvents captures every emission of the named events in order.
func recordEvents(bus *events.Bus, names ...string) *[]string {
	var seen []string
	for _, name := range names {
		name := name
		bus.On(name, func(events.Event) { seen = append(seen, name) })
	}
	return &seen
}
