// Command console is the terminal front-end for the quest engine: a
// quest hub, chapter playthrough view and command palette over the
// session orchestrator.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/archquest/quest-engine/internal/catalog"
	"github.com/archquest/quest-engine/internal/config"
	"github.com/archquest/quest-engine/internal/journal"
	"github.com/archquest/quest-engine/internal/logger"
	"github.com/archquest/quest-engine/internal/observe"
	intstorage "github.com/archquest/quest-engine/internal/storage"
	"github.com/archquest/quest-engine/pkg/command"
	"github.com/archquest/quest-engine/pkg/events"
	"github.com/archquest/quest-engine/pkg/progress"
	"github.com/archquest/quest-engine/pkg/session"
	"github.com/archquest/quest-engine/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}

	log := logger.Setup(cfg)
	log = logger.WithSession(log, cfg.SessionID)

	ctx := context.Background()

	var adapter storage.Adapter
	var redisAdapter *intstorage.Redis
	switch cfg.Storage {
	case config.StorageRedis:
		redisAdapter = intstorage.NewRedis(cfg.RedisURL, log)
		waitCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := redisAdapter.WaitForConnection(waitCtx)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not connect to Redis at %s: %v\n", cfg.RedisURL, err)
			os.Exit(1)
		}
		adapter = redisAdapter
	default:
		adapter = storage.NewMemory()
	}
	defer func() {
		if err := adapter.Close(); err != nil {
			log.Error("Failed to close storage adapter", "error", err)
		}
	}()

	questCatalog, err := catalog.New(cfg.DataDir, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load quest catalog from %s: %v\n", cfg.DataDir, err)
		os.Exit(1)
	}
	if len(questCatalog.GetAllQuests()) == 0 {
		fmt.Fprintf(os.Stderr, "No quests found in %s\n", cfg.DataDir)
		os.Exit(1)
	}

	store := progress.NewStore(adapter, questCatalog, log,
		progress.WithSaveKey(cfg.SaveKey),
		progress.WithSeedQuest(cfg.SeedQuest),
	)
	store.Load(ctx)

	bus := events.NewBus(log)
	cells := session.NewCells()
	nav := session.NewNavigator(questCatalog, store, log)
	orch := session.NewOrchestrator(nav, store, bus, cells, log)

	cmdBus := command.NewBus(log, command.WithHistoryLimit(cfg.CommandHistoryLimit))

	// Redis mode gains session telemetry: an event bridge on Pub/Sub
	// and a command journal. Memory mode runs standalone.
	if redisAdapter != nil {
		bridge := observe.NewBridge(redisAdapter.Client(), cfg.SessionID, log)
		bridge.Attach(bus)
		defer bridge.Detach()

		cmdBus.Use(journal.New(redisAdapter.Client(), cfg.SessionID, log).Middleware())
	}

	saver := progress.NewAutosaver(store, cfg.AutosaveInterval, log)
	go saver.Start()
	defer saver.Stop()

	p := tea.NewProgram(NewConsoleUI(questCatalog, store, orch, cmdBus, bus),
		tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}

	// Settle the session before the autosaver's shutdown flush so a
	// quit from inside a quest still credits its play time.
	orch.ReturnToHub(ctx)
}
