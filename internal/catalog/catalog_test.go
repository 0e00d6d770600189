package catalog

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

const auraQuest = `
id: the-aura-of-sovereignty
name: The Aura of Sovereignty
status: available
reward:
  achievement: aura-master
chapters:
  - id: aura-1-throne
    name: The Throne Room
    start: {x: 120, y: 340}
    exit_zone: {x: 600, y: 300, width: 64, height: 96}
    service_context: monolith
  - id: aura-2-archives
    name: The Archives
    start: {x: 80, y: 200}
    goal:
      item: royal-seal
      position: {x: 420, y: 180}
`

const gatewayQuest = `
id: the-gateway-of-messages
name: The Gateway of Messages
status: available
prerequisites:
  - the-aura-of-sovereignty
chapters:
  - id: gateway-1-courier
    name: The Courier
    start: {x: 50, y: 50}
`

const teaserQuest = `
id: the-vault-of-shards
name: The Vault of Shards
status: coming_soon
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeQuestFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("Failed to write quest file: %v", err)
		}
	}
	return dir
}

func newTestCatalog(t *testing.T) *FileCatalog {
	t.Helper()
	dir := writeQuestFiles(t, map[string]string{
		"aura.yaml":    auraQuest,
		"gateway.yaml": gatewayQuest,
		"vault.yaml":   teaserQuest,
	})
	c, err := New(dir, testLogger())
	if err != nil {
		t.Fatalf("Failed to build catalog: %v", err)
	}
	return c
}

func TestFileCatalog_IndexesAllQuests(t *testing.T) {
	c := newTestCatalog(t)

	all := c.GetAllQuests()
	if len(all) != 3 {
		t.Fatalf("Expected 3 quests, got %d", len(all))
	}

	q := c.GetQuest("the-aura-of-sovereignty")
	if q == nil {
		t.Fatal("Expected aura quest in index")
	}
	if q.Name != "The Aura of Sovereignty" {
		t.Errorf("Expected display name, got %q", q.Name)
	}
	if len(q.Chapters) != 0 {
		t.Errorf("Index entry should not carry chapters before LoadQuestData, got %d", len(q.Chapters))
	}
}

func TestFileCatalog_LoadQuestDataFillsChapters(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	q, err := c.LoadQuestData(ctx, "the-aura-of-sovereignty")
	if err != nil {
		t.Fatalf("Failed to load quest data: %v", err)
	}
	if len(q.Chapters) != 2 {
		t.Fatalf("Expected 2 chapters, got %d", len(q.Chapters))
	}

	first := q.Chapters[0]
	if first.ID != "aura-1-throne" || first.Index != 0 || first.QuestID != "the-aura-of-sovereignty" {
		t.Errorf("Chapter ordinals not filled in: %+v", first)
	}
	if !first.HasExitZone() {
		t.Error("Expected first chapter to have an exit zone")
	}
	if first.ServiceContext != "monolith" {
		t.Errorf("Expected service context, got %q", first.ServiceContext)
	}

	second := q.Chapters[1]
	if second.Goal == nil || second.Goal.Item != "royal-seal" {
		t.Errorf("Expected goal item on second chapter: %+v", second.Goal)
	}

	// Loaded quests show up fully in GetQuest afterwards.
	if got := c.GetQuest("the-aura-of-sovereignty"); len(got.Chapters) != 2 {
		t.Errorf("Expected memoized quest with chapters, got %d", len(got.Chapters))
	}
}

func TestFileCatalog_LoadUnknownQuest(t *testing.T) {
	c := newTestCatalog(t)

	if _, err := c.LoadQuestData(context.Background(), "no-such-quest"); err == nil {
		t.Error("Expected error for unknown quest")
	}
}

func TestFileCatalog_IsQuestLocked(t *testing.T) {
	c := newTestCatalog(t)

	tests := []struct {
		name      string
		questID   string
		completed map[string]bool
		locked    bool
	}{
		{"no prerequisites", "the-aura-of-sovereignty", nil, false},
		{"unmet prerequisite", "the-gateway-of-messages", nil, true},
		{"met prerequisite", "the-gateway-of-messages", map[string]bool{"the-aura-of-sovereignty": true}, false},
		{"unknown quest", "no-such-quest", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.IsQuestLocked(tt.questID, tt.completed); got != tt.locked {
				t.Errorf("IsQuestLocked(%q) = %v, want %v", tt.questID, got, tt.locked)
			}
		})
	}
}

func TestFileCatalog_SkipsMalformedFiles(t *testing.T) {
	dir := writeQuestFiles(t, map[string]string{
		"aura.yaml":   auraQuest,
		"broken.yaml": "{{not yaml",
		"no-id.yaml":  "name: Nameless",
	})

	c, err := New(dir, testLogger())
	if err != nil {
		t.Fatalf("Catalog should survive malformed files: %v", err)
	}
	if got := len(c.GetAllQuests()); got != 1 {
		t.Errorf("Expected 1 valid quest, got %d", got)
	}
}

func TestFileCatalog_ComingSoonHasDefaultStatusHandling(t *testing.T) {
	c := newTestCatalog(t)

	q := c.GetQuest("the-vault-of-shards")
	if q == nil {
		t.Fatal("Expected teaser quest in index")
	}
	if !q.IsComingSoon() {
		t.Error("Expected coming_soon status")
	}
}
