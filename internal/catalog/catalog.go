// Package catalog loads quest metadata from YAML files on disk. The
// quest index (id, name, status, prerequisites) is read eagerly at
// startup; chapter lists are parsed lazily on first use and memoized.
package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/archquest/quest-engine/pkg/quest"
)

// FileCatalog implements quest.Catalog over a directory of quest files.
type FileCatalog struct {
	dir    string
	logger *slog.Logger

	mu     sync.Mutex
	order  []string
	index  map[string]*quest.Quest // chapter lists empty until loaded
	files  map[string]string       // quest id -> file path
	loaded map[string]*quest.Quest // memoized full quests
}

// Ensure FileCatalog implements the catalog contract.
var _ quest.Catalog = (*FileCatalog)(nil)

// New scans dir for *.yaml quest files and indexes them. Malformed
// files are logged and skipped so one bad quest never takes the whole
// catalog down.
func New(dir string, logger *slog.Logger) (*FileCatalog, error) {
	c := &FileCatalog{
		dir:    dir,
		logger: logger,
		index:  make(map[string]*quest.Quest),
		files:  make(map[string]string),
		loaded: make(map[string]*quest.Quest),
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		q, err := parseQuestFile(path)
		if err != nil {
			logger.Warn("Skipping malformed quest file", "path", path, "error", err)
			return nil
		}
		if _, dup := c.files[q.ID]; dup {
			logger.Warn("Duplicate quest id, keeping first", "quest_id", q.ID, "path", path)
			return nil
		}

		// Index entry carries metadata only; chapters load lazily.
		head := *q
		head.Chapters = nil
		c.order = append(c.order, q.ID)
		c.index[q.ID] = &head
		c.files[q.ID] = path
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan quest directory %s: %w", dir, err)
	}

	logger.Info("Quest catalog indexed", "dir", dir, "quests", len(c.order))
	return c, nil
}

func parseQuestFile(path string) (*quest.Quest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read quest file: %w", err)
	}

	var q quest.Quest
	if err := yaml.Unmarshal(raw, &q); err != nil {
		return nil, fmt.Errorf("failed to unmarshal quest file: %w", err)
	}
	if q.ID == "" {
		return nil, fmt.Errorf("quest file %s has no id", filepath.Base(path))
	}
	if q.Status == "" {
		q.Status = quest.StatusAvailable
	}

	for i := range q.Chapters {
		q.Chapters[i].QuestID = q.ID
		q.Chapters[i].Index = i
	}
	return &q, nil
}

func (c *FileCatalog) GetQuest(id string) *quest.Quest {
	c.mu.Lock()
	defer c.mu.Unlock()
	if full, ok := c.loaded[id]; ok {
		return full
	}
	return c.index[id]
}

func (c *FileCatalog) GetAllQuests() []*quest.Quest {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*quest.Quest, 0, len(c.order))
	for _, id := range c.order {
		if full, ok := c.loaded[id]; ok {
			out = append(out, full)
			continue
		}
		out = append(out, c.index[id])
	}
	return out
}

func (c *FileCatalog) LoadQuestData(ctx context.Context, id string) (*quest.Quest, error) {
	c.mu.Lock()
	if full, ok := c.loaded[id]; ok {
		c.mu.Unlock()
		return full, nil
	}
	path, ok := c.files[id]
	c.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", quest.ErrQuestNotFound, id)
	}

	q, err := parseQuestFile(path)
	if err != nil {
		c.logger.Error("Failed to load quest data", "quest_id", id, "error", err)
		return nil, fmt.Errorf("failed to load quest %s: %w", id, err)
	}

	c.mu.Lock()
	c.loaded[id] = q
	c.mu.Unlock()

	c.logger.Debug("Quest data loaded", "quest_id", id, "chapters", len(q.Chapters))
	return q, nil
}

func (c *FileCatalog) IsQuestLocked(id string, completed map[string]bool) bool {
	q := c.GetQuest(id)
	if q == nil {
		return true
	}
	for _, prereq := range q.Prerequisites {
		if !completed[prereq] {
			return true
		}
	}
	return false
}
