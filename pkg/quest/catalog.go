package quest

import (
	"context"
	"errors"
)

// Sentinel errors shared by catalog implementations and their callers.
var (
	ErrQuestNotFound   = errors.New("quest not found")
	ErrQuestLocked     = errors.New("quest is locked")
	ErrChapterNotFound = errors.New("chapter not found")
)

// Catalog is the read-only source of quest and chapter metadata.
// Implementations may index quests eagerly and fetch chapter lists
// lazily; catalog data never changes at runtime.
type Catalog interface {
	// GetQuest returns the quest by id, or nil if unknown. The returned
	// quest may have an empty chapter list if chapter data has not been
	// loaded yet; use LoadQuestData when chapters are required.
	GetQuest(id string) *Quest

	// GetAllQuests returns every quest in catalog order.
	GetAllQuests() []*Quest

	// LoadQuestData returns the quest with its full chapter list,
	// fetching lazily on first use. Returns ErrQuestNotFound for
	// unknown ids.
	LoadQuestData(ctx context.Context, id string) (*Quest, error)

	// IsQuestLocked reports whether the quest's prerequisites are not
	// all present in the completed set. Unknown quests are locked.
	IsQuestLocked(id string, completed map[string]bool) bool
}
