package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/archquest/quest-engine/pkg/progress"
	"github.com/archquest/quest-engine/pkg/quest"
)

// Navigation errors surfaced to the orchestrator.
var (
	ErrNoActiveQuest = errors.New("no active quest")
	ErrNoNextChapter = errors.New("no next chapter")
	ErrEmptyQuest    = errors.New("quest has no chapters")
)

// ChapterData is the materialized view of the current chapter, derived
// from the catalog plus the chapter index.
type ChapterData struct {
	Chapter         *quest.Chapter
	Number          int // 1-based, for display
	Total           int
	IsQuestComplete bool // the current chapter is the last one
}

// NavState is a snapshot of the navigator for callers.
type NavState struct {
	Quest   *quest.Quest
	Index   int // 0-based chapter index
	Chapter *ChapterData
}

// Navigator is the quest navigation state machine: Idle (no quest) or
// Active (quest plus chapter index). It derives chapter data from the
// catalog, persists the current location through the progress store,
// and emits nothing itself; the orchestrator owns event publication.
type Navigator struct {
	mu       sync.Mutex
	catalog  quest.Catalog
	progress *progress.Store
	logger   *slog.Logger

	current *quest.Quest
	index   int
}

// NewNavigator creates an idle navigator.
func NewNavigator(catalog quest.Catalog, store *progress.Store, logger *slog.Logger) *Navigator {
	return &Navigator{
		catalog:  catalog,
		progress: store,
		logger:   logger,
		index:    -1,
	}
}

// StartQuest loads the quest from scratch: any prior progress for this
// quest is reset first, so "Start" always means chapter one even after
// a partial playthrough. Unknown or locked quests fail with an error
// and no state change; callers wanting a user-facing message must check
// availability before invoking.
func (n *Navigator) StartQuest(ctx context.Context, questID string) (*ChapterData, error) {
	if !n.progress.IsQuestAvailable(questID) {
		n.logger.Warn("Cannot start unavailable quest", "quest_id", questID)
		return nil, fmt.Errorf("%w: %s", quest.ErrQuestLocked, questID)
	}

	q, err := n.catalog.LoadQuestData(ctx, questID)
	if err != nil {
		n.logger.Warn("Cannot start unknown quest", "quest_id", questID, "error", err)
		return nil, err
	}
	if len(q.Chapters) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyQuest, questID)
	}

	if err := n.progress.ResetQuestProgress(ctx, questID); err != nil {
		return nil, fmt.Errorf("failed to reset quest before start: %w", err)
	}

	n.mu.Lock()
	n.current = q
	n.index = 0
	data := n.chapterDataLocked()
	n.mu.Unlock()

	n.progress.SetCurrentLocation(ctx, q.ID, data.Chapter.ID)
	n.logger.Info("Quest started", "quest_id", q.ID, "chapter_id", data.Chapter.ID)
	return data, nil
}

// ContinueQuest loads the quest at its resume point: the first chapter
// not marked completed, or chapter one when none are. This is the
// canonical resume rule; the last-visited chapter is deliberately not
// used.
func (n *Navigator) ContinueQuest(ctx context.Context, questID string) (*ChapterData, error) {
	if !n.progress.IsQuestAvailable(questID) {
		n.logger.Warn("Cannot continue unavailable quest", "quest_id", questID)
		return nil, fmt.Errorf("%w: %s", quest.ErrQuestLocked, questID)
	}

	q, err := n.catalog.LoadQuestData(ctx, questID)
	if err != nil {
		n.logger.Warn("Cannot continue unknown quest", "quest_id", questID, "error", err)
		return nil, err
	}
	if len(q.Chapters) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyQuest, questID)
	}

	resume := 0
	for i, c := range q.Chapters {
		if !n.progress.IsChapterCompleted(c.ID) {
			resume = i
			break
		}
	}

	n.mu.Lock()
	n.current = q
	n.index = resume
	data := n.chapterDataLocked()
	n.mu.Unlock()

	n.progress.SetCurrentLocation(ctx, q.ID, data.Chapter.ID)
	n.logger.Info("Quest continued", "quest_id", q.ID, "chapter_id", data.Chapter.ID, "index", resume)
	return data, nil
}

// JumpToChapter moves to a chapter of the currently loaded quest. Deep
// links use this; the boolean return lets callers fall back to
// ContinueQuest. Membership in the active quest is the only check:
// callers needing completion gating of earlier chapters must enforce it
// themselves.
func (n *Navigator) JumpToChapter(ctx context.Context, chapterID string) bool {
	n.mu.Lock()
	if n.current == nil {
		n.mu.Unlock()
		n.logger.Warn("Cannot jump without an active quest", "chapter_id", chapterID)
		return false
	}
	idx := n.current.IndexOfChapter(chapterID)
	if idx < 0 {
		questID := n.current.ID
		n.mu.Unlock()
		n.logger.Warn("Chapter does not belong to active quest", "chapter_id", chapterID, "quest_id", questID)
		return false
	}
	n.index = idx
	questID := n.current.ID
	n.mu.Unlock()

	n.progress.SetCurrentLocation(ctx, questID, chapterID)
	n.logger.Info("Jumped to chapter", "quest_id", questID, "chapter_id", chapterID)
	return true
}

// NextChapter advances to the following chapter. Valid only when
// HasNextChapter.
func (n *Navigator) NextChapter(ctx context.Context) (*ChapterData, error) {
	n.mu.Lock()
	if n.current == nil {
		n.mu.Unlock()
		return nil, ErrNoActiveQuest
	}
	if n.index+1 >= len(n.current.Chapters) {
		n.mu.Unlock()
		return nil, ErrNoNextChapter
	}
	n.index++
	data := n.chapterDataLocked()
	questID := n.current.ID
	n.mu.Unlock()

	n.progress.SetCurrentLocation(ctx, questID, data.Chapter.ID)
	return data, nil
}

// CompleteChapter records the current chapter as completed, then either
// advances to the next chapter or, on the last one, completes the
// quest. This is the fork point between "more content" and "quest
// finished". The returned data is the new chapter after an advance, or
// the final chapter with IsQuestComplete set when the quest finished.
func (n *Navigator) CompleteChapter(ctx context.Context) (data *ChapterData, questDone bool, err error) {
	n.mu.Lock()
	if n.current == nil {
		n.mu.Unlock()
		return nil, false, ErrNoActiveQuest
	}
	chapter := n.current.ChapterAt(n.index)
	questID := n.current.ID
	last := n.index == len(n.current.Chapters)-1
	n.mu.Unlock()

	n.progress.CompleteChapter(ctx, chapter.ID)

	if !last {
		next, err := n.NextChapter(ctx)
		if err != nil {
			return nil, false, err
		}
		return next, false, nil
	}

	// Redundant when the progress store's own completion check already
	// fired, but the store is idempotent and this covers quests whose
	// current-location pointer was cleared mid-run.
	n.progress.CompleteQuest(ctx, questID)

	n.mu.Lock()
	data = n.chapterDataLocked()
	n.mu.Unlock()
	n.logger.Info("Quest finished", "quest_id", questID)
	return data, true, nil
}

// ReturnToHub leaves the quest: navigation resets to idle and the
// persisted location becomes "in hub".
func (n *Navigator) ReturnToHub(ctx context.Context) {
	n.mu.Lock()
	n.current = nil
	n.index = -1
	n.mu.Unlock()

	n.progress.SetCurrentLocation(ctx, "", "")
	n.logger.Info("Returned to hub")
}

// Current returns a snapshot, or nil when idle.
func (n *Navigator) Current() *NavState {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return nil
	}
	return &NavState{
		Quest:   n.current,
		Index:   n.index,
		Chapter: n.chapterDataLocked(),
	}
}

// HasNextChapter reports whether a chapter follows the current one.
func (n *Navigator) HasNextChapter() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current != nil && n.index+1 < len(n.current.Chapters)
}

// IsLastChapter reports whether the current chapter is the quest's
// final one.
func (n *Navigator) IsLastChapter() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current != nil && n.index == len(n.current.Chapters)-1
}

// HasExitZone reports whether the current chapter advances through a
// walk-through zone.
func (n *Navigator) HasExitZone() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return false
	}
	return n.current.ChapterAt(n.index).HasExitZone()
}

// CurrentChapterNumber returns the 1-based chapter number for display,
// or 0 when idle.
func (n *Navigator) CurrentChapterNumber() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return 0
	}
	return n.index + 1
}

// TotalChapters returns the active quest's chapter count, or 0 when
// idle.
func (n *Navigator) TotalChapters() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return 0
	}
	return len(n.current.Chapters)
}

func (n *Navigator) chapterDataLocked() *ChapterData {
	return &ChapterData{
		Chapter:         n.current.ChapterAt(n.index),
		Number:          n.index + 1,
		Total:           len(n.current.Chapters),
		IsQuestComplete: n.index == len(n.current.Chapters)-1,
	}
}
