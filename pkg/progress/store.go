package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/archquest/quest-engine/pkg/quest"
	"github.com/archquest/quest-engine/pkg/storage"
)

const defaultSaveKey = "progress"

// ErrUnknownQuest is returned by ResetQuestProgress when the quest has
// no catalog entry and the legacy prefix fallback is disabled.
var ErrUnknownQuest = errors.New("quest has no catalog entry")

// Store is the sole writer of persistent progression. Persistence is
// best-effort: a failed write leaves the in-memory state authoritative
// for the session and marks it dirty so the autosaver can retry.
type Store struct {
	mu      sync.Mutex
	adapter storage.Adapter
	catalog quest.Catalog
	logger  *slog.Logger

	saveKey   string
	seedQuest string
	// legacyPrefixReset enables chapter-id prefix matching when a quest
	// being reset has no catalog entry. Kept for saves produced before
	// the catalog covered every quest; new deployments should leave it
	// off and treat a catalog miss as a hard error.
	legacyPrefixReset bool

	state *State
	dirty bool
}

// StoreOption customizes Store construction.
type StoreOption func(*Store)

// WithSaveKey overrides the storage key holding the progression blob.
func WithSaveKey(key string) StoreOption {
	return func(s *Store) {
		if key != "" {
			s.saveKey = key
		}
	}
}

// WithSeedQuest sets the quest unlocked on a fresh save.
func WithSeedQuest(questID string) StoreOption {
	return func(s *Store) { s.seedQuest = questID }
}

// WithLegacyPrefixReset enables the pre-catalog prefix fallback in
// ResetQuestProgress.
func WithLegacyPrefixReset() StoreOption {
	return func(s *Store) { s.legacyPrefixReset = true }
}

// NewStore creates a progress store. Call Load before use.
func NewStore(adapter storage.Adapter, catalog quest.Catalog, logger *slog.Logger, opts ...StoreOption) *Store {
	s := &Store{
		adapter: adapter,
		catalog: catalog,
		logger:  logger,
		saveKey: defaultSaveKey,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.state = defaultState(s.seedQuest)
	return s
}

// Load reads the progression blob from storage. A missing blob yields a
// fresh default state; a present blob is merged field-by-field over the
// defaults so saves from older schema versions never surface nil
// collections. A corrupt blob is logged and replaced with defaults.
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := s.adapter.GetItem(ctx, s.saveKey)
	if err != nil {
		s.logger.Error("Failed to load progression, starting fresh", "error", err)
		s.state = defaultState(s.seedQuest)
		return
	}
	if blob == nil {
		s.state = defaultState(s.seedQuest)
		return
	}

	loaded := &State{}
	if err := json.Unmarshal(blob, loaded); err != nil {
		s.logger.Error("Corrupt progression blob, starting fresh", "error", err)
		s.state = defaultState(s.seedQuest)
		return
	}
	loaded.mergeDefaults(s.seedQuest)
	s.state = loaded
}

// Save writes the full progression blob. Fire-and-forget: storage
// errors are logged, the session keeps its in-memory state, and the
// dirty flag stays set for the autosaver to retry.
func (s *Store) Save(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveLocked(ctx)
}

func (s *Store) saveLocked(ctx context.Context) {
	blob, err := json.Marshal(s.state)
	if err != nil {
		s.logger.Error("Failed to marshal progression", "error", err)
		return
	}
	if err := s.adapter.SetItem(ctx, s.saveKey, blob); err != nil {
		s.logger.Error("Failed to persist progression, keeping in-memory state", "error", err)
		s.dirty = true
		return
	}
	s.dirty = false
}

// Dirty reports whether the in-memory state has unflushed changes.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// State returns a deep copy of the current progression.
func (s *Store) State() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// CompleteChapter records a chapter completion. Idempotent: an already
// completed chapter does not increment the counter again. On first
// completion the active quest is checked for full completion.
func (s *Store) CompleteChapter(ctx context.Context, chapterID string) {
	s.mu.Lock()

	if s.state.CompletedChapters.Has(chapterID) {
		s.mu.Unlock()
		return
	}
	s.state.CompletedChapters.Add(chapterID)
	s.state.Stats.ChaptersCompleted++
	s.dirty = true
	activeQuest := s.state.CurrentQuest
	s.saveLocked(ctx)
	s.mu.Unlock()

	if activeQuest != "" {
		s.checkQuestCompletion(ctx, activeQuest)
	}
}

// checkQuestCompletion promotes the quest to completed once every one
// of its chapters is.
func (s *Store) checkQuestCompletion(ctx context.Context, questID string) {
	q, err := s.catalog.LoadQuestData(ctx, questID)
	if err != nil {
		s.logger.Warn("Cannot check quest completion", "quest_id", questID, "error", err)
		return
	}
	if len(q.Chapters) == 0 {
		return
	}

	s.mu.Lock()
	done := true
	for _, c := range q.Chapters {
		if !s.state.CompletedChapters.Has(c.ID) {
			done = false
			break
		}
	}
	s.mu.Unlock()

	if done {
		s.CompleteQuest(ctx, questID)
	}
}

// CompleteQuest records a quest completion. Idempotent. First
// completion marks every chapter of the quest completed (covers the
// skip-ahead path), grants the reward achievement, and re-evaluates
// which quests become unlockable.
func (s *Store) CompleteQuest(ctx context.Context, questID string) {
	q, err := s.catalog.LoadQuestData(ctx, questID)
	if err != nil {
		s.logger.Warn("Cannot complete unknown quest", "quest_id", questID, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.CompletedQuests.Has(questID) {
		return
	}

	s.state.CompletedQuests.Add(questID)
	s.state.Stats.QuestsCompleted++

	for _, c := range q.Chapters {
		if !s.state.CompletedChapters.Has(c.ID) {
			s.state.CompletedChapters.Add(c.ID)
			s.state.Stats.ChaptersCompleted++
		}
	}

	if q.Reward.Achievement != "" {
		s.state.Achievements.Add(q.Reward.Achievement)
	}

	s.unlockEligibleQuestsLocked()
	s.dirty = true
	s.saveLocked(ctx)

	s.logger.Info("Quest completed", "quest_id", questID)
}

// unlockEligibleQuestsLocked walks the full catalog and unlocks every
// quest whose prerequisites are now satisfied. O(quests x
// prerequisites), fine at catalog scale.
func (s *Store) unlockEligibleQuestsLocked() {
	completed := map[string]bool(s.state.CompletedQuests)
	for _, q := range s.catalog.GetAllQuests() {
		if s.state.UnlockedQuests.Has(q.ID) {
			continue
		}
		if !s.catalog.IsQuestLocked(q.ID, completed) {
			s.state.UnlockedQuests.Add(q.ID)
			s.logger.Info("Quest unlocked", "quest_id", q.ID)
		}
	}
}

// ResetQuestProgress removes this quest's chapters from the completed
// set and this quest's keys from the chapter states, leaving every
// other quest untouched. The current-location pointers are cleared only
// if they referenced this quest.
func (s *Store) ResetQuestProgress(ctx context.Context, questID string) error {
	q, err := s.catalog.LoadQuestData(ctx, questID)
	if err != nil {
		if !s.legacyPrefixReset {
			s.logger.Error("Refusing to reset quest without catalog entry", "quest_id", questID, "error", err)
			return fmt.Errorf("%w: %s", ErrUnknownQuest, questID)
		}
		s.logger.Warn("Quest missing from catalog, falling back to prefix reset", "quest_id", questID)
		s.resetByPrefix(ctx, questID)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range q.Chapters {
		s.state.CompletedChapters.Remove(c.ID)
		delete(s.state.ChapterStates, c.ID)
	}
	s.clearLocationIfQuestLocked(questID)
	s.dirty = true
	s.saveLocked(ctx)
	return nil
}

// resetByPrefix is the legacy path: chapter ids historically embedded
// their quest id as a prefix.
func (s *Store) resetByPrefix(ctx context.Context, questID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := questID + "-"
	for _, id := range s.state.CompletedChapters.Values() {
		if strings.HasPrefix(id, prefix) {
			s.state.CompletedChapters.Remove(id)
		}
	}
	for id := range s.state.ChapterStates {
		if strings.HasPrefix(id, prefix) {
			delete(s.state.ChapterStates, id)
		}
	}
	s.clearLocationIfQuestLocked(questID)
	s.dirty = true
	s.saveLocked(ctx)
}

func (s *Store) clearLocationIfQuestLocked(questID string) {
	if s.state.CurrentQuest == questID {
		s.state.CurrentQuest = ""
		s.state.CurrentChapter = ""
	}
}

// ResetProgress wipes everything back to the default state. Used for
// "new game" and debug resets.
func (s *Store) ResetProgress(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = defaultState(s.seedQuest)
	s.dirty = true
	s.saveLocked(ctx)
	s.logger.Info("Progression reset to defaults")
}

// SetCurrentLocation persists the last active quest/chapter pair. Both
// empty means "in hub".
func (s *Store) SetCurrentLocation(ctx context.Context, questID, chapterID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.CurrentQuest = questID
	s.state.CurrentChapter = chapterID
	s.dirty = true
	s.saveLocked(ctx)
}

// CurrentLocation returns the persisted quest/chapter pair.
func (s *Store) CurrentLocation() (questID, chapterID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.CurrentQuest, s.state.CurrentChapter
}

// AddPlayTime adds elapsed play seconds to the lifetime counter.
func (s *Store) AddPlayTime(ctx context.Context, seconds int64) {
	if seconds <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Stats.TotalPlayTime += seconds
	s.dirty = true
	s.saveLocked(ctx)
}

// UnlockAchievement grants an achievement outside the quest-reward
// path (detector components use this for secrets).
func (s *Store) UnlockAchievement(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Achievements.Has(id) {
		return
	}
	s.state.Achievements.Add(id)
	s.dirty = true
	s.saveLocked(ctx)
}

// HasAchievement reports whether the achievement has been granted.
func (s *Store) HasAchievement(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Achievements.Has(id)
}

// IsQuestAvailable reports whether the quest exists, is playable
// content, and has all prerequisites met. Stored unlock flags do not
// override unmet prerequisites.
func (s *Store) IsQuestAvailable(questID string) bool {
	q := s.catalog.GetQuest(questID)
	if q == nil || q.IsComingSoon() {
		return false
	}
	s.mu.Lock()
	completed := map[string]bool(s.state.CompletedQuests)
	s.mu.Unlock()
	return !s.catalog.IsQuestLocked(questID, completed)
}

// IsQuestCompleted reports whether the quest has been completed.
func (s *Store) IsQuestCompleted(questID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.CompletedQuests.Has(questID)
}

// IsChapterCompleted reports whether the chapter has been completed.
func (s *Store) IsChapterCompleted(chapterID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.CompletedChapters.Has(chapterID)
}

// QuestProgress returns 0..100 percent of the quest's chapters
// completed. Unknown quests and chapterless quests report 0.
func (s *Store) QuestProgress(ctx context.Context, questID string) int {
	q, err := s.catalog.LoadQuestData(ctx, questID)
	if err != nil || len(q.Chapters) == 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	done := 0
	for _, c := range q.Chapters {
		if s.state.CompletedChapters.Has(c.ID) {
			done++
		}
	}
	return done * 100 / len(q.Chapters)
}

// OverallProgress returns 0..100 percent of the playable (non
// coming-soon) quests completed.
func (s *Store) OverallProgress() int {
	all := s.catalog.GetAllQuests()

	s.mu.Lock()
	defer s.mu.Unlock()
	total, done := 0, 0
	for _, q := range all {
		if q.IsComingSoon() {
			continue
		}
		total++
		if s.state.CompletedQuests.Has(q.ID) {
			done++
		}
	}
	if total == 0 {
		return 0
	}
	return done * 100 / total
}

// ChapterState returns a copy of the saved per-chapter state, or nil if
// none was saved.
func (s *Store) ChapterState(chapterID string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved, ok := s.state.ChapterStates[chapterID]
	if !ok {
		return nil
	}
	out := make(map[string]any, len(saved))
	for k, v := range saved {
		out[k] = v
	}
	return out
}

// SetChapterState merge-updates the saved per-chapter state. Existing
// keys not present in the patch survive; the map is never wholesale
// replaced.
func (s *Store) SetChapterState(ctx context.Context, chapterID string, patch map[string]any) {
	if len(patch) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	saved, ok := s.state.ChapterStates[chapterID]
	if !ok {
		saved = make(map[string]any, len(patch))
		s.state.ChapterStates[chapterID] = saved
	}
	for k, v := range patch {
		saved[k] = v
	}
	s.dirty = true
	s.saveLocked(ctx)
}
