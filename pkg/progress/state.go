package progress

import (
	"encoding/json"
	"sort"
)

// Set is a string set that serializes as a sorted JSON array, so saved
// blobs are stable across sessions and trivially diffable.
type Set map[string]bool

// NewSet builds a set from the given ids.
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

func (s Set) Has(id string) bool { return s[id] }

func (s Set) Add(id string) { s[id] = true }

func (s Set) Remove(id string) { delete(s, id) }

func (s Set) Len() int { return len(s) }

// Values returns the members in sorted order.
func (s Set) Values() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for id := range s {
		out[id] = true
	}
	return out
}

func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewSet(ids...)
	return nil
}

// Stats are lifetime counters. They only ever increment; replaying a
// reset quest counts again toward the totals.
type Stats struct {
	TotalPlayTime     int64 `json:"totalPlayTime"` // seconds
	QuestsCompleted   int   `json:"questsCompleted"`
	ChaptersCompleted int   `json:"chaptersCompleted"`
}

// State is the persistent progression blob, one per player/device. It is
// stored as a single JSON value under the store's save key.
type State struct {
	CompletedQuests   Set                       `json:"completedQuests"`
	CompletedChapters Set                       `json:"completedChapters"`
	UnlockedQuests    Set                       `json:"unlockedQuests"`
	Achievements      Set                       `json:"achievements"`
	CurrentQuest      string                    `json:"currentQuest,omitempty"`
	CurrentChapter    string                    `json:"currentChapter,omitempty"`
	Stats             Stats                     `json:"stats"`
	ChapterStates     map[string]map[string]any `json:"chapterStates"`
}

// defaultState synthesizes a fresh progression with the starting quest
// unlocked and everything else empty.
func defaultState(seedQuest string) *State {
	s := &State{
		CompletedQuests:   NewSet(),
		CompletedChapters: NewSet(),
		UnlockedQuests:    NewSet(),
		Achievements:      NewSet(),
		ChapterStates:     make(map[string]map[string]any),
	}
	if seedQuest != "" {
		s.UnlockedQuests.Add(seedQuest)
	}
	return s
}

// mergeDefaults fills any field missing from an older save with its
// default, so a schema upgrade never surfaces nil collections.
func (s *State) mergeDefaults(seedQuest string) {
	if s.CompletedQuests == nil {
		s.CompletedQuests = NewSet()
	}
	if s.CompletedChapters == nil {
		s.CompletedChapters = NewSet()
	}
	if s.UnlockedQuests == nil {
		s.UnlockedQuests = NewSet()
	}
	if s.Achievements == nil {
		s.Achievements = NewSet()
	}
	if s.ChapterStates == nil {
		s.ChapterStates = make(map[string]map[string]any)
	}
	if seedQuest != "" {
		s.UnlockedQuests.Add(seedQuest)
	}
}

// Clone returns a deep copy, so callers can inspect progression without
// holding the store's lock.
func (s *State) Clone() *State {
	out := &State{
		CompletedQuests:   s.CompletedQuests.Clone(),
		CompletedChapters: s.CompletedChapters.Clone(),
		UnlockedQuests:    s.UnlockedQuests.Clone(),
		Achievements:      s.Achievements.Clone(),
		CurrentQuest:      s.CurrentQuest,
		CurrentChapter:    s.CurrentChapter,
		Stats:             s.Stats,
		ChapterStates:     make(map[string]map[string]any, len(s.ChapterStates)),
	}
	for chapterID, values := range s.ChapterStates {
		copied := make(map[string]any, len(values))
		for k, v := range values {
			copied[k] = v
		}
		out.ChapterStates[chapterID] = copied
	}
	return out
}
