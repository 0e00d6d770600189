package quest

// QuestStatus indicates whether a quest is playable content.
type QuestStatus string

const (
	StatusAvailable  QuestStatus = "available"
	StatusComingSoon QuestStatus = "coming_soon"
)

// Position is a point in world coordinates.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Zone is an axis-aligned rectangle in world coordinates,
// used for exit zones that trigger chapter advancement.
type Zone struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// NPCRef describes the NPC present in a chapter.
type NPCRef struct {
	Name     string   `json:"name" yaml:"name"`
	Sprite   string   `json:"sprite,omitempty" yaml:"sprite,omitempty"`
	Position Position `json:"position" yaml:"position"`
}

// GoalRef describes the collectible goal of a chapter.
type GoalRef struct {
	Item     string   `json:"item" yaml:"item"`
	Position Position `json:"position" yaml:"position"`
}

// Reward describes what completing a quest grants.
type Reward struct {
	Achievement string `json:"achievement,omitempty" yaml:"achievement,omitempty"`
	Title       string `json:"title,omitempty" yaml:"title,omitempty"`
}

// Chapter is a single playable unit within a quest. Chapters are
// immutable catalog data; per-player state lives in the progress store.
type Chapter struct {
	ID      string `json:"id" yaml:"id"`
	QuestID string `json:"quest_id" yaml:"quest_id"`
	Index   int    `json:"index" yaml:"index"` // ordinal within the quest, 0-based
	Name    string `json:"name" yaml:"name"`
	Story   string `json:"story,omitempty" yaml:"story,omitempty"`

	Start    Position `json:"start" yaml:"start"` // hero spawn point
	ExitZone *Zone    `json:"exit_zone,omitempty" yaml:"exit_zone,omitempty"`
	NPC      *NPCRef  `json:"npc,omitempty" yaml:"npc,omitempty"`
	Goal     *GoalRef `json:"goal,omitempty" yaml:"goal,omitempty"`

	// ServiceContext selects the backend-simulation flavor the chapter
	// runs against ("monolith", "microservices", ...). Empty means keep
	// whatever is active.
	ServiceContext string `json:"service_context,omitempty" yaml:"service_context,omitempty"`
}

// HasExitZone reports whether the chapter advances via a walk-through zone.
func (c *Chapter) HasExitZone() bool {
	return c != nil && c.ExitZone != nil
}

// Quest is a top-level unit of content: an ordered list of chapters plus
// unlock prerequisites and a completion reward.
type Quest struct {
	ID            string      `json:"id" yaml:"id"`
	Name          string      `json:"name" yaml:"name"`
	Description   string      `json:"description,omitempty" yaml:"description,omitempty"`
	Status        QuestStatus `json:"status" yaml:"status"`
	Prerequisites []string    `json:"prerequisites,omitempty" yaml:"prerequisites,omitempty"`
	Reward        Reward      `json:"reward,omitempty" yaml:"reward,omitempty"`
	Chapters      []Chapter   `json:"chapters" yaml:"chapters"`
}

// ChapterIDs returns the ordered chapter id list.
func (q *Quest) ChapterIDs() []string {
	ids := make([]string, len(q.Chapters))
	for i, c := range q.Chapters {
		ids[i] = c.ID
	}
	return ids
}

// ChapterAt returns the chapter at the given 0-based index,
// or nil if the index is out of range.
func (q *Quest) ChapterAt(index int) *Chapter {
	if index < 0 || index >= len(q.Chapters) {
		return nil
	}
	return &q.Chapters[index]
}

// IndexOfChapter returns the 0-based index of the chapter id within the
// quest, or -1 if the chapter does not belong to this quest.
func (q *Quest) IndexOfChapter(chapterID string) int {
	for i, c := range q.Chapters {
		if c.ID == chapterID {
			return i
		}
	}
	return -1
}

// IsComingSoon reports whether the quest is a teaser entry with no
// playable content yet.
func (q *Quest) IsComingSoon() bool {
	return q.Status == StatusComingSoon
}
