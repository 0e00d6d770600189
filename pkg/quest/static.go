package quest

import (
	"context"
	"fmt"
)

// StaticCatalog serves a fixed quest list from memory. Used by tests
// and by builds that compile their content in instead of shipping data
// files.
type StaticCatalog struct {
	order  []string
	quests map[string]*Quest
}

// Ensure StaticCatalog implements Catalog.
var _ Catalog = (*StaticCatalog)(nil)

// NewStaticCatalog builds a catalog from fully-loaded quests. Chapter
// QuestID and Index fields are filled in from position.
func NewStaticCatalog(quests ...*Quest) *StaticCatalog {
	c := &StaticCatalog{quests: make(map[string]*Quest, len(quests))}
	for _, q := range quests {
		for i := range q.Chapters {
			q.Chapters[i].QuestID = q.ID
			q.Chapters[i].Index = i
		}
		c.order = append(c.order, q.ID)
		c.quests[q.ID] = q
	}
	return c
}

func (c *StaticCatalog) GetQuest(id string) *Quest {
	return c.quests[id]
}

func (c *StaticCatalog) GetAllQuests() []*Quest {
	out := make([]*Quest, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.quests[id])
	}
	return out
}

func (c *StaticCatalog) LoadQuestData(ctx context.Context, id string) (*Quest, error) {
	q, ok := c.quests[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrQuestNotFound, id)
	}
	return q, nil
}

func (c *StaticCatalog) IsQuestLocked(id string, completed map[string]bool) bool {
	q, ok := c.quests[id]
	if !ok {
		return true
	}
	for _, prereq := range q.Prerequisites {
		if !completed[prereq] {
			return true
		}
	}
	return false
}
