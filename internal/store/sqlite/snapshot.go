package sqlite

import (
	"time"

	"github.com/contextwave/cwme/internal/store"
	"github.com/contextwave/cwme/internal/types"
)

// snapshot is a read view loaded wholesale from the database at Snapshot
// time. The engine's working set (thousands of contexts, §9) comfortably
// fits in memory; this trades a full table scan per snapshot for simple,
// correct isolation.
type snapshot struct {
	byID    map[string]*types.Context
	ordered []*types.Context
	takenAt time.Time
}

var _ store.Snapshot = (*snapshot)(nil)

func (s *snapshot) Get(id string) (*types.Context, bool) {
	c, ok := s.byID[id]
	return c, ok
}

func (s *snapshot) SameLevel(l types.Level) []*types.Context {
	return s.ScanLevel(l)
}

func (s *snapshot) ScanLevel(l types.Level) []*types.Context {
	var out []*types.Context
	for _, c := range s.ordered {
		if c.Level == l {
			out = append(out, c)
		}
	}
	return out
}

func (s *snapshot) ScanLevelAtMost(cap types.Level) []*types.Context {
	var out []*types.Context
	for _, c := range s.ordered {
		if c.Level <= cap {
			out = append(out, c)
		}
	}
	return out
}

func (s *snapshot) ByNode(name string) []string {
	var out []string
	for _, c := range s.ordered {
		if _, ok := c.NodeSet()[name]; ok {
			out = append(out, c.ID)
		}
	}
	return out
}

func (s *snapshot) ByRelation(relation string) []string {
	var out []string
	for _, c := range s.ordered {
		for _, e := range c.Edges {
			if e.Relation == relation {
				out = append(out, c.ID)
				break
			}
		}
	}
	return out
}

func (s *snapshot) ByEmotion(e types.Emotion) []string {
	var out []string
	for _, c := range s.ordered {
		if c.Emotion == e {
			out = append(out, c.ID)
		}
	}
	return out
}

func (s *snapshot) Unconsolidated() []*types.Context {
	referenced := make(map[string]struct{})
	for _, c := range s.ordered {
		for _, src := range c.Sources {
			referenced[src] = struct{}{}
		}
	}

	var out []*types.Context
	for _, c := range s.ordered {
		if c.Level > types.LevelGeneralization {
			continue
		}
		if _, ok := referenced[c.ID]; ok {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (s *snapshot) Len() int {
	return len(s.byID)
}

func (s *snapshot) TakenAt() time.Time {
	return s.takenAt
}
