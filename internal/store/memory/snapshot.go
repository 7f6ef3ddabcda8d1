package memory

import (
	"sort"
	"time"

	"github.com/contextwave/cwme/internal/store"
	"github.com/contextwave/cwme/internal/types"
)

// snapshot is an immutable read view. It satisfies both store.Snapshot and
// types.Lookup; the zero value with only byID populated (no ordered slice)
// is used internally by Store.Put to validate a draft against the current
// write-locked state without paying for a full copy.
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
	for _, c := range s.iterate() {
		if c.Level == l {
			out = append(out, c)
		}
	}
	return out
}

func (s *snapshot) ScanLevelAtMost(cap types.Level) []*types.Context {
	var out []*types.Context
	for _, c := range s.iterate() {
		if c.Level <= cap {
			out = append(out, c)
		}
	}
	return out
}

func (s *snapshot) ByNode(name string) []string {
	var out []string
	for _, c := range s.iterate() {
		if _, ok := c.NodeSet()[name]; ok {
			out = append(out, c.ID)
		}
	}
	return out
}

func (s *snapshot) ByRelation(relation string) []string {
	var out []string
	for _, c := range s.iterate() {
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
	for _, c := range s.iterate() {
		if c.Emotion == e {
			out = append(out, c.ID)
		}
	}
	return out
}

// Unconsolidated returns every L0/L1 context not named as a source by any
// other stored context.
func (s *snapshot) Unconsolidated() []*types.Context {
	referenced := make(map[string]struct{})
	for _, c := range s.iterate() {
		for _, src := range c.Sources {
			referenced[src] = struct{}{}
		}
	}

	var out []*types.Context
	for _, c := range s.iterate() {
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

// iterate returns contexts in a deterministic order (created_at asc, id
// asc), falling back to a sort over the map when ordered wasn't populated
// (the write-path validation view).
func (s *snapshot) iterate() []*types.Context {
	if s.ordered != nil {
		return s.ordered
	}
	out := make([]*types.Context, 0, len(s.byID))
	for _, c := range s.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
