package diversity

import (
	"testing"
	"time"

	"github.com/contextwave/cwme/internal/resonance"
	"github.com/contextwave/cwme/internal/types"
)

func nodeCtx(id string, emotion types.Emotion, res float64, nodes ...string) (*types.Context, resonance.Scored) {
	var ns []types.Node
	for _, n := range nodes {
		ns = append(ns, types.Node{Name: n})
	}
	ctx := &types.Context{
		ID:        id,
		Nodes:     ns,
		Emotion:   emotion,
		Level:     types.LevelEpisode,
		CreatedAt: time.Now(),
	}
	return ctx, resonance.Scored{ContextID: id, Resonance: res}
}

// TestSelect_PerEmotionCap covers the per-emotion survivor cap.
func TestSelect_PerEmotionCap(t *testing.T) {
	byID := make(map[string]*types.Context)
	var scored []resonance.Scored

	specs := []struct {
		id      string
		emotion types.Emotion
		res     float64
	}{
		{"dread", "existential dread", 0.9},
		{"fear", "existential fear", 0.8},
		{"doubt", "existential doubt", 0.7},
		{"joy1", types.EmotionJoy, 0.6},
		{"joy2", types.EmotionJoy, 0.5},
	}
	for _, s := range specs {
		ctx, sc := nodeCtx(s.id, s.emotion, s.res, "A", "B", "C")
		byID[s.id] = ctx
		scored = append(scored, sc)
	}

	results := Select(scored, byID, Options{K: 4, PerEmotionCap: 2, TauMMR: 1.0})

	if len(results) > 4 {
		t.Fatalf("expected at most 4 results, got %d", len(results))
	}

	counts := make(map[string]int)
	for _, r := range results {
		counts[r.Context.Emotion.FirstWord()]++
	}
	if counts["existential"] > 2 {
		t.Fatalf("expected at most 2 existential survivors, got %d", counts["existential"])
	}
	if counts["joy"] > 2 {
		t.Fatalf("expected at most 2 joy survivors, got %d", counts["joy"])
	}
}

// TestSelect_MMRDropsOverlappingDuplicate verifies MMR's node-overlap bound.
func TestSelect_MMRDropsOverlappingDuplicate(t *testing.T) {
	byID := make(map[string]*types.Context)
	c1, s1 := nodeCtx("c1", types.EmotionJoy, 0.9, "A", "B", "C")
	c2, s2 := nodeCtx("c2", types.EmotionJoy, 0.85, "A", "B", "C")
	byID[c1.ID] = c1
	byID[c2.ID] = c2

	results := Select([]resonance.Scored{s1, s2}, byID, Options{K: 5, TauMMR: 0.6, PerEmotionCap: 5})

	if len(results) != 1 {
		t.Fatalf("expected MMR to drop the fully-overlapping duplicate, got %d results", len(results))
	}
	if results[0].Context.ID != "c1" {
		t.Fatalf("expected the higher-resonance context to survive, got %q", results[0].Context.ID)
	}
}

// TestSelect_MMRRelaxesWhenNothingQualifies verifies MMR's step-down behavior:
// when every remaining candidate overlaps beyond tau, the requirement is
// relaxed in 0.1 steps rather than discarding everything.
func TestSelect_MMRRelaxesWhenNothingQualifies(t *testing.T) {
	byID := make(map[string]*types.Context)
	c1, s1 := nodeCtx("c1", types.EmotionJoy, 0.9, "A", "B", "C", "D", "E")
	c2, s2 := nodeCtx("c2", types.EmotionJoy, 0.8, "A", "B", "C", "D")
	byID[c1.ID] = c1
	byID[c2.ID] = c2

	results := Select([]resonance.Scored{s1, s2}, byID, Options{K: 5, TauMMR: 0.1, PerEmotionCap: 5})

	if len(results) != 2 {
		t.Fatalf("expected tau relaxation to admit the second candidate, got %d results", len(results))
	}
}

func TestSelect_ResonanceFloorDrops(t *testing.T) {
	byID := make(map[string]*types.Context)
	c1, s1 := nodeCtx("c1", types.EmotionJoy, 0.05, "A")
	byID[c1.ID] = c1

	results := Select([]resonance.Scored{s1}, byID, Options{K: 5, RMin: 0.1})
	if len(results) != 0 {
		t.Fatalf("expected resonance floor to drop the candidate, got %v", results)
	}
}

func TestSelect_DeterministicOrder(t *testing.T) {
	byID := make(map[string]*types.Context)
	c1, s1 := nodeCtx("c1", types.EmotionJoy, 0.5, "A")
	c2, s2 := nodeCtx("c2", types.EmotionJoy, 0.5, "B")
	byID[c1.ID] = c1
	byID[c2.ID] = c2

	opts := Options{K: 5, TauMMR: 1.0, PerEmotionCap: 5}
	r1 := Select([]resonance.Scored{s2, s1}, byID, opts)
	r2 := Select([]resonance.Scored{s1, s2}, byID, opts)

	if len(r1) != len(r2) {
		t.Fatalf("expected identical result sizes, got %d and %d", len(r1), len(r2))
	}
	for i := range r1 {
		if r1[i].Context.ID != r2[i].Context.ID {
			t.Fatalf("expected identical order regardless of input order, got %v vs %v", r1, r2)
		}
	}
	if r1[0].Context.ID != "c1" {
		t.Fatalf("expected tie broken by id asc, got %q first", r1[0].Context.ID)
	}
}

func TestSelect_LevelFairness(t *testing.T) {
	byID := make(map[string]*types.Context)

	l0, s0 := nodeCtx("l0", types.EmotionJoy, 0.4, "X")
	byID[l0.ID] = l0

	l1 := &types.Context{ID: "l1", Emotion: types.EmotionJoy, Level: types.LevelGeneralization, CreatedAt: time.Now()}
	byID[l1.ID] = l1
	s1 := resonance.Scored{ContextID: "l1", Resonance: 0.9}

	// tau 0 forces L0 out via MMR disjoint node set collision never
	// happens here (different node sets), so emulate "no L0 survived"
	// purely via a tight K and ordering: L1 alone would win without
	// fairness.
	results := Select([]resonance.Scored{s1, s0}, byID, Options{K: 1, PerEmotionCap: 5, TauMMR: 1.0, LevelFairness: true})

	hasL0 := false
	for _, r := range results {
		if r.Context.Level == types.LevelEpisode {
			hasL0 = true
		}
	}
	if !hasL0 {
		t.Fatalf("expected level fairness to guarantee an L0 survivor, got %v", results)
	}
}
