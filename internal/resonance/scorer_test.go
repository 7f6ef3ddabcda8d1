package resonance

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/contextwave/cwme/internal/types"
)

func approxEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

// TestScore_SignalOnlyRetrieval scores a single candidate against a signal
// with no semantic embedding, exercising the non-semantic channels alone.
func TestScore_SignalOnlyRetrieval(t *testing.T) {
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	createdAt := now.Add(-10 * time.Hour)

	c1 := &types.Context{
		ID:        "C1",
		Nodes:     []types.Node{{Name: "Egor"}, {Name: "Kai"}, {Name: "code"}},
		Edges:     []types.Edge{{Source: "Egor", Target: "Kai", Relation: "criticized"}},
		Emotion:   types.EmotionHurt,
		Result:    types.ResultPositive,
		Level:     types.LevelEpisode,
		CreatedAt: createdAt,
	}

	sig := &types.WaveSignal{
		Nodes:     []string{"Egor", "code"},
		Relations: []string{"criticized"},
		Emotion:   types.EmotionHurt,
		Result:    types.ResultPositive,
	}

	s := New(func() time.Time { return now })
	scored := s.Score(sig, c1, now)

	if *scored.Breakdown.NodeOverlap != 1.0 {
		t.Fatalf("expected node overlap 1.0, got %v", *scored.Breakdown.NodeOverlap)
	}
	if *scored.Breakdown.RelationOverlap != 1.0 {
		t.Fatalf("expected relation overlap 1.0, got %v", *scored.Breakdown.RelationOverlap)
	}
	if *scored.Breakdown.EmotionMatch != 1.0 {
		t.Fatalf("expected emotion match 1.0, got %v", *scored.Breakdown.EmotionMatch)
	}
	if *scored.Breakdown.ResultMatch != 1.0 {
		t.Fatalf("expected result match 1.0, got %v", *scored.Breakdown.ResultMatch)
	}
	if !approxEqual(scored.Resonance, 0.53, 0.01) {
		t.Fatalf("expected resonance ~0.53, got %v", scored.Resonance)
	}
}

func TestScore_NoActiveChannelsYieldsZero(t *testing.T) {
	s := New(nil)
	now := time.Now()
	sig := &types.WaveSignal{MaxLevel: types.MaxLevel}
	c := &types.Context{ID: "c1", CreatedAt: now}
	scored := s.Score(sig, c, now)
	if scored.Resonance != 0 {
		t.Fatalf("expected 0 resonance with no active channels, got %v", scored.Resonance)
	}
}

func TestRecencySuppression_Monotonicity(t *testing.T) {
	now := time.Now()
	sig := &types.WaveSignal{Nodes: []string{"a"}}
	older := &types.Context{ID: "old", Nodes: []types.Node{{Name: "a"}}, CreatedAt: now.Add(-48 * time.Hour)}
	younger := &types.Context{ID: "new", Nodes: []types.Node{{Name: "a"}}, CreatedAt: now.Add(-5 * time.Minute)}

	s := New(func() time.Time { return now })
	older.ID, younger.ID = "old", "new"

	oldScore := s.Score(sig, older, now)
	newScore := s.Score(sig, younger, now)

	if oldScore.Resonance < newScore.Resonance {
		t.Fatalf("expected older context to resonate at least as strongly: old=%v new=%v", oldScore.Resonance, newScore.Resonance)
	}
}

func TestEmotionMatch_Valence(t *testing.T) {
	now := time.Now()
	sig := &types.WaveSignal{Emotion: types.EmotionJoy}
	samePolarity := &types.Context{ID: "c1", Emotion: types.EmotionPride, CreatedAt: now}
	opposite := &types.Context{ID: "c2", Emotion: types.EmotionAnger, CreatedAt: now}

	s := New(func() time.Time { return now })
	same := s.Score(sig, samePolarity, now)
	opp := s.Score(sig, opposite, now)

	if *same.Breakdown.EmotionMatch != 0.5 {
		t.Fatalf("expected same-valence match 0.5, got %v", *same.Breakdown.EmotionMatch)
	}
	if *opp.Breakdown.EmotionMatch != 0 {
		t.Fatalf("expected opposite-valence match 0, got %v", *opp.Breakdown.EmotionMatch)
	}
}

func TestDriveBiasBonus_Clamped(t *testing.T) {
	now := time.Now()
	sig := &types.WaveSignal{
		Nodes:     []string{"Egor"},
		DriveBias: map[string][]string{"connection": {"Egor"}},
	}
	c := &types.Context{
		ID:        "c1",
		Nodes:     []types.Node{{Name: "Egor"}},
		Level:     types.LevelPrinciple,
		CreatedAt: now.Add(-48 * time.Hour),
	}
	s := New(func() time.Time { return now })
	scored := s.Score(sig, c, now)
	if scored.Resonance > MaxResonance {
		t.Fatalf("expected resonance clamped to %v, got %v", MaxResonance, scored.Resonance)
	}
}

func TestScoreAll_PreservesOrder(t *testing.T) {
	now := time.Now()
	sig := &types.WaveSignal{Nodes: []string{"a"}}
	candidates := []*types.Context{
		{ID: "first", Nodes: []types.Node{{Name: "a"}}, CreatedAt: now},
		{ID: "second", Nodes: []types.Node{{Name: "b"}}, CreatedAt: now},
		{ID: "third", CreatedAt: now},
	}
	s := New(func() time.Time { return now })
	results, err := s.ScoreAll(context.Background(), sig, candidates)
	if err != nil {
		t.Fatalf("score all: %v", err)
	}
	for i, r := range results {
		if r.ContextID != candidates[i].ID {
			t.Fatalf("result %d: got %q, want %q", i, r.ContextID, candidates[i].ID)
		}
	}
}
