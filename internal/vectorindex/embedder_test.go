package vectorindex

import (
	"context"
	"testing"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder()
	a, err := e.Embed(context.Background(), "Egor criticized my code")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	b, err := e.Embed(context.Background(), "Egor criticized my code")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if CosineSimilarity(a, b) < 0.999 {
		t.Fatalf("expected identical text to embed identically, got similarity %f", CosineSimilarity(a, b))
	}
}

func TestHashEmbedder_DistinctText(t *testing.T) {
	e := NewHashEmbedder()
	a, _ := e.Embed(context.Background(), "Egor criticized my code")
	b, _ := e.Embed(context.Background(), "the weather is nice today")
	if CosineSimilarity(a, b) > 0.5 {
		t.Fatalf("expected unrelated text to have low similarity, got %f", CosineSimilarity(a, b))
	}
}

func TestCosineSimilarity_DimensionMismatch(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}); got != 0 {
		t.Fatalf("expected 0 for mismatched dimensions, got %f", got)
	}
}

func TestCosineSimilarity_Empty(t *testing.T) {
	if got := CosineSimilarity(nil, []float32{1}); got != 0 {
		t.Fatalf("expected 0 for empty vector, got %f", got)
	}
}
