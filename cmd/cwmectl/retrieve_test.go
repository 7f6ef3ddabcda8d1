package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/contextwave/cwme/internal/store"
	"github.com/contextwave/cwme/internal/store/memory"
	"github.com/contextwave/cwme/internal/types"
	"github.com/contextwave/cwme/internal/vectorindex"
)

func TestCandidatesFor_WidensWithSemanticShortlist(t *testing.T) {
	ctx := context.Background()
	st := memory.New(store.DefaultOptions(), nil)
	defer st.Close()

	idx, err := vectorindex.Open(ctx, filepath.Join(t.TempDir(), "vectors.sqlite3"))
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	defer idx.Close()
	st.SetIndex(idx)

	emb := make(types.Embedding, vectorindex.EmbeddingDim)
	emb[0] = 1

	// No shared nodes/relations with the query signal; it is still a
	// candidate, since the level-capped scan returns every context at or
	// below the cap, and it is also the semantic shortlist's nearest match.
	semanticOnly, err := st.Put(ctx, &types.Draft{Description: "semantic match", Embedding: emb})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	nodeMatch, err := st.Put(ctx, &types.Draft{Description: "node match", Nodes: []types.Node{{Name: "Egor"}}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	snap, err := st.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	sig := &types.WaveSignal{Nodes: []string{"Egor"}, Embedding: emb, MaxLevel: types.MaxLevel}
	candidates := candidatesFor(ctx, snap, sig, st.Index())

	ids := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		ids[c.ID] = true
	}
	if !ids[nodeMatch.ID] {
		t.Fatalf("expected level-capped scan to include %q", nodeMatch.ID)
	}
	if !ids[semanticOnly.ID] {
		t.Fatalf("expected semantic shortlist to widen candidates with %q", semanticOnly.ID)
	}
}

func TestCandidatesFor_NilIndexFallsBackToScan(t *testing.T) {
	ctx := context.Background()
	st := memory.New(store.DefaultOptions(), nil)
	defer st.Close()

	created, err := st.Put(ctx, &types.Draft{Description: "episode", Nodes: []types.Node{{Name: "Egor"}}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	snap, err := st.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	sig := &types.WaveSignal{Nodes: []string{"Egor"}, MaxLevel: types.MaxLevel}
	candidates := candidatesFor(ctx, snap, sig, nil)
	if len(candidates) != 1 || candidates[0].ID != created.ID {
		t.Fatalf("expected the level-capped scan alone, got %+v", candidates)
	}
}
