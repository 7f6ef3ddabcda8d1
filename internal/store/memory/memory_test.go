package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/contextwave/cwme/internal/store"
	"github.com/contextwave/cwme/internal/types"
	"github.com/contextwave/cwme/internal/vectorindex"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(store.DefaultOptions(), nil)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created, err := s.Put(ctx, &types.Draft{
		Description: "Egor criticized my PR",
		Nodes:       []types.Node{{Name: "Egor"}, {Name: "PR"}},
		Edges:       []types.Edge{{Source: "Egor", Target: "PR", Relation: "criticized"}},
		RawEmotion:  "hurt",
		Intensity:   0.7,
		Result:      types.ResultNegative,
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated id")
	}
	if created.Emotion != types.EmotionHurt {
		t.Fatalf("expected normalized emotion hurt, got %q", created.Emotion)
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Description != created.Description {
		t.Fatalf("got %q, want %q", got.Description, created.Description)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPut_RejectsInvariantViolation(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Put(context.Background(), &types.Draft{
		Level:   types.LevelGeneralization,
		Sources: []string{"does-not-exist"},
	})
	var ie *types.InvariantError
	if !errors.As(err, &ie) || ie.Which != "sources" {
		t.Fatalf("expected sources violation, got %v", err)
	}
}

func TestPut_DedupKey(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Put(ctx, &types.Draft{Description: "first", DedupKey: "op-1"})
	if err != nil {
		t.Fatalf("first put: %v", err)
	}
	_, err = s.Put(ctx, &types.Draft{Description: "second", DedupKey: "op-1"})
	if !errors.Is(err, types.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestSnapshot_IsolatedFromLaterWrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Put(ctx, &types.Draft{Description: "before"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	_, err = s.Put(ctx, &types.Draft{Description: "after"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	if snap.Len() != 1 {
		t.Fatalf("expected snapshot to see 1 context, got %d", snap.Len())
	}
}

func TestUnconsolidated_ExcludesReferencedSources(t *testing.T) {
	ctx := context.Background()
	s := New(store.DefaultOptions(), nil)
	t.Cleanup(func() { s.Close() })

	a, err := s.Put(ctx, &types.Draft{Description: "episode a", Nodes: []types.Node{{Name: "X"}}})
	if err != nil {
		t.Fatalf("put a: %v", err)
	}
	b, err := s.Put(ctx, &types.Draft{Description: "episode b", Nodes: []types.Node{{Name: "Y"}}})
	if err != nil {
		t.Fatalf("put b: %v", err)
	}
	_, err = s.Put(ctx, &types.Draft{
		Description: "generalization of a",
		Level:       types.LevelGeneralization,
		Nodes:       []types.Node{{Name: "X"}},
		Sources:     []string{a.ID},
	})
	if err != nil {
		t.Fatalf("put generalization: %v", err)
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	unconsolidated := snap.Unconsolidated()
	found := map[string]bool{}
	for _, c := range unconsolidated {
		found[c.ID] = true
	}
	if found[a.ID] {
		t.Fatal("episode a is referenced as a source and should not be unconsolidated")
	}
	if !found[b.ID] {
		t.Fatal("episode b should be unconsolidated")
	}
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	keep, err := s.Put(ctx, &types.Draft{Description: "keep me"})
	if err != nil {
		t.Fatalf("put keep: %v", err)
	}
	drop, err := s.Put(ctx, &types.Draft{Description: "drop me"})
	if err != nil {
		t.Fatalf("put drop: %v", err)
	}

	removed, err := s.Purge(ctx, func(c *types.Context) bool { return c.ID == keep.ID })
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := s.Get(ctx, drop.ID); !errors.Is(err, types.ErrNotFound) {
		t.Fatal("expected purged context to be gone")
	}
	if _, err := s.Get(ctx, keep.ID); err != nil {
		t.Fatal("expected kept context to survive")
	}
}

func TestPurge_SkipsContextReferencedAsSource(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	src, err := s.Put(ctx, &types.Draft{Description: "episode", Nodes: []types.Node{{Name: "X"}}})
	if err != nil {
		t.Fatalf("put source: %v", err)
	}
	_, err = s.Put(ctx, &types.Draft{
		Description: "generalization",
		Level:       types.LevelGeneralization,
		Nodes:       []types.Node{{Name: "X"}},
		Sources:     []string{src.ID},
	})
	if err != nil {
		t.Fatalf("put generalization: %v", err)
	}

	removed, err := s.Purge(ctx, func(c *types.Context) bool { return false })
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected only the generalization to be removed, got %d", removed)
	}
	if _, err := s.Get(ctx, src.ID); err != nil {
		t.Fatal("expected the referenced source to survive purge despite keep() returning false")
	}
}

func TestPut_UpsertsEmbeddingIntoIndex(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	idx, err := vectorindex.Open(ctx, filepath.Join(t.TempDir(), "vectors.sqlite3"))
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	s.SetIndex(idx)

	emb := make(types.Embedding, vectorindex.EmbeddingDim)
	emb[0] = 1
	created, err := s.Put(ctx, &types.Draft{Description: "episode", Embedding: emb})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	matches, err := idx.Search(ctx, emb, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 || matches[0].ContextID != created.ID {
		t.Fatalf("expected the upserted context to be searchable, got %+v", matches)
	}
}

func TestDeterministicClock(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New(store.DefaultOptions(), func() time.Time { return fixed })
	t.Cleanup(func() { s.Close() })

	created, err := s.Put(context.Background(), &types.Draft{Description: "fixed clock"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if !created.CreatedAt.Equal(fixed) {
		t.Fatalf("got %v, want %v", created.CreatedAt, fixed)
	}
}
