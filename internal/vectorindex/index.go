package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/liliang-cn/sqvect/v2/pkg/core"

	"github.com/contextwave/cwme/internal/types"
)

// Match is a single ranked hit from Search.
type Match struct {
	ContextID string
	Score     float64
}

// Index is the ANN-backed semantic index over Context embeddings. It
// serves the semantic shortlist of cwmectl's retrieve path; the Scorer
// computes its semantic channel per candidate with CosineSimilarity
// (§4.3.1). Between BeginRebuild and EndRebuild, Search uses a linear scan
// over the embeddings upserted through this Index value since it was
// opened, instead of the ANN structure (§9 Design Notes).
type Index struct {
	store core.Store

	mu       sync.RWMutex
	rebuild  bool
	fallback map[string]types.Embedding
}

// Open creates or opens a sqvect-backed index at path.
func Open(ctx context.Context, path string) (*Index, error) {
	cfg := core.DefaultConfig()
	cfg.Path = path
	cfg.VectorDim = EmbeddingDim

	s, err := core.NewSQLiteStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open vector index: %w", err)
	}
	if err := s.Init(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("init vector index: %w", err)
	}

	return &Index{store: s, fallback: make(map[string]types.Embedding)}, nil
}

// Upsert indexes contextID's embedding. Call on every Store.Put that
// carries a non-empty Embedding.
func (idx *Index) Upsert(ctx context.Context, contextID string, vec types.Embedding) error {
	idx.mu.Lock()
	idx.fallback[contextID] = vec
	idx.mu.Unlock()

	return idx.store.Upsert(ctx, &core.Embedding{
		ID:     contextID,
		Vector: vec,
	})
}

// BeginRebuild marks the index as under reconstruction: concurrent Search
// calls use the linear-scan fallback instead of the (possibly partially
// rebuilt) ANN structure.
func (idx *Index) BeginRebuild() {
	idx.mu.Lock()
	idx.rebuild = true
	idx.mu.Unlock()
}

// EndRebuild clears the rebuild flag, returning Search to the ANN path.
func (idx *Index) EndRebuild() {
	idx.mu.Lock()
	idx.rebuild = false
	idx.mu.Unlock()
}

// Search returns the topK nearest contexts to query by cosine similarity.
func (idx *Index) Search(ctx context.Context, query types.Embedding, topK int) ([]Match, error) {
	idx.mu.RLock()
	rebuilding := idx.rebuild
	idx.mu.RUnlock()

	if rebuilding {
		return idx.linearSearch(query, topK), nil
	}

	hits, err := idx.store.Search(ctx, query, core.SearchOptions{TopK: topK})
	if err != nil {
		return nil, fmt.Errorf("search vector index: %w", err)
	}
	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		matches = append(matches, Match{ContextID: h.ID, Score: h.Score})
	}
	return matches, nil
}

func (idx *Index) linearSearch(query types.Embedding, topK int) []Match {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	matches := make([]Match, 0, len(idx.fallback))
	for id, vec := range idx.fallback {
		matches = append(matches, Match{ContextID: id, Score: CosineSimilarity(query, vec)})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

// Delete removes contextID from the index, used by Purge.
func (idx *Index) Delete(ctx context.Context, contextID string) error {
	idx.mu.Lock()
	delete(idx.fallback, contextID)
	idx.mu.Unlock()
	return idx.store.Delete(ctx, contextID)
}

// Close releases the underlying sqvect store.
func (idx *Index) Close() error {
	return idx.store.Close()
}
