// Package memory provides an in-memory Store backend. It is the reference
// implementation for the invariant suite and for tests; it holds nothing on
// disk and is lost on process exit.
package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/contextwave/cwme/internal/store"
	"github.com/contextwave/cwme/internal/types"
	"github.com/contextwave/cwme/internal/vectorindex"
)

// Store is the default in-memory implementation of store.Store. All
// operations are protected by a read-write mutex; Put holds the write lock
// for the full prepare-validate-append sequence so concurrent writers never
// interleave (single-writer model, §5).
type Store struct {
	mu     sync.RWMutex
	byID   map[string]*types.Context
	order  []string // insertion order, oldest first
	dedup  map[string]string
	opts   store.Options
	clock  func() time.Time
	closed atomic.Bool
	idx    *vectorindex.Index
}

// New creates an empty in-memory store. clock defaults to time.Now if nil,
// overridable for deterministic tests.
func New(opts store.Options, clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		byID:  make(map[string]*types.Context),
		dedup: make(map[string]string),
		opts:  opts,
		clock: clock,
	}
}

// SetIndex attaches the semantic ANN index this store keeps in sync on
// every write. A nil index (the default) leaves the semantic channel to
// the scorer's own per-candidate fallback.
func (s *Store) SetIndex(idx *vectorindex.Index) {
	s.mu.Lock()
	s.idx = idx
	s.mu.Unlock()
}

// Index returns the attached semantic ANN index, or nil if none was set.
func (s *Store) Index() *vectorindex.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx
}

func (s *Store) Put(ctx context.Context, draft *types.Draft) (*types.Context, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("put: %w", types.ErrCancelled)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("put: %w", types.ErrCancelled)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if draft.DedupKey != "" {
		if _, ok := s.dedup[draft.DedupKey]; ok {
			return nil, fmt.Errorf("put: dedup key %q: %w", draft.DedupKey, types.ErrAlreadyExists)
		}
	}

	normalized, err := store.PrepareDraft(draft, s.lookupLocked(), s.opts)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	created := store.BuildContext(normalized, id, s.clock())

	s.byID[id] = cloneContext(created)
	s.order = append(s.order, id)
	if draft.DedupKey != "" {
		s.dedup[draft.DedupKey] = id
	}
	if s.idx != nil && len(created.Embedding) > 0 {
		// Best-effort: the ANN index is a derived structure, never the
		// source of truth, so a write never fails over it.
		_ = s.idx.Upsert(ctx, id, created.Embedding)
	}

	return cloneContext(created), nil
}

func (s *Store) Get(ctx context.Context, id string) (*types.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, types.ErrNotFound)
	}
	return cloneContext(c), nil
}

func (s *Store) Snapshot(ctx context.Context) (store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	frozen := make(map[string]*types.Context, len(s.byID))
	ordered := make([]*types.Context, 0, len(s.order))
	for _, id := range s.order {
		c := cloneContext(s.byID[id])
		frozen[id] = c
		ordered = append(ordered, c)
	}

	return &snapshot{byID: frozen, ordered: ordered, takenAt: s.clock()}, nil
}

func (s *Store) Purge(ctx context.Context, keep func(*types.Context) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	referenced := make(map[string]struct{})
	for _, id := range s.order {
		for _, src := range s.byID[id].Sources {
			referenced[src] = struct{}{}
		}
	}

	removed := 0
	newOrder := s.order[:0:0]
	for _, id := range s.order {
		c := s.byID[id]
		if keep(c) {
			newOrder = append(newOrder, id)
			continue
		}
		if _, ok := referenced[id]; ok {
			// Forbidden: id is named as a source by another stored context.
			newOrder = append(newOrder, id)
			continue
		}
		delete(s.byID, id)
		if s.idx != nil {
			_ = s.idx.Delete(ctx, id)
		}
		removed++
	}
	s.order = newOrder
	return removed, nil
}

func (s *Store) Close() error {
	s.closed.Store(true)
	if s.idx != nil {
		return s.idx.Close()
	}
	return nil
}

// lookupLocked exposes a types.Lookup view of the store's current state. It
// must only be called while s.mu is already held (read or write).
func (s *Store) lookupLocked() types.Lookup {
	return &snapshot{byID: s.byID}
}

func cloneContext(c *types.Context) *types.Context {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Nodes = append([]types.Node(nil), c.Nodes...)
	clone.Edges = append([]types.Edge(nil), c.Edges...)
	clone.RuleConditions = append([]string(nil), c.RuleConditions...)
	clone.Sources = append([]string(nil), c.Sources...)
	clone.Embedding = append(types.Embedding(nil), c.Embedding...)
	if c.WhenDay != nil {
		v := *c.WhenDay
		clone.WhenDay = &v
	}
	if c.WhenCycle != nil {
		v := *c.WhenCycle
		clone.WhenCycle = &v
	}
	return &clone
}
