// Package store defines the Store contract (§4.1): the single-writer,
// multi-reader interface every backend (memory, sqlite) implements, plus
// the snapshot handle that gives Scan its isolation guarantee.
package store

import (
	"context"
	"time"

	"github.com/contextwave/cwme/internal/types"
)

// Store is the persistence boundary for Context values. Writers and readers
// may run concurrently; a Snapshot taken before a concurrent Put never
// observes it (§5, read-your-snapshot).
type Store interface {
	// Put normalizes draft through PrepareDraft in this package (emotion
	// normalization and rule_conditions derivation), validates it against
	// every structural invariant and appends it as a new, immutable Context.
	Put(ctx context.Context, draft *types.Draft) (*types.Context, error)

	// Get returns the Context with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*types.Context, error)

	// Snapshot returns a read handle fixed to the current write frontier.
	// All Scan/Get calls through the handle are stable even if concurrent
	// Puts land afterward.
	Snapshot(ctx context.Context) (Snapshot, error)

	// Purge deletes every Context for which keep returns false, except a
	// Context that another stored Context names as a source, which is
	// always kept. Purge is
	// an administrative operation (quarantine cleanup, test reset); it is
	// not part of the normal write path and is not snapshot-isolated.
	Purge(ctx context.Context, keep func(*types.Context) bool) (int, error)

	// Close releases backend resources (file handles, connections).
	Close() error
}

// Snapshot is a stable read view over a Store as of the moment it was
// taken. It also satisfies types.Lookup so the shared invariant checker can
// run against it directly.
type Snapshot interface {
	types.Lookup

	// ScanLevel returns every context at exactly level l, snapshot-stable
	// order (created_at asc, id asc).
	ScanLevel(l types.Level) []*types.Context

	// ScanLevelAtMost returns every context at level <= cap, used by the
	// Signal Builder/Scorer's level-capped retrieval (§4.2, §4.3).
	ScanLevelAtMost(cap types.Level) []*types.Context

	// ByNode returns the ids of contexts whose node set contains name.
	ByNode(name string) []string

	// ByRelation returns the ids of contexts that have at least one edge
	// labeled relation.
	ByRelation(relation string) []string

	// ByEmotion returns the ids of contexts whose Emotion equals e exactly.
	ByEmotion(e types.Emotion) []string

	// Unconsolidated returns every L0/L1 context not referenced as a
	// source by any other stored context (the Consolidator's input set U,
	// §4.5).
	Unconsolidated() []*types.Context

	// Len reports the number of contexts visible in this snapshot.
	Len() int

	// TakenAt is the wall-clock time the snapshot was captured. The
	// Scorer's recency-suppression modifier does not read it; it uses the
	// Scorer's own clock.
	TakenAt() time.Time
}
