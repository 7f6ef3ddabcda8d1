// Package consolidate implements the Consolidator (§4.5): the offline
// pass that clusters unconsolidated L0/L1 contexts by node overlap and
// invokes an external Generalizer to write higher-level abstractions.
package consolidate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/contextwave/cwme/internal/generalize"
	"github.com/contextwave/cwme/internal/store"
	"github.com/contextwave/cwme/internal/types"
)

// Config holds the clustering and write-time parameters (§4.5).
type Config struct {
	// MinOverlap is the minimum shared node count for two contexts to be
	// linked in the same cluster. Default 4.
	MinOverlap int

	// MinCluster is the minimum component size kept as a cluster. Default 3.
	MinCluster int

	// MaxCluster is the maximum component size before it is split by
	// escalating MinOverlap. Default 15.
	MaxCluster int

	// MergedNodeCap bounds a written abstraction's node count.
	MergedNodeCap int

	// DedupThreshold is the semantic-dedup Jaccard threshold. Default 0.6.
	DedupThreshold float64

	// MaxConsecutiveFailures quarantines a cluster signature after this
	// many consecutive generalizer failures. Default 3.
	MaxConsecutiveFailures int

	// CallTimeout bounds each generalizer call (§5 "configurable per-call
	// deadlines"). Zero means no engine-imposed deadline beyond ctx.
	CallTimeout time.Duration
}

// DefaultConfig returns §4.5's stated defaults.
func DefaultConfig() Config {
	return Config{
		MinOverlap:             4,
		MinCluster:             3,
		MaxCluster:             15,
		MergedNodeCap:          types.DefaultMergedNodeCap,
		DedupThreshold:         store.DefaultDedupThreshold,
		MaxConsecutiveFailures: 3,
	}
}

// Budget bounds a single Consolidate call (§4.5 "one pass consumes at most
// a configured budget... progress is resumable").
type Budget struct {
	MaxClusters int // 0 means unbounded
}

// Stats reports what a Consolidate call did (§6.5).
type Stats struct {
	ClustersSeen     int
	ContextsWritten  int
	ContextsAbsorbed int
	Failures         int
}

// QuarantineStore tracks consecutive per-cluster-signature failures so a
// persistently failing cluster can be excluded from retry (§4.5 "three
// consecutive failures... quarantined until contents change").
type QuarantineStore interface {
	// RecordFailure increments the failure count for signature and reports
	// whether it has now crossed the quarantine threshold.
	RecordFailure(ctx context.Context, signature, errMsg string, threshold int) (quarantined bool, err error)

	// IsQuarantined reports whether signature has reached threshold
	// consecutive failures.
	IsQuarantined(ctx context.Context, signature string, threshold int) (bool, error)

	// ClearFailures resets signature's failure count, called after a
	// successful generalize+write (or when the cluster's membership
	// changes, since the signature itself would then differ).
	ClearFailures(ctx context.Context, signature string) error
}

// Clock is a monotonic time source, consistent with the rest of the engine
// (§6.3).
type Clock func() time.Time

// Consolidator runs the offline consolidation pass.
type Consolidator struct {
	store       store.Store
	generalizer generalize.Generalizer
	quarantine  QuarantineStore
	clock       Clock
	cfg         Config
}

// New builds a Consolidator. quarantine may be nil, in which case
// quarantine tracking is skipped (every cluster is retried every pass).
func New(st store.Store, gen generalize.Generalizer, quarantine QuarantineStore, clock Clock, cfg Config) *Consolidator {
	if cfg.MinOverlap <= 0 {
		cfg.MinOverlap = 4
	}
	if cfg.MinCluster <= 0 {
		cfg.MinCluster = 3
	}
	if cfg.MaxCluster <= 0 {
		cfg.MaxCluster = 15
	}
	if cfg.MergedNodeCap <= 0 {
		cfg.MergedNodeCap = types.DefaultMergedNodeCap
	}
	if cfg.DedupThreshold <= 0 {
		cfg.DedupThreshold = store.DefaultDedupThreshold
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = 3
	}
	if clock == nil {
		clock = time.Now
	}
	return &Consolidator{store: st, generalizer: gen, quarantine: quarantine, clock: clock, cfg: cfg}
}

// Consolidate runs one pass (§4.5, §6.5). It returns partial stats (not an
// error) when the budget is exhausted; a non-nil error means the pass was
// cancelled or hit a non-recoverable store failure.
func (c *Consolidator) Consolidate(ctx context.Context, budget Budget) (Stats, error) {
	var stats Stats

	snap, err := c.store.Snapshot(ctx)
	if err != nil {
		return stats, fmt.Errorf("consolidate: snapshot: %w", err)
	}

	for _, level := range []types.Level{types.LevelEpisode, types.LevelGeneralization} {
		if budget.MaxClusters > 0 && stats.ClustersSeen >= budget.MaxClusters {
			break
		}
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("consolidate: %w", errors.Join(types.ErrCancelled, err))
		}

		if err := c.consolidateLevel(ctx, snap, level, budget, &stats); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

func (c *Consolidator) consolidateLevel(ctx context.Context, snap store.Snapshot, level types.Level, budget Budget, stats *Stats) error {
	candidates := filterLevel(snap.Unconsolidated(), level)
	if len(candidates) == 0 {
		return nil
	}

	clusters := clusterByOverlap(candidates, c.cfg.MinOverlap, c.cfg.MinCluster, c.cfg.MaxCluster)

	for _, cluster := range clusters {
		if budget.MaxClusters > 0 && stats.ClustersSeen >= budget.MaxClusters {
			break
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("consolidate: %w", errors.Join(types.ErrCancelled, err))
		}

		stats.ClustersSeen++

		err := c.consolidateOneCluster(ctx, snap, level, cluster)
		switch {
		case err == nil:
			stats.ContextsWritten++
		case errors.Is(err, errAbsorbed):
			stats.ContextsAbsorbed++
		default:
			stats.Failures++
		}
	}

	return nil
}

// consolidateOneCluster runs steps 3-5 of §4.5 for a single cluster. It
// reports absorption (step 4 dedup hit) by incrementing nothing here;
// callers distinguish write vs absorb via the returned sentinel.
func (c *Consolidator) consolidateOneCluster(ctx context.Context, snap store.Snapshot, sourceLevel types.Level, cluster []*types.Context) error {
	signature := clusterSignature(cluster)

	if c.quarantine != nil {
		quarantined, err := c.quarantine.IsQuarantined(ctx, signature, c.cfg.MaxConsecutiveFailures)
		if err == nil && quarantined {
			return fmt.Errorf("consolidate: cluster %s is quarantined", signature)
		}
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if c.cfg.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}

	in := generalize.ClusterInput{
		Descriptions: descriptionsOf(cluster),
		Rules:        rulesOf(cluster),
		NodeNames:    unionNodeNames(cluster),
	}

	gdraft, err := c.generalizer.Generalize(callCtx, in)
	if err != nil {
		if c.quarantine != nil {
			_, _ = c.quarantine.RecordFailure(ctx, signature, err.Error(), c.cfg.MaxConsecutiveFailures)
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, types.ErrCollaboratorTimeout) {
			return fmt.Errorf("consolidate: %w: %v", types.ErrCollaboratorTimeout, err)
		}
		return fmt.Errorf("consolidate: %w: %v", types.ErrCollaboratorFailure, err)
	}

	targetLevel := sourceLevel + 1
	if targetLevel > types.MaxLevel {
		return fmt.Errorf("consolidate: target level %d exceeds cap", targetLevel)
	}

	draft := buildDraft(gdraft, cluster, targetLevel, c.cfg.MergedNodeCap)

	if absorbedInto, ok := findDuplicate(snap, draft, targetLevel, c.cfg.DedupThreshold); ok {
		_ = absorbedInto
		if c.quarantine != nil {
			_ = c.quarantine.ClearFailures(ctx, signature)
		}
		return errAbsorbed
	}

	if _, err := c.store.Put(ctx, draft); err != nil {
		if c.quarantine != nil {
			_, _ = c.quarantine.RecordFailure(ctx, signature, err.Error(), c.cfg.MaxConsecutiveFailures)
		}
		return fmt.Errorf("consolidate: write: %w", err)
	}

	if c.quarantine != nil {
		_ = c.quarantine.ClearFailures(ctx, signature)
	}
	return nil
}

// errAbsorbed signals that a generalized draft matched an existing context
// (step 4 dedup) and was not written. It is handled specially in the
// caller's stats accounting, not surfaced to Consolidate's caller.
var errAbsorbed = errors.New("consolidate: absorbed into existing context")

func buildDraft(g *generalize.Draft, cluster []*types.Context, targetLevel types.Level, mergedNodeCap int) *types.Draft {
	nodes := g.Nodes
	if len(nodes) == 0 {
		nodes = unionNodes(cluster)
	}
	if len(nodes) > mergedNodeCap {
		nodes = nodes[:mergedNodeCap]
	}

	intensity := g.Intensity
	if intensity > 0.8 {
		intensity = 0.8
	}

	certainty := 0.6
	if targetLevel == types.LevelPrinciple {
		certainty = 0.5
	}

	sources := make([]string, len(cluster))
	for i, c := range cluster {
		sources[i] = c.ID
	}
	sort.Strings(sources)

	return &types.Draft{
		Description: g.Description,
		Nodes:       nodes,
		Edges:       g.Edges,
		RawEmotion:  g.RawEmotion,
		Intensity:   intensity,
		Rule:        g.Rule,
		Certainty:   &certainty,
		Level:       targetLevel,
		Sources:     sources,
	}
}

// findDuplicate checks semantic dedup: Jaccard over ≥3-char tokens of
// rule∪description against every existing context at targetLevel.
func findDuplicate(snap store.Snapshot, draft *types.Draft, targetLevel types.Level, threshold float64) (string, bool) {
	candidateText := draft.Rule + " " + draft.Description
	for _, existing := range snap.ScanLevel(targetLevel) {
		existingText := existing.Rule + " " + existing.Description
		if types.JaccardTokens(candidateText, existingText) > threshold {
			return existing.ID, true
		}
	}
	return "", false
}

func descriptionsOf(cluster []*types.Context) []string {
	out := make([]string, len(cluster))
	for i, c := range cluster {
		out[i] = c.Description
	}
	return out
}

func rulesOf(cluster []*types.Context) []string {
	var out []string
	for _, c := range cluster {
		if c.Rule != "" {
			out = append(out, c.Rule)
		}
	}
	return out
}

func unionNodeNames(cluster []*types.Context) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range cluster {
		for _, n := range c.NodeNames() {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

func unionNodes(cluster []*types.Context) []types.Node {
	seen := make(map[string]struct{})
	var out []types.Node
	for _, c := range cluster {
		for _, n := range c.Nodes {
			if _, ok := seen[n.Name]; ok {
				continue
			}
			seen[n.Name] = struct{}{}
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func filterLevel(contexts []*types.Context, level types.Level) []*types.Context {
	var out []*types.Context
	for _, c := range contexts {
		if c.Level == level {
			out = append(out, c)
		}
	}
	return out
}

// clusterSignature is a stable hash of a cluster's member ids (sorted),
// used as the quarantine key so clustering drift (a member joining or
// leaving) produces a fresh signature rather than inheriting stale failure
// counts.
func clusterSignature(cluster []*types.Context) string {
	ids := make([]string, len(cluster))
	for i, c := range cluster {
		ids[i] = c.ID
	}
	sort.Strings(ids)
	h := sha256.New()
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
