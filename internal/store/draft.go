package store

import (
	"time"

	"github.com/contextwave/cwme/internal/types"
)

// DefaultDedupThreshold is the Jaccard cutoff for same-level semantic
// collision.
const DefaultDedupThreshold = 0.6

// Options tune the shared invariant pipeline a backend runs on every Put.
// Backends share this so sqlite and memory never drift on invariant
// enforcement.
type Options struct {
	MergedNodeCap  int
	DedupThreshold float64
}

// DefaultOptions match §3.2/§4.1's stated defaults.
func DefaultOptions() Options {
	return Options{
		MergedNodeCap:  types.DefaultMergedNodeCap,
		DedupThreshold: DefaultDedupThreshold,
	}
}

// PrepareDraft normalizes a caller-supplied draft and runs every invariant
// check that does not require assigning an ID or CreatedAt. It mutates
// nothing on the caller's draft; it returns a normalized copy ready to
// become a Context.
//
// Backends call this from Put while holding their write lock, so the dedup
// scan runs against exactly the contexts the new one is appended after.
func PrepareDraft(d *types.Draft, lookup types.Lookup, opts Options) (*types.Draft, error) {
	normalized := *d
	normalized.Nodes = append([]types.Node(nil), d.Nodes...)
	normalized.Edges = append([]types.Edge(nil), d.Edges...)
	normalized.Sources = append([]string(nil), d.Sources...)
	normalized.RuleConditions = nil

	// Emotion is always normalized before persistence.
	normalized.RawEmotion = string(types.NormalizeEmotion(d.RawEmotion))

	if err := types.ValidateDraft(&normalized, lookup, opts.MergedNodeCap); err != nil {
		return nil, err
	}

	// Only L1+ generalizations are subject to semantic dedup.
	if collidesWith, collides := types.CheckSemanticDedup(&normalized, lookup, opts.DedupThreshold); collides {
		return nil, types.NewInvariantError("semantic-dedup", "semantically duplicates "+collidesWith)
	}

	// rule_conditions are derived, never caller-supplied.
	if normalized.Rule != "" {
		normalized.RuleConditions = types.DeriveRuleConditions(normalized.Rule, nodeNames(normalized.Nodes), nil)
	}

	return &normalized, nil
}

// BuildContext assembles an immutable Context from a normalized draft
// (as returned by PrepareDraft) plus the identity fields only a backend can
// assign.
func BuildContext(d *types.Draft, id string, createdAt time.Time) *types.Context {
	certainty := 1.0
	if d.Certainty != nil {
		certainty = *d.Certainty
	}
	return &types.Context{
		ID:             id,
		Description:    d.Description,
		Nodes:          d.Nodes,
		Edges:          d.Edges,
		Emotion:        types.Emotion(d.RawEmotion),
		Intensity:      d.Intensity,
		Result:         d.Result,
		Rule:           d.Rule,
		RuleConditions: d.RuleConditions,
		Certainty:      certainty,
		Level:          d.Level,
		Sources:        d.Sources,
		Embedding:      d.Embedding,
		CreatedAt:      createdAt,
		WhenDay:        d.WhenDay,
		WhenCycle:      d.WhenCycle,
	}
}

func nodeNames(nodes []types.Node) []string {
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Name
	}
	return names
}
