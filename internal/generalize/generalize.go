// Package generalize defines the Generalizer collaborator boundary (§6.3):
// a possibly-failing call that turns a cluster of lower-level contexts into
// a proposed higher-level abstraction.
package generalize

import (
	"context"

	"github.com/contextwave/cwme/internal/types"
)

// ClusterInput is what the Consolidator hands to a Generalizer: the
// surviving cluster's descriptions and rules (§4.5 step 3).
type ClusterInput struct {
	Descriptions []string
	Rules        []string
	NodeNames    []string
}

// Draft is the generalizer's proposed abstraction, pre-invariant-checking.
// Intensity is capped at 0.8 by the Consolidator regardless of what the
// generalizer suggests (§4.5 step 3).
type Draft struct {
	Description string
	Rule        string
	Nodes       []types.Node
	Edges       []types.Edge
	RawEmotion  string
	Intensity   float64
}

// Generalizer is the external collaborator (§6.3): (cluster description +
// rules) -> generalization draft. The engine treats every call as a
// possibly-failing side effect; callers must wrap timeouts and failures so
// the consolidator's error-taxonomy mapping (§7) applies uniformly.
type Generalizer interface {
	Generalize(ctx context.Context, in ClusterInput) (*Draft, error)
}
