// Package types defines the CWME data model: the Context sum type over
// abstraction levels L0..L2, the wave signal shape, and the engine's error
// taxonomy. Nothing here touches storage or scoring.
package types

import "time"

// Level is the abstraction height of a Context. Hard-capped at 2 (§9 Open
// Question: L3+).
type Level int

const (
	LevelEpisode        Level = 0 // L0: raw episode
	LevelGeneralization  Level = 1 // L1: generalization
	LevelPrinciple       Level = 2 // L2: principle
	MaxLevel             Level = LevelPrinciple
)

// Valid reports whether l is a storable level.
func (l Level) Valid() bool {
	return l >= LevelEpisode && l <= MaxLevel
}

// Result is one of the fixed outcome labels a context or signal may carry.
type Result string

const (
	ResultPositive  Result = "positive"
	ResultNegative  Result = "negative"
	ResultComplex   Result = "complex"
	ResultNeutral   Result = "neutral"
	ResultUncertain Result = "uncertain"
)

func (r Result) Valid() bool {
	switch r {
	case ResultPositive, ResultNegative, ResultComplex, ResultNeutral, ResultUncertain, "":
		return true
	default:
		return false
	}
}

// Node is a named token in a Context's graph, with an optional role tag
// (e.g. "actor", "topic"). Node identity for overlap/edge purposes is the
// Name; Role is metadata only.
type Node struct {
	Name string
	Role string
}

// Edge is a directed, labeled relation between two node names. Both
// endpoints must be present in the owning Context's Nodes.
type Edge struct {
	Source   string
	Target   string
	Relation string
}

// Embedding is a fixed-dimension dense vector. 384 dims is the recommended
// width (§3.1); the engine does not hard-code a dimension, but a store may
// reject mismatched dimensions within a single index.
type Embedding []float32

// Context is the atomic, immutable unit of stored memory: once written, a
// Context's fields never change in place.
type Context struct {
	ID          string
	Description string
	Nodes       []Node
	Edges       []Edge

	Emotion   Emotion
	Intensity float64
	Result    Result

	Rule           string
	RuleConditions []string

	Certainty float64
	Level     Level
	Sources   []string

	Embedding Embedding

	CreatedAt time.Time

	WhenDay   *int
	WhenCycle *int
}

// NodeNames returns the Context's node names in stored order.
func (c *Context) NodeNames() []string {
	names := make([]string, len(c.Nodes))
	for i, n := range c.Nodes {
		names[i] = n.Name
	}
	return names
}

// NodeSet returns the Context's node names as a set.
func (c *Context) NodeSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Nodes))
	for _, n := range c.Nodes {
		set[n.Name] = struct{}{}
	}
	return set
}

// Relations returns the set of distinct relation labels used by the
// Context's edges.
func (c *Context) Relations() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Edges))
	for _, e := range c.Edges {
		set[e.Relation] = struct{}{}
	}
	return set
}

// Draft is the caller-supplied payload to Store.Put / the write path (§6.1).
// Unlike Context, a Draft has no ID or CreatedAt yet and its Emotion may be
// raw/un-normalized text.
type Draft struct {
	Description string
	Nodes       []Node
	Edges       []Edge

	RawEmotion string
	Intensity  float64
	Result     Result

	Rule string

	// RuleConditions is derived by the write path; callers never set it
	// directly on an incoming Draft.
	RuleConditions []string

	Certainty *float64 // nil => default 1.0
	Level     Level
	Sources   []string

	Embedding Embedding

	WhenDay   *int
	WhenCycle *int

	// DedupKey, if non-empty, causes Put to fail with ErrAlreadyExists when
	// a context with the same key was already written: an operational
	// idempotency key, distinct from semantic dedup.
	DedupKey string
}

const maxDescriptionCodePoints = 300

// MaxNodesPerSignal bounds WaveSignal.Nodes (§4.2).
const MaxNodesPerSignal = 20

// DefaultMergedNodeCap is the default bound on an L1+ context's merged node
// count.
const DefaultMergedNodeCap = 15
