package types

import "unicode/utf8"

// Lookup is the minimal read surface a Store backend must expose to the
// shared invariant checker so it can resolve `sources` and dedup candidates
// without the types package importing the store package (which would
// invert the dependency direction).
type Lookup interface {
	// Get returns the context for id, or ok=false if it does not exist.
	Get(id string) (ctx *Context, ok bool)
	// SameLevel returns every stored context at exactly level l.
	SameLevel(l Level) []*Context
}

// ValidateDraft checks well-formedness, edge-endpoint membership, source
// validity, and the merged-node cap against a draft that is about to become
// a Context at the given level with the given merged node cap. It does not
// check emotion normalization (the caller's job before this point) or
// rule-condition derivation (derived, not caller-supplied).
func ValidateDraft(d *Draft, lookup Lookup, mergedNodeCap int) error {
	if !d.Level.Valid() {
		return NewInvariantError("well-formed", "level must be 0, 1, or 2")
	}

	if utf8.RuneCountInString(d.Description) > maxDescriptionCodePoints {
		return NewInvariantError("well-formed", "description exceeds 300 code points")
	}

	if !d.Result.Valid() {
		return NewInvariantError("well-formed", "result is not a recognized label")
	}

	nodeNames := make(map[string]struct{}, len(d.Nodes))
	for _, n := range d.Nodes {
		nodeNames[n.Name] = struct{}{}
	}
	for _, e := range d.Edges {
		if _, ok := nodeNames[e.Source]; !ok {
			return NewInvariantError("edge-endpoints", "edge source "+e.Source+" is not a member of nodes")
		}
		if _, ok := nodeNames[e.Target]; !ok {
			return NewInvariantError("edge-endpoints", "edge target "+e.Target+" is not a member of nodes")
		}
	}

	if len(d.Sources) > 0 {
		if d.Level < LevelGeneralization {
			return NewInvariantError("sources", "sources non-empty requires level >= 1")
		}
		for _, srcID := range d.Sources {
			src, ok := lookup.Get(srcID)
			if !ok {
				return NewInvariantError("sources", "source "+srcID+" does not exist")
			}
			if src.Level >= d.Level {
				return NewInvariantError("sources", "source "+srcID+" must have strictly lower level")
			}
		}
	}

	if d.Level >= LevelGeneralization && mergedNodeCap > 0 && len(d.Nodes) > mergedNodeCap {
		return NewInvariantError("merged-node-cap", "merged node count exceeds cap")
	}

	return nil
}

// CheckSemanticDedup enforces that an L1/L2 context may not have Jaccard
// word-overlap (≥3-char tokens, case-folded, `rule ∪ description`) exceeding
// threshold with any existing context at the same level. It returns the
// colliding context's id, if any.
func CheckSemanticDedup(d *Draft, lookup Lookup, threshold float64) (collidesWith string, collides bool) {
	if d.Level < LevelGeneralization {
		return "", false
	}
	text := d.Rule + " " + d.Description
	candidateTokens := TokenSet(text)

	for _, existing := range lookup.SameLevel(d.Level) {
		existingTokens := TokenSet(existing.Rule + " " + existing.Description)
		if jaccardSets(candidateTokens, existingTokens) > threshold {
			return existing.ID, true
		}
	}
	return "", false
}
