package types

// WaveSignal is the canonical query shape produced by the Signal Builder
// (§4.2) and consumed by the Resonance Scorer (§4.3).
type WaveSignal struct {
	Nodes     []string
	Relations []string

	Emotion Emotion
	Result  Result

	MaxLevel Level

	// DriveBias maps a hungry drive name to its configured seed-node set,
	// retained for the scorer's drive-bias alignment modifier (§4.3.3).
	DriveBias map[string][]string

	Embedding Embedding
}

// NodeSet returns the signal's nodes as a set.
func (s *WaveSignal) NodeSet() map[string]struct{} {
	set := make(map[string]struct{}, len(s.Nodes))
	for _, n := range s.Nodes {
		set[n] = struct{}{}
	}
	return set
}

// RelationSet returns the signal's relations as a set.
func (s *WaveSignal) RelationSet() map[string]struct{} {
	set := make(map[string]struct{}, len(s.Relations))
	for _, r := range s.Relations {
		set[r] = struct{}{}
	}
	return set
}
