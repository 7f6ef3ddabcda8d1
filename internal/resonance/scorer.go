// Package resonance implements the Resonance Scorer (§4.3): the
// six-channel arithmetic-mean scoring function plus its ordered modifiers.
package resonance

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/contextwave/cwme/internal/types"
	"github.com/contextwave/cwme/internal/vectorindex"
)

// Breakdown retains each channel's activity and value for diagnostics
// (§4.3 "Output... channel_breakdown is retained for diagnostics").
type Breakdown struct {
	NodeOverlap     *float64
	RelationOverlap *float64
	EmotionMatch    *float64
	ResultMatch     *float64
	Semantic        *float64
	RuleCondition   *float64
}

// Scored is a single (context id, final resonance) pair with its
// supporting breakdown.
type Scored struct {
	ContextID string
	Resonance float64
	Breakdown Breakdown
}

// DriveBiasBonus is the fixed additive bonus applied when any drive-bias
// seed node is present in a candidate's node set (§4.3 modifier 3, and
// §9's Open Question: this spec picks additive with a clamp).
const DriveBiasBonus = 0.05

// MaxResonance is the clamp ceiling after all modifiers (§4.3).
const MaxResonance = 1.2

// Clock is the monotonic time source injected for recency suppression
// (§6.3). It must be consistent across components within a single
// retrieval: callers should capture one time.Time and share it, not call
// Clock per-context.
type Clock func() time.Time

// Scorer computes resonance for (signal, context) pairs.
type Scorer struct {
	clock Clock
}

// New creates a Scorer. clock defaults to time.Now if nil.
func New(clock Clock) *Scorer {
	if clock == nil {
		clock = time.Now
	}
	return &Scorer{clock: clock}
}

// Score computes the final resonance for a single candidate against sig,
// evaluated at "now" (shared across a whole retrieval by the caller so
// scoring many candidates in parallel stays consistent, §5).
func (s *Scorer) Score(sig *types.WaveSignal, candidate *types.Context, now time.Time) Scored {
	breakdown := Breakdown{}
	var sum float64
	var active int

	if v, ok := nodeOverlap(sig, candidate); ok {
		breakdown.NodeOverlap = &v
		sum += v
		active++
	}
	if v, ok := relationOverlap(sig, candidate); ok {
		breakdown.RelationOverlap = &v
		sum += v
		active++
	}
	if v, ok := emotionMatch(sig, candidate); ok {
		breakdown.EmotionMatch = &v
		sum += v
		active++
	}
	if v, ok := resultMatch(sig, candidate); ok {
		breakdown.ResultMatch = &v
		sum += v
		active++
	}
	if v, ok := semanticMatch(sig, candidate); ok {
		breakdown.Semantic = &v
		sum += v
		active++
	}
	if v, ok := ruleConditionMatch(sig, candidate); ok {
		breakdown.RuleCondition = &v
		sum += v
		active++
	}

	raw := 0.0
	if active > 0 {
		raw = sum / float64(active)
	}

	final := applyRecencySuppression(raw, candidate.CreatedAt, now)
	final = applyLevelWeighting(final, candidate.Level)
	final = applyDriveBias(final, sig.DriveBias, candidate)

	if final > MaxResonance {
		final = MaxResonance
	}

	return Scored{ContextID: candidate.ID, Resonance: final, Breakdown: breakdown}
}

// ScoreAll scores every candidate in parallel (§9: "scoring one context is
// a pure function... use a bulk-score-then-select pattern"). It returns
// results in the same order as candidates.
func (s *Scorer) ScoreAll(ctx context.Context, sig *types.WaveSignal, candidates []*types.Context) ([]Scored, error) {
	now := s.clock()
	results := make([]Scored, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.Score(sig, c, now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func nodeOverlap(sig *types.WaveSignal, c *types.Context) (float64, bool) {
	if len(sig.Nodes) == 0 || len(c.Nodes) == 0 {
		return 0, false
	}
	overlap := jaccardNumerator(sig.NodeSet(), c.NodeSet())
	return overlap / float64(len(sig.Nodes)), true
}

func relationOverlap(sig *types.WaveSignal, c *types.Context) (float64, bool) {
	if len(sig.Relations) == 0 || len(c.Edges) == 0 {
		return 0, false
	}
	ctxRelations := c.Relations()
	if len(ctxRelations) == 0 {
		return 0, false
	}
	overlap := jaccardNumerator(sig.RelationSet(), ctxRelations)
	return overlap / float64(len(sig.Relations)), true
}

func emotionMatch(sig *types.WaveSignal, c *types.Context) (float64, bool) {
	if sig.Emotion == "" || c.Emotion == "" {
		return 0, false
	}
	if sig.Emotion == c.Emotion {
		return 1.0, true
	}
	if types.ValenceOf(sig.Emotion) == types.ValenceOf(c.Emotion) {
		return 0.5, true
	}
	return 0, true
}

func resultMatch(sig *types.WaveSignal, c *types.Context) (float64, bool) {
	if sig.Result == "" || c.Result == "" {
		return 0, false
	}
	if sig.Result == c.Result {
		return 1.0, true
	}
	return 0, true
}

func semanticMatch(sig *types.WaveSignal, c *types.Context) (float64, bool) {
	if len(sig.Embedding) == 0 || len(c.Embedding) == 0 {
		return 0, false
	}
	cos := vectorindex.CosineSimilarity(sig.Embedding, c.Embedding)
	if cos < 0 {
		cos = 0
	}
	return cos, true
}

func ruleConditionMatch(sig *types.WaveSignal, c *types.Context) (float64, bool) {
	if len(sig.Nodes) == 0 || len(c.RuleConditions) == 0 {
		return 0, false
	}
	ruleConditionSet := make(map[string]struct{}, len(c.RuleConditions))
	for _, rc := range c.RuleConditions {
		ruleConditionSet[rc] = struct{}{}
	}
	overlap := jaccardNumerator(sig.NodeSet(), ruleConditionSet)
	return overlap / float64(len(c.RuleConditions)), true
}

func jaccardNumerator(a, b map[string]struct{}) float64 {
	small, big := a, b
	if len(big) < len(small) {
		small, big = big, small
	}
	var count int
	for k := range small {
		if _, ok := big[k]; ok {
			count++
		}
	}
	return float64(count)
}

// applyRecencySuppression is modifier 1 (§4.3, §9 Open Question: 24h
// ceiling, 0.2 floor).
func applyRecencySuppression(raw float64, createdAt, now time.Time) float64 {
	hours := now.Sub(createdAt).Hours()
	if hours < 0 {
		hours = 0
	}
	factor := 0.2 + 0.8*min1(hours/24)
	if factor > 1.0 {
		factor = 1.0
	}
	return raw * factor
}

// applyLevelWeighting is modifier 2 (§4.3).
func applyLevelWeighting(value float64, level types.Level) float64 {
	capped := level
	if capped > 3 {
		capped = 3
	}
	return value * (1 + 0.05*float64(capped))
}

// applyDriveBias is modifier 3 (§4.3, §9 Open Question: additive with
// clamp).
func applyDriveBias(value float64, driveBias map[string][]string, c *types.Context) float64 {
	if len(driveBias) == 0 {
		return value
	}
	nodeSet := c.NodeSet()
	for _, seeds := range driveBias {
		for _, seed := range seeds {
			if _, ok := nodeSet[seed]; ok {
				return value + DriveBiasBonus
			}
		}
	}
	return value
}

func min1(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	return v
}
