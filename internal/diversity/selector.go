// Package diversity implements the Diversity Selector (§4.4): it turns
// a resonance-scored candidate pool into a bounded, diverse working-memory
// slate subject to a resonance floor, a per-emotion cap, and MMR over node
// sets, with an optional level-fairness guarantee.
package diversity

import (
	"sort"

	"github.com/contextwave/cwme/internal/resonance"
	"github.com/contextwave/cwme/internal/types"
)

// DefaultTauMMR is the starting MMR node-overlap ceiling (§4.4).
const DefaultTauMMR = 0.6

// TauStep is how far τ_mmr is relaxed when no candidate qualifies (§4.4).
const TauStep = 0.1

// DefaultPerEmotionCap is the maximum survivors sharing an emotion first
// word (§4.4).
const DefaultPerEmotionCap = 2

// Options configures a single selection call (§6.4 "options").
type Options struct {
	// K bounds the final slate size.
	K int

	// RMin is the resonance floor. Zero means no floor.
	RMin float64

	// TauMMR is the starting MMR ceiling. Zero means DefaultTauMMR.
	TauMMR float64

	// PerEmotionCap is the max survivors per emotion first word. Zero
	// means DefaultPerEmotionCap.
	PerEmotionCap int

	// LevelFairness toggles the level-fairness swap.
	LevelFairness bool
}

func (o Options) normalized() Options {
	if o.TauMMR <= 0 {
		o.TauMMR = DefaultTauMMR
	}
	if o.PerEmotionCap <= 0 {
		o.PerEmotionCap = DefaultPerEmotionCap
	}
	if o.K <= 0 {
		o.K = types.MaxNodesPerSignal
	}
	return o
}

// Result is one survivor of selection.
type Result struct {
	Context   *types.Context
	Resonance float64
	Breakdown resonance.Breakdown
}

// Select runs the resonance floor, per-emotion cap, MMR, and optional
// level-fairness stages over scored and returns a slate of at most opts.K
// contexts, in deterministic order (resonance desc, then id asc, per §6.4
// "deterministic order").
func Select(scored []resonance.Scored, byID map[string]*types.Context, opts Options) []Result {
	opts = opts.normalized()

	candidates := applyFloor(scored, byID, opts.RMin)
	sortCandidates(candidates)

	capped := applyEmotionCap(candidates, opts.PerEmotionCap)
	survivors := applyMMR(capped, opts.TauMMR)

	sortCandidates(survivors)
	if len(survivors) > opts.K {
		survivors = survivors[:opts.K]
	}

	if opts.LevelFairness {
		survivors = applyLevelFairness(survivors, capped)
		sortCandidates(survivors)
	}

	out := make([]Result, 0, len(survivors))
	for _, c := range survivors {
		out = append(out, Result{Context: c.context, Resonance: c.resonance, Breakdown: c.breakdown})
	}
	return out
}

// scoredCandidate is the internal working representation carrying both the
// resolved Context and its score.
type scoredCandidate struct {
	context   *types.Context
	resonance float64
	breakdown resonance.Breakdown
	createdAt int64 // unix nanos, for tie-breaking
}

func applyFloor(scored []resonance.Scored, byID map[string]*types.Context, rMin float64) []scoredCandidate {
	out := make([]scoredCandidate, 0, len(scored))
	for _, s := range scored {
		if s.Resonance < rMin {
			continue
		}
		ctx, ok := byID[s.ContextID]
		if !ok {
			// StaleSnapshot (§7): a referenced candidate vanished between
			// scoring and selection; the selector simply skips it.
			continue
		}
		out = append(out, scoredCandidate{
			context:   ctx,
			resonance: s.Resonance,
			breakdown: s.Breakdown,
			createdAt: ctx.CreatedAt.UnixNano(),
		})
	}
	return out
}

// sortCandidates orders by resonance desc, then id asc, matching §6.4's
// deterministic-order guarantee.
func sortCandidates(c []scoredCandidate) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].resonance != c[j].resonance {
			return c[i].resonance > c[j].resonance
		}
		return c[i].context.ID < c[j].context.ID
	})
}

// applyEmotionCap enforces that at most perEmotionCap survivors may share
// an emotion first word. Input must already be sorted resonance desc (ties
// broken by later created_at here, the opposite of the id-asc default
// tie-break used elsewhere, so this re-sorts its own working copy).
func applyEmotionCap(candidates []scoredCandidate, perEmotionCap int) []scoredCandidate {
	ordered := make([]scoredCandidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].resonance != ordered[j].resonance {
			return ordered[i].resonance > ordered[j].resonance
		}
		return ordered[i].createdAt > ordered[j].createdAt
	})

	counts := make(map[string]int)
	out := make([]scoredCandidate, 0, len(ordered))
	for _, c := range ordered {
		word := c.context.Emotion.FirstWord()
		if word == "" {
			out = append(out, c)
			continue
		}
		if counts[word] >= perEmotionCap {
			continue
		}
		counts[word]++
		out = append(out, c)
	}
	return out
}

// applyMMR greedily picks the highest-resonance remaining
// candidate whose node-set Jaccard overlap with every already-picked
// context is <= tau. If none qualifies at the current tau, relax tau in
// TauStep increments down to 0 before giving up on the round.
func applyMMR(candidates []scoredCandidate, tau float64) []scoredCandidate {
	remaining := make([]scoredCandidate, len(candidates))
	copy(remaining, candidates)
	sort.SliceStable(remaining, func(i, j int) bool {
		if remaining[i].resonance != remaining[j].resonance {
			return remaining[i].resonance > remaining[j].resonance
		}
		return remaining[i].context.ID < remaining[j].context.ID
	})

	var picked []scoredCandidate

	for len(remaining) > 0 {
		idx, ok := pickNext(remaining, picked, tau)
		if !ok {
			break
		}
		picked = append(picked, remaining[idx])
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}
	return picked
}

// pickNext finds the first (highest-resonance) remaining candidate whose
// node overlap with every picked context is <= tau, relaxing tau in steps
// of TauStep down to 0 if nothing qualifies.
func pickNext(remaining, picked []scoredCandidate, tau float64) (int, bool) {
	for t := tau; t >= -1e-9; t -= TauStep {
		for i, cand := range remaining {
			if qualifies(cand, picked, t) {
				return i, true
			}
		}
	}
	return 0, false
}

func qualifies(cand scoredCandidate, picked []scoredCandidate, tau float64) bool {
	if len(picked) == 0 {
		return true
	}
	for _, p := range picked {
		if types.JaccardNodeSets(cand.context, p.context) > tau {
			return false
		}
	}
	return true
}

// applyLevelFairness enforces level fairness: if the final slate (already capped to K)
// spans more than one non-zero level and no L0 survived, but at least one
// L0 cleared the floor (present in capped), swap the lowest-resonance
// non-L0 slate entry for the highest-resonance L0 candidate. This trades
// one slot rather than growing the slate past K.
func applyLevelFairness(survivors, capped []scoredCandidate) []scoredCandidate {
	if len(survivors) == 0 {
		return survivors
	}

	hasNonZero := false
	hasL0 := false
	for _, s := range survivors {
		if s.context.Level == types.LevelEpisode {
			hasL0 = true
		} else {
			hasNonZero = true
		}
	}
	if !hasNonZero || hasL0 {
		return survivors
	}

	var bestL0 *scoredCandidate
	for i := range capped {
		if capped[i].context.Level != types.LevelEpisode {
			continue
		}
		if bestL0 == nil || capped[i].resonance > bestL0.resonance {
			c := capped[i]
			bestL0 = &c
		}
	}
	if bestL0 == nil {
		return survivors
	}

	worstIdx := 0
	for i := 1; i < len(survivors); i++ {
		if survivors[i].resonance < survivors[worstIdx].resonance {
			worstIdx = i
		}
	}
	out := make([]scoredCandidate, len(survivors))
	copy(out, survivors)
	out[worstIdx] = *bestL0
	return out
}
