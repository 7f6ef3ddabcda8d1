package signal

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/contextwave/cwme/internal/audit"
	"github.com/contextwave/cwme/internal/types"
)

// Build turns sit into a canonical WaveSignal (§4.2). It is pure except
// for the optional Embedder call, which is itself required to be
// idempotent for identical input (§6.3); a failed or absent embed simply
// leaves Embedding empty rather than erroring the whole build, matching
// §7's "embedder failure disables semantic channel" recovery policy.
func (b *Builder) Build(ctx context.Context, sit Situation) *types.WaveSignal {
	nodes := b.collectNodes(sit)

	sig := &types.WaveSignal{
		Nodes:     nodes,
		Relations: b.collectRelations(sit),
		Emotion:   types.NormalizeEmotion(sit.RawEmotion),
		Result:    deriveResult(sit.PainIntensity),
		MaxLevel:  types.MaxLevel,
		DriveBias: b.hungryDriveSeeds(sit),
	}
	if sit.MaxLevel != nil {
		sig.MaxLevel = *sit.MaxLevel
	}

	if sit.EmbedText != "" && b.embedder != nil {
		emb, err := b.embedder.Embed(ctx, sit.EmbedText)
		e := &audit.Entry{Kind: "embedder_call"}
		if err != nil {
			// A collaborator failure here is recovered locally (§7): the
			// semantic channel is simply inactive for this signal. The
			// underlying cause is still recorded, distinguishing a timeout
			// from any other failure, and never surfaced to the caller.
			e.Error = classifyCollaboratorError(err).Error()
		} else {
			sig.Embedding = emb
		}
		_, _ = audit.Append(e) // best-effort; never fails the build
	}

	return sig
}

// classifyCollaboratorError maps a raw collaborator error onto the §7
// taxonomy so audit entries distinguish a timeout from any other failure.
func classifyCollaboratorError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", types.ErrCollaboratorTimeout, err)
	}
	return fmt.Errorf("%w: %v", types.ErrCollaboratorFailure, err)
}

// collectNodes unions explicit focus nodes, capitalized tokens scraped
// from free text, and hungry-drive seed nodes, in that stable insertion
// order, then truncates to MaxSignalNodes (§4.2).
func (b *Builder) collectNodes(sit Situation) []string {
	seen := make(map[string]struct{})
	var nodes []string

	add := func(n string) {
		if n == "" {
			return
		}
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		nodes = append(nodes, n)
	}

	for _, n := range sit.FocusNodes {
		add(n)
	}
	for _, text := range sit.FreeText {
		for _, w := range types.CapitalizedWords(text) {
			add(w)
		}
	}
	driveSeeds := b.hungryDriveSeeds(sit)
	drives := make([]string, 0, len(driveSeeds))
	for drive := range driveSeeds {
		drives = append(drives, drive)
	}
	sort.Strings(drives)
	for _, drive := range drives {
		for _, n := range driveSeeds[drive] {
			add(n)
		}
	}

	if len(nodes) > b.cfg.MaxSignalNodes {
		nodes = nodes[:b.cfg.MaxSignalNodes]
	}
	return nodes
}

// hungryDriveSeeds returns the seed-node sets of every drive below the
// configured hunger threshold, keyed by drive name. The map carries no
// order; collectNodes sorts the drive names before using it so Build's
// output is reproducible regardless of Go's randomized map iteration.
func (b *Builder) hungryDriveSeeds(sit Situation) map[string][]string {
	if len(sit.Drives) == 0 {
		return nil
	}
	out := make(map[string][]string)
	for drive, level := range sit.Drives {
		if level >= b.cfg.HungerThreshold {
			continue
		}
		seeds, ok := b.cfg.DriveSeeds[drive]
		if !ok {
			continue
		}
		out[drive] = seeds
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// collectRelations scans free text for configured verb tokens and maps
// them to their canonical relation label (§4.2; the table itself is
// external configuration, not learned).
func (b *Builder) collectRelations(sit Situation) []string {
	if len(b.cfg.VerbRelations) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	var relations []string
	for _, text := range sit.FreeText {
		for _, tok := range types.Tokenize(text) {
			rel, ok := b.cfg.VerbRelations[tok]
			if !ok {
				continue
			}
			if _, dup := seen[rel]; dup {
				continue
			}
			seen[rel] = struct{}{}
			relations = append(relations, rel)
		}
	}
	sort.Strings(relations)
	return relations
}

// deriveResult implements §4.2's result rule: the builder only infers
// negative or neutral, never positive/complex.
func deriveResult(painIntensity float64) types.Result {
	if painIntensity > 0.5 {
		return types.ResultNegative
	}
	return types.ResultNeutral
}
