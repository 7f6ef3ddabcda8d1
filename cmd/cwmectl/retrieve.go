package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/contextwave/cwme/internal/diversity"
	"github.com/contextwave/cwme/internal/resonance"
	cwmesignal "github.com/contextwave/cwme/internal/signal"
	"github.com/contextwave/cwme/internal/store"
	"github.com/contextwave/cwme/internal/types"
	"github.com/contextwave/cwme/internal/vectorindex"
)

// semanticShortlistOverfetch widens the ANN query beyond the already-known
// candidate count so a retrieval still surfaces purely-semantic matches
// the level-capped scan would have included anyway.
const semanticShortlistOverfetch = 20

// candidatesFor returns the level-capped candidate set, widened with any
// additional ids the semantic index's nearest-neighbor search surfaces
// for sig.Embedding. idx is nil-safe: a store opened without a vector
// index (or a query with no embedding) just returns the level-capped
// scan, matching the scorer's own per-candidate cosine fallback.
func candidatesFor(ctx context.Context, snap store.Snapshot, sig *types.WaveSignal, idx *vectorindex.Index) []*types.Context {
	candidates := snap.ScanLevelAtMost(sig.MaxLevel)
	if idx == nil || len(sig.Embedding) == 0 {
		return candidates
	}

	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		seen[c.ID] = struct{}{}
	}

	matches, err := idx.Search(ctx, sig.Embedding, len(candidates)+semanticShortlistOverfetch)
	if err != nil {
		return candidates
	}
	for _, m := range matches {
		if _, ok := seen[m.ContextID]; ok {
			continue
		}
		c, ok := snap.Get(m.ContextID)
		if !ok || c.Level > sig.MaxLevel {
			continue
		}
		seen[m.ContextID] = struct{}{}
		candidates = append(candidates, c)
	}
	return candidates
}

var (
	retrieveNodes         []string
	retrieveText          []string
	retrieveEmotion       string
	retrievePainIntensity float64
	retrieveDrives        []string
	retrieveEmbedText     string
	retrieveK             int
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve",
	Short: "Build a signal from the given situation and print the resonance-scored, diversity-selected slate",
	Run: func(_ *cobra.Command, _ []string) {
		drives := map[string]float64{}
		for _, spec := range retrieveDrives {
			name, val, err := parseDrive(spec)
			if err != nil {
				fatalError("%v", err)
			}
			drives[name] = val
		}

		sit := cwmesignal.Situation{
			FocusNodes:    retrieveNodes,
			FreeText:      retrieveText,
			Drives:        drives,
			RawEmotion:    retrieveEmotion,
			PainIntensity: retrievePainIntensity,
			EmbedText:     retrieveEmbedText,
		}

		cfg := loadConfig()
		st := openStore(cfg)
		defer func() { _ = st.Close() }()

		builder := signalBuilder(cfg)
		sig := builder.Build(rootCtx, sit)

		snap, err := st.Snapshot(rootCtx)
		if err != nil {
			fatalError("taking snapshot: %v", err)
		}

		candidates := candidatesFor(rootCtx, snap, sig, st.Index())
		scorer := resonance.New(time.Now)
		scored, err := scorer.ScoreAll(rootCtx, sig, candidates)
		if err != nil {
			fatalError("scoring candidates: %v", err)
		}

		byID := make(map[string]*types.Context, len(candidates))
		for _, c := range candidates {
			byID[c.ID] = c
		}

		opts := cfg.Diversity
		if retrieveK > 0 {
			opts.K = retrieveK
		}
		results := diversity.Select(scored, byID, opts)

		if jsonOutput {
			data, _ := json.MarshalIndent(results, "", "  ")
			fmt.Println(string(data))
			return
		}
		for _, r := range results {
			fmt.Printf("%.3f  %s  [%s]  %s\n", r.Resonance, r.Context.ID, r.Context.Emotion, r.Context.Description)
		}
	},
}

func init() {
	retrieveCmd.Flags().StringSliceVar(&retrieveNodes, "node", nil, "focus node, repeatable")
	retrieveCmd.Flags().StringSliceVar(&retrieveText, "text", nil, "free text to scan for nodes/relations, repeatable")
	retrieveCmd.Flags().StringVar(&retrieveEmotion, "emotion", "", "raw current emotion text")
	retrieveCmd.Flags().Float64Var(&retrievePainIntensity, "pain-intensity", 0, "pain intensity in [0,1]")
	retrieveCmd.Flags().StringSliceVar(&retrieveDrives, "drive", nil, "name=satisfaction, repeatable")
	retrieveCmd.Flags().StringVar(&retrieveEmbedText, "embed-text", "", "text to embed for the semantic channel")
	retrieveCmd.Flags().IntVar(&retrieveK, "k", 0, "slate size override (0 = use config)")
}
