package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/contextwave/cwme/internal/types"
	"github.com/contextwave/cwme/internal/vectorindex"
)

var (
	writeDescription string
	writeNodes       []string
	writeRelations   []string
	writeEmotion     string
	writeIntensity   float64
	writeResult      string
	writeRule        string
	writeLevel       int
	writeSources     []string
	writeEmbedText   string
)

var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Write a new episode (or, with --level, a pre-built generalization) to the store",
	Run: func(_ *cobra.Command, _ []string) {
		if writeDescription == "" {
			fatalError("--description is required")
		}

		nodes := make([]types.Node, 0, len(writeNodes))
		for _, n := range writeNodes {
			nodes = append(nodes, types.Node{Name: n})
		}

		var edges []types.Edge
		for _, spec := range writeRelations {
			edge, err := parseRelation(spec)
			if err != nil {
				fatalError("%v", err)
			}
			edges = append(edges, edge)
		}

		level := types.Level(writeLevel)
		if !level.Valid() {
			fatalError("--level %d is out of range (0-%d)", writeLevel, types.MaxLevel)
		}

		draft := &types.Draft{
			Description: writeDescription,
			Nodes:       nodes,
			Edges:       edges,
			RawEmotion:  writeEmotion,
			Intensity:   writeIntensity,
			Result:      types.Result(writeResult),
			Rule:        writeRule,
			Level:       level,
			Sources:     writeSources,
		}

		if writeEmbedText != "" {
			emb, err := vectorindex.NewHashEmbedder().Embed(rootCtx, writeEmbedText)
			if err != nil {
				fatalError("embedding --embed-text: %v", err)
			}
			draft.Embedding = emb
		}

		cfg := loadConfig()
		st := openStore(cfg)
		defer func() { _ = st.Close() }()

		ctx, err := st.Put(rootCtx, draft)
		if err != nil {
			fatalError("writing context: %v", err)
		}

		if jsonOutput {
			data, _ := json.MarshalIndent(ctx, "", "  ")
			fmt.Println(string(data))
			return
		}
		fmt.Printf("wrote %s (level %d, emotion %s)\n", ctx.ID, ctx.Level, ctx.Emotion)
	},
}

func init() {
	writeCmd.Flags().StringVar(&writeDescription, "description", "", "episode description (required)")
	writeCmd.Flags().StringSliceVar(&writeNodes, "node", nil, "node name, repeatable")
	writeCmd.Flags().StringSliceVar(&writeRelations, "relation", nil, "source:relation:target, repeatable")
	writeCmd.Flags().StringVar(&writeEmotion, "emotion", "", "raw emotion text, normalized at write time")
	writeCmd.Flags().Float64Var(&writeIntensity, "intensity", 0, "emotion intensity in [0,1]")
	writeCmd.Flags().StringVar(&writeResult, "result", "", "result label (positive, negative, complex, neutral, uncertain)")
	writeCmd.Flags().StringVar(&writeRule, "rule", "", "rule text (generalizations/principles only)")
	writeCmd.Flags().IntVar(&writeLevel, "level", 0, "abstraction level (0=episode, 1=generalization, 2=principle)")
	writeCmd.Flags().StringSliceVar(&writeSources, "source", nil, "source context id, repeatable (level >= 1)")
	writeCmd.Flags().StringVar(&writeEmbedText, "embed-text", "", "text to embed into the semantic index")
}
