package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/contextwave/cwme/internal/types"
)

var (
	scanLevel         int
	scanUnconsolidated bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List stored contexts at a given level, or the unconsolidated set",
	Run: func(_ *cobra.Command, _ []string) {
		cfg := loadConfig()
		st := openStore(cfg)
		defer func() { _ = st.Close() }()

		snap, err := st.Snapshot(rootCtx)
		if err != nil {
			fatalError("taking snapshot: %v", err)
		}

		var contexts []*types.Context
		if scanUnconsolidated {
			contexts = snap.Unconsolidated()
		} else {
			contexts = snap.ScanLevel(types.Level(scanLevel))
		}

		if jsonOutput {
			data, _ := json.MarshalIndent(contexts, "", "  ")
			fmt.Println(string(data))
			return
		}
		for _, c := range contexts {
			fmt.Printf("%s  L%d  [%s]  %s\n", c.ID, c.Level, c.Emotion, c.Description)
		}
		fmt.Printf("\n%d context(s)\n", len(contexts))
	},
}

func init() {
	scanCmd.Flags().IntVar(&scanLevel, "level", 0, "abstraction level to list")
	scanCmd.Flags().BoolVar(&scanUnconsolidated, "unconsolidated", false, "list the Consolidator's input set instead of a level")
}
