package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/contextwave/cwme/internal/consolidate"
)

var consolidateMaxClusters int

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Run one consolidation pass, clustering unconsolidated contexts into generalizations",
	Run: func(_ *cobra.Command, _ []string) {
		cfg := loadConfig()
		st := openStore(cfg)
		defer func() { _ = st.Close() }()

		c := consolidatorFor(st, cfg)
		stats, err := c.Consolidate(rootCtx, consolidate.Budget{MaxClusters: consolidateMaxClusters})
		if err != nil {
			fatalError("consolidating: %v", err)
		}

		if jsonOutput {
			data, _ := json.MarshalIndent(stats, "", "  ")
			fmt.Println(string(data))
			return
		}
		fmt.Printf("clusters seen: %d, written: %d, absorbed: %d, failures: %d\n",
			stats.ClustersSeen, stats.ContextsWritten, stats.ContextsAbsorbed, stats.Failures)
	},
}

func init() {
	consolidateCmd.Flags().IntVar(&consolidateMaxClusters, "max-clusters", 0, "cap the number of clusters processed in this pass (0 = unbounded)")
}
