// Command cwmectl is an operational CLI over the context-wave memory
// engine: write episodes, retrieve a resonance-scored and diversity-
// selected slate, run one consolidation pass, and scan stored contexts.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/contextwave/cwme/internal/audit"
	"github.com/contextwave/cwme/internal/consolidate"
	"github.com/contextwave/cwme/internal/engineconfig"
	"github.com/contextwave/cwme/internal/generalize"
	cwmesignal "github.com/contextwave/cwme/internal/signal"
	"github.com/contextwave/cwme/internal/store"
	"github.com/contextwave/cwme/internal/store/sqlite"
	"github.com/contextwave/cwme/internal/vectorindex"
)

var (
	dbPath     string
	configPath string
	jsonOutput bool

	rootCtx    context.Context
	rootCancel context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:   "cwmectl",
	Short: "cwmectl - operate a context-wave memory engine store",
	Long:  `cwmectl writes episodes, retrieves resonance-scored slates, runs consolidation passes, and scans stored contexts.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the sqlite store (overrides config)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to cwme.yaml or its containing directory")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit JSON instead of human-readable output")

	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(retrieveCmd)
	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(scanCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// fatalError prints a red error message and exits non-zero, mirroring the
// CLI's fail-fast operator ergonomics.
func fatalError(format string, args ...interface{}) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(os.Stderr, "%s %s\n", red("Error:"), fmt.Sprintf(format, args...))
	os.Exit(1)
}

// loadConfig resolves engineconfig.Config, applying the --db flag as the
// highest-priority override of store.db_path.
func loadConfig() *engineconfig.Config {
	cfg, err := engineconfig.New(configPath).Load()
	if err != nil {
		fatalError("loading config: %v", err)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg
}

// openStore opens the sqlite backend at cfg.DBPath, wires audit logging,
// and attaches the semantic ANN index so every write keeps it current.
func openStore(cfg *engineconfig.Config) *sqlite.Store {
	if cfg.AuditDir != "" {
		audit.SetDir(cfg.AuditDir)
	}
	st, err := sqlite.Open(cfg.DBPath, store.DefaultOptions())
	if err != nil {
		fatalError("opening store %q: %v", cfg.DBPath, err)
	}
	st.SetIndex(openIndex(cfg))
	return st
}

// openIndex opens the sqvect-backed semantic index alongside the store. A
// failure here is non-fatal: the engine keeps running with the semantic
// channel's per-candidate fallback instead of the ANN path.
func openIndex(cfg *engineconfig.Config) *vectorindex.Index {
	path := cfg.VectorIndexPath
	if path == "" {
		path = cfg.DBPath + ".vidx"
	}
	idx, err := vectorindex.Open(rootCtx, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: opening vector index %q: %v (semantic channel falls back to linear scan)\n", path, err)
		return nil
	}
	return idx
}

// newGeneralizer builds the Anthropic-backed Generalizer used by the
// consolidate subcommand. It fails fast if no API key is configured, since
// a silently-skipped consolidation pass is worse than a clear error.
func newGeneralizer(cfg *engineconfig.Config) generalize.Generalizer {
	gen, err := generalize.NewAnthropicGeneralizer(cfg.Anthropic)
	if err != nil {
		fatalError("building generalizer: %v", err)
	}
	return gen
}

func signalBuilder(cfg *engineconfig.Config) *cwmesignal.Builder {
	return cwmesignal.New(cfg.Signal, vectorindex.NewHashEmbedder())
}

// consolidatorFor takes the concrete *sqlite.Store, not the store.Store
// interface, because it is passed twice: once as store.Store, once as
// consolidate.QuarantineStore. Go only checks interface satisfaction
// against a value's static type, and store.Store's method set does not
// include QuarantineStore's methods even though sqlite.Store implements
// both.
func consolidatorFor(st *sqlite.Store, cfg *engineconfig.Config) *consolidate.Consolidator {
	return consolidate.New(st, newGeneralizer(cfg), st, time.Now, cfg.Consolidate)
}
