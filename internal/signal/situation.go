// Package signal implements the Signal Builder (§4.2): a pure function
// from an external Situation snapshot to a canonical WaveSignal.
package signal

import (
	"github.com/contextwave/cwme/internal/types"
	"github.com/contextwave/cwme/internal/vectorindex"
)

// Situation is the external structured input described in §6.1/§4.2. It is
// the caller's (LLM brain / agent orchestrator's) snapshot of "what is
// happening right now".
type Situation struct {
	// FocusNodes are explicit, caller-named entities (no extraction
	// needed).
	FocusNodes []string

	// FreeText fields are scanned for capitalized single-word tokens and
	// for the verb→relation keyword table.
	FreeText []string

	// Drives maps drive name to its current satisfaction level in [0,1].
	// A drive below the configured hunger threshold contributes its seed
	// node set (§4.2).
	Drives map[string]float64

	// RawEmotion is normalized via the same pipeline as storage (§6.2).
	RawEmotion string

	// PainIntensity drives the result derivation: >0.5 => negative,
	// else neutral (§4.2).
	PainIntensity float64

	// MaxLevel bounds candidate retrieval; defaults to 2 (§4.2).
	MaxLevel *types.Level

	// EmbedText, if non-empty, is passed to the injected Embedder to
	// populate the signal's embedding. If empty, the semantic channel is
	// skipped for this signal.
	EmbedText string
}

// Config is the externally-configured, non-learned table set the Builder
// needs (§6.2, §9 "no dynamic typing" / "no global mutable state" —
// callers own and inject these, the package holds no package-level
// state).
type Config struct {
	// HungerThreshold is the drive-satisfaction level below which a drive
	// is considered "hungry" and contributes its seed nodes. Default 0.3.
	HungerThreshold float64

	// DriveSeeds maps a drive name to its fixed seed-node set, e.g.
	// "connection" -> {"Egor", "Telegram", "message"}.
	DriveSeeds map[string][]string

	// VerbRelations maps a free-text verb token (lowercase) to its
	// canonical relation label, e.g. "criticized" -> "criticized".
	VerbRelations map[string]string

	// MaxSignalNodes bounds the signal's node set (§4.2 default 20).
	MaxSignalNodes int
}

// DefaultConfig returns the spec's stated defaults, with empty seed
// tables — callers load the real tables from engine configuration.
func DefaultConfig() Config {
	return Config{
		HungerThreshold: 0.3,
		DriveSeeds:      map[string][]string{},
		VerbRelations:   map[string]string{},
		MaxSignalNodes:  types.MaxNodesPerSignal,
	}
}

// Builder turns Situations into WaveSignals.
type Builder struct {
	cfg      Config
	embedder vectorindex.Embedder
}

// New creates a Builder. embedder may be nil, in which case every signal
// it builds skips the semantic channel.
func New(cfg Config, embedder vectorindex.Embedder) *Builder {
	if cfg.MaxSignalNodes <= 0 {
		cfg.MaxSignalNodes = types.MaxNodesPerSignal
	}
	return &Builder{cfg: cfg, embedder: embedder}
}
