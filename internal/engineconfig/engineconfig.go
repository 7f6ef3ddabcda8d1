// Package engineconfig loads the engine's operational configuration — the
// canonical-relations table, drive seed nodes, diversity and consolidation
// tuning, and the Anthropic collaborator's credentials — from a YAML file
// with environment-variable overrides, and supports hot reload while the
// engine runs (§9 "no dynamic typing" / config is owned by the caller, not
// by package-level state).
package engineconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/contextwave/cwme/internal/consolidate"
	"github.com/contextwave/cwme/internal/diversity"
	"github.com/contextwave/cwme/internal/generalize"
	"github.com/contextwave/cwme/internal/signal"
)

const (
	// EnvPrefix is the prefix for environment-variable overrides, e.g.
	// CWME_ANTHROPIC_API_KEY overrides anthropic.api_key.
	EnvPrefix = "CWME"

	// DefaultFileName is the config file viper looks for when no explicit
	// path is given.
	DefaultFileName = "cwme"
)

// Config is the fully-resolved engine configuration, translated into the
// concrete option structs each package expects.
type Config struct {
	DBPath          string
	VectorIndexPath string
	AuditDir        string

	Signal      signal.Config
	Diversity   diversity.Options
	Consolidate consolidate.Config
	Anthropic   generalize.AnthropicConfig
}

// yamlShape mirrors cwme.yaml's on-disk layout. Kept separate from Config
// so the exported struct stays free of yaml/mapstructure tags and the
// package-internal defaulting logic stays in one place.
type yamlShape struct {
	Store struct {
		DBPath          string `mapstructure:"db_path"`
		VectorIndexPath string `mapstructure:"vector_index_path"`
	} `mapstructure:"store"`

	Audit struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"audit"`

	Signal struct {
		HungerThreshold float64             `mapstructure:"hunger_threshold"`
		MaxSignalNodes  int                 `mapstructure:"max_signal_nodes"`
		DriveSeeds      map[string][]string `mapstructure:"drive_seeds"`
		VerbRelations   map[string]string   `mapstructure:"verb_relations"`
	} `mapstructure:"signal"`

	Diversity struct {
		K             int     `mapstructure:"k"`
		RMin          float64 `mapstructure:"r_min"`
		TauMMR        float64 `mapstructure:"tau_mmr"`
		PerEmotionCap int     `mapstructure:"per_emotion_cap"`
		LevelFairness bool    `mapstructure:"level_fairness"`
	} `mapstructure:"diversity"`

	Consolidate struct {
		MinOverlap             int     `mapstructure:"min_overlap"`
		MinCluster             int     `mapstructure:"min_cluster"`
		MaxCluster             int     `mapstructure:"max_cluster"`
		MergedNodeCap          int     `mapstructure:"merged_node_cap"`
		DedupThreshold         float64 `mapstructure:"dedup_threshold"`
		MaxConsecutiveFailures int     `mapstructure:"max_consecutive_failures"`
		CallTimeoutSeconds     int     `mapstructure:"call_timeout_seconds"`
	} `mapstructure:"consolidate"`

	Anthropic struct {
		APIKey            string `mapstructure:"api_key"`
		Model             string `mapstructure:"model"`
		MaxElapsedSeconds int    `mapstructure:"max_elapsed_seconds"`
		AuditActor        string `mapstructure:"audit_actor"`
		AuditCalls        bool   `mapstructure:"audit_calls"`
	} `mapstructure:"anthropic"`
}

// Loader owns the viper instance backing a live Config, so a caller can
// register OnChange callbacks that fire whenever cwme.yaml or its
// environment overrides change on disk.
type Loader struct {
	v *viper.Viper
}

// New builds a Loader rooted at configPath (a file path, or a directory to
// search for cwme.yaml/cwme.yml). An empty configPath searches the current
// directory only.
func New(configPath string) *Loader {
	v := viper.New()
	v.SetConfigName(DefaultFileName)
	v.SetConfigType("yaml")

	if configPath != "" {
		if strings.HasSuffix(configPath, ".yaml") || strings.HasSuffix(configPath, ".yml") {
			v.SetConfigFile(configPath)
		} else {
			v.AddConfigPath(configPath)
		}
	} else {
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	applyDefaults(v)

	return &Loader{v: v}
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("store.db_path", "cwme.db")
	v.SetDefault("audit.dir", ".cwme/audit")
	v.SetDefault("signal.hunger_threshold", 0.3)
	v.SetDefault("signal.max_signal_nodes", 20)
	v.SetDefault("diversity.k", 10)
	v.SetDefault("diversity.tau_mmr", diversity.DefaultTauMMR)
	v.SetDefault("diversity.per_emotion_cap", diversity.DefaultPerEmotionCap)
	v.SetDefault("consolidate.min_overlap", 4)
	v.SetDefault("consolidate.min_cluster", 3)
	v.SetDefault("consolidate.max_cluster", 15)
	v.SetDefault("consolidate.merged_node_cap", 15)
	v.SetDefault("consolidate.dedup_threshold", 0.6)
	v.SetDefault("consolidate.max_consecutive_failures", 3)
	v.SetDefault("anthropic.model", generalize.DefaultModel)
	v.SetDefault("anthropic.max_elapsed_seconds", 30)
}

// Load reads cwme.yaml (if present — a missing file is not an error, since
// every setting has a default) plus environment overrides, and returns the
// resolved Config.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("engineconfig: read config: %w", err)
		}
	}

	var raw yamlShape
	if err := l.v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("engineconfig: unmarshal: %w", err)
	}

	return translate(raw), nil
}

// Watch registers fsnotify-backed hot reload (viper.WatchConfig runs an
// fsnotify watcher on the resolved config file internally): onChange is
// invoked with the freshly reloaded Config whenever the file changes.
// Parse errors during a reload are swallowed — the previous Config stays
// in effect — since a reload is best-effort and must not crash a running
// engine over a transient editor save.
func (l *Loader) Watch(onChange func(*Config)) {
	l.v.OnConfigChange(func(_ fsnotify.Event) {
		var raw yamlShape
		if err := l.v.Unmarshal(&raw); err != nil {
			return
		}
		onChange(translate(raw))
	})
	l.v.WatchConfig()
}

func translate(raw yamlShape) *Config {
	cfg := &Config{
		DBPath:          raw.Store.DBPath,
		VectorIndexPath: raw.Store.VectorIndexPath,
		AuditDir:        raw.Audit.Dir,
		Signal: signal.Config{
			HungerThreshold: raw.Signal.HungerThreshold,
			DriveSeeds:      raw.Signal.DriveSeeds,
			VerbRelations:   raw.Signal.VerbRelations,
			MaxSignalNodes:  raw.Signal.MaxSignalNodes,
		},
		Diversity: diversity.Options{
			K:             raw.Diversity.K,
			RMin:          raw.Diversity.RMin,
			TauMMR:        raw.Diversity.TauMMR,
			PerEmotionCap: raw.Diversity.PerEmotionCap,
			LevelFairness: raw.Diversity.LevelFairness,
		},
		Consolidate: consolidate.Config{
			MinOverlap:             raw.Consolidate.MinOverlap,
			MinCluster:             raw.Consolidate.MinCluster,
			MaxCluster:             raw.Consolidate.MaxCluster,
			MergedNodeCap:          raw.Consolidate.MergedNodeCap,
			DedupThreshold:         raw.Consolidate.DedupThreshold,
			MaxConsecutiveFailures: raw.Consolidate.MaxConsecutiveFailures,
			CallTimeout:            time.Duration(raw.Consolidate.CallTimeoutSeconds) * time.Second,
		},
		Anthropic: generalize.AnthropicConfig{
			APIKey:     raw.Anthropic.APIKey,
			Model:      raw.Anthropic.Model,
			MaxElapsed: time.Duration(raw.Anthropic.MaxElapsedSeconds) * time.Second,
			AuditActor: raw.Anthropic.AuditActor,
			AuditCalls: raw.Anthropic.AuditCalls,
		},
	}
	if raw.Signal.DriveSeeds == nil {
		cfg.Signal.DriveSeeds = map[string][]string{}
	}
	if raw.Signal.VerbRelations == nil {
		cfg.Signal.VerbRelations = map[string]string{}
	}
	return cfg
}
