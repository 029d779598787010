package models

// Clustering strategies.
const (
	StrategyThreshold = "threshold"
	StrategyKMeans    = "kmeans"
	StrategyAuto      = "auto"
)

// Artifact store backends.
const (
	ArtifactsBadger = "badger"
	ArtifactsMemory = "memory"
	ArtifactsNone   = "none"
)

// CanonicalizerConfig controls symbol derivation.
type CanonicalizerConfig struct {
	SymbolWidth int `yaml:"symbol_width" mapstructure:"symbol_width" validate:"gte=4,lte=40"`
}

// RedactionConfig lists the active redaction categories.
type RedactionConfig struct {
	Categories []string `yaml:"categories" mapstructure:"categories" validate:"dive,oneof=email url path ip name jwt secret phone ssn credit_card"`
}

// EncodingConfig tunes the rung encoders.
type EncodingConfig struct {
	MaxTokensPerEvent  int `yaml:"max_tokens_per_event" mapstructure:"max_tokens_per_event" validate:"gte=1,lte=10000"`
	GraphWindowSeconds int `yaml:"graph_window_seconds" mapstructure:"graph_window_seconds" validate:"gte=1"`
	SegmentSize        int `yaml:"segment_size" mapstructure:"segment_size" validate:"gte=1"`
}

// MiningConfig tunes the motif miner.
type MiningConfig struct {
	Level             string `yaml:"level" mapstructure:"level" validate:"oneof=tokens functions"`
	MinSupport        int    `yaml:"min_support" mapstructure:"min_support" validate:"gte=1"`
	MinTraces         int    `yaml:"min_traces" mapstructure:"min_traces" validate:"gte=1"`
	MaxPatternLength  int    `yaml:"max_pattern_length" mapstructure:"max_pattern_length" validate:"gte=1,lte=64"`
	SequiturMinLength int    `yaml:"sequitur_min_length" mapstructure:"sequitur_min_length" validate:"gte=1"`
}

// ClusteringConfig tunes the sequence processor.
type ClusteringConfig struct {
	Strategy        string  `yaml:"strategy" mapstructure:"strategy" validate:"oneof=threshold kmeans auto"`
	DTWThreshold    float64 `yaml:"dtw_threshold" mapstructure:"dtw_threshold" validate:"gte=0,lte=1"`
	K               int     `yaml:"k" mapstructure:"k" validate:"gte=1"`
	Seed            int64   `yaml:"seed" mapstructure:"seed"`
	MaxIterations   int     `yaml:"max_iterations" mapstructure:"max_iterations" validate:"gte=1"`
	AutoKMeansAbove int     `yaml:"auto_kmeans_above" mapstructure:"auto_kmeans_above" validate:"gte=1"`
}

// BudgetConfig bounds the wall-clock time of batch operations.
type BudgetConfig struct {
	MiningSeconds     int `yaml:"mining_seconds" mapstructure:"mining_seconds" validate:"gte=0"`
	ClusteringSeconds int `yaml:"clustering_seconds" mapstructure:"clustering_seconds" validate:"gte=0"`
}

// CacheConfig sizes the TTL caches.
type CacheConfig struct {
	TTLSeconds int `yaml:"ttl_seconds" mapstructure:"ttl_seconds" validate:"gte=1"`
	MaxEntries int `yaml:"max_entries" mapstructure:"max_entries" validate:"gte=1"`
}

// ContextPrecisionConfig holds the default CP window.
type ContextPrecisionConfig struct {
	WindowSeconds int `yaml:"window_seconds" mapstructure:"window_seconds" validate:"gte=0"`
}

// StorageConfig selects the artifact store.
type StorageConfig struct {
	Artifacts  string `yaml:"artifacts" mapstructure:"artifacts" validate:"oneof=badger memory none"`
	BadgerPath string `yaml:"badger_path" mapstructure:"badger_path"`
}

// AlertConfig overrides alert thresholds.
type AlertConfig struct {
	MaxDropRatePercent int `yaml:"max_drop_rate_percent" mapstructure:"max_drop_rate_percent" validate:"gte=0,lte=100"`
	MaxDegradedPercent int `yaml:"max_degraded_percent" mapstructure:"max_degraded_percent" validate:"gte=0,lte=100"`
	MaxIncompleteRuns  int `yaml:"max_incomplete_runs" mapstructure:"max_incomplete_runs" validate:"gte=0"`
	StaleCatalogHours  int `yaml:"stale_catalog_hours" mapstructure:"stale_catalog_hours" validate:"gte=0"`
}

// ObservabilityConfig controls logging, alerting and notifications.
type ObservabilityConfig struct {
	LogLevel        string      `yaml:"log_level" mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogJSON         bool        `yaml:"log_json" mapstructure:"log_json"`
	Alerts          AlertConfig `yaml:"alerts" mapstructure:"alerts"`
	SlackWebhookURL string      `yaml:"slack_webhook_url" mapstructure:"slack_webhook_url" validate:"omitempty,url"`
}

// EngineConfig is the full configuration read from .rungconfig.
type EngineConfig struct {
	Canonicalizer    CanonicalizerConfig    `yaml:"canonicalizer" mapstructure:"canonicalizer"`
	Redaction        RedactionConfig        `yaml:"redaction" mapstructure:"redaction"`
	Encoding         EncodingConfig         `yaml:"encoding" mapstructure:"encoding"`
	Mining           MiningConfig           `yaml:"mining" mapstructure:"mining"`
	Clustering       ClusteringConfig       `yaml:"clustering" mapstructure:"clustering"`
	Budget           BudgetConfig           `yaml:"budget" mapstructure:"budget"`
	Cache            CacheConfig            `yaml:"cache" mapstructure:"cache"`
	ContextPrecision ContextPrecisionConfig `yaml:"context_precision" mapstructure:"context_precision"`
	Workers          int                    `yaml:"workers" mapstructure:"workers" validate:"gte=0"`
	Storage          StorageConfig          `yaml:"storage" mapstructure:"storage"`
	Observability    ObservabilityConfig    `yaml:"observability" mapstructure:"observability"`
}

// AllRedactionCategories lists every redaction category in application
// order.
func AllRedactionCategories() []string {
	return []string{"url", "email", "jwt", "secret", "ssn", "credit_card", "phone", "ip", "path", "name"}
}

// DefaultEngineConfig returns the configuration used when no .rungconfig
// exists.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Canonicalizer: CanonicalizerConfig{SymbolWidth: 6},
		Redaction:     RedactionConfig{Categories: AllRedactionCategories()},
		Encoding: EncodingConfig{
			MaxTokensPerEvent:  200,
			GraphWindowSeconds: 300,
			SegmentSize:        10,
		},
		Mining: MiningConfig{
			Level:             "tokens",
			MinSupport:        2,
			MinTraces:         2,
			MaxPatternLength:  6,
			SequiturMinLength: 2,
		},
		Clustering: ClusteringConfig{
			Strategy:        StrategyAuto,
			DTWThreshold:    0.35,
			K:               8,
			Seed:            42,
			MaxIterations:   50,
			AutoKMeansAbove: 2000,
		},
		Budget:           BudgetConfig{MiningSeconds: 30, ClusteringSeconds: 30},
		Cache:            CacheConfig{TTLSeconds: 600, MaxEntries: 10000},
		ContextPrecision: ContextPrecisionConfig{WindowSeconds: 300},
		Storage:          StorageConfig{Artifacts: ArtifactsBadger, BadgerPath: ".rung_artifacts"},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Alerts: AlertConfig{
				MaxDropRatePercent: 10,
				MaxDegradedPercent: 50,
				MaxIncompleteRuns:  3,
				StaleCatalogHours:  72,
			},
		},
	}
}
