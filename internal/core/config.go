// Package core contains the representation and behavioral analysis engine:
// canonicalization, redaction, intent extraction, the six rung encoders,
// motif mining, sequence clustering and context precision.
package core

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

// ConfigFileName is the engine configuration file looked up in the base
// path.
const ConfigFileName = ".rungconfig"

// ConfigurationManager loads and validates the engine configuration.
type ConfigurationManager interface {
	Load() (*models.EngineConfig, error)
	Validate(cfg *models.EngineConfig) error
}

type viperConfigManager struct {
	basePath string
	validate *validator.Validate
}

// NewConfigurationManager creates a ConfigurationManager reading
// .rungconfig from basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &viperConfigManager{basePath: basePath, validate: v}
}

// Load reads .rungconfig over the defaults. A missing file yields the
// defaults.
func (cm *viperConfigManager) Load() (*models.EngineConfig, error) {
	def := models.DefaultEngineConfig()

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)

	v.SetDefault("canonicalizer.symbol_width", def.Canonicalizer.SymbolWidth)
	v.SetDefault("redaction.categories", def.Redaction.Categories)
	v.SetDefault("encoding.max_tokens_per_event", def.Encoding.MaxTokensPerEvent)
	v.SetDefault("encoding.graph_window_seconds", def.Encoding.GraphWindowSeconds)
	v.SetDefault("encoding.segment_size", def.Encoding.SegmentSize)
	v.SetDefault("mining.level", def.Mining.Level)
	v.SetDefault("mining.min_support", def.Mining.MinSupport)
	v.SetDefault("mining.min_traces", def.Mining.MinTraces)
	v.SetDefault("mining.max_pattern_length", def.Mining.MaxPatternLength)
	v.SetDefault("mining.sequitur_min_length", def.Mining.SequiturMinLength)
	v.SetDefault("clustering.strategy", def.Clustering.Strategy)
	v.SetDefault("clustering.dtw_threshold", def.Clustering.DTWThreshold)
	v.SetDefault("clustering.k", def.Clustering.K)
	v.SetDefault("clustering.seed", def.Clustering.Seed)
	v.SetDefault("clustering.max_iterations", def.Clustering.MaxIterations)
	v.SetDefault("clustering.auto_kmeans_above", def.Clustering.AutoKMeansAbove)
	v.SetDefault("budget.mining_seconds", def.Budget.MiningSeconds)
	v.SetDefault("budget.clustering_seconds", def.Budget.ClusteringSeconds)
	v.SetDefault("cache.ttl_seconds", def.Cache.TTLSeconds)
	v.SetDefault("cache.max_entries", def.Cache.MaxEntries)
	v.SetDefault("context_precision.window_seconds", def.ContextPrecision.WindowSeconds)
	v.SetDefault("workers", def.Workers)
	v.SetDefault("storage.artifacts", def.Storage.Artifacts)
	v.SetDefault("storage.badger_path", def.Storage.BadgerPath)
	v.SetDefault("observability.log_level", def.Observability.LogLevel)
	v.SetDefault("observability.log_json", def.Observability.LogJSON)
	v.SetDefault("observability.alerts.max_drop_rate_percent", def.Observability.Alerts.MaxDropRatePercent)
	v.SetDefault("observability.alerts.max_degraded_percent", def.Observability.Alerts.MaxDegradedPercent)
	v.SetDefault("observability.alerts.max_incomplete_runs", def.Observability.Alerts.MaxIncompleteRuns)
	v.SetDefault("observability.alerts.stale_catalog_hours", def.Observability.Alerts.StaleCatalogHours)
	v.SetDefault("observability.slack_webhook_url", def.Observability.SlackWebhookURL)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading %s: %w", ConfigFileName, err)
		}
	}

	var cfg models.EngineConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", ConfigFileName, err)
	}
	return &cfg, nil
}

// Validate checks struct constraints and the cross-field rules the tags
// cannot express. Every problem is reported, one per line.
func (cm *viperConfigManager) Validate(cfg *models.EngineConfig) error {
	if cfg == nil {
		return &ConfigError{Field: "configuration", Message: "is nil"}
	}

	var errs []string
	if err := cm.validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validating configuration: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, describeFieldError(fe))
		}
	}

	if cfg.Storage.Artifacts == models.ArtifactsBadger && strings.TrimSpace(cfg.Storage.BadgerPath) == "" {
		errs = append(errs, "storage.badger_path must be set when storage.artifacts is badger")
	}
	if cfg.Mining.MinTraces < cfg.Mining.MinSupport {
		errs = append(errs, fmt.Sprintf(
			"mining.min_traces %d is below mining.min_support %d",
			cfg.Mining.MinTraces, cfg.Mining.MinSupport,
		))
	}
	if cfg.Clustering.Strategy == models.StrategyKMeans && cfg.Clustering.K < 2 {
		errs = append(errs, fmt.Sprintf("clustering.k %d must be at least 2 for kmeans", cfg.Clustering.K))
	}

	if len(errs) > 0 {
		return &ConfigError{
			Field:   ConfigFileName,
			Message: "validation failed:\n  - " + strings.Join(errs, "\n  - "),
		}
	}
	return nil
}

// describeFieldError renders a validator error with the config key path.
func describeFieldError(fe validator.FieldError) string {
	key := fe.Namespace()
	if i := strings.Index(key, "."); i >= 0 {
		key = key[i+1:]
	}
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s %q is invalid, must be one of: %s", key, fmt.Sprint(fe.Value()), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gte":
		return fmt.Sprintf("%s must be at least %s, got %v", key, fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("%s must be at most %s, got %v", key, fe.Param(), fe.Value())
	case "url":
		return fmt.Sprintf("%s %q is not a valid URL", key, fmt.Sprint(fe.Value()))
	}
	return fmt.Sprintf("%s failed %s validation", key, fe.Tag())
}
