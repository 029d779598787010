package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	cm := NewConfigurationManager(t.TempDir())
	cfg, err := cm.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(models.DefaultEngineConfig(), *cfg); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
	if err := cm.Validate(cfg); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoad_ReadsRungconfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ConfigFileName, `
canonicalizer:
  symbol_width: 8
redaction:
  categories: [email, secret]
mining:
  level: functions
  min_support: 3
  min_traces: 5
clustering:
  strategy: kmeans
  k: 4
  seed: 7
storage:
  artifacts: memory
workers: 2
`)
	cm := NewConfigurationManager(dir)
	cfg, err := cm.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Canonicalizer.SymbolWidth != 8 {
		t.Errorf("SymbolWidth = %d, want 8", cfg.Canonicalizer.SymbolWidth)
	}
	if diff := cmp.Diff([]string{"email", "secret"}, cfg.Redaction.Categories); diff != "" {
		t.Errorf("categories (-want +got):\n%s", diff)
	}
	if cfg.Mining.Level != "functions" || cfg.Mining.MinSupport != 3 || cfg.Mining.MinTraces != 5 {
		t.Errorf("mining = %+v", cfg.Mining)
	}
	if cfg.Clustering.Strategy != models.StrategyKMeans || cfg.Clustering.K != 4 || cfg.Clustering.Seed != 7 {
		t.Errorf("clustering = %+v", cfg.Clustering)
	}
	if cfg.Storage.Artifacts != models.ArtifactsMemory || cfg.Workers != 2 {
		t.Errorf("storage = %+v, workers = %d", cfg.Storage, cfg.Workers)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Encoding.MaxTokensPerEvent != 200 || cfg.Clustering.DTWThreshold != 0.35 {
		t.Errorf("defaults lost: encoding = %+v, clustering = %+v", cfg.Encoding, cfg.Clustering)
	}
	if err := cm.Validate(cfg); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ConfigFileName, "mining: [unclosed\n")
	if _, err := NewConfigurationManager(dir).Load(); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := models.DefaultEngineConfig()
	cfg.Clustering.Strategy = "spectral"
	cfg.Clustering.DTWThreshold = 1.5
	cfg.Canonicalizer.SymbolWidth = 2
	cfg.Mining.MinSupport = 4
	cfg.Mining.MinTraces = 2
	cfg.Storage.BadgerPath = " "
	cfg.Observability.SlackWebhookURL = "not a url"

	err := NewConfigurationManager(t.TempDir()).Validate(&cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !IsConfigError(err) {
		t.Fatalf("error %T is not a ConfigError", err)
	}
	msg := err.Error()
	for _, want := range []string{
		`clustering.strategy "spectral" is invalid, must be one of: threshold, kmeans, auto`,
		"clustering.dtw_threshold must be at most 1",
		"canonicalizer.symbol_width must be at least 4",
		"mining.min_traces 2 is below mining.min_support 4",
		"storage.badger_path must be set",
		`observability.slack_webhook_url "not a url" is not a valid URL`,
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("error missing %q:\n%s", want, msg)
		}
	}
	if got := strings.Count(msg, "\n  - "); got != 6 {
		t.Errorf("error lists %d problems, want 6:\n%s", got, msg)
	}
}

func TestValidate_KMeansNeedsTwoClusters(t *testing.T) {
	cfg := models.DefaultEngineConfig()
	cfg.Clustering.Strategy = models.StrategyKMeans
	cfg.Clustering.K = 1
	err := NewConfigurationManager(t.TempDir()).Validate(&cfg)
	if err == nil || !strings.Contains(err.Error(), "clustering.k 1 must be at least 2 for kmeans") {
		t.Errorf("err = %v", err)
	}
}

func TestValidate_UnknownRedactionCategory(t *testing.T) {
	cfg := models.DefaultEngineConfig()
	cfg.Redaction.Categories = []string{"email", "passport"}
	err := NewConfigurationManager(t.TempDir()).Validate(&cfg)
	if err == nil || !strings.Contains(err.Error(), `redaction.categories[1] "passport" is invalid`) {
		t.Errorf("err = %v", err)
	}
}

func TestValidate_Nil(t *testing.T) {
	if err := NewConfigurationManager(t.TempDir()).Validate(nil); !IsConfigError(err) {
		t.Errorf("err = %v, want ConfigError", err)
	}
}
