// Package internal provides the App struct that wires the tracerung pipeline
// together and initializes the CLI layer.
package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/valter-silva-au/tracerung/internal/cli"
	"github.com/valter-silva-au/tracerung/internal/core"
	"github.com/valter-silva-au/tracerung/internal/integration"
	"github.com/valter-silva-au/tracerung/internal/observability"
	"github.com/valter-silva-au/tracerung/internal/storage"
	"github.com/valter-silva-au/tracerung/pkg/models"
)

// HomeEnv overrides the base path lookup.
const HomeEnv = "RUNG_HOME"

// App holds all service dependencies of tracerung.
type App struct {
	BasePath string
	Config   *models.EngineConfig
	Logger   *zap.Logger

	// Configuration
	ConfigMgr core.ConfigurationManager

	// Storage layer
	Events    storage.EventSource
	Catalogs  storage.CatalogStore
	Artifacts storage.ArtifactStore

	// Core services
	Caches *core.Caches
	Engine core.Engine

	// Integration services
	Syntax   integration.SyntaxAnalyzer
	Diffs    integration.DiffParser
	Importer integration.TranscriptImporter

	// Observability
	EventLog        observability.EventLog
	AlertEngine     observability.AlertEngine
	MetricsCalc     observability.MetricsCalculator
	Notifier        observability.Notifier
	PipelineMetrics *observability.PipelineMetrics
}

// NewApp loads .rungconfig from basePath and wires every component. An
// invalid configuration is fatal; a missing one yields the defaults.
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := app.ConfigMgr.Validate(cfg); err != nil {
		return nil, err
	}
	app.Config = cfg

	app.Logger, err = observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogJSON)
	if err != nil {
		// Non-fatal: run without diagnostics.
		app.Logger = zap.NewNop()
	}

	// --- Observability ---
	eventLogPath := filepath.Join(basePath, observability.EventLogFile)
	app.EventLog, err = observability.NewJSONLEventLog(eventLogPath)
	if err != nil {
		// Non-fatal: disable observability if the log can't be created.
		app.Logger.Warn("event log disabled", zap.String("path", eventLogPath), zap.Error(err))
		app.EventLog = nil
	}
	if app.EventLog != nil {
		thresholds := observability.ThresholdsFromConfig(cfg.Observability.Alerts)
		app.AlertEngine = observability.NewAlertEngine(app.EventLog, thresholds)
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}
	if cfg.Observability.SlackWebhookURL != "" {
		app.Notifier = observability.NewSlackNotifier(cfg.Observability.SlackWebhookURL)
	}
	app.PipelineMetrics = observability.NewPipelineMetrics()

	// --- Storage layer ---
	app.Events = storage.NewEventSource(basePath, app.Logger)
	app.Catalogs = storage.NewCatalogStore(basePath)
	app.Artifacts, err = storage.OpenArtifactStore(cfg.Storage, basePath, app.Logger)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("opening artifact store: %w", err)
	}

	// --- Integration services ---
	app.Syntax = integration.NewSyntaxAnalyzer()
	app.Diffs = integration.NewDiffParser()
	app.Importer = integration.NewTranscriptImporter()

	// --- Core services ---
	ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second
	app.Caches, err = core.NewCaches(cfg.Cache.MaxEntries, ttl)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("creating caches: %w", err)
	}

	deps := core.EngineDeps{
		Source:    app.Events,
		Artifacts: app.Artifacts,
		Catalogs:  app.Catalogs,
		Syntax:    app.Syntax,
		Diffs:     app.Diffs,
		Caches:    app.Caches,
		Recorder:  app.PipelineMetrics,
		Logger:    app.Logger,
	}
	if app.EventLog != nil {
		deps.Events = app.EventLog
	}
	app.Engine = core.NewEngine(*cfg, deps)

	// --- Wire CLI package-level variables ---
	cli.Engine = app.Engine
	cli.Events = app.Events
	cli.Importer = app.Importer
	cli.Config = app.Config

	cli.EventLog = app.EventLog
	cli.AlertEngine = app.AlertEngine
	cli.MetricsCalc = app.MetricsCalc
	cli.Notifier = app.Notifier
	cli.PipelineMetrics = app.PipelineMetrics

	return app, nil
}

// Close releases the artifact store, caches and event log. It is safe to
// call on a partially initialized App.
func (a *App) Close() error {
	var errs []error
	if a.Artifacts != nil {
		if err := a.Artifacts.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing artifact store: %w", err))
		}
	}
	a.Caches.Close()
	if a.EventLog != nil {
		if err := a.EventLog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing event log: %w", err))
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return errors.Join(errs...)
}

// ResolveBasePath determines where tracerung keeps its data. It checks
// RUNG_HOME, then walks up from the current directory looking for
// .rungconfig, then falls back to the current directory.
func ResolveBasePath() string {
	if home := os.Getenv(HomeEnv); home != "" {
		return home
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	for dir := cwd; ; {
		if _, err := os.Stat(filepath.Join(dir, core.ConfigFileName)); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return cwd
}
