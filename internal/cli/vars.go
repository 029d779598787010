package cli

import (
	"github.com/valter-silva-au/tracerung/internal/core"
	"github.com/valter-silva-au/tracerung/internal/integration"
	"github.com/valter-silva-au/tracerung/internal/observability"
	"github.com/valter-silva-au/tracerung/pkg/models"
)

// EventAppender stores imported events for later trace building.
type EventAppender interface {
	Append(workspace, sessionID string, events []models.RawEvent) (string, error)
}

// Pipeline service instances, set during app initialization in app.go.
var (
	Engine   core.Engine
	Events   EventAppender
	Importer integration.TranscriptImporter
	Config   *models.EngineConfig
)

// Observability service instances, set during app initialization in app.go.
var (
	EventLog        observability.EventLog
	AlertEngine     observability.AlertEngine
	MetricsCalc     observability.MetricsCalculator
	Notifier        observability.Notifier
	PipelineMetrics *observability.PipelineMetrics
)
