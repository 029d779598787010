package observability

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert conditions.
const (
	ConditionDropRate     = "drop_rate_high"
	ConditionDegraded     = "degraded_encodings_high"
	ConditionIncomplete   = "incomplete_runs"
	ConditionStaleCatalog = "motif_catalog_stale"
)

// Alert represents a triggered alert condition. Workspaces and RunIDs name
// the pipeline runs whose events fed the condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
	Workspaces  []string      `json:"workspaces,omitempty"`
	RunIDs      []string      `json:"run_ids,omitempty"`
}

// AlertThresholds configures when alerts fire. A zero threshold disables
// the incomplete-run and stale-catalog checks.
type AlertThresholds struct {
	MaxDropRatePercent int `yaml:"max_drop_rate_percent" json:"max_drop_rate_percent"`
	MaxDegradedPercent int `yaml:"max_degraded_percent" json:"max_degraded_percent"`
	MaxIncompleteRuns  int `yaml:"max_incomplete_runs" json:"max_incomplete_runs"`
	StaleCatalogHours  int `yaml:"stale_catalog_hours" json:"stale_catalog_hours"`
}

// DefaultAlertThresholds returns the thresholds used without configuration.
func DefaultAlertThresholds() AlertThresholds {
	return ThresholdsFromConfig(models.DefaultEngineConfig().Observability.Alerts)
}

// ThresholdsFromConfig converts the alerts section of .rungconfig.
func ThresholdsFromConfig(c models.AlertConfig) AlertThresholds {
	return AlertThresholds{
		MaxDropRatePercent: c.MaxDropRatePercent,
		MaxDegradedPercent: c.MaxDegradedPercent,
		MaxIncompleteRuns:  c.MaxIncompleteRuns,
		StaleCatalogHours:  c.StaleCatalogHours,
	}
}

// AlertEngine evaluates alert conditions against the event log.
type AlertEngine interface {
	Evaluate(since time.Time) ([]Alert, error)
}

type alertEngine struct {
	eventLog   EventLog
	thresholds AlertThresholds
	now        func() time.Time
}

// NewAlertEngine creates an AlertEngine over eventLog.
func NewAlertEngine(eventLog EventLog, thresholds AlertThresholds) AlertEngine {
	return &alertEngine{eventLog: eventLog, thresholds: thresholds, now: time.Now}
}

// Evaluate checks the events since the given time. The stale catalog
// check looks at the whole log, since the last mining run may predate the
// window.
func (ae *alertEngine) Evaluate(since time.Time) ([]Alert, error) {
	now := ae.now().UTC()
	events, err := ae.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for alerts: %w", err)
	}
	m := metricsFrom(events)

	var alerts []Alert
	alerts = append(alerts, scoped(ae.checkDropRate(m, now), events, func(e Event) bool {
		return e.Type == EventDropped && intField(e.Data, "count") > 0
	})...)
	alerts = append(alerts, scoped(ae.checkDegraded(m, now), events, func(e Event) bool {
		return e.Type == EventEncodingDegraded
	})...)
	alerts = append(alerts, scoped(ae.checkIncompleteRuns(m, now), events, func(e Event) bool {
		return (e.Type == EventMiningCompleted || e.Type == EventClusterCompleted) && !boolField(e.Data, "complete")
	})...)

	stale, err := ae.checkStaleCatalog(m, now)
	if err != nil {
		return nil, fmt.Errorf("checking motif catalog age: %w", err)
	}
	alerts = append(alerts, scoped(stale, events, func(e Event) bool {
		return e.Type == EventTraceBuilt
	})...)
	return alerts, nil
}

// scoped fills the workspaces and run IDs of alerts from the matching
// events, in first-seen order.
func scoped(alerts []Alert, events []Event, match func(Event) bool) []Alert {
	if len(alerts) == 0 {
		return alerts
	}
	var workspaces, runs []string
	seen := map[string]bool{}
	for _, e := range events {
		if !match(e) {
			continue
		}
		if ws, ok := e.Data["workspace"].(string); ok && ws != "" && !seen["ws:"+ws] {
			seen["ws:"+ws] = true
			workspaces = append(workspaces, ws)
		}
		if id, ok := e.Data["run_id"].(string); ok && id != "" && !seen["run:"+id] {
			seen["run:"+id] = true
			runs = append(runs, id)
		}
	}
	for i := range alerts {
		alerts[i].Workspaces = workspaces
		alerts[i].RunIDs = runs
	}
	return alerts
}

func (ae *alertEngine) checkDropRate(m *Metrics, now time.Time) []Alert {
	if m.EventsAccepted+m.EventsDropped == 0 || m.DropRatePercent <= float64(ae.thresholds.MaxDropRatePercent) {
		return nil
	}
	return []Alert{newAlert(ConditionDropRate, SeverityHigh, now,
		"%.1f%% of captured events were dropped as malformed (%d of %d), above the limit of %d%%",
		m.DropRatePercent, m.EventsDropped, m.EventsAccepted+m.EventsDropped, ae.thresholds.MaxDropRatePercent)}
}

func (ae *alertEngine) checkDegraded(m *Metrics, now time.Time) []Alert {
	if m.Encodings == 0 || m.DegradedPercent <= float64(ae.thresholds.MaxDegradedPercent) {
		return nil
	}
	return []Alert{newAlert(ConditionDegraded, SeverityMedium, now,
		"%.1f%% of encodings fell back to a coarser unit (%d of %d), above the limit of %d%%",
		m.DegradedPercent, m.DegradedEncodings, m.Encodings, ae.thresholds.MaxDegradedPercent)}
}

func (ae *alertEngine) checkIncompleteRuns(m *Metrics, now time.Time) []Alert {
	if ae.thresholds.MaxIncompleteRuns <= 0 || m.IncompleteRuns <= ae.thresholds.MaxIncompleteRuns {
		return nil
	}
	return []Alert{newAlert(ConditionIncomplete, SeverityMedium, now,
		"%d mining or clustering runs stopped before finishing, above the limit of %d; consider raising the time budget",
		m.IncompleteRuns, ae.thresholds.MaxIncompleteRuns)}
}

func (ae *alertEngine) checkStaleCatalog(windowed *Metrics, now time.Time) ([]Alert, error) {
	if ae.thresholds.StaleCatalogHours <= 0 || windowed.TracesBuilt == 0 {
		return nil, nil
	}
	runs, err := ae.eventLog.Read(EventFilter{Type: EventMiningCompleted})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return []Alert{newAlert(ConditionStaleCatalog, SeverityLow, now,
			"traces are being built but no motif catalog has been mined")}, nil
	}
	last := runs[len(runs)-1].Time
	limit := time.Duration(ae.thresholds.StaleCatalogHours) * time.Hour
	if now.Sub(last) <= limit {
		return nil, nil
	}
	return []Alert{newAlert(ConditionStaleCatalog, SeverityLow, now,
		"the motif catalog was last mined %s, more than %d hours ago",
		last.Format("2006-01-02 15:04 UTC"), ae.thresholds.StaleCatalogHours)}, nil
}

func newAlert(condition string, severity AlertSeverity, now time.Time, format string, args ...any) Alert {
	return Alert{
		ID:          uuid.NewString(),
		Condition:   condition,
		Severity:    severity,
		Message:     fmt.Sprintf(format, args...),
		TriggeredAt: now,
	}
}
