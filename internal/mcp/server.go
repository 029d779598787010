// Package mcp provides an MCP (Model Context Protocol) server that exposes
// rung representations, motifs, the behavioral library and pipeline health
// as MCP tools for AI coding assistants.
package mcp

import (
	"context"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/valter-silva-au/tracerung/internal/core"
	"github.com/valter-silva-au/tracerung/internal/observability"
	"github.com/valter-silva-au/tracerung/pkg/models"
)

// Server wraps the engine and observability services and exposes them as
// MCP tools.
type Server struct {
	server      *gomcp.Server
	engine      core.Engine
	metricsCalc observability.MetricsCalculator
	alertEngine observability.AlertEngine
	cpWindow    int
}

// NewServer creates a new MCP server over engine. metricsCalc and
// alertEngine may be nil if observability is disabled. cpWindow is the
// default context precision window in seconds.
func NewServer(engine core.Engine, metricsCalc observability.MetricsCalculator, alertEngine observability.AlertEngine, cpWindow int, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		engine:      engine,
		metricsCalc: metricsCalc,
		alertEngine: alertEngine,
		cpWindow:    cpWindow,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "rung", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run starts the MCP server on stdio, blocking until the client
// disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type getRungInput struct {
	Rung                 string `json:"rung" jsonschema:"required,the rung to encode: raw, tokens, semantic_edits, functions, module_graph or motifs"`
	Workspace            string `json:"workspace,omitempty" jsonschema:"workspace path, or all (the default)"`
	IncludePrompts       *bool  `json:"include_prompts,omitempty" jsonschema:"derive intent markers from prompts (default true)"`
	UseStatisticalMining *bool  `json:"use_statistical_mining,omitempty" jsonschema:"include motifs from the mined catalog (default true)"`
	IncludeMetadata      *bool  `json:"include_metadata,omitempty" jsonschema:"attach per-trace metadata (default true)"`
	RedactPIIEnabled     *bool  `json:"redact_pii_enabled,omitempty" jsonschema:"redact personal data before encoding (default true)"`
}

type representationOutput struct {
	TraceID          string                         `json:"trace_id"`
	CompressionClass string                         `json:"compression_class"`
	CompressionRatio float64                        `json:"compression_ratio"`
	RecordCount      int                            `json:"record_count"`
	Degraded         bool                           `json:"degraded"`
	Warnings         []string                       `json:"warnings,omitempty"`
	Records          any                            `json:"records"`
	Metadata         *models.RepresentationMetadata `json:"metadata,omitempty"`
}

type getRungOutput struct {
	Rung            string                 `json:"rung"`
	Workspace       string                 `json:"workspace"`
	Count           int                    `json:"count"`
	Representations []representationOutput `json:"representations"`
}

type getMotifsInput struct {
	Workspace string `json:"workspace,omitempty" jsonschema:"workspace path, or all (the default)"`
	Mine      bool   `json:"mine,omitempty" jsonschema:"run a new mining pass instead of returning the stored catalog"`
}

type getMotifsOutput struct {
	RunID      string               `json:"run_id"`
	Level      string               `json:"level"`
	Workspace  string               `json:"workspace"`
	TraceCount int                  `json:"trace_count"`
	Complete   bool                 `json:"complete"`
	MinedAt    string               `json:"mined_at,omitempty"`
	Motifs     []models.MotifExport `json:"motifs"`
	Count      int                  `json:"count"`
	Warnings   []string             `json:"warnings,omitempty"`
}

type getLibraryInput struct {
	Workspace string `json:"workspace,omitempty" jsonschema:"workspace path, or all (the default)"`
	Rebuild   bool   `json:"rebuild,omitempty" jsonschema:"cluster again instead of returning the stored library"`
	Rung      string `json:"rung,omitempty" jsonschema:"rung to cluster at when rebuilding (default semantic_edits)"`
}

type getLibraryOutput struct {
	RunID     string                          `json:"run_id"`
	Rung      string                          `json:"rung"`
	Strategy  string                          `json:"strategy"`
	Workspace string                          `json:"workspace"`
	Complete  bool                            `json:"complete"`
	BuiltAt   string                          `json:"built_at,omitempty"`
	Entries   []models.BehavioralLibraryEntry `json:"entries"`
	Count     int                             `json:"count"`
	Warnings  []string                        `json:"warnings,omitempty"`
}

type contextPrecisionInput struct {
	PromptID          string `json:"prompt_id" jsonschema:"required,the prompt_id of the ai.prompt event"`
	Workspace         string `json:"workspace,omitempty" jsonschema:"workspace path, or all (the default)"`
	TimeWindowSeconds *int   `json:"time_window_seconds,omitempty" jsonschema:"seconds after the prompt in which edits count (default 300)"`
}

type contextPrecisionOutput struct {
	PromptID           string   `json:"prompt_id"`
	CP                 *float64 `json:"cp"`
	UnusedContextFiles []string `json:"unused_context_files"`
	Declared           int      `json:"declared"`
	Touched            int      `json:"touched"`
}

type searchInput struct {
	Query     string `json:"query" jsonschema:"required,free-text query"`
	Rung      string `json:"rung,omitempty" jsonschema:"rung to search at (default semantic_edits)"`
	Workspace string `json:"workspace,omitempty" jsonschema:"workspace path, or all (the default)"`
	TopK      int    `json:"top_k,omitempty" jsonschema:"maximum number of traces to return (default 20)"`
	Intent    string `json:"intent,omitempty" jsonschema:"only rank traces with an event of this intent"`
}

type searchOutput struct {
	Query    string             `json:"query"`
	Rung     string             `json:"rung"`
	Intent   string             `json:"intent,omitempty"`
	Searched int                `json:"searched"`
	Hits     []models.SearchHit `json:"hits"`
	Count    int                `json:"count"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
	TracesBuilt       int            `json:"traces_built"`
	FailedTraces      int            `json:"failed_traces"`
	EventsAccepted    int            `json:"events_accepted"`
	EventsDropped     int            `json:"events_dropped"`
	DropRatePercent   float64        `json:"drop_rate_percent"`
	Encodings         int            `json:"encodings"`
	DegradedEncodings int            `json:"degraded_encodings"`
	DegradedPercent   float64        `json:"degraded_percent"`
	EncodingsByRung   map[string]int `json:"encodings_by_rung"`
	MiningRuns        int            `json:"mining_runs"`
	ClusteringRuns    int            `json:"clustering_runs"`
	IncompleteRuns    int            `json:"incomplete_runs"`
	MotifsMined       int            `json:"motifs_mined"`
	ClustersBuilt     int            `json:"clusters_built"`
	EventCount        int            `json:"event_count"`
	LastMining        string         `json:"last_mining,omitempty"`
	OldestEvent       string         `json:"oldest_event,omitempty"`
	NewestEvent       string         `json:"newest_event,omitempty"`
}

type getAlertsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window to evaluate (e.g. 7d, 24h). Defaults to 7d."`
}

type alertOutput struct {
	ID          string   `json:"id"`
	Condition   string   `json:"condition"`
	Severity    string   `json:"severity"`
	Message     string   `json:"message"`
	TriggeredAt string   `json:"triggered_at"`
	Workspaces  []string `json:"workspaces,omitempty"`
	RunIDs      []string `json:"run_ids,omitempty"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_rung",
		Description: "Encode every trace of a workspace at one rung (raw, tokens, semantic_edits, functions, module_graph, motifs) and return the representations.",
	}, s.handleGetRung)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_motifs",
		Description: "Return the motif catalog of a workspace as {pattern, support, category} records, optionally mining it again.",
	}, s.handleGetMotifs)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_library",
		Description: "Return the behavioral library of a workspace: one entry per cluster of similar sessions with its representative pattern.",
	}, s.handleGetLibrary)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "context_precision",
		Description: "Compute the share of a prompt's declared context files that were edited within the window after it. cp is null when no files were declared.",
	}, s.handleContextPrecision)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "search",
		Description: "Rank the traces of a workspace against a free-text query by TF-IDF cosine similarity at one rung, optionally keeping only traces of one intent.",
	}, s.handleSearch)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get pipeline health metrics from the event log: traces built, dropped events, degraded encodings and mining/clustering runs.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate and return active pipeline alerts (drop rate, degraded encodings, incomplete runs, stale motif catalog).",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleGetRung(ctx context.Context, _ *gomcp.CallToolRequest, input getRungInput) (*gomcp.CallToolResult, getRungOutput, error) {
	if input.Rung == "" {
		return errorResult("rung is required"), getRungOutput{}, nil
	}

	opts := models.DefaultQueryOptions()
	setIfPresent(&opts.IncludePrompts, input.IncludePrompts)
	setIfPresent(&opts.UseStatisticalMining, input.UseStatisticalMining)
	setIfPresent(&opts.IncludeMetadata, input.IncludeMetadata)
	setIfPresent(&opts.RedactPIIEnabled, input.RedactPIIEnabled)

	workspace := workspaceOrAll(input.Workspace)
	reps, err := s.engine.GetRung(ctx, workspace, input.Rung, opts)
	if err != nil {
		return errorResult(fmt.Sprintf("encoding rung %s: %s", input.Rung, err)), getRungOutput{}, nil
	}

	out := getRungOutput{
		Rung:            input.Rung,
		Workspace:       workspace,
		Count:           len(reps),
		Representations: make([]representationOutput, len(reps)),
	}
	for i, rep := range reps {
		out.Rung = rep.Rung.String()
		out.Representations[i] = representationToOutput(rep)
	}
	return nil, out, nil
}

func (s *Server) handleSearch(ctx context.Context, _ *gomcp.CallToolRequest, input searchInput) (*gomcp.CallToolResult, searchOutput, error) {
	if input.Query == "" {
		return errorResult("query is required"), searchOutput{}, nil
	}
	rung := input.Rung
	if rung == "" {
		rung = models.RungSemanticEdits.String()
	}

	q := models.SearchQuery{Text: input.Query, TopK: input.TopK, Intent: input.Intent}
	res, err := s.engine.Search(ctx, workspaceOrAll(input.Workspace), rung, q, models.DefaultQueryOptions())
	if err != nil {
		return errorResult(fmt.Sprintf("searching %s: %s", rung, err)), searchOutput{}, nil
	}

	out := searchOutput{
		Query:    res.Query,
		Rung:     res.Rung.String(),
		Intent:   res.Intent,
		Searched: res.Searched,
		Hits:     res.Hits,
		Count:    len(res.Hits),
	}
	if out.Hits == nil {
		out.Hits = []models.SearchHit{}
	}
	return nil, out, nil
}

func (s *Server) handleGetMotifs(ctx context.Context, _ *gomcp.CallToolRequest, input getMotifsInput) (*gomcp.CallToolResult, getMotifsOutput, error) {
	workspace := workspaceOrAll(input.Workspace)

	var catalog models.MotifCatalog
	if input.Mine {
		cat, err := s.engine.Mine(ctx, workspace)
		if err != nil {
			return errorResult(fmt.Sprintf("mining motifs: %s", err)), getMotifsOutput{}, nil
		}
		catalog = cat
	} else {
		cat, ok, err := s.engine.Catalog(workspace)
		if err != nil {
			return errorResult(fmt.Sprintf("loading motif catalog: %s", err)), getMotifsOutput{}, nil
		}
		if !ok {
			return errorResult(fmt.Sprintf("no motif catalog for %s; call get_motifs with mine=true", workspace)), getMotifsOutput{}, nil
		}
		catalog = cat
	}

	out := getMotifsOutput{
		RunID:      catalog.RunID,
		Level:      catalog.Level,
		Workspace:  catalog.Workspace,
		TraceCount: catalog.TraceCount,
		Complete:   catalog.Complete,
		Motifs:     make([]models.MotifExport, len(catalog.Motifs)),
		Count:      len(catalog.Motifs),
		Warnings:   catalog.Warnings,
	}
	if !catalog.MinedAt.IsZero() {
		out.MinedAt = catalog.MinedAt.Format(time.RFC3339)
	}
	for i, m := range catalog.Motifs {
		out.Motifs[i] = m.Export()
	}
	return nil, out, nil
}

func (s *Server) handleGetLibrary(ctx context.Context, _ *gomcp.CallToolRequest, input getLibraryInput) (*gomcp.CallToolResult, getLibraryOutput, error) {
	workspace := workspaceOrAll(input.Workspace)

	var lib models.BehavioralLibrary
	if input.Rebuild {
		rung := input.Rung
		if rung == "" {
			rung = models.RungSemanticEdits.String()
		}
		l, err := s.engine.Cluster(ctx, workspace, rung)
		if err != nil {
			return errorResult(fmt.Sprintf("clustering sequences: %s", err)), getLibraryOutput{}, nil
		}
		lib = l
	} else {
		l, ok, err := s.engine.Library(workspace)
		if err != nil {
			return errorResult(fmt.Sprintf("loading behavioral library: %s", err)), getLibraryOutput{}, nil
		}
		if !ok {
			return errorResult(fmt.Sprintf("no behavioral library for %s; call get_library with rebuild=true", workspace)), getLibraryOutput{}, nil
		}
		lib = l
	}

	out := getLibraryOutput{
		RunID:     lib.RunID,
		Rung:      lib.Rung,
		Strategy:  lib.Strategy,
		Workspace: lib.Workspace,
		Complete:  lib.Complete,
		Entries:   lib.Entries,
		Count:     len(lib.Entries),
		Warnings:  lib.Warnings,
	}
	if out.Entries == nil {
		out.Entries = []models.BehavioralLibraryEntry{}
	}
	if !lib.BuiltAt.IsZero() {
		out.BuiltAt = lib.BuiltAt.Format(time.RFC3339)
	}
	return nil, out, nil
}

func (s *Server) handleContextPrecision(ctx context.Context, _ *gomcp.CallToolRequest, input contextPrecisionInput) (*gomcp.CallToolResult, contextPrecisionOutput, error) {
	if input.PromptID == "" {
		return errorResult("prompt_id is required"), contextPrecisionOutput{}, nil
	}
	window := s.cpWindow
	if input.TimeWindowSeconds != nil {
		window = *input.TimeWindowSeconds
	}

	res, err := s.engine.ContextPrecision(ctx, workspaceOrAll(input.Workspace), input.PromptID, window)
	if err != nil {
		return errorResult(fmt.Sprintf("computing context precision: %s", err)), contextPrecisionOutput{}, nil
	}

	out := contextPrecisionOutput{
		PromptID:           input.PromptID,
		CP:                 res.CP,
		UnusedContextFiles: res.UnusedContextFiles,
		Declared:           res.Declared,
		Touched:            res.Touched,
	}
	if out.UnusedContextFiles == nil {
		out.UnusedContextFiles = []string{}
	}
	return nil, out, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (observability may be disabled)"), emptyMetricsOutput(), nil
	}

	sinceTime, err := parseSince(defaultSince(input.Since))
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	metrics, err := s.metricsCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		TracesBuilt:       metrics.TracesBuilt,
		FailedTraces:      metrics.FailedTraces,
		EventsAccepted:    metrics.EventsAccepted,
		EventsDropped:     metrics.EventsDropped,
		DropRatePercent:   metrics.DropRatePercent,
		Encodings:         metrics.Encodings,
		DegradedEncodings: metrics.DegradedEncodings,
		DegradedPercent:   metrics.DegradedPercent,
		EncodingsByRung:   metrics.EncodingsByRung,
		MiningRuns:        metrics.MiningRuns,
		ClusteringRuns:    metrics.ClusteringRuns,
		IncompleteRuns:    metrics.IncompleteRuns,
		MotifsMined:       metrics.MotifsMined,
		ClustersBuilt:     metrics.ClustersBuilt,
		EventCount:        metrics.EventCount,
	}
	if out.EncodingsByRung == nil {
		out.EncodingsByRung = make(map[string]int)
	}
	if metrics.LastMining != nil {
		out.LastMining = metrics.LastMining.Format(time.RFC3339)
	}
	if metrics.OldestEvent != nil {
		out.OldestEvent = metrics.OldestEvent.Format(time.RFC3339)
	}
	if metrics.NewestEvent != nil {
		out.NewestEvent = metrics.NewestEvent.Format(time.RFC3339)
	}

	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, input getAlertsInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.alertEngine == nil {
		return errorResult("alert engine not available (observability may be disabled)"), getAlertsOutput{}, nil
	}

	sinceTime, err := parseSince(defaultSince(input.Since))
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), getAlertsOutput{}, nil
	}

	alerts, err := s.alertEngine.Evaluate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
			Workspaces:  a.Workspaces,
			RunIDs:      a.RunIDs,
		}
	}

	return nil, out, nil
}

// --- Helpers ---

func representationToOutput(rep models.RungRepresentation) representationOutput {
	out := representationOutput{
		TraceID:          rep.TraceID,
		CompressionClass: rep.CompressionClass,
		CompressionRatio: rep.CompressionRatio,
		RecordCount:      rep.RecordCount,
		Degraded:         rep.Degraded,
		Warnings:         rep.Warnings,
		Metadata:         rep.Metadata,
	}
	switch rep.Rung {
	case models.RungRaw:
		out.Records = nonNil(rep.Raw)
	case models.RungTokens:
		out.Records = nonNil(rep.Tokens)
	case models.RungSemanticEdits:
		out.Records = nonNil(rep.Edits)
	case models.RungFunctions:
		out.Records = nonNil(rep.Functions)
	case models.RungModuleGraph:
		out.Records = nonNil(rep.ModuleGraph)
	case models.RungMotifs:
		out.Records = nonNil(rep.Motifs)
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func setIfPresent(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func workspaceOrAll(ws string) string {
	if ws == "" {
		return core.AllWorkspaces
	}
	return ws
}

func defaultSince(s string) string {
	if s == "" {
		return "7d"
	}
	return s
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{EncodingsByRung: make(map[string]int)}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// parseSince parses a human-friendly duration string like "7d", "30d", or "24h"
// into the corresponding time in the past.
func parseSince(s string) (time.Time, error) {
	now := time.Now().UTC()

	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
