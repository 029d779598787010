package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

// AllWorkspaces selects every workspace of the trace source.
const AllWorkspaces = "all"

// BuildReport counts the outcome of turning event batches into traces.
type BuildReport struct {
	Traces  int
	Events  int
	Dropped int
	Failed  int
	Errors  []error
}

// Engine runs the representation pipeline over a trace source: it builds
// canonical traces, encodes them at any rung, mines motifs, clusters
// sequences into a behavioral library and computes context precision.
type Engine interface {
	Workspaces() ([]string, error)
	Traces(ctx context.Context, workspace string, opts models.QueryOptions) ([]models.Trace, BuildReport, error)
	GetRung(ctx context.Context, workspace, rung string, opts models.QueryOptions) ([]models.RungRepresentation, error)
	Mine(ctx context.Context, workspace string) (models.MotifCatalog, error)
	Cluster(ctx context.Context, workspace, rung string) (models.BehavioralLibrary, error)
	Catalog(workspace string) (models.MotifCatalog, bool, error)
	Library(workspace string) (models.BehavioralLibrary, bool, error)
	ContextPrecision(ctx context.Context, workspace, promptID string, windowSeconds int) (models.CPResult, error)
	Search(ctx context.Context, workspace, rung string, q models.SearchQuery, opts models.QueryOptions) (models.SearchResult, error)
}

// EngineDeps are the collaborators of an Engine. Only Source is required.
type EngineDeps struct {
	Source    TraceSource
	Artifacts ArtifactStore
	Catalogs  CatalogStore
	Syntax    SyntaxAnalyzer
	Diffs     DiffParser
	Embedder  Embedder
	Caches    *Caches
	Events    EventLogger
	Recorder  PipelineRecorder
	Logger    *zap.Logger
}

type engine struct {
	cfg       models.EngineConfig
	deps      EngineDeps
	canon     Canonicalizer
	redactor  Redactor
	intents   IntentExtractor
	encoders  Encoders
	miner     MotifMiner
	clusterer Clusterer
	logger    *zap.Logger
	now       func() time.Time
}

// NewEngine wires the pipeline components from cfg and deps.
func NewEngine(cfg models.EngineConfig, deps EngineDeps) Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if deps.Caches == nil {
		deps.Caches = &Caches{}
	}
	red := NewRedactor(cfg.Redaction.Categories)
	return &engine{
		cfg:       cfg,
		deps:      deps,
		canon:     NewCanonicalizer(cfg.Canonicalizer.SymbolWidth, deps.Diffs),
		redactor:  red,
		intents:   NewIntentExtractor(),
		encoders:  NewEncoders(cfg.Encoding, deps.Syntax, red, logger.Named("encoders")),
		miner:     NewMotifMiner(logger.Named("miner")),
		clusterer: NewClusterer(NewVectorizer(deps.Embedder, deps.Caches.Vectors), deps.Caches.Similarity, logger.Named("clusterer")),
		logger:    logger,
		now:       time.Now,
	}
}

func (e *engine) Workspaces() ([]string, error) {
	ws, err := e.deps.Source.Workspaces()
	if err != nil {
		return nil, fmt.Errorf("listing workspaces: %w", err)
	}
	return ws, nil
}

// Traces builds one trace per batch in parallel. A batch that fails or
// panics is counted and skipped. Traces are returned in ID order.
func (e *engine) Traces(ctx context.Context, workspace string, opts models.QueryOptions) ([]models.Trace, BuildReport, error) {
	batches, err := e.deps.Source.LoadBatches(workspaceFilter(workspace))
	if err != nil {
		return nil, BuildReport{}, fmt.Errorf("loading event batches: %w", err)
	}

	out := make([]*models.Trace, len(batches))
	reports := make([]CanonicalizeReport, len(batches))
	var mu sync.Mutex
	var report BuildReport

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers())
	for i, batch := range batches {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					report.Failed++
					report.Errors = append(report.Errors, fmt.Errorf("building trace %s: panic: %v", models.TraceID(batch.WorkspacePath, batch.SessionID), r))
					mu.Unlock()
				}
			}()
			if gctx.Err() != nil {
				return gctx.Err()
			}
			trace, rep := e.buildTrace(batch, opts)
			out[i] = &trace
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, report, fmt.Errorf("building traces: %w", err)
	}

	traces := make([]models.Trace, 0, len(batches))
	for i, t := range out {
		if t == nil {
			continue
		}
		traces = append(traces, *t)
		report.Events += reports[i].Accepted
		report.Dropped += reports[i].Dropped
		for _, err := range reports[i].Errors {
			e.logger.Debug("event dropped", zap.String("trace", t.ID), zap.Error(err))
		}
	}
	sort.SliceStable(traces, func(i, j int) bool { return traces[i].ID < traces[j].ID })
	report.Traces = len(traces)

	for _, err := range report.Errors {
		e.logger.Warn("trace skipped", zap.Error(err))
	}
	e.deps.Recorder.TracesBuilt(report.Traces, report.Events, report.Dropped, report.Failed)
	e.logEvent("trace.built", map[string]any{
		"workspace": workspaceLabel(workspace),
		"traces":    report.Traces,
		"events":    report.Events,
		"dropped":   report.Dropped,
		"failed":    report.Failed,
	})
	if report.Dropped > 0 {
		e.logEvent("event.dropped", map[string]any{"workspace": workspaceLabel(workspace), "count": report.Dropped})
	}
	return traces, report, nil
}

// buildTrace runs canonicalization, redaction and intent annotation.
func (e *engine) buildTrace(batch models.EventBatch, opts models.QueryOptions) (models.Trace, CanonicalizeReport) {
	trace, rep := e.canon.Canonicalize(batch)
	if opts.RedactPIIEnabled {
		var changed int
		trace, changed = RedactTraceReport(e.redactor, trace)
		if changed == 0 && len(trace.Events) > 0 {
			e.logger.Debug("nothing to redact", zap.String("trace", trace.ID), zap.Error(RedactionNoMatchWarning))
		}
	}
	return AnnotateIntents(e.intents, trace, opts.IncludePrompts), rep
}

func (e *engine) GetRung(ctx context.Context, workspace, rung string, opts models.QueryOptions) ([]models.RungRepresentation, error) {
	r, err := models.ParseRung(rung)
	if err != nil {
		return nil, &ConfigError{Field: "rung", Message: err.Error()}
	}
	_, reps, err := e.encodeWorkspace(ctx, workspace, r, opts)
	return reps, err
}

// encodeWorkspace builds the workspace's traces and encodes each at r,
// returning both in the same order.
func (e *engine) encodeWorkspace(ctx context.Context, workspace string, r models.Rung, opts models.QueryOptions) ([]models.Trace, []models.RungRepresentation, error) {
	traces, _, err := e.Traces(ctx, workspace, opts)
	if err != nil {
		return nil, nil, err
	}

	enc := e.encoders
	catalogID := ""
	if r == models.RungMotifs && opts.UseStatisticalMining {
		if cat, ok := e.catalogFor(workspace); ok {
			enc = enc.WithCatalog(cat)
			catalogID = cat.RunID
		}
	}

	reps := make([]models.RungRepresentation, len(traces))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers())
	for i, t := range traces {
		g.Go(func() error {
			reps[i] = e.encodeCached(gctx, enc, t, r, opts, catalogID)
			return nil
		})
	}
	_ = g.Wait()

	degraded := 0
	for _, rep := range reps {
		e.deps.Recorder.Encoded(rep.Rung.String(), rep.Degraded)
		if rep.Degraded {
			degraded++
		}
	}
	e.logEvent("rung.encoded", map[string]any{
		"workspace": workspaceLabel(workspace),
		"rung":      r.String(),
		"degraded":  degraded,
		"total":     len(reps),
	})
	if degraded > 0 {
		e.logEvent("encoding.degraded", map[string]any{
			"workspace": workspaceLabel(workspace),
			"rung":      r.String(),
			"degraded":  degraded,
			"total":     len(reps),
		})
	}
	return traces, reps, nil
}

// encodeCached looks the representation up in the session cache, then the
// artifact store, and encodes on a miss. A panicking encoder yields an
// empty degraded representation rather than failing the batch.
func (e *engine) encodeCached(ctx context.Context, enc Encoders, t models.Trace, r models.Rung, opts models.QueryOptions, catalogID string) (rep models.RungRepresentation) {
	key := e.representationKey(t, r, opts, catalogID)
	if data, ok := e.deps.Caches.Sessions.Get(key); ok {
		if json.Unmarshal(data, &rep) == nil {
			return rep
		}
	}
	if e.deps.Artifacts != nil {
		data, ok, err := e.deps.Artifacts.Get(key)
		if err != nil {
			e.logger.Debug("artifact lookup failed", zap.String("key", key), zap.Error(err))
		}
		if ok && json.Unmarshal(data, &rep) == nil {
			e.deps.Caches.Sessions.Set(key, data)
			return rep
		}
	}

	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("encoder panicked", zap.String("trace", t.ID), zap.String("rung", r.String()), zap.Any("panic", p))
			w := &EncodingDegradedWarning{Rung: r.String(), Unit: "none", Reason: fmt.Sprint(p)}
			rep = models.RungRepresentation{
				Rung:             r,
				TraceID:          t.ID,
				CompressionClass: r.CompressionClass(),
				Degraded:         true,
				Warnings:         []string{w.Error()},
			}
		}
	}()
	rep = enc.Encode(ctx, t, r, opts)
	if ctx.Err() != nil {
		return rep
	}
	if data, err := json.Marshal(rep); err == nil {
		e.deps.Caches.Sessions.Set(key, data)
		if e.deps.Artifacts != nil {
			if err := e.deps.Artifacts.Put(key, data); err != nil {
				e.logger.Debug("artifact store failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return rep
}

// representationKey content-addresses a representation by everything that
// determines it.
func (e *engine) representationKey(t models.Trace, r models.Rung, opts models.QueryOptions, catalogID string) string {
	traceData, _ := json.Marshal(t)
	cfgData, _ := json.Marshal(e.cfg.Encoding)
	return "rep/" + r.String() + "/" + HashKey(
		string(traceData),
		string(cfgData),
		fmt.Sprintf("%t%t%t%t", opts.IncludePrompts, opts.UseStatisticalMining, opts.IncludeMetadata, opts.RedactPIIEnabled),
		catalogID,
	)
}

func (e *engine) Mine(ctx context.Context, workspace string) (models.MotifCatalog, error) {
	level := models.RungTokens
	if e.cfg.Mining.Level == "functions" {
		level = models.RungFunctions
	}
	opts := models.DefaultQueryOptions()
	opts.IncludeMetadata = false
	traces, _, err := e.Traces(ctx, workspace, opts)
	if err != nil {
		return models.MotifCatalog{}, err
	}

	sequences := make([][]string, len(traces))
	for i, t := range traces {
		sequences[i] = e.encoders.Encode(ctx, t, level, opts).Sequence()
	}

	start := e.now()
	res := e.miner.Mine(ctx, sequences, MineOptions{
		MiningConfig: e.cfg.Mining,
		Budget:       time.Duration(e.cfg.Budget.MiningSeconds) * time.Second,
	})
	elapsed := e.now().Sub(start)

	catalog := models.MotifCatalog{
		RunID:      uuid.NewString(),
		Level:      level.String(),
		Workspace:  workspaceLabel(workspace),
		TraceCount: len(traces),
		MinSupport: e.cfg.Mining.MinSupport,
		Complete:   res.Complete,
		MinedAt:    e.now().UTC(),
		Motifs:     res.Motifs,
		Warnings:   warningStrings(res.Warnings),
	}
	if catalog.Motifs == nil {
		catalog.Motifs = []models.Motif{}
	}
	e.finishRun("mining", catalog.RunID, workspace, res.Complete, elapsed, len(catalog.Motifs), res.Warnings)

	if e.deps.Catalogs != nil {
		if err := e.deps.Catalogs.SaveCatalog(catalog); err != nil {
			return catalog, fmt.Errorf("saving motif catalog: %w", err)
		}
	}
	return catalog, nil
}

func (e *engine) Cluster(ctx context.Context, workspace, rung string) (models.BehavioralLibrary, error) {
	r, err := models.ParseRung(rung)
	if err != nil {
		return models.BehavioralLibrary{}, &ConfigError{Field: "rung", Message: err.Error()}
	}
	opts := models.DefaultQueryOptions()
	opts.IncludeMetadata = false
	traces, _, err := e.Traces(ctx, workspace, opts)
	if err != nil {
		return models.BehavioralLibrary{}, err
	}

	enc := e.encoders
	if r == models.RungMotifs {
		if cat, ok := e.catalogFor(workspace); ok {
			enc = enc.WithCatalog(cat)
		}
	}
	items := make([]ClusterItem, len(traces))
	for i, t := range traces {
		items[i] = ClusterItem{
			ID:        t.ID,
			Sequence:  enc.Encode(ctx, t, r, opts).Sequence(),
			Workspace: t.WorkspacePath,
			Intent:    traceIntent(t),
		}
	}

	start := e.now()
	res := e.clusterer.Cluster(ctx, items, ClusterOptions{
		ClusteringConfig: e.cfg.Clustering,
		Budget:           time.Duration(e.cfg.Budget.ClusteringSeconds) * time.Second,
	})
	elapsed := e.now().Sub(start)

	lib := models.BehavioralLibrary{
		RunID:       uuid.NewString(),
		Rung:        r.String(),
		Strategy:    res.Strategy,
		Workspace:   workspaceLabel(workspace),
		Complete:    res.Complete,
		BuiltAt:     e.now().UTC(),
		Entries:     e.clusterer.BuildLibrary(res),
		Assignments: res.Assignments,
		Warnings:    warningStrings(res.Warnings),
	}
	e.finishRun("clustering", lib.RunID, workspace, res.Complete, elapsed, len(lib.Entries), res.Warnings)

	if e.deps.Catalogs != nil {
		if err := e.deps.Catalogs.SaveLibrary(lib); err != nil {
			return lib, fmt.Errorf("saving behavioral library: %w", err)
		}
	}
	return lib, nil
}

func (e *engine) finishRun(stage, runID, workspace string, complete bool, elapsed time.Duration, produced int, warnings []error) {
	e.deps.Recorder.RunFinished(stage, complete, elapsed, produced)
	e.logger.Info(stage+" finished",
		zap.String("run_id", runID),
		zap.String("workspace", workspaceLabel(workspace)),
		zap.Bool("complete", complete),
		zap.Duration("elapsed", elapsed),
		zap.Int("produced", produced))
	e.logEvent(stage+".completed", map[string]any{
		"run_id":     runID,
		"workspace":  workspaceLabel(workspace),
		"complete":   complete,
		"produced":   produced,
		"elapsed_ms": elapsed.Milliseconds(),
	})
	for _, w := range warnings {
		var be *BudgetExceededWarning
		if errors.As(w, &be) {
			e.logEvent("budget.exceeded", map[string]any{"run_id": runID, "stage": stage, "reached": be.Reached})
		}
	}
}

func (e *engine) Catalog(workspace string) (models.MotifCatalog, bool, error) {
	if e.deps.Catalogs == nil {
		return models.MotifCatalog{}, false, nil
	}
	return e.deps.Catalogs.LoadCatalog(workspaceLabel(workspace))
}

func (e *engine) Library(workspace string) (models.BehavioralLibrary, bool, error) {
	if e.deps.Catalogs == nil {
		return models.BehavioralLibrary{}, false, nil
	}
	return e.deps.Catalogs.LoadLibrary(workspaceLabel(workspace))
}

// catalogFor returns the workspace's catalog, falling back to the corpus
// wide one.
func (e *engine) catalogFor(workspace string) (models.MotifCatalog, bool) {
	for _, ws := range []string{workspaceLabel(workspace), AllWorkspaces} {
		cat, ok, err := e.Catalog(ws)
		if err != nil {
			e.logger.Warn("loading motif catalog", zap.String("workspace", ws), zap.Error(err))
			continue
		}
		if ok && len(cat.Motifs) > 0 {
			return cat, true
		}
	}
	return models.MotifCatalog{}, false
}

func (e *engine) ContextPrecision(ctx context.Context, workspace, promptID string, windowSeconds int) (models.CPResult, error) {
	if windowSeconds < 0 {
		return models.CPResult{}, &ConfigError{Field: "time_window_seconds", Message: "must not be negative"}
	}
	traces, _, err := e.Traces(ctx, workspace, models.DefaultQueryOptions())
	if err != nil {
		return models.CPResult{}, err
	}
	window := time.Duration(windowSeconds) * time.Second
	for _, t := range traces {
		res, err := ContextPrecisionForPrompt(t, promptID, window)
		if errors.Is(err, ErrPromptNotFound) {
			continue
		}
		return res, err
	}
	return models.CPResult{}, fmt.Errorf("prompt %q: %w", promptID, ErrPromptNotFound)
}

func (e *engine) workers() int {
	if e.cfg.Workers > 0 {
		return e.cfg.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (e *engine) logEvent(eventType string, data map[string]any) {
	if e.deps.Events == nil {
		return
	}
	_ = e.deps.Events.LogEvent(eventType, data)
}

// traceIntent is the most frequent known intent of a trace.
func traceIntent(t models.Trace) string {
	counts := map[string]int{}
	best := IntentUnknown
	for _, ev := range t.Events {
		in := intentOf(ev.Attrs)
		if in == IntentUnknown {
			continue
		}
		counts[in]++
		if counts[in] > counts[best] || (counts[in] == counts[best] && in < best) {
			best = in
		}
	}
	return best
}

func workspaceFilter(workspace string) string {
	if strings.EqualFold(workspace, AllWorkspaces) {
		return ""
	}
	return workspace
}

func workspaceLabel(workspace string) string {
	if workspace == "" || strings.EqualFold(workspace, AllWorkspaces) {
		return AllWorkspaces
	}
	return workspace
}
