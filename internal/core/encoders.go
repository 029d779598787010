package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

// Encoders turns a canonical trace into its representation at each rung.
// Encoding never fails: missing parse information degrades the unit and is
// reported in the representation's warnings.
type Encoders interface {
	Encode(ctx context.Context, trace models.Trace, rung models.Rung, opts models.QueryOptions) models.RungRepresentation
	EncodeAll(ctx context.Context, trace models.Trace, opts models.QueryOptions) []models.RungRepresentation
	// WithCatalog returns a copy whose motifs rung reports occurrences of
	// the catalog's motifs, matched against the rung the catalog was mined at.
	WithCatalog(cat models.MotifCatalog) Encoders
}

type encoders struct {
	cfg      models.EncodingConfig
	syntax   SyntaxAnalyzer
	redactor Redactor
	catalog  []models.Motif
	level    models.Rung
	logger   *zap.Logger
}

// NewEncoders creates the rung encoders. syntax may be nil, in which case
// lexical and regex fallbacks are used throughout.
func NewEncoders(cfg models.EncodingConfig, syntax SyntaxAnalyzer, redactor Redactor, logger *zap.Logger) Encoders {
	if cfg.MaxTokensPerEvent <= 0 {
		cfg.MaxTokensPerEvent = 200
	}
	if cfg.GraphWindowSeconds <= 0 {
		cfg.GraphWindowSeconds = 300
	}
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = 10
	}
	if redactor == nil {
		redactor = NewRedactor(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &encoders{cfg: cfg, syntax: syntax, redactor: redactor, logger: logger}
}

func (e *encoders) WithCatalog(cat models.MotifCatalog) Encoders {
	cp := *e
	cp.catalog = append([]models.Motif(nil), cat.Motifs...)
	cp.level = catalogLevel(cat.Level)
	return &cp
}

// catalogLevel maps a catalog's mining level onto the rung whose sequence
// it was mined from. Older catalogs carry no level and were token-level.
func catalogLevel(level string) models.Rung {
	if r, err := models.ParseRung(level); err == nil && r == models.RungFunctions {
		return r
	}
	return models.RungTokens
}

func (e *encoders) Encode(ctx context.Context, trace models.Trace, rung models.Rung, opts models.QueryOptions) models.RungRepresentation {
	return e.chain(ctx, trace, opts).get(rung)
}

func (e *encoders) EncodeAll(ctx context.Context, trace models.Trace, opts models.QueryOptions) []models.RungRepresentation {
	c := e.chain(ctx, trace, opts)
	out := make([]models.RungRepresentation, 0, len(models.AllRungs()))
	for _, r := range models.AllRungs() {
		out = append(out, c.get(r))
	}
	return out
}

func (e *encoders) chain(ctx context.Context, trace models.Trace, opts models.QueryOptions) *rungChain {
	if ctx == nil {
		ctx = context.Background()
	}
	return &rungChain{ctx: ctx, enc: e, trace: trace, opts: opts}
}

// rungChain memoizes the representations of one trace. Each rung is capped
// at the record count of the rung below it, so building rung k builds every
// rung under it first.
type rungChain struct {
	ctx   context.Context
	enc   *encoders
	trace models.Trace
	opts  models.QueryOptions
	reps  [models.RungMotifs + 1]*models.RungRepresentation
}

// draft is an encoder's output before the shared bookkeeping is applied.
type draft struct {
	rep       models.RungRepresentation
	truncated int
	warnings  []error
	segments  []string
	stats     map[string]int
	fgraph    *models.FunctionEditGraph
}

func (d *draft) degrade(rung models.Rung, unit, reason string) {
	for _, w := range d.warnings {
		if dw, ok := w.(*EncodingDegradedWarning); ok && dw.Unit == unit && dw.Reason == reason {
			return
		}
	}
	d.warnings = append(d.warnings, &EncodingDegradedWarning{Rung: rung.String(), Unit: unit, Reason: reason})
}

func (c *rungChain) get(r models.Rung) models.RungRepresentation {
	if !r.Valid() {
		return models.RungRepresentation{Rung: r, TraceID: c.trace.ID, CompressionClass: r.CompressionClass()}
	}
	if rep := c.reps[r]; rep != nil {
		return *rep
	}

	limit := -1
	if r > models.RungRaw {
		limit = c.get(r - 1).RecordCount
	}

	var d draft
	switch r {
	case models.RungRaw:
		d = c.encodeRaw()
	case models.RungTokens:
		d = c.encodeTokens(limit)
	case models.RungSemanticEdits:
		d = c.encodeEdits(limit)
	case models.RungFunctions:
		d = c.encodeFunctions(limit)
	case models.RungModuleGraph:
		d = c.encodeModuleGraph(limit)
	case models.RungMotifs:
		d = c.encodeMotifs(limit)
	}

	rep := d.rep
	rep.Rung = r
	rep.TraceID = c.trace.ID
	rep.CompressionClass = r.CompressionClass()
	rep.RecordCount = rep.Records()
	rawCount := rep.RecordCount
	if r > models.RungRaw {
		rawCount = c.get(models.RungRaw).RecordCount
	}
	rep.CompressionRatio = float64(rawCount) / float64(max(rep.RecordCount, 1))
	rep.Degraded = len(d.warnings) > 0
	rep.Warnings = warningStrings(d.warnings)
	if c.opts.IncludeMetadata {
		md := c.metadata()
		md.Truncated = d.truncated
		md.SegmentIntents = d.segments
		md.Stats = d.stats
		md.FunctionGraph = d.fgraph
		rep.Metadata = &md
	}
	for _, w := range d.warnings {
		c.enc.logger.Debug("encoding degraded", zap.String("trace", c.trace.ID), zap.Error(w))
	}
	c.reps[r] = &rep
	return rep
}

func (c *rungChain) metadata() models.RepresentationMetadata {
	md := models.RepresentationMetadata{
		SessionID:     c.trace.SessionID,
		WorkspacePath: c.trace.WorkspacePath,
		EventCount:    len(c.trace.Events),
		DroppedEvents: c.trace.Dropped,
	}
	files := map[string]bool{}
	for _, ev := range c.trace.Events {
		switch ev.Attrs.Kind {
		case models.KindPrompt:
			md.PromptCount++
			if c.opts.IncludePrompts {
				for _, f := range ev.Attrs.ContextFiles {
					files[f] = true
				}
			}
		case models.KindEdit:
			md.CodeChanges++
		}
	}
	md.ContextFiles = sortedKeys(files)
	return md
}

// keepTop returns the indexes of the limit highest-weighted items, ties
// broken by key, in their original order. A negative limit keeps all.
func keepTop(weights []int, keys []string, limit int) (kept []int, truncated int) {
	n := len(weights)
	if limit < 0 || n <= limit {
		kept = make([]int, n)
		for i := range kept {
			kept[i] = i
		}
		return kept, 0
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		if weights[idx[a]] != weights[idx[b]] {
			return weights[idx[a]] > weights[idx[b]]
		}
		return keys[idx[a]] < keys[idx[b]]
	})
	kept = append([]int(nil), idx[:limit]...)
	sort.Ints(kept)
	return kept, n - limit
}

func pick[T any](items []T, idx []int) []T {
	if len(idx) == len(items) {
		return items
	}
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = items[j]
	}
	return out
}

// codeOf returns the best available code text of an event: the content
// after the change, else the added lines of its diff, else the content
// before.
func codeOf(a models.Attrs) string {
	if a.After != "" {
		return a.After
	}
	if a.Diff != "" {
		return addedLines(a.Diff)
	}
	return a.Before
}

func addedLines(diff string) string {
	var b strings.Builder
	for _, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++") {
			b.WriteString(line[1:])
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func removedLines(diff string) string {
	var b strings.Builder
	for _, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---") {
			b.WriteString(line[1:])
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// tokensFor parses code with the syntax analyzer when it can, falling back
// to the lexical tokenizer. unit names what was used.
func (e *encoders) tokensFor(ctx context.Context, language, code string) (toks []models.SyntaxToken, unit string) {
	if e.syntax != nil && language != "" {
		if toks, ok := e.syntax.Tokens(ctx, language, code); ok {
			return toks, "syntax"
		}
	}
	return LexicalTokens(code), "lexical"
}

// functionsIn returns the functions declared in code, from the syntax
// analyzer or, failing that, from per-language patterns.
func (e *encoders) functionsIn(ctx context.Context, language, code string) []models.FunctionSignature {
	if code == "" {
		return nil
	}
	if e.syntax != nil && language != "" {
		if fns, ok := e.syntax.Functions(ctx, language, code); ok && len(fns) > 0 {
			return fns
		}
	}
	return RegexFunctions(language, code)
}

func (e *encoders) importsIn(ctx context.Context, language, code string) []string {
	if code == "" {
		return nil
	}
	if e.syntax != nil && language != "" {
		if imps, ok := e.syntax.Imports(ctx, language, code); ok {
			return imps
		}
	}
	return RegexImports(language, code)
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func seqKey(seq int) string {
	return fmt.Sprintf("%08d", seq)
}

func intentOf(a models.Attrs) string {
	if a.Intent == "" {
		return IntentUnknown
	}
	return a.Intent
}
