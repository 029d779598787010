package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Rung is one of the six fixed abstraction levels.
type Rung int

const (
	RungRaw Rung = iota
	RungTokens
	RungSemanticEdits
	RungFunctions
	RungModuleGraph
	RungMotifs
)

var rungNames = [...]string{
	RungRaw:           "raw",
	RungTokens:        "tokens",
	RungSemanticEdits: "semantic_edits",
	RungFunctions:     "functions",
	RungModuleGraph:   "module_graph",
	RungMotifs:        "motifs",
}

// AllRungs returns every rung from least to most compressed.
func AllRungs() []Rung {
	return []Rung{RungRaw, RungTokens, RungSemanticEdits, RungFunctions, RungModuleGraph, RungMotifs}
}

func (r Rung) String() string {
	if r < RungRaw || r > RungMotifs {
		return fmt.Sprintf("rung(%d)", int(r))
	}
	return rungNames[r]
}

// Valid reports whether r is one of the six rungs.
func (r Rung) Valid() bool {
	return r >= RungRaw && r <= RungMotifs
}

// CompressionClass is the nominal compression of the rung relative to raw.
func (r Rung) CompressionClass() string {
	switch r {
	case RungRaw:
		return "1x"
	case RungTokens:
		return "10x"
	case RungSemanticEdits:
		return "11x"
	case RungFunctions:
		return "39x"
	case RungModuleGraph:
		return "100x"
	case RungMotifs:
		return "240x"
	}
	return "unknown"
}

// ParseRung maps a rung name to its Rung. The comparison is case-insensitive
// and accepts "-" in place of "_".
func ParseRung(s string) (Rung, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for i, n := range rungNames {
		if n == name {
			return Rung(i), nil
		}
	}
	return 0, fmt.Errorf("invalid rung %q, must be one of: %s", s, strings.Join(rungNames[:], ", "))
}

func (r Rung) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Rung) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRung(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// QueryOptions are the recognized options of a rung query.
type QueryOptions struct {
	IncludePrompts       bool `json:"include_prompts"`
	UseStatisticalMining bool `json:"use_statistical_mining"`
	IncludeMetadata      bool `json:"include_metadata"`
	RedactPIIEnabled     bool `json:"redact_pii_enabled"`
}

// DefaultQueryOptions returns options with every flag enabled.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{
		IncludePrompts:       true,
		UseStatisticalMining: true,
		IncludeMetadata:      true,
		RedactPIIEnabled:     true,
	}
}

// RawRecord is one redacted event in the raw rung.
type RawRecord struct {
	Seq          int       `json:"seq"`
	Symbol       string    `json:"symbol"`
	Kind         EventKind `json:"kind"`
	Timestamp    string    `json:"timestamp"`
	FilePath     string    `json:"file_path,omitempty"`
	Language     string    `json:"language,omitempty"`
	LinesAdded   int       `json:"lines_added,omitempty"`
	LinesRemoved int       `json:"lines_removed,omitempty"`
	Code         string    `json:"code,omitempty"`
	Prompt       string    `json:"prompt,omitempty"`
	Command      string    `json:"command,omitempty"`
	Intent       string    `json:"intent,omitempty"`
}

// FunctionRecord is one function-level change.
type FunctionRecord struct {
	File            string `json:"file"`
	Function        string `json:"function"`
	Changes         int    `json:"changes"`
	SignatureBefore string `json:"signature_before,omitempty"`
	SignatureAfter  string `json:"signature_after,omitempty"`
	Delta           string `json:"delta"`
	Unit            string `json:"unit"`
}

// GraphRelation names the kind of a file-to-file relationship.
type GraphRelation string

const (
	RelationImport   GraphRelation = "import"
	RelationCoEdit   GraphRelation = "co_edit"
	RelationSequence GraphRelation = "sequence"
	RelationSummary  GraphRelation = "summary"
)

// GraphRecord is one file-to-file relationship.
type GraphRecord struct {
	Source   string        `json:"source"`
	Target   string        `json:"target"`
	Relation GraphRelation `json:"relation"`
	Weight   int           `json:"weight"`
}

// MotifOccurrence is a motif found in one trace.
type MotifOccurrence struct {
	PatternID string   `json:"pattern_id"`
	Pattern   []string `json:"pattern"`
	Category  string   `json:"category"`
	Intent    string   `json:"intent"`
	Frequency int      `json:"frequency"`
	Support   float64  `json:"support,omitempty"`
}

// FunctionEdge links a function to the next different function edited
// within the graph window.
type FunctionEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// FunctionEditGraph relates the functions changed in a trace by the order
// they were edited in. Node names are "file::function", or FN000-style
// aliases when the trace is redacted.
type FunctionEditGraph struct {
	Nodes     int            `json:"nodes"`
	Edges     []FunctionEdge `json:"edges,omitempty"`
	Edits     map[string]int `json:"edits"`
	OutDegree map[string]int `json:"out_degree,omitempty"`
	InDegree  map[string]int `json:"in_degree,omitempty"`
	Cycles    int            `json:"cycles"`
}

// RepresentationMetadata is optional context attached to a representation.
type RepresentationMetadata struct {
	SessionID      string         `json:"session_id"`
	WorkspacePath  string         `json:"workspace_path"`
	EventCount     int            `json:"event_count"`
	DroppedEvents  int            `json:"dropped_events"`
	PromptCount    int            `json:"prompt_count"`
	CodeChanges    int            `json:"code_changes"`
	ContextFiles   []string       `json:"context_files,omitempty"`
	Truncated      int            `json:"truncated,omitempty"`
	SegmentIntents []string       `json:"segment_intents,omitempty"`
	Stats          map[string]int `json:"stats,omitempty"`

	FunctionGraph *FunctionEditGraph `json:"function_graph,omitempty"`
}

// RungRepresentation is the derived representation of one trace at one rung.
// Exactly one payload field is populated, matching Rung.
type RungRepresentation struct {
	Rung             Rung     `json:"rung"`
	TraceID          string   `json:"trace_id"`
	CompressionClass string   `json:"compression_class"`
	CompressionRatio float64  `json:"compression_ratio"`
	RecordCount      int      `json:"record_count"`
	Degraded         bool     `json:"degraded"`
	Warnings         []string `json:"warnings,omitempty"`

	Raw         []RawRecord       `json:"raw,omitempty"`
	Tokens      []string          `json:"tokens,omitempty"`
	Edits       []string          `json:"semantic_edits,omitempty"`
	Functions   []FunctionRecord  `json:"functions,omitempty"`
	ModuleGraph []GraphRecord     `json:"module_graph,omitempty"`
	Motifs      []MotifOccurrence `json:"motifs,omitempty"`

	Metadata *RepresentationMetadata `json:"metadata,omitempty"`
}

// Records returns the number of payload records for the representation's
// rung.
func (r RungRepresentation) Records() int {
	switch r.Rung {
	case RungRaw:
		return len(r.Raw)
	case RungTokens:
		return len(r.Tokens)
	case RungSemanticEdits:
		return len(r.Edits)
	case RungFunctions:
		return len(r.Functions)
	case RungModuleGraph:
		return len(r.ModuleGraph)
	case RungMotifs:
		return len(r.Motifs)
	}
	return 0
}

// Sequence returns the representation as a flat symbol sequence, the form
// consumed by mining and clustering.
func (r RungRepresentation) Sequence() []string {
	switch r.Rung {
	case RungRaw:
		out := make([]string, len(r.Raw))
		for i, rec := range r.Raw {
			out[i] = rec.Symbol
		}
		return out
	case RungTokens:
		out := make([]string, 0, len(r.Tokens))
		for _, line := range r.Tokens {
			out = append(out, TokenLineHead(line)...)
		}
		return out
	case RungSemanticEdits:
		return append([]string(nil), r.Edits...)
	case RungFunctions:
		out := make([]string, len(r.Functions))
		for i, f := range r.Functions {
			out[i] = f.File + "::" + f.Function
		}
		return out
	case RungModuleGraph:
		out := make([]string, len(r.ModuleGraph))
		for i, g := range r.ModuleGraph {
			out[i] = string(g.Relation) + ":" + g.Source + "->" + g.Target
		}
		return out
	case RungMotifs:
		out := make([]string, len(r.Motifs))
		for i, m := range r.Motifs {
			out[i] = m.PatternID
		}
		return out
	}
	return nil
}

// TokenLineHead returns the leading INTENT_ and EV_ fields of a token line,
// or its first field when it has neither. Lines are folded to these heads
// when a token stream is treated as a symbol sequence.
func TokenLineHead(line string) []string {
	fields := strings.Fields(line)
	var head []string
	for _, f := range fields {
		if strings.HasPrefix(f, "INTENT_") || strings.HasPrefix(f, "EV_") {
			head = append(head, f)
			continue
		}
		break
	}
	if len(head) == 0 && len(fields) > 0 {
		head = fields[:1]
	}
	return head
}
