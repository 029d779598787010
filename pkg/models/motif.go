package models

import "time"

// Motif categories.
const (
	CategorySequential  = "Sequential Pattern"
	CategoryFrequent    = "Frequent Sequence"
	CategoryCompression = "Compression Pattern"
	CategoryIterative   = "Iterative Pattern"
	CategoryHotspot     = "Hotspot Pattern"
	CategoryDiversity   = "Diversity Pattern"
	CategoryIntent      = "Intent Signal"
	CategoryDependency  = "Dependency Pattern"
	CategoryOther       = "Other Pattern"
)

// Motif sources.
const (
	SourceFrequent   = "frequent"
	SourceGrammar    = "grammar"
	SourceStructural = "structural"
)

// Motif is a recurring symbol subsequence mined from a corpus of traces.
type Motif struct {
	PatternID    string   `json:"pattern_id" yaml:"pattern_id"`
	Pattern      []string `json:"pattern" yaml:"pattern"`
	SupportCount int      `json:"support_count" yaml:"support_count"`
	Support      float64  `json:"support" yaml:"support"`
	Category     string   `json:"category" yaml:"category"`
	Source       string   `json:"source" yaml:"source"`
}

// MotifExport is the export shape of a motif.
type MotifExport struct {
	Pattern  []string `json:"pattern"`
	Support  float64  `json:"support"`
	Category string   `json:"category"`
}

// Export returns the motif in export form.
func (m Motif) Export() MotifExport {
	return MotifExport{Pattern: m.Pattern, Support: m.Support, Category: m.Category}
}

// MotifCatalog is the persisted result of one mining run.
type MotifCatalog struct {
	RunID      string    `json:"run_id" yaml:"run_id"`
	Level      string    `json:"level" yaml:"level"`
	Workspace  string    `json:"workspace" yaml:"workspace"`
	TraceCount int       `json:"trace_count" yaml:"trace_count"`
	MinSupport int       `json:"min_support" yaml:"min_support"`
	Complete   bool      `json:"complete" yaml:"complete"`
	MinedAt    time.Time `json:"mined_at" yaml:"mined_at"`
	Motifs     []Motif   `json:"motifs" yaml:"motifs"`
	Warnings   []string  `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}
