package core

import (
	"context"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

// TraceSource delivers ordered event batches per (workspace, session).
// This interface is defined locally in core to avoid importing storage.
// An empty workspace or "all" selects every workspace.
type TraceSource interface {
	LoadBatches(workspace string) ([]models.EventBatch, error)
	Workspaces() ([]string, error)
}

// ArtifactStore persists derived artifacts under content-addressed keys.
// A miss returns ok=false and a nil error.
type ArtifactStore interface {
	Get(key string) (data []byte, ok bool, err error)
	Put(key string, data []byte) error
}

// SyntaxAnalyzer parses source fragments. ok is false when the language is
// unsupported or the fragment could not be parsed, in which case callers
// degrade to a coarser unit.
type SyntaxAnalyzer interface {
	Tokens(ctx context.Context, language, code string) ([]models.SyntaxToken, bool)
	Functions(ctx context.Context, language, code string) ([]models.FunctionSignature, bool)
	Imports(ctx context.Context, language, code string) ([]string, bool)
}

// DiffParser extracts file-level statistics from diffs.
type DiffParser interface {
	ParseUnified(diff string) ([]models.FileDiff, error)
	Stats(before, after string) models.DiffStats
}

// Embedder is an optional capability producing dense vectors for symbol
// sequences. When nil, term-frequency vectors are used.
type Embedder interface {
	Embed(ctx context.Context, sequence []string) ([]float64, error)
}

// CatalogStore persists the latest motif catalog and behavioral library per
// workspace.
type CatalogStore interface {
	SaveCatalog(catalog models.MotifCatalog) error
	LoadCatalog(workspace string) (models.MotifCatalog, bool, error)
	SaveLibrary(library models.BehavioralLibrary) error
	LoadLibrary(workspace string) (models.BehavioralLibrary, bool, error)
}
