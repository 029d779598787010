package cli

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/valter-silva-au/tracerung/internal/core"
	"github.com/valter-silva-au/tracerung/pkg/models"
)

// mockEngine implements core.Engine with canned results.
type mockEngine struct {
	workspaces []string
	reps       []models.RungRepresentation
	catalog    *models.MotifCatalog
	library    *models.BehavioralLibrary
	cp         models.CPResult
	search     models.SearchResult
	err        error

	calls     []string
	workspace string
	rung      string
	opts      models.QueryOptions
	window    int
	query     models.SearchQuery
}

func (m *mockEngine) Workspaces() ([]string, error) { return m.workspaces, m.err }

func (m *mockEngine) Traces(context.Context, string, models.QueryOptions) ([]models.Trace, core.BuildReport, error) {
	return nil, core.BuildReport{}, m.err
}

func (m *mockEngine) GetRung(_ context.Context, workspace, rung string, opts models.QueryOptions) ([]models.RungRepresentation, error) {
	m.calls = append(m.calls, "GetRung")
	m.workspace, m.rung, m.opts = workspace, rung, opts
	if _, err := models.ParseRung(rung); err != nil {
		return nil, &core.ConfigError{Field: "rung", Message: err.Error()}
	}
	return m.reps, m.err
}

func (m *mockEngine) Mine(_ context.Context, workspace string) (models.MotifCatalog, error) {
	m.calls = append(m.calls, "Mine")
	m.workspace = workspace
	if m.catalog == nil {
		return models.MotifCatalog{Workspace: workspace, Motifs: []models.Motif{}}, m.err
	}
	return *m.catalog, m.err
}

func (m *mockEngine) Cluster(_ context.Context, workspace, rung string) (models.BehavioralLibrary, error) {
	m.calls = append(m.calls, "Cluster")
	m.workspace, m.rung = workspace, rung
	if m.library == nil {
		return models.BehavioralLibrary{Workspace: workspace}, m.err
	}
	return *m.library, m.err
}

func (m *mockEngine) Catalog(workspace string) (models.MotifCatalog, bool, error) {
	m.calls = append(m.calls, "Catalog")
	m.workspace = workspace
	if m.catalog == nil {
		return models.MotifCatalog{}, false, m.err
	}
	return *m.catalog, true, m.err
}

func (m *mockEngine) Library(workspace string) (models.BehavioralLibrary, bool, error) {
	m.calls = append(m.calls, "Library")
	m.workspace = workspace
	if m.library == nil {
		return models.BehavioralLibrary{}, false, m.err
	}
	return *m.library, true, m.err
}

func (m *mockEngine) ContextPrecision(_ context.Context, workspace, _ string, windowSeconds int) (models.CPResult, error) {
	m.calls = append(m.calls, "ContextPrecision")
	m.workspace, m.window = workspace, windowSeconds
	return m.cp, m.err
}

func (m *mockEngine) Search(_ context.Context, workspace, rung string, q models.SearchQuery, opts models.QueryOptions) (models.SearchResult, error) {
	m.calls = append(m.calls, "Search")
	m.workspace, m.rung, m.query, m.opts = workspace, rung, q, opts
	if _, err := models.ParseRung(rung); err != nil {
		return models.SearchResult{}, &core.ConfigError{Field: "rung", Message: err.Error()}
	}
	return m.search, m.err
}

// withEngine installs eng as the package engine for the test.
func withEngine(t *testing.T, eng core.Engine) {
	t.Helper()
	orig := Engine
	Engine = eng
	t.Cleanup(func() { Engine = orig })
}

// captureStdout captures stdout output during fn execution.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("creating pipe: %v", err)
	}
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = origStdout

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading pipe: %v", err)
	}
	return string(out)
}
