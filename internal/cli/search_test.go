package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/valter-silva-au/tracerung/internal/core"
	"github.com/valter-silva-au/tracerung/pkg/models"
)

func runSearch(t *testing.T, args []string, setup func()) (string, error) {
	t.Helper()
	origWS, origTop, origIntent, origJSON, origNoRedact := searchWorkspace, searchTop, searchIntent, searchJSON, searchNoRedact
	t.Cleanup(func() {
		searchWorkspace, searchTop, searchIntent, searchJSON, searchNoRedact = origWS, origTop, origIntent, origJSON, origNoRedact
	})
	searchWorkspace, searchTop, searchIntent, searchJSON, searchNoRedact = "all", core.DefaultSearchTopK, "", false, false
	if setup != nil {
		setup()
	}
	var err error
	out := captureStdout(t, func() { err = searchCmd.RunE(searchCmd, args) })
	return out, err
}

func sampleSearch() models.SearchResult {
	return models.SearchResult{
		Query:    "nil crash",
		Rung:     models.RungSemanticEdits,
		Searched: 4,
		Hits: []models.SearchHit{
			{Rank: 1, TraceID: "dev/project@1a2b3c4d#s1", Score: 0.81, Intent: "debugging", Matched: []string{"crash", "nil"}},
		},
	}
}

func TestSearchCmd_NilEngine(t *testing.T) {
	withEngine(t, nil)
	if _, err := runSearch(t, []string{"raw", "x"}, nil); err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("expected not initialized error, got %v", err)
	}
}

func TestSearchCmd_Table(t *testing.T) {
	eng := &mockEngine{search: sampleSearch()}
	withEngine(t, eng)

	out, err := runSearch(t, []string{"semantic_edits", "nil", "crash"}, func() { searchIntent = "debugging" })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"1 of 4 traces", "dev/project@1a2b3c4d#s1", "0.810", "crash, nil"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	want := models.SearchQuery{Text: "nil crash", TopK: core.DefaultSearchTopK, Intent: "debugging"}
	if eng.query != want || eng.rung != "semantic_edits" || eng.workspace != "all" {
		t.Errorf("call = %q %q %+v", eng.workspace, eng.rung, eng.query)
	}
	if !eng.opts.RedactPIIEnabled {
		t.Error("redaction should default on")
	}
}

func TestSearchCmd_JSON(t *testing.T) {
	withEngine(t, &mockEngine{search: sampleSearch()})
	out, err := runSearch(t, []string{"semantic_edits", "nil crash"}, func() { searchJSON = true; searchTop = 1 })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got models.SearchResult
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if len(got.Hits) != 1 || got.Hits[0].Intent != "debugging" {
		t.Errorf("result = %+v", got)
	}
}

func TestSearchCmd_InvalidRung(t *testing.T) {
	withEngine(t, &mockEngine{})
	_, err := runSearch(t, []string{"rung9", "x"}, nil)
	if err == nil || !core.IsConfigError(err) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestSearchCmd_Args(t *testing.T) {
	if err := searchCmd.Args(searchCmd, []string{"raw"}); err == nil {
		t.Error("a query is required")
	}
}
