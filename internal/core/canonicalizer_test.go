package core

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

func TestSymbolFor_FormatAndWidth(t *testing.T) {
	for _, width := range []int{4, 6, 12} {
		sym := NewCanonicalizer(width, nil).SymbolFor("code.edit")
		if !strings.HasPrefix(sym, "EV_") {
			t.Errorf("SymbolFor() = %q, want EV_ prefix", sym)
		}
		if got := len(sym) - len("EV_"); got != width {
			t.Errorf("width %d: symbol %q has %d hex chars", width, sym, got)
		}
	}
}

func TestSymbolFor_NormalizesType(t *testing.T) {
	c := NewCanonicalizer(6, nil)
	want := c.SymbolFor("code.edit")
	for _, typ := range []string{"CODE.EDIT", " code_edit ", "code-edit", "code/edit"} {
		if got := c.SymbolFor(typ); got != want {
			t.Errorf("SymbolFor(%q) = %q, want %q", typ, got, want)
		}
	}
	if c.SymbolFor("code.edit") == c.SymbolFor("code.delete") {
		t.Error("distinct types share a symbol")
	}
}

func TestCanonicalize_DropsMalformedEvents(t *testing.T) {
	batch := models.EventBatch{
		WorkspacePath: "/w",
		SessionID:     "s",
		Events: []models.RawEvent{
			rawEvent("code.edit", 0, nil),
			{Type: "", Timestamp: at(1)},
			{Type: "code.edit"},
			rawEvent("terminal.command", 2, map[string]any{"command": "ls"}),
		},
	}
	trace, report := NewCanonicalizer(6, nil).Canonicalize(batch)

	if report.Accepted != 2 || report.Dropped != 2 {
		t.Fatalf("report = %+v, want 2 accepted and 2 dropped", report)
	}
	if trace.Dropped != 2 {
		t.Errorf("trace.Dropped = %d, want 2", trace.Dropped)
	}
	var me *MalformedEventError
	if !errors.As(report.Errors[0], &me) || me.Field != "type" || me.Index != 1 {
		t.Errorf("first error = %v, want missing type at index 1", report.Errors[0])
	}
	if !errors.As(report.Errors[1], &me) || me.Field != "timestamp" {
		t.Errorf("second error = %v, want missing timestamp", report.Errors[1])
	}
}

func TestCanonicalize_StableOrderByTimestamp(t *testing.T) {
	batch := models.EventBatch{Events: []models.RawEvent{
		rawEvent("b", 5, nil),
		rawEvent("a", 1, nil),
		rawEvent("c", 5, nil),
		rawEvent("d", 1, nil),
	}}
	trace, _ := NewCanonicalizer(6, nil).Canonicalize(batch)

	var seqs []int
	for i, ev := range trace.Events {
		seqs = append(seqs, ev.Attrs.Seq)
		if i > 0 && ev.Timestamp.Before(trace.Events[i-1].Timestamp) {
			t.Fatalf("timestamps decrease at %d", i)
		}
	}
	want := []int{1, 3, 0, 2}
	for i := range want {
		if seqs[i] != want[i] {
			t.Fatalf("order = %v, want %v", seqs, want)
		}
	}
}

func TestCanonicalize_ClassifiesAndFillsAttrs(t *testing.T) {
	trace, _ := NewCanonicalizer(6, nil).Canonicalize(sampleBatch())

	kinds := []models.EventKind{models.KindPrompt, models.KindEdit, models.KindTerminal, models.KindEdit, models.KindEdit}
	for i, ev := range trace.Events {
		if ev.Attrs.Kind != kinds[i] {
			t.Errorf("event %d kind = %s, want %s", i, ev.Attrs.Kind, kinds[i])
		}
	}
	if got := trace.Events[1].Attrs.Language; got != "go" {
		t.Errorf("language = %q, want go", got)
	}
	if got := trace.Events[0].Attrs.PromptID; got != "p1" {
		t.Errorf("prompt id = %q, want p1", got)
	}
	if len(trace.Events[0].Attrs.ContextFiles) != 2 {
		t.Errorf("context files = %v", trace.Events[0].Attrs.ContextFiles)
	}
	if trace.ID != "/home/dev/project#s1" {
		t.Errorf("trace ID = %q", trace.ID)
	}
}

type stubDiffs struct{}

func (stubDiffs) ParseUnified(string) ([]models.FileDiff, error) {
	return []models.FileDiff{{NewName: "pkg/a.go", LinesAdded: 2, LinesRemoved: 1}}, nil
}

func (stubDiffs) Stats(before, after string) models.DiffStats {
	return models.DiffStats{LinesAdded: 7, LinesRemoved: 4}
}

func TestCanonicalize_FillsLineStatsFromDiffParser(t *testing.T) {
	batch := models.EventBatch{Events: []models.RawEvent{
		rawEvent("code.edit", 0, map[string]any{"diff": "@@ -1 +1,2 @@\n-a\n+b\n+c\n"}),
		rawEvent("code.edit", 1, map[string]any{"file_path": "x.py", "before": "a", "after": "b"}),
	}}
	trace, _ := NewCanonicalizer(6, stubDiffs{}).Canonicalize(batch)

	a := trace.Events[0].Attrs
	if a.LinesAdded != 2 || a.LinesRemoved != 1 || a.FilePath != "pkg/a.go" || a.Language != "go" {
		t.Errorf("diff attrs = %+v", a)
	}
	b := trace.Events[1].Attrs
	if b.LinesAdded != 7 || b.LinesRemoved != 4 {
		t.Errorf("before/after stats = %d/%d, want 7/4", b.LinesAdded, b.LinesRemoved)
	}
}

func TestCanonicalize_EpochMillisTimestamps(t *testing.T) {
	var ev models.RawEvent
	ev.Type = "code.edit"
	if err := ev.Timestamp.UnmarshalJSON([]byte("1736935200000")); err != nil {
		t.Fatal(err)
	}
	trace, report := NewCanonicalizer(6, nil).Canonicalize(models.EventBatch{Events: []models.RawEvent{ev}})
	if report.Accepted != 1 {
		t.Fatalf("accepted = %d", report.Accepted)
	}
	if want := time.UnixMilli(1736935200000).UTC(); !trace.Events[0].Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", trace.Events[0].Timestamp, want)
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := map[string]string{
		"main.go":           "go",
		"src/App.TSX":       "typescript",
		`C:\proj\lib.rs`:    "rust",
		"notes.txt":         "",
		"scripts/build.mjs": "javascript",
	}
	for path, want := range tests {
		if got := DetectLanguage(path); got != want {
			t.Errorf("DetectLanguage(%q) = %q, want %q", path, got, want)
		}
	}
}
