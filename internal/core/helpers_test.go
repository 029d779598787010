package core

import (
	"testing"
	"time"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

var testEpoch = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

// at returns the test epoch plus sec seconds.
func at(sec int) models.EventTime {
	return models.EventTime{Time: testEpoch.Add(time.Duration(sec) * time.Second)}
}

func rawEvent(typ string, sec int, payload map[string]any) models.RawEvent {
	return models.RawEvent{Type: typ, Timestamp: at(sec), Payload: payload}
}

// sampleBatch is a short debugging session: a prompt, two edits to the
// same Go file, a test run and an edit to a second file.
func sampleBatch() models.EventBatch {
	return models.EventBatch{
		WorkspacePath: "/home/dev/project",
		SessionID:     "s1",
		Events: []models.RawEvent{
			rawEvent("ai.prompt", 0, map[string]any{
				"prompt":        "fix the nil pointer crash in the server handler",
				"prompt_id":     "p1",
				"context_files": []any{"internal/server.go", "internal/util.go"},
			}),
			rawEvent("code.edit", 10, map[string]any{
				"file_path":    "/home/dev/project/internal/server.go",
				"before":       "package server\n\nfunc Handle(r *Request) error {\n\treturn nil\n}\n",
				"after":        "package server\n\nfunc Handle(r *Request) error {\n\tif r == nil {\n\t\treturn errNil\n\t}\n\treturn nil\n}\n",
				"lines_added":  3,
				"diff_summary": "guard nil request",
			}),
			rawEvent("terminal.command", 20, map[string]any{"command": "go test ./..."}),
			rawEvent("code.edit", 30, map[string]any{
				"file_path":     "/home/dev/project/internal/server.go",
				"after":         "package server\n\nimport \"example.com/project/internal/util\"\n\nfunc Handle(r *Request) error {\n\treturn util.Check(r)\n}\n",
				"lines_added":   1,
				"lines_removed": 3,
			}),
			rawEvent("code.edit", 40, map[string]any{
				"file_path":   "/home/dev/project/internal/util/check.go",
				"after":       "package util\n\nfunc Check(v any) error {\n\treturn nil\n}\n",
				"lines_added": 5,
			}),
		},
	}
}

// buildTrace canonicalizes, redacts and annotates a batch the way the
// engine does.
func buildTrace(t *testing.T, batch models.EventBatch, opts models.QueryOptions) models.Trace {
	t.Helper()
	trace, _ := NewCanonicalizer(6, nil).Canonicalize(batch)
	if opts.RedactPIIEnabled {
		trace = RedactTrace(NewRedactor(nil), trace)
	}
	return AnnotateIntents(NewIntentExtractor(), trace, opts.IncludePrompts)
}

// memorySource is a TraceSource over fixed batches.
type memorySource struct {
	batches []models.EventBatch
}

func (s *memorySource) LoadBatches(workspace string) ([]models.EventBatch, error) {
	var out []models.EventBatch
	for _, b := range s.batches {
		if workspace == "" || b.WorkspacePath == workspace {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memorySource) Workspaces() ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, b := range s.batches {
		if !seen[b.WorkspacePath] {
			seen[b.WorkspacePath] = true
			out = append(out, b.WorkspacePath)
		}
	}
	return out, nil
}

// memoryCatalogs is a CatalogStore kept in memory.
type memoryCatalogs struct {
	catalogs  map[string]models.MotifCatalog
	libraries map[string]models.BehavioralLibrary
}

func newMemoryCatalogs() *memoryCatalogs {
	return &memoryCatalogs{
		catalogs:  map[string]models.MotifCatalog{},
		libraries: map[string]models.BehavioralLibrary{},
	}
}

func (m *memoryCatalogs) SaveCatalog(c models.MotifCatalog) error {
	m.catalogs[c.Workspace] = c
	return nil
}

func (m *memoryCatalogs) LoadCatalog(ws string) (models.MotifCatalog, bool, error) {
	c, ok := m.catalogs[ws]
	return c, ok, nil
}

func (m *memoryCatalogs) SaveLibrary(l models.BehavioralLibrary) error {
	m.libraries[l.Workspace] = l
	return nil
}

func (m *memoryCatalogs) LoadLibrary(ws string) (models.BehavioralLibrary, bool, error) {
	l, ok := m.libraries[ws]
	return l, ok, nil
}

// recordingLog captures event log writes.
type recordingLog struct {
	types []string
}

func (r *recordingLog) LogEvent(eventType string, _ map[string]any) error {
	r.types = append(r.types, eventType)
	return nil
}
