package internal

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/tracerung/internal/cli"
	"github.com/valter-silva-au/tracerung/internal/core"
	"github.com/valter-silva-au/tracerung/internal/observability"
	"github.com/valter-silva-au/tracerung/pkg/models"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, core.ConfigFileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestApp(t *testing.T, config string) (*App, string) {
	t.Helper()
	dir := t.TempDir()
	if config != "" {
		writeConfig(t, dir, config)
	}
	app, err := NewApp(dir)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(func() {
		if err := app.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return app, dir
}

func TestResolveBasePath_HomeSet(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(HomeEnv, tmpDir)

	if got := ResolveBasePath(); got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q", got, tmpDir)
	}
}

func TestResolveBasePath_FindsConfig(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "sub", "nested")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, tmpDir, "workers: 2\n")
	t.Setenv(HomeEnv, "")
	t.Chdir(subDir)

	if got := ResolveBasePath(); got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q", got, tmpDir)
	}
}

func TestResolveBasePath_FallbackToCwd(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(HomeEnv, "")
	t.Chdir(tmpDir)

	got := ResolveBasePath()
	if got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q", got, tmpDir)
	}
}

func TestNewApp_Defaults(t *testing.T) {
	app, dir := newTestApp(t, "")

	if app.Config.ContextPrecision.WindowSeconds != 300 {
		t.Errorf("window = %d, want default 300", app.Config.ContextPrecision.WindowSeconds)
	}
	if app.Engine == nil || app.Events == nil || app.Catalogs == nil || app.Artifacts == nil {
		t.Fatal("core components not wired")
	}
	if app.EventLog == nil || app.AlertEngine == nil || app.MetricsCalc == nil {
		t.Fatal("observability not wired")
	}
	if app.Notifier != nil {
		t.Error("notifier should stay nil without a webhook")
	}
	if _, err := os.Stat(filepath.Join(dir, observability.EventLogFile)); err != nil {
		t.Errorf("event log not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, app.Config.Storage.BadgerPath)); err != nil {
		t.Errorf("badger directory not created: %v", err)
	}
}

func TestNewApp_WiresCLI(t *testing.T) {
	app, _ := newTestApp(t, "storage:\n  artifacts: memory\nobservability:\n  slack_webhook_url: https://hooks.example.com/x\n")

	if cli.Engine != app.Engine {
		t.Error("cli.Engine not wired")
	}
	if cli.Config != app.Config || cli.Importer == nil || cli.Events == nil {
		t.Error("cli pipeline vars not wired")
	}
	if cli.EventLog == nil || cli.AlertEngine == nil || cli.MetricsCalc == nil || cli.PipelineMetrics == nil {
		t.Error("cli observability vars not wired")
	}
	if cli.Notifier == nil {
		t.Error("notifier should be wired when a webhook is configured")
	}
}

func TestNewApp_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "clustering:\n  strategy: bogus\nmining:\n  min_support: 5\n  min_traces: 2\n")

	_, err := NewApp(dir)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"clustering.strategy", "mining.min_traces"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestNewApp_MalformedConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "mining: [unclosed\n")

	if _, err := NewApp(dir); err == nil || !strings.Contains(err.Error(), "loading configuration") {
		t.Fatalf("expected load error, got %v", err)
	}
}

func TestApp_CloseIsIdempotentOnPartialApp(t *testing.T) {
	if err := (&App{}).Close(); err != nil {
		t.Errorf("Close on empty app: %v", err)
	}
}

func TestApp_EndToEnd(t *testing.T) {
	app, _ := newTestApp(t, "storage:\n  artifacts: memory\n")
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	at := func(sec int) models.EventTime { return models.EventTime{Time: base.Add(time.Duration(sec) * time.Second)} }
	events := []models.RawEvent{
		{Type: "ai.prompt", Timestamp: at(0), Payload: map[string]any{
			"prompt":        "add retry to the http client",
			"prompt_id":     "p1",
			"context_files": []any{"client/http.go", "docs/retry.md"},
		}},
		{Type: "code.edit", Timestamp: at(20), Payload: map[string]any{
			"file_path":   "/work/svc/client/http.go",
			"after":       "package client\n\nfunc Do() error {\n\treturn retry(send)\n}\n",
			"lines_added": 4,
		}},
		{Type: "terminal.command", Timestamp: at(40), Payload: map[string]any{"command": "go test ./client"}},
	}
	if _, err := app.Events.Append("/work/svc", "sess-1", events); err != nil {
		t.Fatalf("Append: %v", err)
	}

	reps, err := app.Engine.GetRung(ctx, core.AllWorkspaces, "semantic_edits", models.DefaultQueryOptions())
	if err != nil {
		t.Fatalf("GetRung: %v", err)
	}
	if len(reps) != 1 || reps[0].Rung != models.RungSemanticEdits {
		t.Fatalf("representations = %+v", reps)
	}

	res, err := app.Engine.ContextPrecision(ctx, "/work/svc", "p1", 300)
	if err != nil {
		t.Fatalf("ContextPrecision: %v", err)
	}
	if res.CP == nil || *res.CP != 0.5 {
		t.Errorf("CP = %v, want 0.5", res.CP)
	}
	if len(res.UnusedContextFiles) != 1 || res.UnusedContextFiles[0] != "docs/retry.md" {
		t.Errorf("unused = %v", res.UnusedContextFiles)
	}

	m, err := app.MetricsCalc.Calculate(time.Time{})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if m.TracesBuilt == 0 {
		t.Errorf("traces built should be recorded in the event log, metrics = %+v", m)
	}
}
