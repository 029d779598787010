package core

import (
	"crypto/sha1" //nolint:gosec // G505: symbols are identifiers, not security boundaries
	"encoding/hex"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

// typeDelimiters matches the separators normalized away before hashing.
var typeDelimiters = regexp.MustCompile(`[._/\\\-\s]+`)

// CanonicalizeReport counts what happened to one batch.
type CanonicalizeReport struct {
	Accepted int
	Dropped  int
	Errors   []error
}

// Canonicalizer maps raw events onto the symbolic alphabet and orders them
// into a trace.
type Canonicalizer interface {
	Canonicalize(batch models.EventBatch) (models.Trace, CanonicalizeReport)
	SymbolFor(eventType string) string
}

type canonicalizer struct {
	width int
	diffs DiffParser
}

// NewCanonicalizer creates a Canonicalizer producing symbols of width hex
// characters. diffs may be nil, in which case missing line statistics stay
// zero.
func NewCanonicalizer(width int, diffs DiffParser) Canonicalizer {
	if width <= 0 {
		width = 6
	}
	if width > sha1.Size*2 {
		width = sha1.Size * 2
	}
	return &canonicalizer{width: width, diffs: diffs}
}

// normalizeType lower-cases an event type and collapses delimiter runs.
func normalizeType(eventType string) string {
	t := strings.ToLower(strings.TrimSpace(eventType))
	t = typeDelimiters.ReplaceAllString(t, ".")
	return strings.Trim(t, ".")
}

// SymbolFor returns the symbol of an event type. The same type always
// yields the same symbol, in any process.
func (c *canonicalizer) SymbolFor(eventType string) string {
	norm := normalizeType(eventType)
	if norm == "" {
		norm = "other"
	}
	sum := sha1.Sum([]byte(norm)) //nolint:gosec // see import
	return "EV_" + hex.EncodeToString(sum[:])[:c.width]
}

// Canonicalize converts a batch into a trace. Events without a type or a
// timestamp are dropped and counted; they never abort the batch.
func (c *canonicalizer) Canonicalize(batch models.EventBatch) (models.Trace, CanonicalizeReport) {
	var report CanonicalizeReport
	trace := models.Trace{
		ID:            models.TraceID(batch.WorkspacePath, batch.SessionID),
		WorkspacePath: batch.WorkspacePath,
		SessionID:     batch.SessionID,
	}

	events := make([]models.CanonicalEvent, 0, len(batch.Events))
	for i, raw := range batch.Events {
		if strings.TrimSpace(raw.Type) == "" {
			report.Dropped++
			report.Errors = append(report.Errors, &MalformedEventError{Index: i, Field: "type"})
			continue
		}
		if raw.Timestamp.IsZero() {
			report.Dropped++
			report.Errors = append(report.Errors, &MalformedEventError{Index: i, Field: "timestamp", Type: raw.Type})
			continue
		}
		events = append(events, models.CanonicalEvent{
			Symbol:    c.SymbolFor(raw.Type),
			Timestamp: raw.Timestamp.UTC(),
			Attrs:     c.attrs(i, raw),
		})
	}

	// Stable: ties keep original batch order.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	trace.Events = events
	trace.Dropped = report.Dropped
	report.Accepted = len(events)
	return trace, report
}

func (c *canonicalizer) attrs(seq int, raw models.RawEvent) models.Attrs {
	a := models.Attrs{
		Seq:          seq,
		Type:         raw.Type,
		FilePath:     firstNonEmpty(raw.String("file_path"), raw.String("path"), raw.String("file")),
		Language:     raw.String("language"),
		LinesAdded:   raw.Int("lines_added"),
		LinesRemoved: raw.Int("lines_removed"),
		Diff:         raw.String("diff"),
		Before:       firstNonEmpty(raw.String("before"), raw.String("before_content")),
		After:        firstNonEmpty(raw.String("after"), raw.String("after_content"), raw.String("content")),
		DiffSummary:  raw.String("diff_summary"),
		Prompt:       firstNonEmpty(raw.String("prompt"), raw.String("text"), raw.String("message")),
		PromptID:     firstNonEmpty(raw.String("prompt_id"), raw.ID),
		ContextFiles: raw.Strings("context_files"),
		Command:      firstNonEmpty(raw.String("command"), raw.String("cmd")),
	}

	if a.Diff != "" && c.diffs != nil {
		if files, err := c.diffs.ParseUnified(a.Diff); err == nil && len(files) > 0 {
			added, removed := 0, 0
			for _, f := range files {
				added += f.LinesAdded
				removed += f.LinesRemoved
			}
			if a.LinesAdded == 0 && a.LinesRemoved == 0 {
				a.LinesAdded, a.LinesRemoved = added, removed
			}
			if a.FilePath == "" {
				a.FilePath = firstNonEmpty(files[0].NewName, files[0].OrigName)
			}
		}
	}
	if a.LinesAdded == 0 && a.LinesRemoved == 0 && (a.Before != "" || a.After != "") && c.diffs != nil {
		stats := c.diffs.Stats(a.Before, a.After)
		a.LinesAdded, a.LinesRemoved = stats.LinesAdded, stats.LinesRemoved
	}
	if a.Language == "" && a.FilePath != "" {
		a.Language = DetectLanguage(a.FilePath)
	}

	a.Kind = classifyKind(raw.Type, a)
	if a.Kind != models.KindPrompt {
		a.PromptID = firstNonEmpty(raw.String("prompt_id"))
	}
	return a
}

// classifyKind derives the coarse event kind from the type name, falling
// back to the payload shape.
func classifyKind(eventType string, a models.Attrs) models.EventKind {
	t := normalizeType(eventType)
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(t, w) {
				return true
			}
		}
		return false
	}
	switch {
	case has("prompt", "chat", "message", "ai.", "query", "completion"):
		return models.KindPrompt
	case has("terminal", "command", "shell", "exec", "bash", "run"):
		return models.KindTerminal
	case a.HasCode() || a.LinesAdded > 0 || a.LinesRemoved > 0:
		return models.KindEdit
	case has("edit", "change", "diff", "write", "save", "patch", "create", "delete", "rename", "code"):
		return models.KindEdit
	case has("open", "close", "navigate", "file", "focus", "ide", "select", "scroll"):
		return models.KindFile
	case a.Prompt != "":
		return models.KindPrompt
	case a.Command != "":
		return models.KindTerminal
	}
	return models.KindOther
}

// languageByExt maps file extensions to language names.
var languageByExt = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".cjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".rs":    "rust",
	".java":  "java",
	".rb":    "ruby",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".kt":    "kotlin",
	".swift": "swift",
	".php":   "php",
	".md":    "markdown",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".sh":    "shell",
	".sql":   "sql",
	".html":  "html",
	".css":   "css",
	".ipynb": "python",
}

// DetectLanguage guesses a language from a file path's extension.
func DetectLanguage(filePath string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(filePath, `\`, "/")))
	if lang, ok := languageByExt[ext]; ok {
		return lang
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
