package integration

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

// TranscriptImport holds the events recovered from one agent transcript.
type TranscriptImport struct {
	SessionID string
	Workspace string
	Summary   string
	Events    []models.RawEvent
	ToolsUsed map[string]int
	Prompts   int
	Skipped   int
}

// TranscriptImporter turns Claude Code JSONL session transcripts into
// captured events: user turns become ai.prompt, Edit/MultiEdit/Write tool
// uses become code.edit, Read becomes file.open and Bash becomes
// terminal.command.
type TranscriptImporter interface {
	ImportTranscript(filePath string) (*TranscriptImport, error)
}

type transcriptImporter struct{}

// NewTranscriptImporter creates a new TranscriptImporter.
func NewTranscriptImporter() TranscriptImporter {
	return &transcriptImporter{}
}

type jsonlLine struct {
	Type      string          `json:"type"`
	IsMeta    bool            `json:"isMeta,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
	Summary   string          `json:"summary,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	UUID      string          `json:"uuid,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	CWD       string          `json:"cwd,omitempty"`
}

type jsonlMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type toolInput struct {
	FilePath  string `json:"file_path"`
	OldString string `json:"old_string"`
	NewString string `json:"new_string"`
	Content   string `json:"content"`
	Command   string `json:"command"`
	Edits     []struct {
		OldString string `json:"old_string"`
		NewString string `json:"new_string"`
	} `json:"edits"`
}

// fileMention matches @path references in a prompt.
var fileMention = regexp.MustCompile(`(?:^|\s)@([\w./-]*\w)`)

// ImportTranscript reads a transcript. Malformed lines are counted in
// Skipped. The session ID comes from the transcript, falling back to the
// file name; the workspace is the first working directory recorded.
func (p *transcriptImporter) ImportTranscript(filePath string) (*TranscriptImport, error) {
	f, err := os.Open(filePath) //nolint:gosec // G304: path from trusted caller
	if err != nil {
		return nil, fmt.Errorf("opening transcript %s: %w", filePath, err)
	}
	defer func() { _ = f.Close() }()

	out := &TranscriptImport{ToolsUsed: make(map[string]int)}
	promptID := ""

	scanner := bufio.NewScanner(f)
	// Tool results can make single lines very large.
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var entry jsonlLine
		if err := json.Unmarshal(line, &entry); err != nil {
			out.Skipped++
			continue
		}
		if out.SessionID == "" {
			out.SessionID = entry.SessionID
		}
		if out.Workspace == "" {
			out.Workspace = entry.CWD
		}
		ts := models.EventTime{Time: models.ParseEventTime(entry.Timestamp)}

		switch entry.Type {
		case "summary":
			if entry.Summary != "" {
				out.Summary = entry.Summary
			}

		case "user":
			if entry.IsMeta {
				continue
			}
			text := extractMessageText(entry.Message)
			if strings.TrimSpace(text) == "" {
				continue
			}
			promptID = entry.UUID
			if promptID == "" {
				promptID = fmt.Sprintf("prompt-%d", out.Prompts+1)
			}
			payload := map[string]any{"prompt": text, "prompt_id": promptID}
			if files := mentionedFiles(text); len(files) > 0 {
				payload["context_files"] = files
			}
			out.Events = append(out.Events, models.RawEvent{
				ID: entry.UUID, Type: "ai.prompt", Timestamp: ts, Payload: payload,
			})
			out.Prompts++

		case "assistant":
			for i, b := range toolUses(entry.Message) {
				out.ToolsUsed[b.Name]++
				for j, ev := range toolEvents(b) {
					ev.ID = fmt.Sprintf("%s#%d.%d", entry.UUID, i, j)
					ev.Timestamp = ts
					if promptID != "" {
						ev.Payload["prompt_id"] = promptID
					}
					out.Events = append(out.Events, ev)
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading transcript %s: %w", filePath, err)
	}

	if out.SessionID == "" {
		out.SessionID = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	}
	if out.Summary == "" {
		out.Summary = summarize(out)
	}
	return out, nil
}

// toolEvents maps one tool_use block to events. Tools that do not touch
// files or the terminal produce none.
func toolEvents(b contentBlock) []models.RawEvent {
	var in toolInput
	if len(b.Input) > 0 {
		if err := json.Unmarshal(b.Input, &in); err != nil {
			return nil
		}
	}
	edit := func(before, after string) models.RawEvent {
		payload := map[string]any{"file_path": in.FilePath, "after": after, "tool": b.Name}
		if before != "" {
			payload["before"] = before
		}
		return models.RawEvent{Type: "code.edit", Payload: payload}
	}

	switch b.Name {
	case "Edit":
		if in.FilePath == "" {
			return nil
		}
		return []models.RawEvent{edit(in.OldString, in.NewString)}
	case "MultiEdit":
		if in.FilePath == "" {
			return nil
		}
		var evs []models.RawEvent
		for _, e := range in.Edits {
			evs = append(evs, edit(e.OldString, e.NewString))
		}
		return evs
	case "Write":
		if in.FilePath == "" {
			return nil
		}
		return []models.RawEvent{edit("", in.Content)}
	case "Read":
		if in.FilePath == "" {
			return nil
		}
		return []models.RawEvent{{Type: "file.open", Payload: map[string]any{"file_path": in.FilePath}}}
	case "Bash":
		if strings.TrimSpace(in.Command) == "" {
			return nil
		}
		return []models.RawEvent{{Type: "terminal.command", Payload: map[string]any{"command": in.Command}}}
	}
	return nil
}

// extractMessageText returns the text of a user message whose content is
// either a string or an array of blocks. Tool results are not text.
func extractMessageText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var msg jsonlMessage
	if err := json.Unmarshal(raw, &msg); err != nil || len(msg.Content) == 0 {
		return ""
	}
	var plain string
	if err := json.Unmarshal(msg.Content, &plain); err == nil {
		return plain
	}
	var blocks []contentBlock
	if err := json.Unmarshal(msg.Content, &blocks); err != nil {
		return ""
	}
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// toolUses returns the named tool_use blocks of an assistant message.
func toolUses(raw json.RawMessage) []contentBlock {
	if len(raw) == 0 {
		return nil
	}
	var msg jsonlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil
	}
	var blocks []contentBlock
	if err := json.Unmarshal(msg.Content, &blocks); err != nil {
		return nil
	}
	var out []contentBlock
	for _, b := range blocks {
		if b.Type == "tool_use" && b.Name != "" {
			out = append(out, b)
		}
	}
	return out
}

func mentionedFiles(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range fileMention.FindAllStringSubmatch(text, -1) {
		f := m[1]
		if !strings.ContainsAny(f, "./") || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// summarize builds "{first prompt, 100 chars} ({N} events, tools: Edit(3), Bash(1))".
func summarize(imp *TranscriptImport) string {
	if len(imp.Events) == 0 {
		return "(empty session)"
	}
	topic := "(no prompt)"
	for _, ev := range imp.Events {
		if ev.Type == "ai.prompt" {
			topic = strings.TrimSpace(ev.String("prompt"))
			break
		}
	}
	if len(topic) > 100 {
		topic = topic[:100]
	}

	type toolEntry struct {
		name  string
		count int
	}
	var entries []toolEntry
	for name, count := range imp.ToolsUsed {
		entries = append(entries, toolEntry{name, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].name < entries[j].name
	})
	var parts []string
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("%s(%d)", e.name, e.count))
	}
	if len(parts) > 0 {
		return fmt.Sprintf("%s (%d events, tools: %s)", topic, len(imp.Events), strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s (%d events)", topic, len(imp.Events))
}
