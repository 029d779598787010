package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EventTime is a capture timestamp. It decodes from an ISO-8601 string or
// from epoch milliseconds. Values that cannot be parsed decode to the zero
// time so that the canonicalizer can treat them as missing.
type EventTime struct {
	time.Time
}

// UnmarshalJSON accepts `"2025-01-15T10:00:00Z"`, `1736935200000` or
// `"1736935200000"`.
func (t *EventTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decoding timestamp string: %w", err)
		}
		t.Time = ParseEventTime(s)
		return nil
	}
	ms, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		t.Time = time.Time{}
		return nil
	}
	t.Time = time.UnixMilli(int64(ms)).UTC()
	return nil
}

// MarshalJSON writes RFC 3339 with nanoseconds, or null for the zero time.
func (t EventTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// ParseEventTime parses an ISO-8601 string or an epoch-milliseconds string.
// It returns the zero time when s matches neither form.
func ParseEventTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC()
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	return time.Time{}
}

// RawEvent is one captured activity record. Payload shape varies by Type.
// The core never mutates a RawEvent.
type RawEvent struct {
	ID            string         `json:"id,omitempty"`
	Type          string         `json:"type"`
	Timestamp     EventTime      `json:"timestamp"`
	WorkspacePath string         `json:"workspace_path,omitempty"`
	SessionID     string         `json:"session_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// String returns the payload value under key when it is a string.
func (e RawEvent) String(key string) string {
	if v, ok := e.Payload[key].(string); ok {
		return v
	}
	return ""
}

// Int returns the payload value under key as an int. JSON numbers decode as
// float64, so both forms are handled.
func (e RawEvent) Int(key string) int {
	switch v := e.Payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

// Strings returns the payload value under key as a string slice.
func (e RawEvent) Strings(key string) []string {
	switch v := e.Payload[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

// EventBatch is the ordered set of events captured for one
// (workspace_path, session_id) scope.
type EventBatch struct {
	WorkspacePath string     `json:"workspace_path"`
	SessionID     string     `json:"session_id"`
	Events        []RawEvent `json:"events"`
}

// EventKind is the coarse class of a canonical event.
type EventKind string

const (
	KindEdit     EventKind = "edit"
	KindPrompt   EventKind = "prompt"
	KindTerminal EventKind = "terminal"
	KindFile     EventKind = "file"
	KindOther    EventKind = "other"
)

// Attrs carries the rung-relevant fields of a canonical event after
// redaction.
type Attrs struct {
	Seq          int       `json:"seq" yaml:"seq"`
	Kind         EventKind `json:"kind" yaml:"kind"`
	Type         string    `json:"type,omitempty" yaml:"type,omitempty"`
	FilePath     string    `json:"file_path,omitempty" yaml:"file_path,omitempty"`
	Language     string    `json:"language,omitempty" yaml:"language,omitempty"`
	LinesAdded   int       `json:"lines_added,omitempty" yaml:"lines_added,omitempty"`
	LinesRemoved int       `json:"lines_removed,omitempty" yaml:"lines_removed,omitempty"`
	Diff         string    `json:"diff,omitempty" yaml:"diff,omitempty"`
	Before       string    `json:"before,omitempty" yaml:"before,omitempty"`
	After        string    `json:"after,omitempty" yaml:"after,omitempty"`
	DiffSummary  string    `json:"diff_summary,omitempty" yaml:"diff_summary,omitempty"`
	Prompt       string    `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	PromptID     string    `json:"prompt_id,omitempty" yaml:"prompt_id,omitempty"`
	ContextFiles []string  `json:"context_files,omitempty" yaml:"context_files,omitempty"`
	Command      string    `json:"command,omitempty" yaml:"command,omitempty"`
	Intent       string    `json:"intent,omitempty" yaml:"intent,omitempty"`
	IntentPath   []string  `json:"intent_path,omitempty" yaml:"intent_path,omitempty"`
}

// HasCode reports whether the event carries any code text.
func (a Attrs) HasCode() bool {
	return a.Diff != "" || a.After != "" || a.Before != ""
}

// CanonicalEvent is a RawEvent mapped onto the symbolic alphabet.
type CanonicalEvent struct {
	Symbol    string    `json:"symbol" yaml:"symbol"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Attrs     Attrs     `json:"attrs" yaml:"attrs"`
}

// Trace is an ordered, immutable sequence of canonical events sharing one
// session/workspace scope. Timestamps are non-decreasing.
type Trace struct {
	ID            string           `json:"id" yaml:"id"`
	WorkspacePath string           `json:"workspace_path" yaml:"workspace_path"`
	SessionID     string           `json:"session_id" yaml:"session_id"`
	Events        []CanonicalEvent `json:"events" yaml:"events"`
	Dropped       int              `json:"dropped" yaml:"dropped"`
}

// Symbols returns the symbol sequence of the trace.
func (t Trace) Symbols() []string {
	out := make([]string, len(t.Events))
	for i, e := range t.Events {
		out[i] = e.Symbol
	}
	return out
}

// TraceID builds the identifier of a trace from its scope.
func TraceID(workspacePath, sessionID string) string {
	if sessionID == "" {
		sessionID = "default"
	}
	return workspacePath + "#" + sessionID
}
