package observability

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// EventLogFile is the event log file name under the base path.
const EventLogFile = ".rung_events.jsonl"

// Pipeline event types written by the engine.
const (
	EventTraceBuilt         = "trace.built"
	EventDropped            = "event.dropped"
	EventRungEncoded        = "rung.encoded"
	EventEncodingDegraded   = "encoding.degraded"
	EventMiningCompleted    = "mining.completed"
	EventClusterCompleted   = "clustering.completed"
	EventBudgetExceeded     = "budget.exceeded"
	EventTranscriptImported = "transcript.imported"
)

// Event is one line of the event log.
type Event struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"` // INFO, WARN, ERROR
	Type    string         `json:"type"`
	Message string         `json:"msg"`
	Data    map[string]any `json:"data,omitempty"`
}

// EventFilter specifies criteria for reading events.
type EventFilter struct {
	Since *time.Time
	Until *time.Time
	Type  string
	Level string
}

// EventLog writes and reads pipeline events. LogEvent makes it usable as
// the engine's event sink.
type EventLog interface {
	Write(event Event) error
	LogEvent(eventType string, data map[string]any) error
	Read(filter EventFilter) ([]Event, error)
	Close() error
}

type jsonlEventLog struct {
	path string
	file *os.File
	mu   sync.Mutex
	now  func() time.Time
}

// NewJSONLEventLog opens (creating if needed) an append-only JSONL event
// log at path.
func NewJSONLEventLog(path string) (EventLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G304: path from trusted caller
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	return &jsonlEventLog{path: path, file: f, now: time.Now}, nil
}

func (l *jsonlEventLog) Write(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	data = append(data, '\n')
	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	return nil
}

// LogEvent stamps and writes a pipeline event. Events signalling lost or
// degraded work are written at WARN.
func (l *jsonlEventLog) LogEvent(eventType string, data map[string]any) error {
	return l.Write(Event{
		Time:    l.now().UTC(),
		Level:   levelFor(eventType),
		Type:    eventType,
		Message: messageFor(eventType, data),
		Data:    data,
	})
}

func (l *jsonlEventLog) Read(filter EventFilter) ([]Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening event log for reading: %w", err)
	}
	defer func() { _ = f.Close() }()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue // skip malformed lines
		}
		if matchesEventFilter(event, filter) {
			events = append(events, event)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning event log: %w", err)
	}
	return events, nil
}

func (l *jsonlEventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing event log: %w", err)
	}
	return nil
}

func matchesEventFilter(event Event, filter EventFilter) bool {
	if filter.Since != nil && event.Time.Before(*filter.Since) {
		return false
	}
	if filter.Until != nil && event.Time.After(*filter.Until) {
		return false
	}
	if filter.Type != "" && event.Type != filter.Type {
		return false
	}
	if filter.Level != "" && event.Level != filter.Level {
		return false
	}
	return true
}

func levelFor(eventType string) string {
	switch eventType {
	case EventDropped, EventEncodingDegraded, EventBudgetExceeded:
		return "WARN"
	}
	return "INFO"
}

func messageFor(eventType string, data map[string]any) string {
	switch eventType {
	case EventTraceBuilt:
		return fmt.Sprintf("built %d traces from %d events", intField(data, "traces"), intField(data, "events"))
	case EventDropped:
		return fmt.Sprintf("dropped %d malformed events", intField(data, "count"))
	case EventRungEncoded:
		return fmt.Sprintf("encoded %d traces at rung %v", intField(data, "total"), data["rung"])
	case EventEncodingDegraded:
		return fmt.Sprintf("%d of %d %v encodings degraded", intField(data, "degraded"), intField(data, "total"), data["rung"])
	case EventMiningCompleted:
		return fmt.Sprintf("mined %d motifs", intField(data, "produced"))
	case EventClusterCompleted:
		return fmt.Sprintf("built %d clusters", intField(data, "produced"))
	case EventBudgetExceeded:
		return fmt.Sprintf("%v stopped at its time budget", data["stage"])
	case EventTranscriptImported:
		return fmt.Sprintf("imported %d events from a transcript", intField(data, "events"))
	}
	return eventType
}

// intField reads a numeric field that may have round-tripped through JSON
// as float64.
func intField(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func boolField(data map[string]any, key string) bool {
	b, _ := data[key].(bool)
	return b
}
