package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

// EventsDir is the directory under the base path holding captured events.
const EventsDir = "events"

// EventSource reads and appends captured events stored as JSONL under
// <base>/events/. Each line is one RawEvent. Events that do not name their
// workspace or session inherit them from the file's location:
// events/<workspace>/<session>.jsonl.
type EventSource interface {
	LoadBatches(workspace string) ([]models.EventBatch, error)
	Workspaces() ([]string, error)
	Append(workspace, sessionID string, events []models.RawEvent) (string, error)
}

type jsonlEventSource struct {
	basePath string
	logger   *zap.Logger
}

// NewEventSource creates an EventSource rooted at basePath.
func NewEventSource(basePath string, logger *zap.Logger) EventSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &jsonlEventSource{basePath: basePath, logger: logger}
}

func (s *jsonlEventSource) eventsDir() string {
	return filepath.Join(s.basePath, EventsDir)
}

// LoadBatches groups every event by (workspace, session) in order of first
// appearance. Files are read in lexical path order and lines in file order.
// Lines that are not valid JSON are skipped. An empty workspace or "all"
// selects everything.
func (s *jsonlEventSource) LoadBatches(workspace string) ([]models.EventBatch, error) {
	if strings.EqualFold(workspace, "all") {
		workspace = ""
	}
	files, err := s.files()
	if err != nil {
		return nil, err
	}

	index := map[[2]string]int{}
	var batches []models.EventBatch
	for _, path := range files {
		defWS, defSession := s.defaultsFor(path)
		err := readLines(path, func(lineNo int, line []byte) {
			var ev models.RawEvent
			if err := json.Unmarshal(line, &ev); err != nil {
				s.logger.Warn("skipping unreadable event line",
					zap.String("file", path), zap.Int("line", lineNo), zap.Error(err))
				return
			}
			ws := ev.WorkspacePath
			if ws == "" {
				ws = defWS
			}
			session := ev.SessionID
			if session == "" {
				session = defSession
			}
			if workspace != "" && ws != workspace {
				return
			}
			k := [2]string{ws, session}
			i, ok := index[k]
			if !ok {
				i = len(batches)
				index[k] = i
				batches = append(batches, models.EventBatch{WorkspacePath: ws, SessionID: session})
			}
			batches[i].Events = append(batches[i].Events, ev)
		})
		if err != nil {
			return nil, err
		}
	}
	return batches, nil
}

// Workspaces lists the distinct workspaces with captured events, sorted.
func (s *jsonlEventSource) Workspaces() ([]string, error) {
	batches, err := s.LoadBatches("")
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, b := range batches {
		if !seen[b.WorkspacePath] {
			seen[b.WorkspacePath] = true
			out = append(out, b.WorkspacePath)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Append writes events to events/<workspace key>/<session>.jsonl under an
// exclusive lock and returns the file written. Events are stamped with the
// workspace and session they were appended under.
func (s *jsonlEventSource) Append(workspace, sessionID string, events []models.RawEvent) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("appending events: session ID must not be empty")
	}
	dir := filepath.Join(s.eventsDir(), workspaceKey(workspace))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("appending events: creating directory: %w", err)
	}
	path := filepath.Join(dir, fileSafe(sessionID)+".jsonl")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o600) //nolint:gosec // G304: path built from sanitized components
	if err != nil {
		return "", fmt.Errorf("appending events: opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	// syscall.Flock is Unix-specific; concurrent importers on other
	// platforms are not serialized.
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return "", fmt.Errorf("appending events: locking %s: %w", path, err)
	}
	defer func() { _ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN) }()

	w := bufio.NewWriter(f)
	for _, ev := range events {
		ev.WorkspacePath = workspace
		ev.SessionID = sessionID
		data, err := json.Marshal(ev)
		if err != nil {
			return "", fmt.Errorf("appending events: encoding event: %w", err)
		}
		_, _ = w.Write(data)
		_ = w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("appending events: writing %s: %w", path, err)
	}
	return path, nil
}

func (s *jsonlEventSource) files() ([]string, error) {
	var files []string
	err := filepath.WalkDir(s.eventsDir(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == s.eventsDir() {
				return fs.SkipAll
			}
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".jsonl") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing event files: %w", err)
	}
	return files, nil
}

// defaultsFor derives the workspace and session of events in path that do
// not carry their own.
func (s *jsonlEventSource) defaultsFor(path string) (workspace, session string) {
	session = strings.TrimSuffix(filepath.Base(path), ".jsonl")
	rel, err := filepath.Rel(s.eventsDir(), filepath.Dir(path))
	if err != nil || rel == "." {
		return "", session
	}
	return filepath.ToSlash(rel), session
}

func readLines(path string, fn func(lineNo int, line []byte)) error {
	f, err := os.Open(path) //nolint:gosec // G304: path from directory walk
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		fn(n, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}
