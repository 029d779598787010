package core

import (
	"errors"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

// DefaultCPWindow is the window after a prompt in which edits count as
// touching its context.
const DefaultCPWindow = 300 * time.Second

// ErrPromptNotFound is returned when no prompt event carries the requested
// prompt ID.
var ErrPromptNotFound = errors.New("prompt not found")

// ContextPrecision returns |declared ∩ touched| / |declared| and the
// declared files that were never touched. CP is nil when nothing was
// declared. The result does not depend on the order of either list.
func ContextPrecision(declared, touched []string) models.CPResult {
	decl := fileSet(declared)
	seen := fileSet(touched)
	res := models.CPResult{
		Declared:           len(decl),
		Touched:            len(seen),
		UnusedContextFiles: []string{},
	}
	if len(decl) == 0 {
		return res
	}
	hit := 0
	for f := range decl {
		if seen[f] {
			hit++
		} else {
			res.UnusedContextFiles = append(res.UnusedContextFiles, f)
		}
	}
	sort.Strings(res.UnusedContextFiles)
	cp := float64(hit) / float64(len(decl))
	res.CP = &cp
	return res
}

// ContextPrecisionForPrompt computes CP for the prompt with promptID, using
// the files edited within window after it. A negative window is a
// *ConfigError.
func ContextPrecisionForPrompt(trace models.Trace, promptID string, window time.Duration) (models.CPResult, error) {
	if window < 0 {
		return models.CPResult{}, &ConfigError{Field: "time_window_seconds", Message: "must not be negative"}
	}
	at := -1
	for i, ev := range trace.Events {
		if ev.Attrs.Kind == models.KindPrompt && ev.Attrs.PromptID == promptID {
			at = i
			break
		}
	}
	if at < 0 {
		return models.CPResult{}, ErrPromptNotFound
	}

	prompt := trace.Events[at]
	end := prompt.Timestamp.Add(window)
	var touched []string
	for _, ev := range trace.Events[at+1:] {
		if ev.Timestamp.After(end) {
			break
		}
		if ev.Attrs.Kind == models.KindEdit && ev.Attrs.FilePath != "" {
			touched = append(touched, ev.Attrs.FilePath)
		}
	}
	res := ContextPrecision(prompt.Attrs.ContextFiles, touched)
	res.PromptID = promptID
	return res, nil
}

func fileSet(files []string) map[string]bool {
	out := make(map[string]bool, len(files))
	for _, f := range files {
		f = strings.TrimSpace(strings.ReplaceAll(f, `\`, "/"))
		if f == "" {
			continue
		}
		out[strings.TrimPrefix(path.Clean(f), "./")] = true
	}
	return out
}
