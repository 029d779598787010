package core

import (
	"errors"
	"fmt"
	"time"
)

// MalformedEventError reports an event dropped for a missing required field.
type MalformedEventError struct {
	Index int
	Field string
	Type  string
}

func (e *MalformedEventError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("malformed event %d (type %q): missing %s", e.Index, e.Type, e.Field)
	}
	return fmt.Sprintf("malformed event %d: missing %s", e.Index, e.Field)
}

// RedactionNoMatchWarning is logged at debug level when redacting a trace
// left every event field unchanged. It never propagates as a failure.
var RedactionNoMatchWarning = errors.New("redaction: no pattern matched")

// InsufficientCorpusError reports a mining or clustering corpus below the
// minimum viable size. Callers receive an empty result alongside it.
type InsufficientCorpusError struct {
	Stage string
	Have  int
	Need  int
}

func (e *InsufficientCorpusError) Error() string {
	return fmt.Sprintf("%s: insufficient corpus, have %d sequences, need %d", e.Stage, e.Have, e.Need)
}

// EncodingDegradedWarning records an encoder falling back to a coarser unit.
type EncodingDegradedWarning struct {
	Rung   string
	Unit   string
	Reason string
}

func (e *EncodingDegradedWarning) Error() string {
	return fmt.Sprintf("%s encoding degraded to %s: %s", e.Rung, e.Unit, e.Reason)
}

// BudgetExceededWarning records a batch operation stopped by its wall-clock
// budget or by cancellation. The partial result is flagged incomplete.
type BudgetExceededWarning struct {
	Stage   string
	Budget  time.Duration
	Reached string
}

func (e *BudgetExceededWarning) Error() string {
	if e.Budget > 0 {
		return fmt.Sprintf("%s: budget of %s exceeded after %s", e.Stage, e.Budget, e.Reached)
	}
	return fmt.Sprintf("%s: cancelled after %s", e.Stage, e.Reached)
}

// ConfigError is a caller mistake surfaced at the API boundary, such as an
// unknown rung name or a negative time window.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsConfigError reports whether err wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// warningStrings renders warnings for embedding in results.
func warningStrings(warnings []error) []string {
	if len(warnings) == 0 {
		return nil
	}
	out := make([]string, len(warnings))
	for i, w := range warnings {
		out[i] = w.Error()
	}
	return out
}
