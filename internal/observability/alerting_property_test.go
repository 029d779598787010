package observability

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// genPipelineEvents writes random build, encoding and run events inside the
// last day.
func genPipelineEvents(t *rapid.T, log EventLog) {
	n := rapid.IntRange(1, 15).Draw(t, "n")
	for i := 0; i < n; i++ {
		at := alertNow.Add(-time.Duration(rapid.IntRange(1, 1400).Draw(t, fmt.Sprintf("min_%d", i))) * time.Minute)
		var ev Event
		switch rapid.IntRange(0, 3).Draw(t, fmt.Sprintf("kind_%d", i)) {
		case 0:
			ev = Event{Type: EventTraceBuilt, Data: map[string]any{"traces": 1, "events": rapid.IntRange(0, 50).Draw(t, fmt.Sprintf("ev_%d", i))}}
		case 1:
			ev = Event{Type: EventDropped, Data: map[string]any{"count": rapid.IntRange(1, 20).Draw(t, fmt.Sprintf("drop_%d", i))}}
		case 2:
			total := rapid.IntRange(1, 10).Draw(t, fmt.Sprintf("total_%d", i))
			ev = Event{Type: EventRungEncoded, Data: map[string]any{"rung": "tokens", "total": total, "degraded": rapid.IntRange(0, total).Draw(t, fmt.Sprintf("deg_%d", i))}}
		case 3:
			ev = Event{Type: EventMiningCompleted, Data: map[string]any{"produced": 1, "complete": rapid.Bool().Draw(t, fmt.Sprintf("complete_%d", i))}}
		}
		ev.Time = at
		ev.Level = levelFor(ev.Type)
		if err := log.Write(ev); err != nil {
			t.Fatalf("writing event: %v", err)
		}
	}
}

func alertsWith(t *rapid.T, log EventLog, th AlertThresholds) []Alert {
	ae := NewAlertEngine(log, th).(*alertEngine)
	ae.now = func() time.Time { return alertNow }
	alerts, err := ae.Evaluate(alertNow.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	return alerts
}

// Feature: tracerung, Property: Alert Threshold Monotonicity
// *For any* event log, raising a percentage or count threshold SHALL never
// produce more alerts for that condition.
func TestProperty_AlertThresholdMonotonicity(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		log, err := NewJSONLEventLog(filepath.Join(t.TempDir(), EventLogFile))
		if err != nil {
			rt.Fatalf("creating event log: %v", err)
		}
		defer log.Close()
		genPipelineEvents(rt, log)

		low := rapid.IntRange(0, 50).Draw(rt, "low")
		high := rapid.IntRange(low, 100).Draw(rt, "high")
		mk := func(v int) AlertThresholds {
			return AlertThresholds{MaxDropRatePercent: v, MaxDegradedPercent: v, MaxIncompleteRuns: v + 1}
		}
		lowAlerts, highAlerts := alertsWith(rt, log, mk(low)), alertsWith(rt, log, mk(high))
		for _, c := range []string{ConditionDropRate, ConditionDegraded, ConditionIncomplete} {
			if countAlertsByCondition(highAlerts, c) > countAlertsByCondition(lowAlerts, c) {
				rt.Errorf("%s: threshold %d produced more alerts than %d", c, high, low)
			}
		}
	})
}

// Feature: tracerung, Property: Event Filter Time Range
// *For any* events and window, Read SHALL return only events inside
// [Since, Until].
func TestProperty_EventFilterTimeRange(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		log, err := NewJSONLEventLog(filepath.Join(t.TempDir(), EventLogFile))
		if err != nil {
			rt.Fatalf("creating event log: %v", err)
		}
		defer log.Close()

		base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		n := rapid.IntRange(1, 20).Draw(rt, "n")
		for i := 0; i < n; i++ {
			at := base.Add(time.Duration(rapid.IntRange(0, 168).Draw(rt, fmt.Sprintf("h_%d", i))) * time.Hour)
			if err := log.Write(Event{Time: at, Level: "INFO", Type: EventTraceBuilt}); err != nil {
				rt.Fatalf("writing event: %v", err)
			}
		}
		sinceH := rapid.IntRange(0, 100).Draw(rt, "since")
		untilH := rapid.IntRange(sinceH, 168).Draw(rt, "until")
		since, until := base.Add(time.Duration(sinceH)*time.Hour), base.Add(time.Duration(untilH)*time.Hour)

		got, err := log.Read(EventFilter{Since: &since, Until: &until})
		if err != nil {
			rt.Fatalf("reading: %v", err)
		}
		for _, ev := range got {
			if ev.Time.Before(since) || ev.Time.After(until) {
				rt.Errorf("event at %v outside [%v, %v]", ev.Time, since, until)
			}
		}
	})
}

// countAlertsByCondition counts alerts matching a specific condition string.
func countAlertsByCondition(alerts []Alert, condition string) int {
	count := 0
	for _, a := range alerts {
		if a.Condition == condition {
			count++
		}
	}
	return count
}
