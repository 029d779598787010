package cli

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/tracerung/internal/observability"
)

type alertsMock struct {
	alerts []observability.Alert
	err    error
	since  time.Time
}

func (m *alertsMock) Evaluate(since time.Time) ([]observability.Alert, error) {
	m.since = since
	return m.alerts, m.err
}

type notifierMock struct {
	sent [][]observability.Alert
	err  error
}

func (n *notifierMock) Notify(_ context.Context, alerts []observability.Alert) error {
	n.sent = append(n.sent, alerts)
	return n.err
}

func sampleAlerts() []observability.Alert {
	return []observability.Alert{{
		ID:          "a1",
		Condition:   observability.ConditionDegraded,
		Severity:    observability.SeverityMedium,
		Message:     "60.0% of encodings were degraded",
		TriggeredAt: cliTestTime,
		Workspaces:  []string{"dev/project"},
		RunIDs:      []string{"run-9"},
	}}
}

func withAlerts(t *testing.T, ae observability.AlertEngine, n observability.Notifier) {
	t.Helper()
	origAE, origN := AlertEngine, Notifier
	origSince, origNotify, origJSON := alertsSince, alertsNotify, alertsJSON
	t.Cleanup(func() {
		AlertEngine, Notifier = origAE, origN
		alertsSince, alertsNotify, alertsJSON = origSince, origNotify, origJSON
	})
	AlertEngine, Notifier = ae, n
	alertsSince, alertsNotify, alertsJSON = "7d", false, false
}

func TestAlertsCmd_NilEngine(t *testing.T) {
	withAlerts(t, nil, nil)
	err := alertsCmd.RunE(alertsCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("expected not initialized error, got %v", err)
	}
}

func TestAlertsCmd_NoAlerts(t *testing.T) {
	withAlerts(t, &alertsMock{}, nil)
	out := captureStdout(t, func() {
		if err := alertsCmd.RunE(alertsCmd, nil); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
	if !strings.Contains(out, "No active alerts.") {
		t.Errorf("output = %q", out)
	}
}

func TestAlertsCmd_ListsAlertsForWindow(t *testing.T) {
	ae := &alertsMock{alerts: sampleAlerts()}
	withAlerts(t, ae, nil)
	alertsSince = "24h"

	out := captureStdout(t, func() {
		if err := alertsCmd.RunE(alertsCmd, nil); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	for _, want := range []string{"1 active alert(s)", "[MEDIUM]", "degraded_encodings_high", "workspaces: dev/project", "runs: run-9"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if d := time.Since(ae.since); d < 23*time.Hour || d > 25*time.Hour {
		t.Errorf("evaluated since %s ago, want about 24h", d)
	}
}

func TestAlertsCmd_EvaluateError(t *testing.T) {
	withAlerts(t, &alertsMock{err: errors.New("boom")}, nil)
	err := alertsCmd.RunE(alertsCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "evaluating alerts") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestAlertsCmd_Notify(t *testing.T) {
	t.Run("sends triggered alerts", func(t *testing.T) {
		n := &notifierMock{}
		withAlerts(t, &alertsMock{alerts: sampleAlerts()}, n)
		alertsNotify = true
		captureStdout(t, func() {
			if err := alertsCmd.RunE(alertsCmd, nil); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
		if len(n.sent) != 1 || len(n.sent[0]) != 1 {
			t.Errorf("sent = %v", n.sent)
		}
	})

	t.Run("nothing to send", func(t *testing.T) {
		n := &notifierMock{}
		withAlerts(t, &alertsMock{}, n)
		alertsNotify = true
		captureStdout(t, func() {
			if err := alertsCmd.RunE(alertsCmd, nil); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
		if len(n.sent) != 0 {
			t.Errorf("no alerts should not notify, sent %v", n.sent)
		}
	})

	t.Run("notifier missing", func(t *testing.T) {
		withAlerts(t, &alertsMock{alerts: sampleAlerts()}, nil)
		alertsNotify = true
		err := alertsCmd.RunE(alertsCmd, nil)
		if err == nil || !strings.Contains(err.Error(), "slack_webhook_url") {
			t.Fatalf("expected configuration error, got %v", err)
		}
	})

	t.Run("notifier fails", func(t *testing.T) {
		withAlerts(t, &alertsMock{alerts: sampleAlerts()}, &notifierMock{err: errors.New("503")})
		alertsNotify = true
		err := alertsCmd.RunE(alertsCmd, nil)
		if err == nil || !strings.Contains(err.Error(), "sending alert notification") {
			t.Fatalf("expected notification error, got %v", err)
		}
	})
}

func TestAlertsCmd_JSON(t *testing.T) {
	withAlerts(t, &alertsMock{alerts: sampleAlerts()}, nil)
	alertsJSON = true

	out := captureStdout(t, func() {
		if err := alertsCmd.RunE(alertsCmd, nil); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	var alerts []observability.Alert
	if err := json.Unmarshal([]byte(out), &alerts); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Condition != observability.ConditionDegraded {
		t.Errorf("unexpected alerts: %+v", alerts)
	}
}
