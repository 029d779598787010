package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Notifier sends alert notifications to external channels.
type Notifier interface {
	Notify(ctx context.Context, alerts []Alert) error
}

type slackNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewSlackNotifier creates a Notifier posting to a Slack incoming webhook.
func NewSlackNotifier(webhookURL string) Notifier {
	return &slackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Notify posts the alerts as one message. No request is made for an empty
// slice.
func (s *slackNotifier) Notify(ctx context.Context, alerts []Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	body, err := json.Marshal(buildSlackMessage(alerts))
	if err != nil {
		return fmt.Errorf("marshaling slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to slack webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func buildSlackMessage(alerts []Alert) slackMessage {
	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: fmt.Sprintf("rung: %d pipeline alert(s)", len(alerts))},
		},
		{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: alertSummary(alerts)},
		},
	}
	for _, alert := range alerts {
		blocks = append(blocks, slackBlock{Type: "divider"})
		var b strings.Builder
		fmt.Fprintf(&b, "%s *[%s]* `%s` %s",
			severityEmoji(alert.Severity),
			strings.ToUpper(string(alert.Severity)),
			alert.Condition,
			alert.Message,
		)
		if len(alert.Workspaces) > 0 {
			fmt.Fprintf(&b, "\n*Workspaces:* %s", codeList(alert.Workspaces))
		}
		if len(alert.RunIDs) > 0 {
			fmt.Fprintf(&b, "\n*Runs:* %s", codeList(alert.RunIDs))
		}
		fmt.Fprintf(&b, "\n_%s, alert %s_", alert.TriggeredAt.Format("2006-01-02 15:04 UTC"), alert.ID)
		blocks = append(blocks, slackBlock{Type: "section", Text: &slackText{Type: "mrkdwn", Text: b.String()}})
	}
	return slackMessage{Blocks: blocks}
}

// alertSummary counts alerts by severity and lists every workspace they
// touch, e.g. "1 high, 1 low across `dev/project`".
func alertSummary(alerts []Alert) string {
	counts := map[AlertSeverity]int{}
	var workspaces []string
	seen := map[string]bool{}
	for _, a := range alerts {
		counts[a.Severity]++
		for _, ws := range a.Workspaces {
			if !seen[ws] {
				seen[ws] = true
				workspaces = append(workspaces, ws)
			}
		}
	}
	var parts []string
	for _, sev := range []AlertSeverity{SeverityHigh, SeverityMedium, SeverityLow} {
		if counts[sev] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[sev], sev))
		}
	}
	summary := strings.Join(parts, ", ")
	if summary == "" {
		summary = fmt.Sprintf("%d unclassified", len(alerts))
	}
	if len(workspaces) > 0 {
		summary += " across " + codeList(workspaces)
	}
	return summary
}

func codeList(items []string) string {
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = "`" + it + "`"
	}
	return strings.Join(quoted, ", ")
}

func severityEmoji(severity AlertSeverity) string {
	switch severity {
	case SeverityHigh:
		return "\U0001f534"
	case SeverityMedium:
		return "\U0001f7e1"
	case SeverityLow:
		return "\U0001f535"
	default:
		return "❓"
	}
}
