package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	alertsSince  string
	alertsNotify bool
	alertsJSON   bool
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show active pipeline alerts",
	Long: `Evaluate alert conditions against the event log and display any triggered alerts.

Alerts check the event drop rate, the share of degraded encodings, mining and
clustering runs stopped by their budget, and the age of the motif catalog.
With --notify, triggered alerts are also posted to the configured Slack
webhook.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if AlertEngine == nil {
			return fmt.Errorf("alert engine not initialized (observability may be disabled)")
		}

		sinceTime, err := parseSinceDuration(alertsSince)
		if err != nil {
			return fmt.Errorf("parsing --since: %w", err)
		}

		alerts, err := AlertEngine.Evaluate(sinceTime)
		if err != nil {
			return fmt.Errorf("evaluating alerts: %w", err)
		}

		if alertsNotify && len(alerts) > 0 {
			if Notifier == nil {
				return fmt.Errorf("notifier not configured (set observability.slack_webhook_url)")
			}
			ctx, cancel := interruptible(cmd)
			defer cancel()
			if err := Notifier.Notify(ctx, alerts); err != nil {
				return fmt.Errorf("sending alert notification: %w", err)
			}
		}

		if alertsJSON {
			return printJSON("alerts", alerts)
		}

		if len(alerts) == 0 {
			fmt.Println("No active alerts.")
			return nil
		}

		fmt.Printf("%d active alert(s):\n\n", len(alerts))
		for _, alert := range alerts {
			severity := strings.ToUpper(string(alert.Severity))
			fmt.Printf("  [%s] %s\n", severity, alert.Message)
			fmt.Printf("         %s, triggered at %s\n", alert.Condition, alert.TriggeredAt.Format("2006-01-02 15:04 UTC"))
			if len(alert.Workspaces) > 0 {
				fmt.Printf("         workspaces: %s\n", strings.Join(alert.Workspaces, ", "))
			}
			if len(alert.RunIDs) > 0 {
				fmt.Printf("         runs: %s\n", strings.Join(alert.RunIDs, ", "))
			}
			fmt.Println()
		}

		return nil
	},
}

func init() {
	alertsCmd.Flags().StringVar(&alertsSince, "since", "7d", "Time window to evaluate (e.g. 7d, 24h)")
	alertsCmd.Flags().BoolVar(&alertsNotify, "notify", false, "Post triggered alerts to Slack")
	alertsCmd.Flags().BoolVar(&alertsJSON, "json", false, "Output alerts as JSON")
	rootCmd.AddCommand(alertsCmd)
}
