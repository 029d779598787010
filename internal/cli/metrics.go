package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	metricsJSON  bool
	metricsSince string
	metricsAddr  string
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Display pipeline health metrics",
	Long: `Display aggregated metrics derived from the event log.

Metrics include traces built, accepted and dropped events, degraded
encodings per rung, mining and clustering runs, runs stopped by their
budget, and the size of the latest motif catalog and behavioral library.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if MetricsCalc == nil {
			return fmt.Errorf("metrics calculator not initialized (observability may be disabled)")
		}

		sinceTime, err := parseSinceDuration(metricsSince)
		if err != nil {
			return fmt.Errorf("parsing --since: %w", err)
		}

		metrics, err := MetricsCalc.Calculate(sinceTime)
		if err != nil {
			return fmt.Errorf("calculating metrics: %w", err)
		}

		if metricsJSON {
			return printJSON("metrics", metrics)
		}

		fmt.Printf("Metrics (since %s)\n\n", sinceTime.Format("2006-01-02"))
		fmt.Printf("  %-24s %d\n", "Events recorded:", metrics.EventCount)
		fmt.Printf("  %-24s %d\n", "Traces built:", metrics.TracesBuilt)
		fmt.Printf("  %-24s %d\n", "Traces failed:", metrics.FailedTraces)
		fmt.Printf("  %-24s %d\n", "Events accepted:", metrics.EventsAccepted)
		fmt.Printf("  %-24s %d (%.1f%%)\n", "Events dropped:", metrics.EventsDropped, metrics.DropRatePercent)
		fmt.Printf("  %-24s %d\n", "Encodings:", metrics.Encodings)
		fmt.Printf("  %-24s %d (%.1f%%)\n", "Degraded encodings:", metrics.DegradedEncodings, metrics.DegradedPercent)
		fmt.Printf("  %-24s %d\n", "Mining runs:", metrics.MiningRuns)
		fmt.Printf("  %-24s %d\n", "Clustering runs:", metrics.ClusteringRuns)
		fmt.Printf("  %-24s %d\n", "Incomplete runs:", metrics.IncompleteRuns)
		fmt.Printf("  %-24s %d\n", "Motifs (latest):", metrics.MotifsMined)
		fmt.Printf("  %-24s %d\n", "Clusters (latest):", metrics.ClustersBuilt)
		fmt.Printf("  %-24s %d\n", "Events imported:", metrics.EventsImported)

		if len(metrics.EncodingsByRung) > 0 {
			fmt.Println("\n  Encodings by rung:")
			rungs := make([]string, 0, len(metrics.EncodingsByRung))
			for r := range metrics.EncodingsByRung {
				rungs = append(rungs, r)
			}
			sort.Strings(rungs)
			for _, r := range rungs {
				fmt.Printf("    %-20s %d\n", r+":", metrics.EncodingsByRung[r])
			}
		}

		if metrics.LastMining != nil {
			fmt.Printf("\n  %-24s %s\n", "Last mining run:", metrics.LastMining.Format(time.RFC3339))
		}
		if metrics.OldestEvent != nil {
			fmt.Printf("  %-24s %s\n", "Oldest event:", metrics.OldestEvent.Format(time.RFC3339))
		}
		if metrics.NewestEvent != nil {
			fmt.Printf("  %-24s %s\n", "Newest event:", metrics.NewestEvent.Format(time.RFC3339))
		}

		return nil
	},
}

var metricsServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve pipeline metrics for Prometheus",
	Long: `Expose pipeline counters on /metrics in the Prometheus text format.

Counters are seeded from the full event log at startup, so a scrape reflects
every run recorded so far.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if PipelineMetrics == nil || MetricsCalc == nil {
			return fmt.Errorf("pipeline metrics not initialized (observability may be disabled)")
		}

		history, err := MetricsCalc.Calculate(time.Time{})
		if err != nil {
			return fmt.Errorf("reading metrics history: %w", err)
		}
		PipelineMetrics.Replay(history)

		ctx, stop := interruptible(cmd)
		defer stop()
		return serveMetrics(ctx, metricsAddr, PipelineMetrics.Handler())
	},
}

// serveMetrics serves handler on /metrics until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string, handler http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("Serving metrics on http://%s/metrics\n", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving metrics: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down metrics server: %w", err)
		}
		return nil
	}
}

// parseSinceDuration parses a human-friendly duration string like "7d", "30d",
// or "24h" and returns the corresponding time in the past.
func parseSinceDuration(s string) (time.Time, error) {
	now := time.Now().UTC()
	s = strings.TrimSpace(s)
	if s == "" {
		return now.AddDate(0, 0, -7), nil
	}

	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid day duration %q", s)
		}
		return now.AddDate(0, 0, -days), nil
	}

	if strings.HasSuffix(s, "h") {
		hours, err := strconv.Atoi(strings.TrimSuffix(s, "h"))
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid hour duration %q", s)
		}
		return now.Add(-time.Duration(hours) * time.Hour), nil
	}

	return time.Time{}, fmt.Errorf("unsupported duration format %q (use e.g. 7d, 30d, 24h)", s)
}

func init() {
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "Output metrics as JSON")
	metricsCmd.Flags().StringVar(&metricsSince, "since", "7d", "Time window for metrics (e.g. 7d, 30d, 24h)")
	metricsServeCmd.Flags().StringVar(&metricsAddr, "addr", "127.0.0.1:9464", "Listen address")
	metricsCmd.AddCommand(metricsServeCmd)
	rootCmd.AddCommand(metricsCmd)
}
