package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/tracerung/internal/core"
	"github.com/valter-silva-au/tracerung/pkg/models"
)

var (
	searchWorkspace string
	searchTop       int
	searchIntent    string
	searchJSON      bool
	searchNoRedact  bool
)

var searchCmd = &cobra.Command{
	Use:   "search <rung> <query...>",
	Short: "Rank traces against a free-text query at one rung",
	Long: `Encode every trace at the given rung and rank the traces by TF-IDF cosine
similarity between the query and the rung's text.

Use --intent to keep only traces containing an event of that intent.`,
	Args:              cobra.MinimumNArgs(2),
	ValidArgsFunction: completeRungs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}

		opts := models.DefaultQueryOptions()
		opts.RedactPIIEnabled = !searchNoRedact
		q := models.SearchQuery{Text: strings.Join(args[1:], " "), TopK: searchTop, Intent: searchIntent}
		res, err := Engine.Search(commandContext(cmd), searchWorkspace, args[0], q, opts)
		if err != nil {
			return fmt.Errorf("searching %s: %w", args[0], err)
		}

		if searchJSON {
			return printJSON("search result", res)
		}

		fmt.Printf("Search %q at %s: %d of %d traces matched\n\n", res.Query, res.Rung, len(res.Hits), res.Searched)
		if len(res.Hits) == 0 {
			return nil
		}
		fmt.Printf("  %4s  %-48s %6s  %-14s %s\n", "RANK", "TRACE", "SCORE", "INTENT", "MATCHED")
		for _, h := range res.Hits {
			fmt.Printf("  %4d  %-48s %6.3f  %-14s %s\n", h.Rank, h.TraceID, h.Score, h.Intent, strings.Join(h.Matched, ", "))
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVarP(&searchWorkspace, "workspace", "w", "all", "Workspace path to search, or \"all\"")
	registerWorkspaceCompletion(searchCmd)
	searchCmd.Flags().IntVarP(&searchTop, "top", "k", core.DefaultSearchTopK, "Maximum number of traces to return")
	searchCmd.Flags().StringVar(&searchIntent, "intent", "", "Only rank traces with an event of this intent")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output the result as JSON")
	searchCmd.Flags().BoolVar(&searchNoRedact, "no-redact", false, "Skip PII redaction")
	rootCmd.AddCommand(searchCmd)
}
