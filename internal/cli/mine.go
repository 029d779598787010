package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

var (
	mineWorkspace string
	mineJSON      bool
	mineCached    bool
	mineTop       int
)

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Mine recurring behavioral motifs",
	Long: `Mine frequent subsequences and grammar rules across every trace of a
workspace and store the result as the workspace's motif catalog.

The run is bounded by budget.mining_seconds; an interrupted or timed out run
keeps its partial catalog and is flagged incomplete. Use --cached to print
the stored catalog without mining again.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}

		var catalog models.MotifCatalog
		if mineCached {
			cat, ok, err := Engine.Catalog(mineWorkspace)
			if err != nil {
				return fmt.Errorf("loading motif catalog: %w", err)
			}
			if !ok {
				fmt.Printf("No motif catalog for %s. Run 'rung mine' first.\n", mineWorkspace)
				return nil
			}
			catalog = cat
		} else {
			ctx, stop := interruptible(cmd)
			defer stop()
			cat, err := Engine.Mine(ctx, mineWorkspace)
			if err != nil {
				return fmt.Errorf("mining motifs: %w", err)
			}
			catalog = cat
		}

		if mineJSON {
			return printJSON("motif catalog", catalog)
		}
		printCatalog(catalog, mineTop)
		return nil
	},
}

func printCatalog(catalog models.MotifCatalog, top int) {
	fmt.Printf("Motif catalog %s (%s level, %d trace(s), min support %d)\n",
		catalog.RunID, catalog.Level, catalog.TraceCount, catalog.MinSupport)
	fmt.Printf("  %-12s %s\n", "Workspace:", catalog.Workspace)
	fmt.Printf("  %-12s %s\n", "Mined at:", catalog.MinedAt.Format("2006-01-02 15:04 UTC"))
	fmt.Printf("  %-12s %s\n", "Complete:", yesNo(catalog.Complete))
	for _, w := range catalog.Warnings {
		fmt.Printf("  ! %s\n", w)
	}

	if len(catalog.Motifs) == 0 {
		fmt.Println("\nNo motifs found.")
		return
	}

	motifs := catalog.Motifs
	if top > 0 && len(motifs) > top {
		motifs = motifs[:top]
	}
	fmt.Printf("\n  %-14s %8s  %-20s %s\n", "PATTERN", "SUPPORT", "CATEGORY", "SEQUENCE")
	for _, m := range motifs {
		fmt.Printf("  %-14s %7.0f%%  %-20s %s\n", m.PatternID, m.Support*100, m.Category, strings.Join(m.Pattern, " "))
	}
	if len(motifs) < len(catalog.Motifs) {
		fmt.Printf("\n  ... %d more (use --top 0 to show all)\n", len(catalog.Motifs)-len(motifs))
	}
}

func init() {
	mineCmd.Flags().StringVarP(&mineWorkspace, "workspace", "w", "all", "Workspace path to mine, or \"all\"")
	registerWorkspaceCompletion(mineCmd)
	mineCmd.Flags().BoolVar(&mineJSON, "json", false, "Output the catalog as JSON")
	mineCmd.Flags().BoolVar(&mineCached, "cached", false, "Show the stored catalog instead of mining")
	mineCmd.Flags().IntVar(&mineTop, "top", 20, "Number of motifs to list (0 for all)")
	rootCmd.AddCommand(mineCmd)
}
