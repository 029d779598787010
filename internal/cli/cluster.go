package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

// defaultClusterRung is the rung sequences are compared at when none is
// given.
const defaultClusterRung = "semantic_edits"

var (
	clusterWorkspace string
	clusterJSON      bool
)

var clusterCmd = &cobra.Command{
	Use:   "cluster [rung]",
	Short: "Cluster sessions into a behavioral library",
	Long: `Encode every trace of a workspace at the given rung (semantic_edits by
default), group similar sequences and store one library entry per cluster,
represented by its medoid.

The strategy comes from clustering.strategy: threshold (DTW distance),
kmeans (seeded, cosine distance) or auto. The run is bounded by
budget.clustering_seconds.`,
	Args:              cobra.MaximumNArgs(1),
	ValidArgsFunction: completeRungs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}

		rung := defaultClusterRung
		if len(args) == 1 {
			rung = args[0]
		}

		ctx, stop := interruptible(cmd)
		defer stop()
		lib, err := Engine.Cluster(ctx, clusterWorkspace, rung)
		if err != nil {
			return fmt.Errorf("clustering sequences: %w", err)
		}

		if clusterJSON {
			return printJSON("behavioral library", lib)
		}
		printLibrary(lib)
		return nil
	},
}

var (
	libraryWorkspace string
	libraryJSON      bool
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Show the stored behavioral library",
	Long:  `Display the behavioral library produced by the most recent 'rung cluster' run for a workspace.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}

		lib, ok, err := Engine.Library(libraryWorkspace)
		if err != nil {
			return fmt.Errorf("loading behavioral library: %w", err)
		}
		if !ok {
			fmt.Printf("No behavioral library for %s. Run 'rung cluster' first.\n", libraryWorkspace)
			return nil
		}

		if libraryJSON {
			return printJSON("behavioral library", lib)
		}
		printLibrary(lib)
		return nil
	},
}

func printLibrary(lib models.BehavioralLibrary) {
	fmt.Printf("Behavioral library %s (%s rung, %s strategy)\n", lib.RunID, lib.Rung, lib.Strategy)
	fmt.Printf("  %-12s %s\n", "Workspace:", lib.Workspace)
	fmt.Printf("  %-12s %s\n", "Built at:", lib.BuiltAt.Format("2006-01-02 15:04 UTC"))
	fmt.Printf("  %-12s %s\n", "Complete:", yesNo(lib.Complete))
	for _, w := range lib.Warnings {
		fmt.Printf("  ! %s\n", w)
	}

	if len(lib.Entries) == 0 {
		fmt.Println("\nNo clusters found.")
		return
	}

	fmt.Printf("\n  %-4s %-28s %5s %6s  %-12s %s\n", "ID", "NAME", "SIZE", "FREQ", "INTENT", "REPRESENTATIVE")
	for _, e := range lib.Entries {
		fmt.Printf("  %-4d %-28s %5d %5.0f%%  %-12s %s\n",
			e.ClusterID, e.Name, e.Size, e.Frequency*100, e.DominantIntent, abbreviate(e.RepresentativePattern, 6))
	}
}

// abbreviate joins the first n symbols of a pattern.
func abbreviate(pattern []string, n int) string {
	if len(pattern) <= n {
		return strings.Join(pattern, " ")
	}
	return strings.Join(pattern[:n], " ") + fmt.Sprintf(" ... (+%d)", len(pattern)-n)
}

func init() {
	clusterCmd.Flags().StringVarP(&clusterWorkspace, "workspace", "w", "all", "Workspace path to cluster, or \"all\"")
	clusterCmd.Flags().BoolVar(&clusterJSON, "json", false, "Output the library as JSON")
	libraryCmd.Flags().StringVarP(&libraryWorkspace, "workspace", "w", "all", "Workspace path, or \"all\"")
	registerWorkspaceCompletion(clusterCmd)
	registerWorkspaceCompletion(libraryCmd)
	libraryCmd.Flags().BoolVar(&libraryJSON, "json", false, "Output the library as JSON")
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(libraryCmd)
}
