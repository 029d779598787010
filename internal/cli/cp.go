package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/tracerung/internal/core"
)

var (
	cpWorkspace string
	cpWindow    int
	cpJSON      bool
)

var cpCmd = &cobra.Command{
	Use:   "cp <prompt-id>",
	Short: "Compute the context precision of a prompt",
	Long: `Compute the share of a prompt's declared context files that were actually
edited within the window after the prompt.

CP is reported as n/a when the prompt declared no context files. The window
defaults to context_precision.window_seconds.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}

		window := int(core.DefaultCPWindow.Seconds())
		if Config != nil {
			window = Config.ContextPrecision.WindowSeconds
		}
		if cmd.Flags().Changed("window") {
			window = cpWindow
		}

		res, err := Engine.ContextPrecision(commandContext(cmd), cpWorkspace, args[0], window)
		if err != nil {
			return fmt.Errorf("computing context precision: %w", err)
		}

		if cpJSON {
			return printJSON("context precision", res)
		}

		fmt.Printf("Context precision for prompt %s (window %ds)\n\n", args[0], window)
		if res.CP == nil {
			fmt.Printf("  %-18s %s\n", "CP:", "n/a (no context files declared)")
		} else {
			fmt.Printf("  %-18s %.2f\n", "CP:", *res.CP)
		}
		fmt.Printf("  %-18s %d\n", "Declared files:", res.Declared)
		fmt.Printf("  %-18s %d\n", "Touched files:", res.Touched)
		if len(res.UnusedContextFiles) > 0 {
			fmt.Println("\n  Unused context files:")
			for _, f := range res.UnusedContextFiles {
				fmt.Printf("    %s\n", f)
			}
		}
		return nil
	},
}

func init() {
	cpCmd.Flags().StringVarP(&cpWorkspace, "workspace", "w", "all", "Workspace path to search, or \"all\"")
	registerWorkspaceCompletion(cpCmd)
	cpCmd.Flags().IntVar(&cpWindow, "window", 300, "Seconds after the prompt in which edits count")
	cpCmd.Flags().BoolVar(&cpJSON, "json", false, "Output the result as JSON")
	rootCmd.AddCommand(cpCmd)
}
