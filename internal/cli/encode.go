package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

var (
	encodeWorkspace  string
	encodeJSON       bool
	encodeNoPrompts  bool
	encodeNoRedact   bool
	encodeNoMetadata bool
	encodeNoMining   bool
)

func rungNames() []string {
	rungs := models.AllRungs()
	names := make([]string, len(rungs))
	for i, r := range rungs {
		names[i] = r.String()
	}
	return names
}

var encodeCmd = &cobra.Command{
	Use:   "encode <rung>",
	Short: "Encode traces at one abstraction rung",
	Long: `Build canonical traces for a workspace and encode every trace at the given rung.

Rungs, from least to most compressed:
  raw             redacted events (1x)
  tokens          event symbols, intent markers and syntax tokens (10x)
  semantic_edits  one edit descriptor per code change (11x)
  functions       function-level change records (39x)
  module_graph    file-to-file import, co-edit and sequence edges (100x)
  motifs          structural and mined behavioral motifs (240x)

Use --json to print the full representations.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeRungs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}

		opts := models.QueryOptions{
			IncludePrompts:       !encodeNoPrompts,
			UseStatisticalMining: !encodeNoMining,
			IncludeMetadata:      !encodeNoMetadata,
			RedactPIIEnabled:     !encodeNoRedact,
		}
		reps, err := Engine.GetRung(commandContext(cmd), encodeWorkspace, args[0], opts)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", args[0], err)
		}

		if encodeJSON {
			return printJSON("representations", reps)
		}

		if len(reps) == 0 {
			fmt.Println("No traces found.")
			return nil
		}

		fmt.Printf("Rung %s (%s) for %d trace(s)\n\n", reps[0].Rung, reps[0].CompressionClass, len(reps))
		fmt.Printf("  %-48s %8s %8s  %s\n", "TRACE", "RECORDS", "RATIO", "DEGRADED")
		degraded := 0
		for _, rep := range reps {
			fmt.Printf("  %-48s %8d %8.1f  %s\n", rep.TraceID, rep.RecordCount, rep.CompressionRatio, yesNo(rep.Degraded))
			if rep.Degraded {
				degraded++
			}
			for _, w := range rep.Warnings {
				fmt.Printf("    ! %s\n", w)
			}
		}
		if degraded > 0 {
			fmt.Printf("\n%d of %d encoding(s) degraded.\n", degraded, len(reps))
		}
		return nil
	},
}

func init() {
	encodeCmd.Flags().StringVarP(&encodeWorkspace, "workspace", "w", "all", "Workspace path to encode, or \"all\"")
	registerWorkspaceCompletion(encodeCmd)
	encodeCmd.Flags().BoolVar(&encodeJSON, "json", false, "Output representations as JSON")
	encodeCmd.Flags().BoolVar(&encodeNoPrompts, "no-prompts", false, "Omit intent markers derived from prompts")
	encodeCmd.Flags().BoolVar(&encodeNoRedact, "no-redact", false, "Skip PII redaction")
	encodeCmd.Flags().BoolVar(&encodeNoMetadata, "no-metadata", false, "Omit representation metadata")
	encodeCmd.Flags().BoolVar(&encodeNoMining, "no-mining", false, "Use structural motifs only, ignoring the mined catalog")
	rootCmd.AddCommand(encodeCmd)
}
