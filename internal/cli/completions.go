package cli

import (
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/tracerung/internal/core"
)

// completeWorkspaces lists the workspaces known to the engine plus "all".
func completeWorkspaces(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	candidates := []string{core.AllWorkspaces + "\tEvery workspace"}
	if Engine != nil {
		if ws, err := Engine.Workspaces(); err == nil {
			sort.Strings(ws)
			candidates = append(candidates, ws...)
		}
	}

	var out []string
	for _, c := range candidates {
		name, _, _ := strings.Cut(c, "\t")
		if toComplete == "" || strings.HasPrefix(name, toComplete) {
			out = append(out, c)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// completeRungs lists rung names with a short description of each.
func completeRungs(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	descriptions := map[string]string{
		"raw":            "Canonical events",
		"tokens":         "Per-event token sequences",
		"semantic_edits": "Edit operations per file",
		"functions":      "Function-level changes",
		"module_graph":   "Co-edited module graph",
		"motifs":         "Recurring symbol patterns",
	}
	var out []string
	for _, name := range rungNames() {
		if strings.HasPrefix(name, toComplete) {
			out = append(out, name+"\t"+descriptions[name])
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

func registerWorkspaceCompletion(cmd *cobra.Command) {
	_ = cmd.RegisterFlagCompletionFunc("workspace", completeWorkspaces)
}
