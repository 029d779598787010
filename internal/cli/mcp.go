package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/tracerung/internal/core"
	rungmcp "github.com/valter-silva-au/tracerung/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the rung MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the rung MCP server on stdio",
	Long: `Start the rung MCP server on stdio transport.

The server exposes rung functionality as MCP tools that AI coding assistants
can call: get_rung, get_motifs, get_library, context_precision, get_metrics,
get_alerts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}

		window := int(core.DefaultCPWindow.Seconds())
		if Config != nil {
			window = Config.ContextPrecision.WindowSeconds
		}
		srv := rungmcp.NewServer(Engine, MetricsCalc, AlertEngine, window, appVersion)

		ctx, stop := interruptible(cmd)
		defer stop()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}

		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
