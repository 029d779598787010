package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

// printJSON writes v to stdout as indented JSON.
func printJSON(what string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("formatting %s as JSON: %w", what, err)
	}
	fmt.Println(string(data))
	return nil
}

// commandContext returns the command's context, or Background when the
// command is invoked outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// interruptible derives a context cancelled on SIGINT. Batch operations
// treat the cancellation like an exhausted budget and return partial
// results.
func interruptible(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(commandContext(cmd), os.Interrupt)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
