package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/tracerung/internal/observability"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import captured activity from external sources",
}

var (
	importWorkspace string
	importSession   string
	importFromHook  bool
	importJSON      bool
)

// importResult reports one transcript import.
type importResult struct {
	Workspace string         `json:"workspace"`
	SessionID string         `json:"session_id"`
	File      string         `json:"file"`
	Events    int            `json:"events"`
	Prompts   int            `json:"prompts"`
	Skipped   int            `json:"skipped_lines"`
	ToolsUsed map[string]int `json:"tools_used"`
	Summary   string         `json:"summary"`
}

var importTranscriptCmd = &cobra.Command{
	Use:   "transcript [file]",
	Short: "Import a Claude Code session transcript",
	Long: `Convert a Claude Code JSONL session transcript into captured events.

User turns become ai.prompt events (with @-mentioned files as declared
context), Edit/MultiEdit/Write tool uses become code.edit, Read becomes
file.open and Bash becomes terminal.command. The workspace and session
default to the transcript's cwd and session ID.

In --from-hook mode the transcript path, session ID and cwd are read from
a SessionEnd hook payload on stdin, and failures never fail the hook.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if importFromHook {
			if err := importFromHookInput(cmd.InOrStdin()); err != nil {
				_ = err
			}
			return nil
		}
		if len(args) != 1 {
			return fmt.Errorf("a transcript file is required unless --from-hook is set")
		}

		res, err := importTranscript(args[0], importWorkspace, importSession)
		if err != nil {
			return err
		}

		if importJSON {
			return printJSON("import result", res)
		}

		fmt.Printf("Imported %d event(s) from %s\n\n", res.Events, args[0])
		fmt.Printf("  %-12s %s\n", "Workspace:", res.Workspace)
		fmt.Printf("  %-12s %s\n", "Session:", res.SessionID)
		fmt.Printf("  %-12s %d\n", "Prompts:", res.Prompts)
		fmt.Printf("  %-12s %s\n", "Stored in:", res.File)
		if res.Skipped > 0 {
			fmt.Printf("  %-12s %d\n", "Skipped:", res.Skipped)
		}
		fmt.Printf("  %-12s %s\n", "Summary:", res.Summary)
		return nil
	},
}

// hookInput is the JSON payload of a Claude Code SessionEnd hook.
type hookInput struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	CWD            string `json:"cwd"`
}

func importFromHookInput(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading hook input: %w", err)
	}
	var input hookInput
	if err := json.Unmarshal(data, &input); err != nil {
		return fmt.Errorf("parsing hook input: %w", err)
	}
	if input.TranscriptPath == "" {
		return fmt.Errorf("no transcript_path in hook input")
	}
	_, err = importTranscript(input.TranscriptPath, input.CWD, input.SessionID)
	return err
}

// importTranscript parses a transcript and appends its events. Explicit
// workspace and session values override those found in the transcript.
func importTranscript(path, workspace, sessionID string) (*importResult, error) {
	if Importer == nil || Events == nil {
		return nil, fmt.Errorf("transcript importer not initialized")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("transcript file not found: %w", err)
	}

	imp, err := Importer.ImportTranscript(path)
	if err != nil {
		return nil, fmt.Errorf("parsing transcript: %w", err)
	}
	if workspace == "" {
		workspace = imp.Workspace
	}
	if sessionID == "" {
		sessionID = imp.SessionID
	}
	if workspace == "" {
		return nil, fmt.Errorf("transcript has no working directory; pass --workspace")
	}

	res := &importResult{
		Workspace: workspace,
		SessionID: sessionID,
		Events:    len(imp.Events),
		Prompts:   imp.Prompts,
		Skipped:   imp.Skipped,
		ToolsUsed: imp.ToolsUsed,
		Summary:   imp.Summary,
	}
	if len(imp.Events) == 0 {
		return res, nil
	}

	file, err := Events.Append(workspace, sessionID, imp.Events)
	if err != nil {
		return nil, fmt.Errorf("storing imported events: %w", err)
	}
	res.File = file

	if EventLog != nil {
		_ = EventLog.LogEvent(observability.EventTranscriptImported, map[string]any{
			"workspace":  workspace,
			"session_id": sessionID,
			"events":     len(imp.Events),
			"prompts":    imp.Prompts,
		})
	}
	return res, nil
}

func init() {
	importTranscriptCmd.Flags().StringVarP(&importWorkspace, "workspace", "w", "", "Workspace path (defaults to the transcript's cwd)")
	registerWorkspaceCompletion(importTranscriptCmd)
	importTranscriptCmd.Flags().StringVar(&importSession, "session", "", "Session ID (defaults to the transcript's session)")
	importTranscriptCmd.Flags().BoolVar(&importFromHook, "from-hook", false, "Read a SessionEnd hook payload from stdin")
	importTranscriptCmd.Flags().BoolVar(&importJSON, "json", false, "Output the import result as JSON")
	importCmd.AddCommand(importTranscriptCmd)
	rootCmd.AddCommand(importCmd)
}
