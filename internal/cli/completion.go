package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var completionInstall bool

var completionCmd = &cobra.Command{
	Use:   "completion <shell>",
	Short: "Set up shell completions for rung",
	Long: `Set up shell tab-completions for rung commands, flags, rung names and
workspaces.

Supported shells: bash, zsh, fish, powershell

  rung completion zsh --install   install into your shell's completion directory
  rung completion bash            print the script to stdout`,
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.MaximumNArgs(1),
	RunE:      runCompletion,
}

func init() {
	completionCmd.Flags().BoolVar(&completionInstall, "install", false,
		"Install completions into your shell profile")

	// Replace cobra's default completion command.
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(completionCmd)
}

// shellCompletion describes how one shell loads and installs completions.
type shellCompletion struct {
	generate func(w io.Writer) error
	// loadHint is the command that loads the script into the current session.
	loadHint string
	// target returns the install location below home, or "" when the shell
	// has no automatic install.
	target  func(home string) string
	postMsg func(target string)
}

func shellCompletions() map[string]shellCompletion {
	return map[string]shellCompletion{
		"bash": {
			generate: func(w io.Writer) error { return rootCmd.GenBashCompletionV2(w, true) },
			loadHint: `eval "$(rung completion bash)"`,
			target:   bashCompletionTarget,
			postMsg: func(target string) {
				fmt.Printf("Restart your shell or run: source %s\n", target)
			},
		},
		"zsh": {
			generate: rootCmd.GenZshCompletion,
			loadHint: `eval "$(rung completion zsh)"`,
			target: func(home string) string {
				return filepath.Join(home, ".local", "share", "zsh", "site-functions", "_rung")
			},
			postMsg: func(target string) {
				fmt.Println("Ensure this directory is in your fpath. Add to ~/.zshrc if needed:")
				fmt.Printf("  fpath=(%s $fpath)\n", filepath.Dir(target))
				fmt.Println("  autoload -Uz compinit && compinit")
			},
		},
		"fish": {
			generate: func(w io.Writer) error { return rootCmd.GenFishCompletion(w, true) },
			loadHint: "rung completion fish | source",
			target: func(home string) string {
				return filepath.Join(home, ".config", "fish", "completions", "rung.fish")
			},
			postMsg: func(string) {
				fmt.Println("Completions will be available in new fish sessions automatically.")
			},
		},
		"powershell": {
			generate: rootCmd.GenPowerShellCompletionWithDesc,
			loadHint: "rung completion powershell | Out-String | Invoke-Expression",
		},
	}
}

func runCompletion(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	shell := args[0]
	sc, ok := shellCompletions()[shell]
	if !ok {
		return fmt.Errorf("unsupported shell %q (supported: bash, zsh, fish, powershell)", shell)
	}

	if completionInstall {
		return installCompletion(shell, sc)
	}

	// Hints go to stderr so the script can be piped from stdout.
	printHints(cmd,
		"# To load completions in your current session:",
		"#   "+sc.loadHint,
		"#",
	)
	if sc.target != nil {
		printHints(cmd, "# To install permanently:", "#   rung completion "+shell+" --install", "#")
	}
	return sc.generate(cmd.OutOrStdout())
}

func printHints(cmd *cobra.Command, lines ...string) {
	w := cmd.ErrOrStderr()
	for _, line := range lines {
		_, _ = fmt.Fprintln(w, line)
	}
}

func installCompletion(shell string, sc shellCompletion) error {
	if sc.target == nil {
		return fmt.Errorf("automatic install is not supported for %s; run 'rung completion %s' and add the output to your profile", shell, shell)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("detecting home directory: %w", err)
	}
	target := sc.target(home)
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("creating completion directory: %w", err)
	}
	if err := writeCompletionFile(target, sc.generate); err != nil {
		return err
	}

	fmt.Printf("%s completions installed to %s\n", shell, target)
	if sc.postMsg != nil {
		sc.postMsg(target)
	}
	return nil
}

// writeCompletionFile writes the generated script to target, reporting a
// close error when generation succeeded.
func writeCompletionFile(target string, generate func(io.Writer) error) error {
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating completion file %s: %w", target, err)
	}
	writeErr := generate(f)
	closeErr := f.Close()
	if writeErr != nil {
		return writeErr
	}
	if closeErr != nil {
		return fmt.Errorf("closing completion file %s: %w", target, closeErr)
	}
	return nil
}

// bashCompletionTarget is the user-local bash-completion (>= 2.0) location.
func bashCompletionTarget(home string) string {
	return filepath.Join(home, ".local", "share", "bash-completion", "completions", "rung")
}
