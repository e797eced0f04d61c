package cmd

import (
	"bytes"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// detectShell auto-detects the current shell from environment
func detectShell() string {
	shellLower := strings.ToLower(os.Getenv("SHELL"))
	switch {
	case strings.Contains(shellLower, "fish"):
		return "fish"
	case strings.Contains(shellLower, "zsh"):
		return "zsh"
	case strings.Contains(shellLower, "pwsh"), strings.Contains(shellLower, "powershell"):
		return "powershell"
	default:
		return "bash"
	}
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for aslurm.

If no shell is specified, it is detected from $SHELL.

Bash:
  $ source <(aslurm completion bash)

Zsh:
  $ aslurm completion zsh > "${fpath[1]}/_aslurm"

Fish:
  $ aslurm completion fish > ~/.config/fish/completions/aslurm.fish

PowerShell:
  PS> aslurm completion powershell | Out-String | Invoke-Expression`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	Run: func(cmd *cobra.Command, args []string) {
		shell := detectShell()
		if len(args) > 0 {
			shell = args[0]
		}

		switch shell {
		case "bash":
			var buf bytes.Buffer
			if err := cmd.Root().GenBashCompletionV2(&buf, true); err != nil {
				_ = cmd.Root().GenBashCompletion(&buf)
			}
			os.Stdout.WriteString(postProcessBashCompletion(buf.String()))
		case "zsh":
			cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			cmd.Root().GenFishCompletion(os.Stdout, true)
		case "powershell":
			cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
		}
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}

// postProcessBashCompletion falls back to file completion once a cmd or
// cmdxN word (or --) is on the line, since the rest is the user's command.
func postProcessBashCompletion(script string) string {
	oldCode := `args=("${words[@]:1}")
    requestComp="${words[0]} __complete ${args[*]}"`

	newCode := `args=("${words[@]:1}")
    local word
    for word in "${words[@]:1:cword-1}"; do
        if [[ "$word" == "--" || "$word" =~ ^cmd(x[0-9]+)?$ ]]; then
            return
        fi
    done
    requestComp="${words[0]} __complete ${args[*]}"`

	return strings.Replace(script, oldCode, newCode, 1)
}
