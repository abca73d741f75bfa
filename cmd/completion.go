// Package cmd provides the CLI commands for cmdstack.
//
// This software is a derivative work based on Zeit (https://github.com/mrusme/zeit)
// Original work copyright (c) マリウス (mrusme)
// Modifications copyright (c) Manav Panchal
//
// Licensed under the SEGV License, Version 1.0
// See LICENSE file for full license text.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// completionHelp is the long help of the completion command; %[1]s is the
// binary name.
const completionHelp = `Generate shell completion scripts for %[1]s.

Bash:
  $ source <(%[1]s completion bash)
  $ %[1]s completion bash > /etc/bash_completion.d/%[1]s

Zsh (with compinit enabled):
  $ %[1]s completion zsh > "${fpath[1]}/_%[1]s"

Fish:
  $ %[1]s completion fish > ~/.config/fish/completions/%[1]s.fish

Start a new shell for the setup to take effect.
`

var completionShells = []string{"bash", "zsh", "fish"}

var completionCmd = &cobra.Command{
	Use:                   "completion [" + strings.Join(completionShells, "|") + "]",
	Short:                 "Generate shell completion scripts",
	DisableFlagsInUseLine: true,
	ValidArgs:             completionShells,
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletionV2(out, true)
		case "zsh":
			return rootCmd.GenZshCompletion(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, true)
		}
		return nil
	},
}

func init() {
	completionCmd.Long = fmt.Sprintf(completionHelp, rootCmd.Name())
	rootCmd.AddCommand(completionCmd)
}
