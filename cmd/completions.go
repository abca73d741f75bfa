package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/manav03panchal/cmdstack/internal/command"
)

// completeObjects completes object ids.
func completeObjects(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if ws == nil || len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var completions []string
	for _, o := range ws.Objects.List() {
		if strings.HasPrefix(string(o.ID), toComplete) {
			completions = append(completions, string(o.ID)+"\t"+o.Type)
		}
	}
	return completions, cobra.ShellCompDirectiveNoFileComp
}

// completeCommands completes registered command ids.
func completeCommands(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if ws == nil || len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var completions []string
	for _, id := range ws.Manager.Commands() {
		if id != command.BatchCommandID && strings.HasPrefix(id, toComplete) {
			completions = append(completions, id)
		}
	}
	return completions, cobra.ShellCompDirectiveNoFileComp
}

// completeMacros completes macro names.
func completeMacros(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if ws == nil || len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var completions []string
	for _, m := range ws.Manager.Macros() {
		if strings.HasPrefix(m.ID(), toComplete) {
			completions = append(completions, m.ID())
		}
	}
	return completions, cobra.ShellCompDirectiveNoFileComp
}
