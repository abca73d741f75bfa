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
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/manav03panchal/cmdstack/internal/command"
	"github.com/manav03panchal/cmdstack/internal/errors"
	"github.com/manav03panchal/cmdstack/internal/logging"
	"github.com/manav03panchal/cmdstack/internal/output"
	"github.com/manav03panchal/cmdstack/internal/runtime"
)

// Version information (set at build time via ldflags).
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Global flags.
var (
	flagFormat string
	flagColor  string
	flagDebug  bool
	flagDB     string
	flagConfig string
)

// ws is the workspace opened for this invocation.
var ws *runtime.Context

// noWorkspace lists commands that run without opening the database.
var noWorkspace = map[string]bool{
	"completion": true,
	"help":       true,
	"version":    true,
	"config":     true,
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "cmdstack",
	Short: "Scriptable objects with unlimited undo",
	Long: `cmdstack keeps a workspace of objects and records every change as a
command in an undo history. Commands can be undone, redone, grouped into
batches, captured as macros and replayed against other objects.

Examples:
  cmdstack new cube --type mesh size=1
  cmdstack set cube size 2
  cmdstack call cube increment size
  cmdstack undo
  cmdstack history
  cmdstack macro create 0 1 --name Build
  cmdstack macro run Build --on sphere`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noWorkspace[cmd.Name()] || (cmd.Parent() != nil && noWorkspace[cmd.Parent().Name()]) {
			return nil
		}

		format, err := parseFormatFlag(cmd)
		if err != nil {
			return err
		}
		colorMode, err := parseColorFlag(cmd)
		if err != nil {
			return err
		}

		opts := runtime.DefaultOptions()
		opts.ConfigPath = flagConfig
		opts.DBPath = flagDB
		opts.Format = format
		opts.ColorMode = colorMode
		opts.Debug = flagDebug
		opts.Output = cmd.OutOrStdout()

		ws, err = runtime.New(cmd.Context(), opts)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeWorkspace()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default behavior: show the history
		return runHistory(cmd, args)
	},
}

// parseFormatFlag returns the --format value, or "" when the flag was not
// given so the configuration file decides.
func parseFormatFlag(cmd *cobra.Command) (output.Format, error) {
	if !cmd.Flags().Changed("format") {
		return "", nil
	}
	return output.ParseFormat(flagFormat)
}

func parseColorFlag(cmd *cobra.Command) (output.ColorMode, error) {
	if !cmd.Flags().Changed("color") {
		return "", nil
	}
	return output.ParseColorMode(flagColor)
}

func closeWorkspace() error {
	if ws == nil {
		return nil
	}
	err := ws.Close()
	ws = nil
	return err
}

// save persists the workspace after a mutating command.
func save(cmd *cobra.Command) error {
	return ws.Save(cmd.Context())
}

// recorded reports whether inst is the history entry at the cursor.
func recorded(c context.Context, inst *command.Instance) bool {
	idx := ws.Manager.CommandIndex(c)
	history := ws.Manager.History(c)
	return idx >= 0 && idx < len(history) && history[idx] == inst
}

// execute runs one command, prints its outcome and saves the workspace.
func execute(cmd *cobra.Command, id string, args any) error {
	c := cmd.Context()
	inst, err := ws.Manager.Execute(c, id, args)
	if err != nil {
		return err
	}
	rec := recorded(c, inst)
	if err := save(cmd); err != nil {
		return err
	}

	if ws.IsJSON() {
		if err := ws.Formatter.JSON(output.NewExecResponse(inst, rec)); err != nil {
			return err
		}
	} else {
		ws.CLIFormatter().PrintExec(inst, rec)
	}
	if err := inst.Err(); err != nil {
		return reportedError{err}
	}
	return nil
}

// reportedError is an error whose outcome was already printed. It still makes
// the process exit non-zero.
type reportedError struct {
	error
}

func (e reportedError) Unwrap() error { return e.error }

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	c, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return run(c, os.Args[1:])
}

// run executes one invocation with args and reports its error.
func run(c context.Context, args []string) error {
	rootCmd.SetArgs(args)
	c = logging.WithInvocationID(c, logging.NewInvocationID())
	err := rootCmd.ExecuteContext(c)
	if err != nil {
		printError(err)
	}
	if cerr := closeWorkspace(); err == nil {
		err = cerr
	}
	return err
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&flagFormat, "format", "f", "cli",
		"Output format: cli, json, plain")
	rootCmd.PersistentFlags().StringVar(&flagColor, "color", "auto",
		"Color output: auto, always, never")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false,
		"Enable debug output")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "",
		"Workspace database directory (\":memory:\" for a throwaway workspace)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "",
		"Configuration file (default $XDG_CONFIG_HOME/cmdstack/config.yaml)")

	rootCmd.AddCommand(versionCmd)
}

// versionCmd shows version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("cmdstack %s\n", Version)
		cmd.Printf("  commit: %s\n", Commit)
		cmd.Printf("  built: %s\n", BuildTime)
		cmd.Println("")
		cmd.Println("Based on Zeit (https://github.com/mrusme/zeit)")
		cmd.Println("Licensed under SEGV License v1.0")
	},
}

// printError reports err on stderr, or on stdout as JSON in JSON mode.
func printError(err error) {
	var rep reportedError
	if errors.As(err, &rep) {
		return
	}
	if ws != nil && ws.IsJSON() {
		_ = ws.JSONFormatter().PrintError(err, runtime.GetSuggestion(err))
		return
	}
	fmt.Fprintln(rootCmd.ErrOrStderr(), "Error: "+runtime.FormatError(err))
}
