package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/manav03panchal/cmdstack/internal/command"
	"github.com/manav03panchal/cmdstack/internal/errors"
	"github.com/manav03panchal/cmdstack/internal/output"
)

// Macro command flags.
var (
	macroFlagName string
	macroFlagOn   string
)

// macroCmd groups the macro subcommands.
var macroCmd = &cobra.Command{
	Use:     "macro",
	Aliases: []string{"macros", "m"},
	Short:   "Capture and replay history entries",
	Long: `Macros replay a sequence of history entries as one undoable command.

Arguments that act on an object created by an earlier step follow that step's
result. Other object arguments are rebound to the object given with --on.

Examples:
  cmdstack macro create 0 1 2 --name Build
  cmdstack macro list
  cmdstack macro run Build --on sphere
  cmdstack macro delete Build`,
	RunE: runMacroList,
}

var macroCreateCmd = &cobra.Command{
	Use:   "create INDEX...",
	Short: "Create a macro from history entries",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runMacroCreate,
}

var macroListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List macros",
	Args:    cobra.NoArgs,
	RunE:    runMacroList,
}

var macroDeleteCmd = &cobra.Command{
	Use:               "delete NAME",
	Aliases:           []string{"rm"},
	Short:             "Delete a macro",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeMacros,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ws.Manager.DeleteMacro(args[0]); err != nil {
			return err
		}
		if err := save(cmd); err != nil {
			return err
		}
		if ws.IsJSON() {
			return ws.Formatter.JSON(map[string]string{"status": "deleted", "name": args[0]})
		}
		ws.CLIFormatter().Success("Deleted macro " + args[0])
		return nil
	},
}

var macroRunCmd = &cobra.Command{
	Use:               "run NAME",
	Short:             "Replay a macro",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeMacros,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, ok := ws.Manager.Macro(args[0]); !ok {
			return errors.Wrapf(errors.ErrNotFound, "macro %q", args[0])
		}
		return execute(cmd, args[0], command.MacroArgs{Context: command.ObjectID(macroFlagOn)})
	},
}

func init() {
	macroCreateCmd.Flags().StringVarP(&macroFlagName, "name", "n", "", "Macro name (default MacroN)")
	macroRunCmd.Flags().StringVar(&macroFlagOn, "on", "", "Object to replay the macro against")
	macroRunCmd.RegisterFlagCompletionFunc("on", completeObjects)

	macroCmd.AddCommand(macroCreateCmd)
	macroCmd.AddCommand(macroListCmd)
	macroCmd.AddCommand(macroDeleteCmd)
	macroCmd.AddCommand(macroRunCmd)
	rootCmd.AddCommand(macroCmd)
}

func runMacroCreate(cmd *cobra.Command, args []string) error {
	c := cmd.Context()
	history := ws.Manager.History(c)

	instances := make([]*command.Instance, 0, len(args))
	for _, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil || n < 0 || n >= len(history) {
			return errors.NewUserErrorWithField("index", a,
				fmt.Sprintf("No history entry %s", a),
				"Use an index shown by 'cmdstack history'").WithCause(errors.ErrOutOfRange)
		}
		instances = append(instances, history[n])
	}

	macro, err := ws.Manager.CreateMacro(c, instances, macroFlagName)
	if err != nil {
		return err
	}
	if err := save(cmd); err != nil {
		return err
	}

	if ws.IsJSON() {
		return ws.Formatter.JSON(output.NewMacroOutput(macro))
	}
	ws.CLIFormatter().Success(fmt.Sprintf("Created macro %s with %d steps", macro.ID(), len(macro.Steps())))
	return nil
}

func runMacroList(cmd *cobra.Command, args []string) error {
	macros := ws.Manager.Macros()
	if ws.IsJSON() {
		return ws.JSONFormatter().PrintMacros(macros)
	}
	ws.CLIFormatter().PrintMacros(macros)
	return nil
}
